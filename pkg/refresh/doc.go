// Package refresh keeps a session's entitlement up to date.
//
// A Scheduler fetches the entitlement on demand, on a fixed interval and
// whenever it is triggered. Concurrent refreshes share one fetch. Every
// fetch is numbered and applied through license.StateStore, so a slow fetch
// never overwrites the result of a newer one. SignOut moves the scheduler to
// a new epoch: fetches started before it are dropped when they finish.
//
// Basic usage:
//
//	s := refresh.NewScheduler(fetch, refresh.WithConfig(cfg), refresh.WithLogger(log))
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop()
//
//	ent, _ := s.Current()
package refresh

// Package payment converts provider orders into license records.
//
// The Coordinator owns the order ledger. An order is created at the provider
// and recorded as awaiting_approval together with a PendingPayment. After the
// buyer approves it, CompletePurchase captures the money and issues the
// license:
//
//	created -> awaiting_approval -> captured -> license_issued
//
// Side branches: awaiting_approval -> abandoned when the buyer never returns,
// awaiting_approval -> needs_verification when the capture call times out,
// and any open state -> failed. A rejected capture may be retried once before
// the order fails.
//
// Calls for the same order are serialised in-process and, with WithLocker,
// across processes. A completed order replays its stored result, so duplicate
// returns and double clicks never capture twice.
//
// Every error matches one class with errors.Is: ErrValidation, ErrProvider,
// ErrTimeout, ErrPersistence or ErrAuthorization. A license write that fails
// after the money moved returns *PersistenceError carrying the order id as
// the support reference; it is logged with event=license_persistence_failure
// and sent to the Notifier.
//
// PayPalProvider and PaddleProvider implement Provider. MemoryStore and the
// redisstore subpackage implement Store.
package payment

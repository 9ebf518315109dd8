package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/statemachine"
)

const (
	created  = statemachine.StringState("created")
	awaiting = statemachine.StringState("awaiting_approval")
	captured = statemachine.StringState("captured")
	issued   = statemachine.StringState("license_issued")
	failed   = statemachine.StringState("failed")

	submit  = statemachine.StringEvent("submit")
	capture = statemachine.StringEvent("capture")
	issue   = statemachine.StringEvent("issue")
	fail    = statemachine.StringEvent("fail")
)

func orderFlow(opts ...statemachine.Option) *statemachine.Definition {
	base := []statemachine.Option{
		statemachine.WithTransition(created, awaiting, submit),
		statemachine.WithTransition(awaiting, captured, capture),
		statemachine.WithTransition(captured, issued, issue),
		statemachine.WithTransitionFrom([]statemachine.State{created, awaiting, captured}, failed, fail),
	}
	return statemachine.MustDefine(created, append(base, opts...)...)
}

func TestDefinition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fire returns next state", func(t *testing.T) {
		t.Parallel()
		def := orderFlow()

		next, err := def.Fire(ctx, created, submit, nil)
		require.NoError(t, err)
		assert.Equal(t, awaiting, next)

		next, err = def.Fire(ctx, next, capture, nil)
		require.NoError(t, err)
		assert.Equal(t, captured, next)
	})

	t.Run("undefined event keeps state", func(t *testing.T) {
		t.Parallel()
		def := orderFlow()

		next, err := def.Fire(ctx, created, issue, nil)
		require.Error(t, err)
		assert.True(t, statemachine.IsNoTransitionAvailableError(err))
		assert.Equal(t, created, next)
	})

	t.Run("fan-in from several states", func(t *testing.T) {
		t.Parallel()
		def := orderFlow()

		for _, from := range []statemachine.State{created, awaiting, captured} {
			next, err := def.Fire(ctx, from, fail, nil)
			require.NoError(t, err)
			assert.Equal(t, failed, next)
		}
		assert.False(t, def.CanFire(ctx, issued, fail, nil))
	})

	t.Run("terminal and known states", func(t *testing.T) {
		t.Parallel()
		def := orderFlow()

		assert.True(t, def.Terminal(issued))
		assert.True(t, def.Terminal(failed))
		assert.False(t, def.Terminal(awaiting))
		assert.True(t, def.Known(failed))
		assert.False(t, def.Known(statemachine.StringState("refunded")))
		assert.Equal(t, created, def.Initial())

		_, err := def.Fire(ctx, statemachine.StringState("refunded"), submit, nil)
		assert.True(t, statemachine.IsUnknownStateError(err))
	})

	t.Run("guards select the first passing transition", func(t *testing.T) {
		t.Parallel()
		retryable := func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
			attempt, _ := data.(int)
			return attempt < 2
		}
		def := statemachine.MustDefine(awaiting,
			statemachine.WithTransition(awaiting, awaiting, fail, statemachine.WithGuard(retryable)),
			statemachine.WithTransition(awaiting, failed, fail),
		)

		next, err := def.Fire(ctx, awaiting, fail, 1)
		require.NoError(t, err)
		assert.Equal(t, awaiting, next)

		next, err = def.Fire(ctx, awaiting, fail, 2)
		require.NoError(t, err)
		assert.Equal(t, failed, next)
	})

	t.Run("all guards rejecting", func(t *testing.T) {
		t.Parallel()
		never := func(context.Context, statemachine.State, statemachine.Event, any) bool { return false }
		def := statemachine.MustDefine(created,
			statemachine.WithTransition(created, awaiting, submit, statemachine.WithGuards(never, nil)),
		)

		_, err := def.Fire(ctx, created, submit, nil)
		assert.True(t, statemachine.IsTransitionRejectedError(err))
		assert.False(t, def.CanFire(ctx, created, submit, nil))
	})

	t.Run("action error aborts transition", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("ledger write failed")
		var calls []string
		def := statemachine.MustDefine(created,
			statemachine.WithTransition(created, awaiting, submit,
				statemachine.WithAction(func(_ context.Context, from, to statemachine.State, _ statemachine.Event, _ any) error {
					calls = append(calls, from.Name()+"->"+to.Name())
					return boom
				}),
			),
		)

		next, err := def.Fire(ctx, created, submit, nil)
		require.Error(t, err)
		assert.True(t, statemachine.IsActionFailedError(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, created, next)
		assert.Equal(t, []string{"created->awaiting_approval"}, calls)
	})

	t.Run("nil arguments", func(t *testing.T) {
		t.Parallel()
		def := orderFlow()

		_, err := def.Fire(ctx, nil, submit, nil)
		assert.ErrorIs(t, err, statemachine.ErrNilState)
		_, err = def.Fire(ctx, created, nil, nil)
		assert.ErrorIs(t, err, statemachine.ErrInvalidEvent)
	})
}

func TestDefinitionConstruction(t *testing.T) {
	t.Parallel()

	t.Run("nil initial state", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.NewDefinition(nil)
		assert.ErrorIs(t, err, statemachine.ErrNilState)
	})

	t.Run("nil transition members", func(t *testing.T) {
		t.Parallel()
		_, err := statemachine.NewDefinition(created,
			statemachine.WithTransitions([]statemachine.TransitionDef{
				{From: created, To: awaiting, Event: submit},
				{From: awaiting, To: nil, Event: capture},
			}),
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
		assert.Contains(t, err.Error(), "transition[1]")
	})

	t.Run("must define panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			statemachine.MustDefine(created, statemachine.WithTransition(nil, awaiting, submit))
		})
	})
}

package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"machine-alert-backend/internal/apperr"
	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/model"
	"machine-alert-backend/internal/store"
)

func TestEngine_Create(t *testing.T) {
	testCases := []struct {
		name  string
		input CreateInput
		check func(t *testing.T, c *model.Call)
	}{
		{
			name:  "Inherits the machine duration",
			input: CreateInput{MachineID: "m-45", Roles: produccion},
			check: func(t *testing.T, c *model.Call) {
				assert.Equal(t, 45, c.Duration)
				assert.Equal(t, model.CallTypeNormal, c.CallType)
			},
		},
		{
			name:  "Explicit duration wins over the machine",
			input: CreateInput{MachineID: "m-45", Duration: intPtr(12), Roles: produccion},
			check: func(t *testing.T, c *model.Call) { assert.Equal(t, 12, c.Duration) },
		},
		{
			name:  "Mole forces thirty minutes",
			input: CreateInput{MachineID: "m-45", Duration: intPtr(999), CallType: model.CallTypeMole, Roles: produccion},
			check: func(t *testing.T, c *model.Call) {
				assert.Equal(t, 30, c.Duration)
				assert.Equal(t, model.CallTypeMole, c.CallType)
			},
		},
		{
			name:  "Mole ignores a non-positive duration",
			input: CreateInput{MachineID: "m-45", Duration: intPtr(0), CallType: model.CallTypeMole, Roles: produccion},
			check: func(t *testing.T, c *model.Call) { assert.Equal(t, MoleDurationMinutes, c.Duration) },
		},
		{
			name:  "Creator tagged as production by default",
			input: CreateInput{MachineID: "m-90", Roles: []authz.Role{authz.RoleAdmin}},
			check: func(t *testing.T, c *model.Call) { assert.Equal(t, "PRODUCCION", c.CreatedBy) },
		},
		{
			name:  "Creator tagged as logistics when the caller holds it",
			input: CreateInput{MachineID: "m-90", Roles: []authz.Role{authz.RoleProduccion, authz.RoleLogistica}},
			check: func(t *testing.T, c *model.Call) { assert.Equal(t, "LOGISTICA", c.CreatedBy) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			c, err := f.engine.Create(context.Background(), tc.input)
			require.NoError(t, err)

			assert.NotEmpty(t, c.ID)
			assert.Equal(t, model.StatusPending, c.Status)
			assert.Nil(t, c.CompletionTime)
			assert.True(t, c.CallTime.Equal(start))
			tc.check(t, c)

			stored := f.reload(t, c.ID)
			assert.Equal(t, c.Duration, stored.Duration)
			assert.Equal(t, []string{tc.input.MachineID}, stored.MachineIDs())
		})
	}
}

func TestEngine_CreateDateUsesPlantTimezone(t *testing.T) {
	f := newFixture(t)
	// 02:00 UTC on the 5th is still the evening of the 4th at UTC-6.
	f.clock.Set(time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC))

	c, err := f.engine.Create(context.Background(), CreateInput{MachineID: "m-45", Roles: produccion})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", c.Date)
}

func TestEngine_CreateAfterMachineRemoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, err := f.engine.Create(ctx, CreateInput{MachineID: "m-45", Roles: produccion})
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(&model.Machine{}, "id = ?", "m-45").Error)

	_, err = f.engine.Create(ctx, CreateInput{MachineID: "m-45", Roles: produccion})
	assert.ErrorIs(t, err, apperr.ErrMachineNotFound)

	// The existing call survives with a dangling reference.
	page, err := f.query.List(ctx, store.Filter{}, Page{})
	require.NoError(t, err)
	require.Len(t, page.Calls, 1)
	assert.Equal(t, c.ID, page.Calls[0].ID)
	assert.Equal(t, MissingName, page.Calls[0].Machines[0].Name)
}

func TestEngine_CallTimeKeepsStoredPrecision(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(start.Add(999_999_999 * time.Nanosecond))

	c, err := f.engine.Create(context.Background(), CreateInput{MachineID: "m-45", Roles: produccion})
	require.NoError(t, err)
	assert.Zero(t, c.CallTime.Nanosecond()%int(time.Microsecond))

	stored := f.reload(t, c.ID)
	assert.True(t, stored.CallTime.Equal(c.CallTime))
	f.clock.Set(c.CallTime.Add(45*time.Minute - time.Nanosecond))
	assert.Equal(t, RemainingSeconds(c, f.clock.Now()), RemainingSeconds(stored, f.clock.Now()))
}

func TestEngine_CreateRejects(t *testing.T) {
	testCases := []struct {
		name  string
		input CreateInput
		check func(error) bool
	}{
		{name: "Missing machine", input: CreateInput{MachineID: "  ", Roles: produccion}, check: apperr.IsInvalidInput},
		{name: "Zero duration", input: CreateInput{MachineID: "m-45", Duration: intPtr(0), Roles: produccion}, check: apperr.IsInvalidInput},
		{name: "Negative duration", input: CreateInput{MachineID: "m-45", Duration: intPtr(-5), Roles: produccion}, check: apperr.IsInvalidInput},
		{name: "Unknown call type", input: CreateInput{MachineID: "m-45", CallType: "urgent", Roles: produccion}, check: apperr.IsInvalidInput},
		{name: "Unknown machine", input: CreateInput{MachineID: "nope", Roles: produccion}, check: apperr.IsNotFound},
		{name: "Role cannot create", input: CreateInput{MachineID: "m-45", Roles: []authz.Role{authz.RoleUser}}, check: apperr.IsForbidden},
		{name: "No roles", input: CreateInput{MachineID: "m-45"}, check: apperr.IsForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.Create(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error kind: %v", err)

			var n int64
			require.NoError(t, f.db.Model(&model.Call{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestEngine_Complete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.insertCall(t, start, 10, "m-45")

	t.Run("Production may not complete", func(t *testing.T) {
		_, err := f.engine.Complete(ctx, c.ID, produccion)
		assert.True(t, apperr.IsForbidden(err))
		assert.Equal(t, model.StatusPending, f.reload(t, c.ID).Status)
	})

	t.Run("Role is checked before existence", func(t *testing.T) {
		_, err := f.engine.Complete(ctx, "missing", produccion)
		assert.True(t, apperr.IsForbidden(err))
	})

	t.Run("Unknown call", func(t *testing.T) {
		_, err := f.engine.Complete(ctx, "missing", logistica)
		assert.ErrorIs(t, err, apperr.ErrCallNotFound)
	})

	f.clock.Advance(3 * time.Minute)
	doneAt := f.clock.Now()

	t.Run("Logistics completes a pending call", func(t *testing.T) {
		got, err := f.engine.Complete(ctx, c.ID, logistica)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletionTime)
		assert.True(t, got.CompletionTime.Equal(doneAt))
	})

	t.Run("Completing again is an invalid state and changes nothing", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		_, err := f.engine.Complete(ctx, c.ID, logistica)
		assert.True(t, apperr.IsInvalidState(err))

		stored := f.reload(t, c.ID)
		assert.Equal(t, model.StatusCompleted, stored.Status)
		assert.True(t, stored.CompletionTime.Equal(doneAt))
	})
}

// rereadFailsStore fails every Get once a transition has gone through.
type rereadFailsStore struct {
	store.CallStore
	transitioned bool
}

func (s *rereadFailsStore) Transition(ctx context.Context, id string, to model.CallStatus, at time.Time) error {
	if err := s.CallStore.Transition(ctx, id, to, at); err != nil {
		return err
	}
	s.transitioned = true
	return nil
}

func (s *rereadFailsStore) Get(ctx context.Context, id string) (*model.Call, error) {
	if s.transitioned {
		return nil, apperr.NewUnavailable("get call", errors.New("connection reset"))
	}
	return s.CallStore.Get(ctx, id)
}

func TestEngine_CompleteDoesNotDependOnReread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.insertCall(t, start, 10, "m-45")
	f.clock.Advance(2 * time.Minute)

	s := &rereadFailsStore{CallStore: f.store}
	engine := NewEngine(s, store.NewMachineLookup(f.db), f.clock, EngineOptions{})

	got, err := engine.Complete(ctx, c.ID, logistica)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletionTime)
	assert.True(t, got.CompletionTime.Equal(f.clock.Now()))
	assert.Equal(t, []string{"m-45"}, got.MachineIDs())

	stored := f.reload(t, c.ID)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.True(t, stored.CompletionTime.Equal(*got.CompletionTime))
}

func TestEngine_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.insertCall(t, start, 10, "m-45")

	err := f.engine.Delete(ctx, c.ID, produccion)
	assert.True(t, apperr.IsForbidden(err))

	require.NoError(t, f.engine.Delete(ctx, c.ID, logistica))
	_, err = f.store.Get(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrCallNotFound)

	err = f.engine.Delete(ctx, c.ID, logistica)
	assert.ErrorIs(t, err, apperr.ErrCallNotFound)
}

func TestEngine_SweepConvergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	var overdue []*model.Call
	for _, d := range []int{1, 5, 30, 45, 90, 90} {
		overdue = append(overdue, f.insertCall(t, now.Add(-time.Duration(d)*time.Minute-time.Second), d, "m-45"))
	}
	fresh := f.insertCall(t, now.Add(-time.Minute), 10, "m-90")
	done := f.insertCall(t, now.Add(-time.Hour), 10, "m-90")
	require.NoError(t, f.store.Transition(ctx, done.ID, model.StatusCompleted, now.Add(-50*time.Minute)))

	result, err := f.engine.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, len(overdue), result.Updated)
	assert.Empty(t, result.Errors)

	for _, c := range overdue {
		stored := f.reload(t, c.ID)
		assert.Equal(t, model.StatusExpired, stored.Status)
		require.NotNil(t, stored.CompletionTime)
		assert.True(t, stored.CompletionTime.Equal(now))
	}
	assert.Equal(t, model.StatusPending, f.reload(t, fresh.ID).Status)
	assert.Equal(t, model.StatusCompleted, f.reload(t, done.ID).Status)

	// Nothing left to do on the next tick.
	result, err = f.engine.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
}

// flakyStore fails transitions for selected calls.
type flakyStore struct {
	store.CallStore
	failFor map[string]bool
}

func (s *flakyStore) Transition(ctx context.Context, id string, to model.CallStatus, at time.Time) error {
	if s.failFor[id] {
		return apperr.NewUnavailable("transition call", errors.New("disk full"))
	}
	return s.CallStore.Transition(ctx, id, to, at)
}

func TestEngine_SweepCollectsErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	a := f.insertCall(t, now.Add(-2*time.Hour), 1, "m-45")
	b := f.insertCall(t, now.Add(-2*time.Hour), 1, "m-45")
	c := f.insertCall(t, now.Add(-2*time.Hour), 1, "m-45")

	flaky := &flakyStore{CallStore: f.store, failFor: map[string]bool{b.ID: true}}
	engine := NewEngine(flaky, store.NewMachineLookup(f.db), f.clock, EngineOptions{Parallelism: 2})

	result, err := engine.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, b.ID, result.Errors[0].CallID)
	assert.Contains(t, result.Errors[0].Error, "disk full")

	assert.Equal(t, model.StatusExpired, f.reload(t, a.ID).Status)
	assert.Equal(t, model.StatusPending, f.reload(t, b.ID).Status)
	assert.Equal(t, model.StatusExpired, f.reload(t, c.ID).Status)
}

func TestEngine_CompleteRacesSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := f.clock.Now()
	for i := 0; i < 20; i++ {
		c := f.insertCall(t, now.Add(-11*time.Minute), 10, "m-45")

		var (
			wg          sync.WaitGroup
			completeErr error
			sweep       SweepResult
			sweepErr    error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, completeErr = f.engine.Complete(ctx, c.ID, logistica)
		}()
		go func() {
			defer wg.Done()
			sweep, sweepErr = f.engine.SweepExpired(ctx, now)
		}()
		wg.Wait()

		require.NoError(t, sweepErr)
		assert.Empty(t, sweep.Errors)

		stored := f.reload(t, c.ID)
		require.True(t, stored.Status.Terminal(), "call left %s", stored.Status)
		require.NotNil(t, stored.CompletionTime)
		if completeErr == nil {
			assert.Equal(t, model.StatusCompleted, stored.Status)
			assert.Zero(t, sweep.Updated)
		} else {
			assert.True(t, apperr.IsInvalidState(completeErr), "unexpected error: %v", completeErr)
			assert.Equal(t, model.StatusExpired, stored.Status)
			assert.Equal(t, 1, sweep.Updated)
		}
	}
}

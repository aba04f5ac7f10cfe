package calls

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"machine-alert-backend/internal/apperr"
	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/clock"
	"machine-alert-backend/internal/model"
	"machine-alert-backend/internal/store"
)

// CreateInput carries a call creation request.
type CreateInput struct {
	MachineID string
	Duration  *int // minutes; nil inherits the machine's duration, ignored for mole calls
	CallType  model.CallType
	Roles     []authz.Role
}

// SweepError records a call the sweep failed to expire.
type SweepError struct {
	CallID string `json:"callId"`
	Error  string `json:"error"`
}

// SweepResult summarizes one expiration sweep.
type SweepResult struct {
	Updated int          `json:"updatedCount"`
	Errors  []SweepError `json:"errors,omitempty"`
}

// EngineOptions tunes the lifecycle engine.
type EngineOptions struct {
	Location       *time.Location // plant timezone used for the call date
	Parallelism    int            // concurrent transitions per sweep
	PerCallTimeout time.Duration  // budget for a single transition during a sweep
	Logger         logrus.FieldLogger
}

// Engine owns the call state machine: Pendiente to Realizada by an operator,
// or Pendiente to Expirada by the sweep. Every transition goes through the
// store's compare-and-set so concurrent writers cannot both win.
type Engine struct {
	store    store.CallStore
	machines store.MachineLookup
	clock    clock.Clock
	opts     EngineOptions
	newID    func() string
}

// NewEngine creates a lifecycle engine. machines must read through to the
// database: creation checks that the machine still exists.
func NewEngine(s store.CallStore, machines store.MachineLookup, clk clock.Clock, opts EngineOptions) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.PerCallTimeout <= 0 {
		opts.PerCallTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Engine{
		store:    s,
		machines: machines,
		clock:    clk,
		opts:     opts,
		newID:    uuid.NewString,
	}
}

// Now returns the engine's notion of the current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// now is the instant stamped on calls, at the microsecond precision the
// database keeps, so remaining time is the same before and after a reload.
func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Microsecond)
}

// Create raises a new pending call against a machine.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*model.Call, error) {
	if !authz.AnyHasCapability(in.Roles, authz.CapCreateCall) {
		return nil, apperr.NewForbidden("role not allowed to create calls")
	}
	machineID := strings.TrimSpace(in.MachineID)
	if machineID == "" {
		return nil, apperr.NewInvalidInput("machineId", "is required")
	}
	callType := in.CallType
	if callType == "" {
		callType = model.CallTypeNormal
	}
	if !callType.Valid() {
		return nil, apperr.NewInvalidInput("callType", "must be normal or mole")
	}
	if callType != model.CallTypeMole && in.Duration != nil && *in.Duration <= 0 {
		return nil, apperr.NewInvalidInput("duration", "must be a positive number of minutes")
	}

	machine, err := e.machines.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	duration := model.DefaultMachineDuration
	switch {
	case callType == model.CallTypeMole:
		duration = MoleDurationMinutes
	case in.Duration != nil:
		duration = *in.Duration
	case machine.Duration > 0:
		duration = machine.Duration
	}

	now := e.now()
	id := e.newID()
	call := &model.Call{
		ID:        id,
		CallTime:  now,
		Date:      now.In(e.opts.Location).Format(time.DateOnly),
		Duration:  duration,
		CallType:  callType,
		Status:    model.StatusPending,
		CreatedBy: string(authz.CreatorTag(in.Roles)),
		MachineRefs: []model.CallMachine{
			{CallID: id, MachineID: machine.ID},
		},
	}
	if err := e.store.Create(ctx, call); err != nil {
		return nil, err
	}

	e.opts.Logger.WithFields(logrus.Fields{
		"call_id":  call.ID,
		"machine":  machine.Name,
		"duration": call.Duration,
		"type":     call.CallType,
	}).Info("Call created")
	return call, nil
}

// Complete marks a pending call as done by logistics. Completing a call that
// already left Pendiente is an error, not a no-op. The call is read before the
// transition; once the transition commits nothing else can fail.
func (e *Engine) Complete(ctx context.Context, id string, roles []authz.Role) (*model.Call, error) {
	if !authz.AnyHasCapability(roles, authz.CapCompleteCall) {
		return nil, apperr.NewForbidden("role not allowed to complete calls")
	}
	call, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if call.Status != model.StatusPending {
		return nil, apperr.ErrCallNotPending
	}

	at := e.now()
	if err := e.store.Transition(ctx, id, model.StatusCompleted, at); err != nil {
		return nil, err
	}
	call.Status = model.StatusCompleted
	call.CompletionTime = &at
	call.UpdatedAt = at

	e.opts.Logger.WithField("call_id", id).Info("Call completed")
	return call, nil
}

// Delete removes a call for good.
func (e *Engine) Delete(ctx context.Context, id string, roles []authz.Role) error {
	if !authz.AnyHasCapability(roles, authz.CapDeleteCall) {
		return apperr.NewForbidden("role not allowed to delete calls")
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.opts.Logger.WithField("call_id", id).Info("Call deleted")
	return nil
}

// SweepExpired moves every pending call whose time ran out to Expirada.
// Calls are processed independently: a failed transition is collected in the
// result and does not stop the others. A call completed or deleted while the
// sweep runs is skipped. The returned error is set only when the pending
// calls could not be listed.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	now = now.UTC().Truncate(time.Microsecond)
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Parallelism)

	for i := range pending {
		call := &pending[i]
		if !Overdue(call, now) {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.opts.PerCallTimeout)
			defer cancel()

			err := e.store.Transition(callCtx, call.ID, model.StatusExpired, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Updated++
			case apperr.IsInvalidState(err), apperr.IsNotFound(err):
				// Lost the race to a completion or a delete.
			default:
				result.Errors = append(result.Errors, SweepError{CallID: call.ID, Error: err.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].CallID < result.Errors[j].CallID
	})
	return result, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"machine-alert-backend/internal/apperr"
	"machine-alert-backend/internal/model"
)

// CallStore defines the persistence operations of the call engine.
type CallStore interface {
	Create(ctx context.Context, call *model.Call) error
	Get(ctx context.Context, id string) (*model.Call, error)
	Delete(ctx context.Context, id string) error
	// Transition moves a Pendiente call to the terminal status to, stamping
	// the completion time. It is a single compare-and-set: of two concurrent
	// transitions on the same call exactly one succeeds.
	Transition(ctx context.Context, id string, to model.CallStatus, at time.Time) error
	ListPending(ctx context.Context) ([]model.Call, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]model.Call, int64, error)
	DeleteByMachine(ctx context.Context, machineID string) (int64, error)
}

// gormStore implements the CallStore interface using GORM.
type gormStore struct {
	db    *gorm.DB
	retry RetryPolicy
}

// NewGormStore creates a new GORM-backed call store.
func NewGormStore(db *gorm.DB, opts ...Option) CallStore {
	s := &gormStore{db: db, retry: DefaultRetryPolicy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option customizes a gormStore.
type Option func(*gormStore)

// WithRetryPolicy overrides the retry policy used on read paths.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *gormStore) { s.retry = p }
}

// Create inserts the call together with its machine references.
func (s *gormStore) Create(ctx context.Context, call *model.Call) error {
	if len(call.MachineRefs) == 0 {
		return apperr.NewInvalidInput("machineRefs", "a call needs at least one machine")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(call).Error
	})
	if err != nil {
		return apperr.NewUnavailable("create call", err)
	}
	return nil
}

// Get loads a call and its machine references.
func (s *gormStore) Get(ctx context.Context, id string) (*model.Call, error) {
	var call model.Call
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Preload("MachineRefs").First(&call, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrCallNotFound
	}
	if err != nil {
		return nil, apperr.NewUnavailable("get call", err)
	}
	return &call, nil
}

// Delete removes the call and its machine references in one transaction.
func (s *gormStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("call_id = ?", id).Delete(&model.CallMachine{}).Error; err != nil {
			return fmt.Errorf("failed to delete machine refs of call %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Call{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete call %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.ErrCallNotFound
		}
		return nil
	})
	if err == nil || apperr.IsNotFound(err) {
		return err
	}
	return apperr.NewUnavailable("delete call", err)
}

// Transition performs the guarded Pendiente -> terminal update.
func (s *gormStore) Transition(ctx context.Context, id string, to model.CallStatus, at time.Time) error {
	if !to.Terminal() {
		return apperr.NewInvalidInput("status", fmt.Sprintf("%q is not a terminal status", to))
	}
	res := s.db.WithContext(ctx).
		Model(&model.Call{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]any{
			"status":          to,
			"completion_time": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return apperr.NewUnavailable("transition call", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Nothing matched: either the call is gone or it already left Pendiente.
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Call{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return apperr.NewUnavailable("transition call", err)
	}
	if n == 0 {
		return apperr.ErrCallNotFound
	}
	return apperr.ErrCallNotPending
}

// ListPending returns every Pendiente call, oldest first.
func (s *gormStore) ListPending(ctx context.Context) ([]model.Call, error) {
	var calls []model.Call
	err := s.retry.Do(ctx, func() error {
		calls = nil
		return s.db.WithContext(ctx).
			Where("status = ?", model.StatusPending).
			Order("call_time ASC").
			Find(&calls).Error
	})
	if err != nil {
		return nil, apperr.NewUnavailable("list pending calls", err)
	}
	return calls, nil
}

// List returns one page of calls matching f, newest first, plus the total
// number of matches. A non-positive limit returns every match.
func (s *gormStore) List(ctx context.Context, f Filter, limit, offset int) ([]model.Call, int64, error) {
	var (
		calls []model.Call
		total int64
	)
	err := s.retry.Do(ctx, func() error {
		calls = nil
		if err := f.apply(s.db.WithContext(ctx).Model(&model.Call{})).Count(&total).Error; err != nil {
			return err
		}
		q := f.apply(s.db.WithContext(ctx).Model(&model.Call{})).
			Preload("MachineRefs").
			Order("call_time DESC").
			Order("id DESC")
		if limit > 0 {
			q = q.Limit(limit).Offset(offset)
		}
		return q.Find(&calls).Error
	})
	if err != nil {
		return nil, 0, apperr.NewUnavailable("list calls", err)
	}
	return calls, total, nil
}

// DeleteByMachine removes every call referencing machineID. It is the
// cascade step run before a machine is removed.
func (s *gormStore) DeleteByMachine(ctx context.Context, machineID string) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.CallMachine{}).Where("machine_id = ?", machineID).Pluck("call_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("call_id IN ?", ids).Delete(&model.CallMachine{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&model.Call{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperr.NewUnavailable("delete calls of machine", err)
	}
	return deleted, nil
}

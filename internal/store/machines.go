package store

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"machine-alert-backend/internal/apperr"
	"machine-alert-backend/internal/model"
)

// MachineLookup resolves machine references. Machines are owned by another
// component; calls only hold their ids.
type MachineLookup interface {
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	// GetMachines returns the machines that still exist, keyed by id.
	// Missing ids are silently absent from the result.
	GetMachines(ctx context.Context, ids []string) (map[string]model.Machine, error)
}

type gormMachines struct {
	db    *gorm.DB
	retry RetryPolicy
}

// NewMachineLookup creates a GORM-backed machine lookup.
func NewMachineLookup(db *gorm.DB) MachineLookup {
	return &gormMachines{db: db, retry: DefaultRetryPolicy}
}

func (s *gormMachines) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var m model.Machine
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Preload("Factory.Category").First(&m, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrMachineNotFound
	}
	if err != nil {
		return nil, apperr.NewUnavailable("get machine", err)
	}
	return &m, nil
}

func (s *gormMachines) GetMachines(ctx context.Context, ids []string) (map[string]model.Machine, error) {
	out := make(map[string]model.Machine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var machines []model.Machine
	err := s.retry.Do(ctx, func() error {
		machines = nil
		return s.db.WithContext(ctx).Preload("Factory.Category").Where("id IN ?", ids).Find(&machines).Error
	})
	if err != nil {
		return nil, apperr.NewUnavailable("get machines", err)
	}
	for _, m := range machines {
		out[m.ID] = m
	}
	return out, nil
}

// CachedMachines keeps recently resolved machines in memory. Listing pages
// resolve the same handful of machines over and over. A machine renamed or
// removed elsewhere keeps its old view for up to the TTL, so it serves
// read-only enrichment only; existence checks use the uncached lookup.
type CachedMachines struct {
	next  MachineLookup
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedMachines wraps next with an in-memory cache of the given TTL.
func NewCachedMachines(next MachineLookup, ttl time.Duration) *CachedMachines {
	return &CachedMachines{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (c *CachedMachines) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	if v, ok := c.cache.Get(id); ok {
		m := v.(model.Machine)
		return &m, nil
	}
	m, err := c.next.GetMachine(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(id, *m, c.ttl)
	return m, nil
}

func (c *CachedMachines) GetMachines(ctx context.Context, ids []string) (map[string]model.Machine, error) {
	out := make(map[string]model.Machine, len(ids))
	var missing []string
	for _, id := range ids {
		if v, ok := c.cache.Get(id); ok {
			out[id] = v.(model.Machine)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	found, err := c.next.GetMachines(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, m := range found {
		c.cache.Set(id, m, c.ttl)
		out[id] = m
	}
	return out, nil
}

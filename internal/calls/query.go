package calls

import (
	"context"
	"time"

	"machine-alert-backend/internal/clock"
	"machine-alert-backend/internal/model"
	"machine-alert-backend/internal/store"
)

// MissingName is shown for a machine that no longer exists.
const MissingName = "N/A"

// Page selects a 1-indexed page of results.
type Page struct {
	Page  int
	Limit int
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// Ref is a named reference to a factory or category.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MachineView is a machine as shown next to a call.
type MachineView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Status      model.MachineStatus `json:"status,omitempty"`
	Factory     *Ref                `json:"factory,omitempty"`
	Category    *Ref                `json:"category,omitempty"`
}

// CallView is a call projected at a point in time.
type CallView struct {
	ID              string           `json:"id"`
	Machines        []MachineView    `json:"machines"`
	CallTime        time.Time        `json:"callTime"`
	Date            string           `json:"date"`
	Duration        int              `json:"duration"`
	CallType        model.CallType   `json:"callType"`
	Status          model.CallStatus `json:"status"`
	PersistedStatus model.CallStatus `json:"persistedStatus"`
	RemainingTime   int64            `json:"remainingTime"` // seconds
	CompletionTime  *time.Time       `json:"completionTime"`
	CreatedBy       string           `json:"createdBy"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// CallPage is one page of projected calls.
type CallPage struct {
	Calls      []CallView `json:"calls"`
	Pagination Pagination `json:"pagination"`
}

// QueryService serves read-only, time-projected views of calls. It never
// writes; persisting expirations is the sweep's job.
type QueryService struct {
	store           store.CallStore
	machines        store.MachineLookup
	clock           clock.Clock
	defaultPageSize int
	maxPageSize     int
}

// NewQueryService creates a query service. Non-positive sizes fall back to 10 and 100.
func NewQueryService(s store.CallStore, machines store.MachineLookup, clk clock.Clock, defaultPageSize, maxPageSize int) *QueryService {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	if defaultPageSize <= 0 || defaultPageSize > maxPageSize {
		defaultPageSize = min(10, maxPageSize)
	}
	return &QueryService{
		store:           s,
		machines:        machines,
		clock:           clk,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// List returns one page of calls matching f, newest first.
func (q *QueryService) List(ctx context.Context, f store.Filter, p Page) (*CallPage, error) {
	p = q.normalize(p)
	now := q.clock.Now()

	rows, total, err := q.store.List(ctx, f, p.Limit, (p.Page-1)*p.Limit)
	if err != nil {
		return nil, err
	}
	views, err := q.project(ctx, rows, now)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return &CallPage{
		Calls: views,
		Pagination: Pagination{
			Page:       p.Page,
			PageSize:   p.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    p.Page < totalPages,
			HasPrev:    p.Page > 1,
		},
	}, nil
}

// All returns every call matching f, newest first.
func (q *QueryService) All(ctx context.Context, f store.Filter) ([]CallView, error) {
	rows, _, err := q.store.List(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	return q.project(ctx, rows, q.clock.Now())
}

// View projects a single call.
func (q *QueryService) View(ctx context.Context, call *model.Call) (CallView, error) {
	views, err := q.project(ctx, []model.Call{*call}, q.clock.Now())
	if err != nil {
		return CallView{}, err
	}
	return views[0], nil
}

func (q *QueryService) normalize(p Page) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = q.defaultPageSize
	}
	if p.Limit > q.maxPageSize {
		p.Limit = q.maxPageSize
	}
	return p
}

func (q *QueryService) project(ctx context.Context, rows []model.Call, now time.Time) ([]CallView, error) {
	seen := make(map[string]struct{})
	var ids []string
	for i := range rows {
		for _, id := range rows[i].MachineIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	machines, err := q.machines.GetMachines(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]CallView, 0, len(rows))
	for i := range rows {
		c := &rows[i]
		views = append(views, CallView{
			ID:              c.ID,
			Machines:        machineViews(c.MachineIDs(), machines),
			CallTime:        c.CallTime,
			Date:            c.Date,
			Duration:        c.Duration,
			CallType:        c.CallType,
			Status:          ProjectedStatus(c, now),
			PersistedStatus: c.Status,
			RemainingTime:   RemainingSeconds(c, now),
			CompletionTime:  c.CompletionTime,
			CreatedBy:       c.CreatedBy,
			CreatedAt:       c.CreatedAt,
		})
	}
	return views, nil
}

func machineViews(ids []string, known map[string]model.Machine) []MachineView {
	out := make([]MachineView, 0, len(ids))
	for _, id := range ids {
		m, ok := known[id]
		if !ok {
			out = append(out, MachineView{ID: id, Name: MissingName})
			continue
		}
		v := MachineView{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Status:      m.Status,
		}
		if m.Factory != nil {
			v.Factory = &Ref{ID: m.Factory.ID, Name: m.Factory.Name}
			if m.Factory.Category != nil {
				v.Category = &Ref{ID: m.Factory.Category.ID, Name: m.Factory.Category.Name}
			}
		}
		out = append(out, v)
	}
	return out
}

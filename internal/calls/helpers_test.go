package calls

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/clock"
	"machine-alert-backend/internal/db"
	"machine-alert-backend/internal/model"
	"machine-alert-backend/internal/store"
)

var (
	start      = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	logistica  = []authz.Role{authz.RoleLogistica}
	produccion = []authz.Role{authz.RoleProduccion}
)

type fixture struct {
	db     *gorm.DB
	store  store.CallStore
	clock  *clock.Manual
	engine *Engine
	query  *QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// Shared-cache sqlite rejects concurrent writers instead of waiting.
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gormDB))

	require.NoError(t, gormDB.Create(&model.Category{ID: "cat-1", Name: "Inyección"}).Error)
	require.NoError(t, gormDB.Create(&model.Factory{ID: "fac-1", CategoryID: "cat-1", Name: "Planta Norte"}).Error)
	require.NoError(t, gormDB.Create(&[]model.Machine{
		{ID: "m-45", FactoryID: "fac-1", Name: "INY-45", Status: model.MachineActive, Duration: 45},
		{ID: "m-90", FactoryID: "fac-1", Name: "INY-90", Status: model.MachineActive, Duration: 90},
	}).Error)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	clk := clock.NewManual(start)
	s := store.NewGormStore(gormDB, store.WithRetryPolicy(store.NoRetry))
	machines := store.NewMachineLookup(gormDB)
	return &fixture{
		db:    gormDB,
		store: s,
		clock: clk,
		engine: NewEngine(s, machines, clk, EngineOptions{
			Location:       time.FixedZone("CST", -6*60*60),
			Parallelism:    4,
			PerCallTimeout: 5 * time.Second,
			Logger:         log,
		}),
		query: NewQueryService(s, machines, clk, 10, 100),
	}
}

// insertCall stores a pending call directly, bypassing creation rules.
func (f *fixture) insertCall(t *testing.T, callTime time.Time, duration int, machineIDs ...string) *model.Call {
	t.Helper()
	id := uuid.NewString()
	c := &model.Call{
		ID:        id,
		CallTime:  callTime,
		Date:      callTime.Format(time.DateOnly),
		Duration:  duration,
		CallType:  model.CallTypeNormal,
		Status:    model.StatusPending,
		CreatedBy: string(authz.RoleProduccion),
	}
	for _, m := range machineIDs {
		c.MachineRefs = append(c.MachineRefs, model.CallMachine{CallID: id, MachineID: m})
	}
	require.NoError(t, f.store.Create(context.Background(), c))
	return c
}

func (f *fixture) reload(t *testing.T, id string) *model.Call {
	t.Helper()
	c, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }

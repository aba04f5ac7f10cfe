package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"machine-alert-backend/config"
	"machine-alert-backend/internal/db"
	"machine-alert-backend/internal/model"
	"machine-alert-backend/internal/store"
)

const seedYAML = `
categories:
  - name: Inyección
factories:
  - name: Planta Norte
    category_name: Inyección
machines:
  - name: INY-01
    factory_name: Planta Norte
    duration: 45
  - name: INY-02
    factory_name: Planta Norte
`

func setup(t *testing.T) (*gorm.DB, store.CallStore, *logrus.Logger) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, log)
	require.NoError(t, err)
	return gormDB, store.NewGormStore(gormDB, store.WithRetryPolicy(store.NoRetry)), log
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSeed_RejectsDanglingReferences(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "Unknown category", body: "factories:\n  - name: F\n    category_name: nope\n"},
		{name: "Unknown factory", body: "machines:\n  - name: M\n    factory_name: nope\n"},
		{name: "Unknown status", body: "categories:\n  - name: C\nfactories:\n  - name: F\n    category_name: C\nmachines:\n  - name: M\n    factory_name: F\n    status: broken\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSeed(writeSeed(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestApply_IsIdempotent(t *testing.T) {
	gormDB, calls, log := setup(t)
	seed, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		sum, err := Apply(context.Background(), gormDB, calls, seed, false, log)
		require.NoError(t, err)
		assert.Equal(t, Summary{Categories: 1, Factories: 1, Machines: 2}, sum)
	}

	var machines []model.Machine
	require.NoError(t, gormDB.Order("name").Find(&machines).Error)
	require.Len(t, machines, 2)
	assert.Equal(t, 45, machines[0].Duration)
	assert.Equal(t, model.DefaultMachineDuration, machines[1].Duration)
	assert.Equal(t, model.MachineActive, machines[1].Status)
	assert.Equal(t, idFor("machine", "INY-01"), machines[0].ID)
}

func TestApply_PruneCascadesCalls(t *testing.T) {
	gormDB, calls, log := setup(t)
	seed, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)
	_, err = Apply(context.Background(), gormDB, calls, seed, false, log)
	require.NoError(t, err)

	gone := idFor("machine", "INY-02")
	call := &model.Call{
		ID:          uuid.NewString(),
		CallTime:    time.Now().UTC(),
		Date:        "2024-03-04",
		Duration:    90,
		CallType:    model.CallTypeNormal,
		Status:      model.StatusPending,
		CreatedBy:   "PRODUCCION",
		MachineRefs: []model.CallMachine{{MachineID: gone}},
	}
	require.NoError(t, calls.Create(context.Background(), call))

	seed.Machines = seed.Machines[:1]
	sum, err := Apply(context.Background(), gormDB, calls, seed, true, log)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pruned)
	assert.Equal(t, int64(1), sum.PrunedCalls)

	var n int64
	require.NoError(t, gormDB.Model(&model.Machine{}).Where("id = ?", gone).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, gormDB.Model(&model.Call{}).Count(&n).Error)
	assert.Zero(t, n)
}

// Command seed loads categories, factories and machines from a YAML file.
// Ids are derived from names so repeated runs update rows in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"machine-alert-backend/config"
	"machine-alert-backend/internal/db"
	"machine-alert-backend/internal/logger"
	"machine-alert-backend/internal/model"
	"machine-alert-backend/internal/store"
)

// namespace scopes the name-derived ids of seeded rows.
var namespace = uuid.MustParse("5f0c6a8e-3b2d-4c1e-9a7f-0d4b8e2c6a10")

type CategoryData struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type FactoryData struct {
	Name         string `yaml:"name"`
	CategoryName string `yaml:"category_name"`
	Description  string `yaml:"description"`
}

type MachineData struct {
	Name        string `yaml:"name"`
	FactoryName string `yaml:"factory_name"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Duration    int    `yaml:"duration"`
}

// SeedFile is the layout of the seed document.
type SeedFile struct {
	Categories []CategoryData `yaml:"categories"`
	Factories  []FactoryData  `yaml:"factories"`
	Machines   []MachineData  `yaml:"machines"`
}

// Summary counts what a seed run touched.
type Summary struct {
	Categories  int
	Factories   int
	Machines    int
	Pruned      int
	PrunedCalls int64
}

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "./config/config.yaml"), "path to the service configuration")
	seedPath := flag.String("file", "./config/seed.example.yaml", "path to the seed YAML")
	prune := flag.Bool("prune", false, "remove machines (and their calls) that are not in the seed file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration from %s: %v", *configPath, err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("failed to set up logging: %v", err)
	}

	seed, err := LoadSeed(*seedPath)
	if err != nil {
		log.Fatalf("failed to read seed file: %v", err)
	}

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	sum, err := Apply(context.Background(), gormDB, store.NewGormStore(gormDB), seed, *prune, log)
	if err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"categories":   sum.Categories,
		"factories":    sum.Factories,
		"machines":     sum.Machines,
		"pruned":       sum.Pruned,
		"pruned_calls": sum.PrunedCalls,
	}).Info("seed complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadSeed reads and checks a seed document.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := seed.check(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *SeedFile) check() error {
	categories := make(map[string]bool)
	for _, c := range s.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("category without name")
		}
		categories[c.Name] = true
	}
	factories := make(map[string]bool)
	for _, f := range s.Factories {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("factory without name")
		}
		if !categories[f.CategoryName] {
			return fmt.Errorf("factory %q references unknown category %q", f.Name, f.CategoryName)
		}
		factories[f.Name] = true
	}
	for _, m := range s.Machines {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("machine without name")
		}
		if !factories[m.FactoryName] {
			return fmt.Errorf("machine %q references unknown factory %q", m.Name, m.FactoryName)
		}
		if m.Status != "" {
			switch model.MachineStatus(m.Status) {
			case model.MachineActive, model.MachineInactive, model.MachineMaintenance:
			default:
				return fmt.Errorf("machine %q has unknown status %q", m.Name, m.Status)
			}
		}
		if m.Duration < 0 {
			return fmt.Errorf("machine %q has negative duration", m.Name)
		}
	}
	return nil
}

func idFor(kind, name string) string {
	return uuid.NewSHA1(namespace, []byte(kind+"/"+name)).String()
}

// Apply upserts the seed rows. With prune set, machines absent from the seed
// are removed after their calls are deleted.
func Apply(ctx context.Context, gormDB *gorm.DB, calls store.CallStore, seed *SeedFile, prune bool, log logrus.FieldLogger) (Summary, error) {
	var sum Summary
	upsert := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}

	err := gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range seed.Categories {
			row := model.Category{ID: idFor("category", c.Name), Name: c.Name, Description: c.Description}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to upsert category %q: %w", c.Name, err)
			}
			sum.Categories++
		}
		for _, f := range seed.Factories {
			row := model.Factory{
				ID:          idFor("factory", f.Name),
				CategoryID:  idFor("category", f.CategoryName),
				Name:        f.Name,
				Description: f.Description,
			}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to upsert factory %q: %w", f.Name, err)
			}
			sum.Factories++
		}
		for _, m := range seed.Machines {
			row := model.Machine{
				ID:          idFor("machine", m.Name),
				FactoryID:   idFor("factory", m.FactoryName),
				Name:        m.Name,
				Description: m.Description,
				Status:      model.MachineStatus(m.Status),
				Duration:    m.Duration,
			}
			if row.Status == "" {
				row.Status = model.MachineActive
			}
			if row.Duration == 0 {
				row.Duration = model.DefaultMachineDuration
			}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to upsert machine %q: %w", m.Name, err)
			}
			sum.Machines++
		}
		return nil
	})
	if err != nil || !prune {
		return sum, err
	}

	keep := make([]string, 0, len(seed.Machines))
	for _, m := range seed.Machines {
		keep = append(keep, idFor("machine", m.Name))
	}
	var stale []model.Machine
	q := gormDB.WithContext(ctx).Model(&model.Machine{})
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	if err := q.Find(&stale).Error; err != nil {
		return sum, fmt.Errorf("failed to list stale machines: %w", err)
	}
	for _, m := range stale {
		n, err := calls.DeleteByMachine(ctx, m.ID)
		if err != nil {
			return sum, err
		}
		if err := gormDB.WithContext(ctx).Delete(&model.Machine{}, "id = ?", m.ID).Error; err != nil {
			return sum, fmt.Errorf("failed to delete machine %q: %w", m.Name, err)
		}
		log.WithFields(logrus.Fields{"machine": m.Name, "calls": n}).Info("pruned machine")
		sum.Pruned++
		sum.PrunedCalls += n
	}
	return sum, nil
}

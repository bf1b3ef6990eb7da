// Package store persists scenarios, runs and results behind gorm, with
// sqlite or postgres drivers selected by configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/stochastix/riskd/internal/config"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ScenarioRecord is a persisted scenario definition. The definition itself is
// stored as canonical JSON; Hash is its content hash.
type ScenarioRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"index"`
	Hash       string    `gorm:"size:64;index"`
	Definition []byte
	CreatedAt  time.Time
}

// RunRecord tracks the lifecycle of one simulation run.
type RunRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScenarioID uuid.UUID `gorm:"type:uuid;index"`
	Status     string    `gorm:"size:16;index"`
	Paths      int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// ResultRecord holds the serialized result of a completed run.
type ResultRecord struct {
	RunID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Hash      string    `gorm:"size:64;index"`
	Payload   []byte
	CreatedAt time.Time
}

// Repository wraps the database handle.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects per the database configuration and migrates the schema.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&ScenarioRecord{}, &RunRecord{}, &ResultRecord{}); err != nil {
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}

	logger.Info("Database ready", zap.String("driver", cfg.Driver))
	return &Repository{db: db, logger: logger}, nil
}

// CreateScenario persists a scenario definition.
func (r *Repository) CreateScenario(ctx context.Context, rec *ScenarioRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: failed to create scenario: %w", err)
	}
	return nil
}

// GetScenario fetches a scenario by id.
func (r *Repository) GetScenario(ctx context.Context, id uuid.UUID) (*ScenarioRecord, error) {
	var rec ScenarioRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to load scenario: %w", err)
	}
	return &rec, nil
}

// ListScenarios returns scenarios newest first.
func (r *Repository) ListScenarios(ctx context.Context, limit int) ([]ScenarioRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []ScenarioRecord
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: failed to list scenarios: %w", err)
	}
	return recs, nil
}

// CreateRun persists a new run record.
func (r *Repository) CreateRun(ctx context.Context, rec *RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: failed to create run: %w", err)
	}
	return nil
}

// UpdateRun writes run status, error and finish time.
func (r *Repository) UpdateRun(ctx context.Context, rec *RunRecord) error {
	err := r.db.WithContext(ctx).Model(&RunRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"status":      rec.Status,
			"error":       rec.Error,
			"paths":       rec.Paths,
			"finished_at": rec.FinishedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("store: failed to update run: %w", err)
	}
	return nil
}

// GetRun fetches a run by id.
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to load run: %w", err)
	}
	return &rec, nil
}

// SaveResult persists a serialized run result.
func (r *Repository) SaveResult(ctx context.Context, rec *ResultRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: failed to save result: %w", err)
	}
	return nil
}

// GetResult fetches the result for a run.
func (r *Repository) GetResult(ctx context.Context, runID uuid.UUID) (*ResultRecord, error) {
	var rec ResultRecord
	err := r.db.WithContext(ctx).First(&rec, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to load result: %w", err)
	}
	return &rec, nil
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

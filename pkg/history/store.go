package history

import (
	"context"
	"fmt"

	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists probe measurements.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	Insert(ctx context.Context, m *Measurement) error
	ListRecent(ctx context.Context, limit int) ([]Measurement, error)
	Summary(ctx context.Context, sinceMillis int64) (*Summary, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new history Store backed by the configured database
// driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "history"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}

	s.db = db

	if s.cfg.Driver == "sqlite" {
		// Probe cycles may overlap; a single connection serialises writers.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&Measurement{}); err != nil {
		return fmt.Errorf("running history migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("History database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Insert stores a measurement.
func (s *store) Insert(ctx context.Context, m *Measurement) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("inserting measurement: %w", err)
	}

	return nil
}

// ListRecent returns up to limit measurements, newest first.
func (s *store) ListRecent(ctx context.Context, limit int) ([]Measurement, error) {
	var out []Measurement
	if err := s.db.WithContext(ctx).
		Order("executed_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing measurements: %w", err)
	}

	return out, nil
}

// Summary aggregates measurements executed at or after sinceMillis.
func (s *store) Summary(ctx context.Context, sinceMillis int64) (*Summary, error) {
	var out Summary
	if err := s.db.WithContext(ctx).
		Model(&Measurement{}).
		Select(
			"COUNT(*) AS count, "+
				"COALESCE(SUM(CASE WHEN error_message <> '' THEN 1 ELSE 0 END), 0) AS failures, "+
				"COALESCE(AVG(CASE WHEN error_message = '' THEN latency END), 0) AS avg_latency, "+
				"COALESCE(MIN(CASE WHEN error_message = '' THEN latency END), 0) AS min_latency, "+
				"COALESCE(MAX(CASE WHEN error_message = '' THEN latency END), 0) AS max_latency",
		).
		Where("executed_at >= ?", sinceMillis).
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("summarising measurements: %w", err)
	}

	return &out, nil
}

package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mizukilab/kaiseki-backend/internal/platform/envutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// Service owns the gorm handle. The driver comes from DB_DRIVER:
// "postgres" (default) or "sqlite" for local development and tests.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "db.Service")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	driver := envutil.GetEnv(logg, "DB_DRIVER", "postgres")
	switch driver {
	case "sqlite":
		path := envutil.GetEnv(logg, "SQLITE_PATH", "kaiseki.db")
		db, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return &Service{db: db, log: serviceLog}, nil

	case "postgres":
		host := envutil.GetEnv(logg, "POSTGRES_HOST", "localhost")
		port := envutil.GetEnv(logg, "POSTGRES_PORT", "5432")
		user := envutil.GetEnv(logg, "POSTGRES_USER", "postgres")
		password := envutil.GetEnv(logg, "POSTGRES_PASSWORD", "")
		name := envutil.GetEnv(logg, "POSTGRES_NAME", "kaiseki")

		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user, password, host, port, name,
		)
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
		}
		return &Service{db: db, log: serviceLog}, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
}

func (s *Service) DB() *gorm.DB { return s.db }

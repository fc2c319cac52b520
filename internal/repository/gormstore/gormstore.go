// Package gormstore implements the repository interfaces on PostgreSQL through gorm.
//
// It is selected with DB_DRIVER=postgres. The sqlite package remains the
// default for development and tests; both satisfy repository.Store and the
// services cannot tell them apart.
//
// DRIVER:
// gorm's postgres dialector is opened with DriverName "postgres", so the
// connection is made by github.com/lib/pq. Constraint violations therefore
// arrive as *pq.Error and are translated to apperror kinds in this package.
//
// SCHEMA:
// AutoMigrate creates the tables from userRow and videoRow on startup.
// videos.user_id carries ON DELETE CASCADE, matching the SQLite schema.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/media-backend/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Postgres error codes (SQLSTATE) this package reacts to.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store is a repository.Store backed by a gorm connection.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at dsn, tunes the pool and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        dsn,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: connecting: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore: getting sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.AutoMigrate(&userRow{}, &videoRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("gormstore: migrating: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == foreignKeyViolation
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// parseID turns a path id into a uuid. Ids that are not UUIDs cannot name a
// row, so callers treat a parse failure as "not found".
func parseID(id string) (uuid.UUID, bool) {
	u, err := uuid.Parse(id)
	return u, err == nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

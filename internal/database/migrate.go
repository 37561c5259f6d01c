package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"gorm.io/gorm"
)

//go:embed migrations
var migrations embed.FS

func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	adminURL := u.String()
	db, err := sql.Open("postgres", adminURL)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	log.Printf("database: created %q\n", dbName)
	return nil
}

func newProvider(db *gorm.DB) (*goose.Provider, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite"
	if Dialect(db) == config.DriverPostgres {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, sqlDB, fsys)
}

// Migrate applies all pending migrations on an already open connection.
func Migrate(ctx context.Context, db *gorm.DB) error {
	p, err := newProvider(db)
	if err != nil {
		return fmt.Errorf("migrate provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		log.Println("migrate: no pending migrations")
		return nil
	}
	for _, r := range results {
		log.Printf("migrate: applied %s (%s)", r.Source.Path, r.Duration)
	}
	return nil
}

// MigrateUp создаёт БД Postgres при отсутствии и применяет миграции.
func MigrateUp(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.Driver == config.DriverPostgres && cfg.DB.URL == "" {
		if err := ensureDatabase(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Status возвращает по строке на каждую известную миграцию.
func Status(ctx context.Context, db *gorm.DB) ([]string, error) {
	p, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		applied := "pending"
		if s.State == goose.StateApplied {
			applied = "applied " + s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		lines = append(lines, fmt.Sprintf("%05d %s: %s", s.Source.Version, s.Source.Path, applied))
	}
	return lines, nil
}

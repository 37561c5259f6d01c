package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger: logger.New(log.New(os.Stdout, "gorm: ", log.LstdFlags), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// Open connects to the database selected by cfg.DB.Driver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		return OpenPostgres(cfg.DSN())
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DB.SQLitePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return OpenSQLite(SQLiteDSN(cfg.DB.SQLitePath, true))
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DB.Driver)
	}
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// OpenSQLite opens a single-connection pool: SQLite serialises writers anyway and
// one connection keeps in-memory databases alive for the pool's lifetime.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return db, nil
}

// SQLiteDSN appends the pragmas the store relies on (foreign keys for the
// ticket reference, a busy timeout for concurrent writers).
func SQLiteDSN(path string, wal bool) string {
	pragmas := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if wal {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}

func Dialect(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return config.DriverPostgres
	}
	return config.DriverSQLite
}

// Package storage persists the turn journal.
package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"guidechat/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured under dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// a single connection keeps ":memory:" databases shared
		db.SetMaxOpenConns(1)
	case "mysql":
		db, err = sql.Open("mysql", mysqlDSN(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func mysqlDSN(dbCfg config.DatabaseConfig) string {
	if dbCfg.DSN != "" {
		return dbCfg.DSN
	}
	params := dbCfg.Params
	// timestamps are scanned into time.Time
	if !strings.Contains(params, "parseTime") {
		if params != "" {
			params += "&"
		}
		params += "parseTime=true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		dbCfg.Username,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.DBName,
		params,
	)
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS turns (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				turn_id TEXT NOT NULL UNIQUE,
				outcome TEXT NOT NULL,
				error_kind TEXT NOT NULL DEFAULT '',
				source_count INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_finished_at ON turns(finished_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_turns_outcome ON turns(outcome)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS turns (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				turn_id VARCHAR(64) NOT NULL,
				outcome VARCHAR(32) NOT NULL,
				error_kind VARCHAR(32) NOT NULL DEFAULT '',
				source_count INT NOT NULL DEFAULT 0,
				duration_ms BIGINT NOT NULL,
				started_at DATETIME(3) NOT NULL,
				finished_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_turn_id (turn_id),
				INDEX idx_turns_finished_at (finished_at),
				INDEX idx_turns_outcome (outcome)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

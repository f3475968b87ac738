// internal/common/database/postgres.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pages-deployer/internal/common/config"

	"github.com/lib/pq"
)

// OpenPostgres opens the pool behind the submission store. DATABASE_URL wins
// over the discrete host settings. No connection is made until first use.
func OpenPostgres(cfg config.PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func postgresDSN(cfg config.PostgresConfig) (string, error) {
	switch {
	case cfg.URL != "":
		dsn, err := pq.ParseURL(cfg.URL)
		if err != nil {
			return "", fmt.Errorf("DATABASE_URL: %w", err)
		}
		return dsn, nil
	case cfg.Host != "":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode), nil
	default:
		return "", errors.New("postgres: neither DATABASE_URL nor host is set")
	}
}

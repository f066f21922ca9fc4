// Package postgres is a PostgreSQL record store backend whose change stream
// comes from LISTEN/NOTIFY, so every server instance sees every write.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/waypointapp/waypoint-server/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const notifyChannel = "waypoint_changes"

// Store implements store.Backend and store.ChangeSource.
type Store struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	logger.Info("postgres store opened")
	return &Store{db: db, dsn: dsn, logger: logger}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func encodeCoordinates(c *domain.Coordinates) (any, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeCoordinates(raw []byte) (*domain.Coordinates, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c domain.Coordinates
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode coordinates: %w", err)
	}
	return &c, nil
}

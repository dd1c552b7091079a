package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/ladder-cache/internal/models"
)

// PostgresStore implements KeyValueStore using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 1
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// PutProblems replaces the problem list of a contest
func (s *PostgresStore) PutProblems(ctx context.Context, contestID int, problems []models.Problem) error {
	payload, err := json.Marshal(problems)
	if err != nil {
		return fmt.Errorf("failed to marshal problems: %w", err)
	}

	query := `
		INSERT INTO contest_problems (contest_id, problems, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (contest_id) DO UPDATE
		SET problems = EXCLUDED.problems, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, contestID, payload); err != nil {
		return fmt.Errorf("failed to save problems: %w", err)
	}

	return nil
}

// GetProblems returns the problem list of a contest, or nil if absent
func (s *PostgresStore) GetProblems(ctx context.Context, contestID int) ([]models.Problem, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT problems FROM contest_problems WHERE contest_id = $1`, contestID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get problems: %w", err)
	}

	problems := []models.Problem{}
	if err := json.Unmarshal(payload, &problems); err != nil {
		slog.Warn("corrupt problems row", "contest_id", contestID, "error", err)
		return nil, nil
	}

	return problems, nil
}

// PutSnapshot replaces the snapshot of a section
func (s *PostgresStore) PutSnapshot(ctx context.Context, snapshot models.SectionSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO section_snapshots (key, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, SnapshotKey(snapshot.SectionKey), payload); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// GetSnapshot returns the snapshot of a section, or nil if absent
func (s *PostgresStore) GetSnapshot(ctx context.Context, sectionKey string) (*models.SectionSnapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM section_snapshots WHERE key = $1`, SnapshotKey(sectionKey),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap models.SectionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		slog.Warn("corrupt snapshot row", "section", sectionKey, "error", err)
		return nil, nil
	}
	snap.SectionKey = sectionKey
	if snap.ProblemsByContestID == nil {
		snap.ProblemsByContestID = make(map[int][]models.Problem)
	}

	return &snap, nil
}

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// PostgresStore persists investigation checkpoints in PostgreSQL.
// Every node transition appends a row, so the full checkpoint history
// stays queryable; LoadLatest returns the newest row per investigation.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewPostgresStore wraps an existing connection pool
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDSN opens its own pool from a connection string
func NewPostgresStoreFromDSN(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.ConfigError("postgres DSN is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.CheckpointError(err, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.CheckpointError(err, "connect to postgres")
	}
	s := &PostgresStore{pool: pool, ownsPool: true}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logging.Info("checkpoint store connected", "backend", "postgres")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS investigation_checkpoints (
			id               BIGSERIAL PRIMARY KEY,
			investigation_id TEXT        NOT NULL,
			node             TEXT        NOT NULL,
			state_data       JSONB       NOT NULL,
			saved_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_latest
			ON investigation_checkpoints (investigation_id, id DESC);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.CheckpointError(err, "ensure checkpoint schema")
	}
	return nil
}

// Save appends one checkpoint row. A single INSERT keeps the call atomic.
func (s *PostgresStore) Save(ctx context.Context, investigationID, node string, st *state.InvestigationState) error {
	stateData, err := json.Marshal(st)
	if err != nil {
		return errors.CheckpointError(err, "marshal investigation state")
	}

	query := `
		INSERT INTO investigation_checkpoints (investigation_id, node, state_data)
		VALUES ($1, $2, $3)
	`
	if _, err := s.pool.Exec(ctx, query, investigationID, node, stateData); err != nil {
		return errors.CheckpointError(err, fmt.Sprintf("save checkpoint at %s", node))
	}

	logging.Debug("checkpoint saved",
		"investigation_id", investigationID, "node", node, "backend", "postgres")
	return nil
}

// LoadLatest returns the newest checkpoint, or a nil state when the
// investigation has none
func (s *PostgresStore) LoadLatest(ctx context.Context, investigationID string) (string, *state.InvestigationState, error) {
	query := `
		SELECT node, state_data
		FROM investigation_checkpoints
		WHERE investigation_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var node string
	var stateData []byte
	err := s.pool.QueryRow(ctx, query, investigationID).Scan(&node, &stateData)
	if err == pgx.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, errors.CheckpointError(err, "load latest checkpoint")
	}

	var st state.InvestigationState
	if err := json.Unmarshal(stateData, &st); err != nil {
		return "", nil, errors.CheckpointError(err, "unmarshal investigation state")
	}
	return node, &st, nil
}

// History returns the node sequence an investigation moved through,
// oldest first
func (s *PostgresStore) History(ctx context.Context, investigationID string) ([]string, error) {
	query := `
		SELECT node
		FROM investigation_checkpoints
		WHERE investigation_id = $1
		ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, investigationID)
	if err != nil {
		return nil, errors.CheckpointError(err, "load checkpoint history")
	}
	defer rows.Close()

	var nodes []string
	for rows.Next() {
		var node string
		if err := rows.Scan(&node); err != nil {
			return nil, errors.CheckpointError(err, "scan checkpoint row")
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// Delete removes every checkpoint for an investigation
func (s *PostgresStore) Delete(ctx context.Context, investigationID string) error {
	query := `DELETE FROM investigation_checkpoints WHERE investigation_id = $1`
	result, err := s.pool.Exec(ctx, query, investigationID)
	if err != nil {
		return errors.CheckpointError(err, "delete checkpoints")
	}
	if result.RowsAffected() == 0 {
		return errors.New(errors.ErrorTypeCheckpoint, errors.SeverityLow, "no checkpoints for "+investigationID)
	}
	return nil
}

// Close releases the pool if this store opened it
func (s *PostgresStore) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

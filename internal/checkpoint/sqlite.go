package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// SQLiteStore is the file-backed checkpoint store used by demo runs,
// where a local database beats standing up PostgreSQL
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the checkpoint database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.ConfigError("sqlite checkpoint path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.CheckpointError(err, "create checkpoint directory")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.CheckpointError(err, "open sqlite database")
	}
	// sqlite wants a single writer connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Info("checkpoint store opened", "backend", "sqlite", "path", path)
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS investigation_checkpoints (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			investigation_id TEXT NOT NULL,
			node             TEXT NOT NULL,
			state_data       TEXT NOT NULL,
			saved_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_latest
			ON investigation_checkpoints (investigation_id, id DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.CheckpointError(err, "ensure checkpoint schema")
	}
	return nil
}

// Save appends one checkpoint row
func (s *SQLiteStore) Save(ctx context.Context, investigationID, node string, st *state.InvestigationState) error {
	stateData, err := json.Marshal(st)
	if err != nil {
		return errors.CheckpointError(err, "marshal investigation state")
	}

	query := `INSERT INTO investigation_checkpoints (investigation_id, node, state_data) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, investigationID, node, string(stateData)); err != nil {
		return errors.CheckpointError(err, fmt.Sprintf("save checkpoint at %s", node))
	}

	logging.Debug("checkpoint saved",
		"investigation_id", investigationID, "node", node, "backend", "sqlite")
	return nil
}

// LoadLatest returns the newest checkpoint, or a nil state when the
// investigation has none
func (s *SQLiteStore) LoadLatest(ctx context.Context, investigationID string) (string, *state.InvestigationState, error) {
	query := `
		SELECT node, state_data
		FROM investigation_checkpoints
		WHERE investigation_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var node, stateData string
	err := s.db.QueryRowContext(ctx, query, investigationID).Scan(&node, &stateData)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, errors.CheckpointError(err, "load latest checkpoint")
	}

	var st state.InvestigationState
	if err := json.Unmarshal([]byte(stateData), &st); err != nil {
		return "", nil, errors.CheckpointError(err, "unmarshal investigation state")
	}
	return node, &st, nil
}

// History returns the node sequence an investigation moved through,
// oldest first
func (s *SQLiteStore) History(ctx context.Context, investigationID string) ([]string, error) {
	query := `
		SELECT node
		FROM investigation_checkpoints
		WHERE investigation_id = ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, investigationID)
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
func (s *SQLiteStore) Delete(ctx context.Context, investigationID string) error {
	query := `DELETE FROM investigation_checkpoints WHERE investigation_id = ?`
	if _, err := s.db.ExecContext(ctx, query, investigationID); err != nil {
		return errors.CheckpointError(err, "delete checkpoints")
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

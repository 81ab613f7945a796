package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// PostgresSink stores final outcomes, progress updates and transaction
// scores in PostgreSQL
type PostgresSink struct {
	db *sqlx.DB
}

// NewPostgresSink wraps an existing sqlx connection
func NewPostgresSink(ctx context.Context, db *sqlx.DB) (*PostgresSink, error) {
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresSinkFromDSN connects with a lib/pq connection string
func NewPostgresSinkFromDSN(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logging.Info("result sink connected", "backend", "postgres")
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS investigation_outcomes (
			investigation_id TEXT PRIMARY KEY,
			entity_id        TEXT NOT NULL,
			entity_type      TEXT NOT NULL,
			status           TEXT NOT NULL,
			risk_score       DOUBLE PRECISION,
			outcome          JSONB NOT NULL,
			raw_state        JSONB NOT NULL,
			completed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS investigation_progress (
			investigation_id TEXT PRIMARY KEY,
			progress         JSONB NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS transaction_scores (
			investigation_id TEXT NOT NULL,
			transaction_id   TEXT NOT NULL,
			score            DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (investigation_id, transaction_id)
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure sink schema: %w", err)
	}
	return nil
}

// Persist upserts the canonical outcome next to the raw closing state
func (s *PostgresSink) Persist(ctx context.Context, investigationID string, o *outcome.CanonicalFinalOutcome, raw *state.InvestigationState) error {
	outcomeJSON, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw state: %w", err)
	}

	query := `
		INSERT INTO investigation_outcomes (
			investigation_id, entity_id, entity_type, status, risk_score, outcome, raw_state, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (investigation_id) DO UPDATE SET
			status       = EXCLUDED.status,
			risk_score   = EXCLUDED.risk_score,
			outcome      = EXCLUDED.outcome,
			raw_state    = EXCLUDED.raw_state,
			completed_at = EXCLUDED.completed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		investigationID,
		o.EntityID,
		o.EntityType,
		string(o.Status),
		o.RiskAssessment.FinalRiskScore,
		outcomeJSON,
		rawJSON,
		o.CompletionTimestamp,
	)
	if err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}

	logging.Debug("outcome persisted",
		"investigation_id", investigationID, "status", string(o.Status))
	return nil
}

// UpdateProgress upserts the live progress record
func (s *PostgresSink) UpdateProgress(ctx context.Context, investigationID string, p graph.Progress) error {
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	query := `
		INSERT INTO investigation_progress (investigation_id, progress, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (investigation_id) DO UPDATE SET
			progress   = EXCLUDED.progress,
			updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, investigationID, progressJSON); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// StoreTransactionScores writes per-transaction scores in one
// transaction so a partial batch never lands
func (s *PostgresSink) StoreTransactionScores(ctx context.Context, investigationID string, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO transaction_scores (investigation_id, transaction_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (investigation_id, transaction_id) DO UPDATE SET score = EXCLUDED.score
	`
	for txID, score := range scores {
		if _, err := tx.ExecContext(ctx, query, investigationID, txID, score); err != nil {
			return fmt.Errorf("insert transaction score %s: %w", txID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction scores: %w", err)
	}

	logging.Debug("transaction scores stored",
		"investigation_id", investigationID, "count", len(scores))
	return nil
}

// Close closes the underlying connection
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

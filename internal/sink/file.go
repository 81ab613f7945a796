package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// FileSink writes results as JSON files under a directory. Mock and demo
// runs use it so nothing needs a database.
type FileSink struct {
	mu  sync.Mutex
	dir string
}

// NewFileSink creates the output directory if needed
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "investigation_results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Persist writes the outcome and raw state side by side
func (s *FileSink) Persist(_ context.Context, investigationID string, o *outcome.CanonicalFinalOutcome, raw *state.InvestigationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeJSON(investigationID+"_outcome.json", o); err != nil {
		return err
	}
	if err := s.writeJSON(investigationID+"_state.json", raw); err != nil {
		return err
	}
	logging.Debug("outcome written",
		"investigation_id", investigationID, "dir", s.dir)
	return nil
}

// UpdateProgress overwrites the progress file for the investigation
func (s *FileSink) UpdateProgress(_ context.Context, investigationID string, p graph.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(investigationID+"_progress.json", p)
}

// StoreTransactionScores writes the per-transaction score map
func (s *FileSink) StoreTransactionScores(_ context.Context, investigationID string, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(investigationID+"_transaction_scores.json", scores)
}

// Dir returns the directory results are written to
func (s *FileSink) Dir() string {
	return s.dir
}

func (s *FileSink) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

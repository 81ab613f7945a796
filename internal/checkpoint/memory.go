package checkpoint

import (
	"context"
	"sync"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

type memoryRecord struct {
	node string
	st   *state.InvestigationState
}

// MemoryStore keeps checkpoints in process memory. Mock runs use it so a
// scenario needs no database at all.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]memoryRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string][]memoryRecord{}}
}

// Save appends a checkpoint. The state is cloned so later node mutations
// never leak into saved history.
func (m *MemoryStore) Save(_ context.Context, investigationID, node string, st *state.InvestigationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[investigationID] = append(m.records[investigationID], memoryRecord{
		node: node,
		st:   st.Clone(),
	})
	return nil
}

// LoadLatest returns a clone of the newest checkpoint, or a nil state
// when the investigation has none
func (m *MemoryStore) LoadLatest(_ context.Context, investigationID string) (string, *state.InvestigationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.records[investigationID]
	if len(records) == 0 {
		return "", nil, nil
	}
	last := records[len(records)-1]
	return last.node, last.st.Clone(), nil
}

// History returns the node sequence an investigation moved through,
// oldest first
func (m *MemoryStore) History(_ context.Context, investigationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.records[investigationID]
	nodes := make([]string, len(records))
	for i, rec := range records {
		nodes[i] = rec.node
	}
	return nodes, nil
}

// Delete removes every checkpoint for an investigation
func (m *MemoryStore) Delete(_ context.Context, investigationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, investigationID)
	return nil
}

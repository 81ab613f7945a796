package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Tool is one invocable analysis tool
type Tool interface {
	Name() string
	Run(ctx context.Context, snapshot *state.InvestigationState) (any, error)
}

// Invoker fans tool calls out concurrently and collects results. A
// single failed tool is recorded in its result slot; only a dead
// context fails the whole invocation.
type Invoker struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	concurrency int
	perToolWait time.Duration
}

// NewInvoker creates an invoker with bounded concurrency
func NewInvoker(concurrency int) *Invoker {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Invoker{
		tools:       map[string]Tool{},
		concurrency: concurrency,
		perToolWait: 30 * time.Second,
	}
}

// Register adds a tool; later registrations with the same name replace
// earlier ones
func (inv *Invoker) Register(tool Tool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.tools[tool.Name()] = tool
}

// Names returns the registered tool names, sorted
func (inv *Invoker) Names() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	names := make([]string, 0, len(inv.tools))
	for name := range inv.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvokeTools runs the requested tools and returns their results keyed
// by tool name. Unknown tools land in results with an error note.
func (inv *Invoker) InvokeTools(ctx context.Context, requested []string, snapshot *state.InvestigationState) (map[string]any, []string, error) {
	if len(requested) == 0 {
		return map[string]any{}, nil, nil
	}

	results := make(map[string]any, len(requested))
	var resultsMu sync.Mutex
	var used []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inv.concurrency)

	for _, name := range requested {
		g.Go(func() error {
			inv.mu.RLock()
			tool, ok := inv.tools[name]
			inv.mu.RUnlock()

			if !ok {
				resultsMu.Lock()
				results[name] = map[string]any{"error": "unknown tool"}
				resultsMu.Unlock()
				logging.Warn("unknown tool requested", "tool", name)
				return nil
			}

			toolCtx, cancel := context.WithTimeout(gctx, inv.perToolWait)
			defer cancel()

			started := time.Now()
			out, err := tool.Run(toolCtx, snapshot)

			resultsMu.Lock()
			defer resultsMu.Unlock()
			if err != nil {
				// recorded, not fatal
				results[name] = map[string]any{
					"error": errors.ToolError(err, name).Error(),
				}
				logging.Warn("tool failed",
					"tool", name, "error", err, "duration_ms", time.Since(started).Milliseconds())
				return nil
			}
			results[name] = out
			used = append(used, name)
			logging.Debug("tool executed",
				"tool", name, "duration_ms", time.Since(started).Milliseconds())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("tool invocation aborted: %w", err)
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	sort.Strings(used)
	return results, used, nil
}

package tools

import (
	"context"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// Func adapts a plain function into a Tool
type Func struct {
	ToolName string
	Fn       func(ctx context.Context, snapshot *state.InvestigationState) (any, error)
}

func (f Func) Name() string { return f.ToolName }

func (f Func) Run(ctx context.Context, snapshot *state.InvestigationState) (any, error) {
	return f.Fn(ctx, snapshot)
}

// VelocityCheckTool compares recent transaction volume against the
// entity's 90-day baseline using the gathered dataset
func VelocityCheckTool() Tool {
	return Func{
		ToolName: "velocity_check",
		Fn: func(_ context.Context, snapshot *state.InvestigationState) (any, error) {
			txns := numericField(snapshot.SnowflakeData, "transactions")
			windowDays := numericField(snapshot.SnowflakeData, "window_days")
			if windowDays <= 0 {
				windowDays = 90
			}

			// daily baseline vs the last 24h slice of the dataset
			baseline := txns / windowDays
			recent := numericField(snapshot.SnowflakeData, "transactions_24h")
			if recent == 0 {
				recent = baseline
			}

			multiplier := 1.0
			if baseline > 0 {
				multiplier = recent / baseline
			}
			return map[string]any{
				"baseline_multiplier": multiplier,
				"baseline_per_day":    baseline,
				"recent_24h":          recent,
				"window_hours":        24,
			}, nil
		},
	}
}

func numericField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

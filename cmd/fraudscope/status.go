package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/scenarios"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show FraudScope configuration and readiness",
	Long:  `Display the resolved configuration, credential sources, and backing stores.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("🔍 FraudScope Status\n")
	fmt.Printf("%s\n", strings.Repeat("═", 50))

	fmt.Printf("\n📋 Configuration:\n")
	fmt.Printf("  Mode: %s\n", cfg.Mode)
	fmt.Printf("  Checkpoint store: %s", cfg.Checkpoint.Type)
	if cfg.Checkpoint.Type == "postgres" {
		fmt.Printf(" (dsn set: %v)", cfg.Checkpoint.PostgresDSN != "")
	} else {
		fmt.Printf(" (%s)", cfg.Checkpoint.LocalPath)
	}
	fmt.Println()
	if cfg.Sink.PostgresDSN != "" {
		fmt.Printf("  Result sink: postgres\n")
	} else {
		fmt.Printf("  Result sink: file\n")
	}

	fmt.Printf("\n🤖 LLM Provider:\n")
	fmt.Printf("  Provider: %s\n", cfg.API.Provider)
	if cfg.API.Provider == "gemini" {
		fmt.Printf("  Model: %s\n", cfg.API.GeminiModel)
	} else {
		fmt.Printf("  Model: %s\n", cfg.API.OpenAIModel)
	}
	km := config.NewKeyringManager()
	source := km.GetAPIKeySource(cfg)
	fmt.Printf("  API key: %s (source: %s)\n", config.MaskAPIKey(cfg.API.OpenAIKey), source.Source)
	fmt.Printf("  Rate limit: %d req/min\n", cfg.API.RateLimit)

	fmt.Printf("\n🔌 External services:\n")
	fmt.Printf("  Neo4j link graph: %s\n", configuredOrNot(cfg.Graph.Neo4jURI))
	fmt.Printf("  Redis cache: %s\n", configuredOrNot(cfg.Cache.RedisHost))
	fmt.Printf("  Snowflake dataset: %v\n", cfg.Investigation.UseSnowflake)

	fmt.Printf("\n💰 Guard budgets (live mode):\n")
	fmt.Printf("  Per-investigation: $%.2f / %s\n",
		cfg.Guard.InvestigationCostLimitUSD, cfg.Guard.InvestigationTimeLimit)
	fmt.Printf("  Session: $%.2f / %s\n",
		cfg.Guard.SessionCostLimitUSD, cfg.Guard.SessionTimeLimit)
	fmt.Printf("  Error limits: %d consecutive, %.0f%% rate\n",
		cfg.Guard.ConsecutiveErrorLimit, cfg.Guard.ErrorRateThreshold*100)

	fmt.Printf("\n🧪 Scenarios:\n")
	fmt.Printf("  Built-in: %s\n", strings.Join(scenarios.Names(), ", "))

	fmt.Printf("\n🏥 Health:\n")
	if source.Source == "none" && cfg.Mode != config.ModeMock {
		fmt.Printf("  API key: ❌ Not set (run 'fraudscope configure')\n")
	} else {
		fmt.Printf("  API key: ✅\n")
	}
	if _, err := os.Stat(cfg.Checkpoint.LocalPath); cfg.Checkpoint.Type == "sqlite" && err != nil {
		fmt.Printf("  Checkpoint db: not yet created (first run will create it)\n")
	} else {
		fmt.Printf("  Checkpoint db: ✅\n")
	}
	return nil
}

func configuredOrNot(value string) string {
	if value == "" {
		return "not configured"
	}
	return value
}

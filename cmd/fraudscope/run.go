package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/agents"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/cache"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/checkpoint"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/confidence"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/flags"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/guard"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/llm"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/monitor"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/output"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/risk"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/router"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/safety"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/scenarios"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/sink"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/tools"
)

var (
	runScenario     string
	runScenarioFile string
	runAll          bool
	runEntityID     string
	runEntityType   string
	runConcurrent   int
	runTimeoutSec   int
	runMode         string
	runServerURL    string
	runOutputFormat string
	runOutputDir    string
	runCustomPrompt string
	runResumeID     string
	runForceGraph   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an investigation or a scenario suite",
	Long: `Run one entity investigation, resume an interrupted one, or execute
named scenarios from the built-in suite or a YAML scenario file.

Examples:
  fraudscope run --entity-id fraud-user-042 --entity-type user_id
  fraudscope run --all --concurrent 4
  fraudscope run --scenario evidence_gated --output-format json
  fraudscope run --resume 7f3b9c12-... --mode demo`,
	RunE: runInvestigation,
}

func init() {
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "run a single named scenario ("+strings.Join(scenarios.Names(), ", ")+")")
	runCmd.Flags().StringVar(&runScenarioFile, "scenario-file", "", "YAML file with additional scenario definitions")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every built-in scenario")
	runCmd.Flags().StringVar(&runEntityID, "entity-id", "", "entity to investigate")
	runCmd.Flags().StringVar(&runEntityType, "entity-type", "user_id", "entity type (user_id, ip_address, device_id, transaction_id)")
	runCmd.Flags().IntVar(&runConcurrent, "concurrent", 1, "scenarios to run in parallel")
	runCmd.Flags().IntVar(&runTimeoutSec, "timeout", 0, "overall timeout in seconds (0 = no limit)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "run mode (mock, demo, live); defaults to the configured mode")
	runCmd.Flags().StringVar(&runServerURL, "server-url", "", "serve websocket monitor frames on this address")
	runCmd.Flags().StringVar(&runOutputFormat, "output-format", "terminal", "report format (terminal, json, markdown, html)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "write report files here in addition to stdout")
	runCmd.Flags().StringVar(&runCustomPrompt, "custom-prompt", "", "extra instruction appended to the investigator prompt")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "resume the investigation with this id from its last checkpoint")
	runCmd.Flags().StringVar(&runForceGraph, "graph", "", "force graph selection (hybrid, sequential)")
}

func runInvestigation(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(runOutputFormat)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if runTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(runTimeoutSec)*time.Second)
		defer cancel()
	}

	selected, err := selectScenarios()
	if err != nil {
		return err
	}
	if len(selected) > 0 {
		return runScenarioSuite(ctx, selected, format)
	}

	if runResumeID == "" && runEntityID == "" {
		return fmt.Errorf("nothing to run: pass --entity-id, --resume, --scenario, or --all")
	}
	return runSingle(ctx, format)
}

// selectScenarios resolves --all, --scenario and --scenario-file into a
// run list. An empty list means this is a direct entity run.
func selectScenarios() ([]scenarios.Scenario, error) {
	var selected []scenarios.Scenario
	if runAll {
		selected = scenarios.Builtin()
	}
	if runScenario != "" {
		sc, ok := scenarios.ByName(runScenario)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (available: %s)", runScenario, strings.Join(scenarios.Names(), ", "))
		}
		selected = append(selected, sc)
	}
	if runScenarioFile != "" {
		loaded, err := scenarios.Load(runScenarioFile)
		if err != nil {
			return nil, err
		}
		selected = append(selected, loaded...)
	}
	return selected, nil
}

func runScenarioSuite(ctx context.Context, suite []scenarios.Scenario, format output.Format) error {
	limit := runConcurrent
	if limit < 1 {
		limit = 1
	}

	reports := make([]*scenarios.Report, len(suite))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sc := range suite {
		i, sc := i, sc
		g.Go(func() error {
			report := sc.Run(gctx)
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, report := range reports {
		if report.Passed() {
			fmt.Printf("✅ %s\n", report.Name)
		} else {
			failed++
			fmt.Printf("❌ %s\n", report.Name)
			if report.RunErr != nil {
				fmt.Printf("   error: %v\n", report.RunErr)
			}
			for _, failure := range report.Failures {
				fmt.Printf("   %s\n", failure)
			}
		}
		if report.Outcome != nil && runOutputDir != "" {
			if err := writeReportFile(report.Name, report.Outcome, format); err != nil {
				logger.WithError(err).WithField("scenario", report.Name).Warn("Failed to write report file")
			}
		}
	}

	fmt.Printf("\n%d/%d scenarios passed\n", len(reports)-failed, len(reports))
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(reports))
	}
	return nil
}

func runSingle(ctx context.Context, format output.Format) error {
	mode := cfg.Mode
	if runMode != "" {
		parsed, err := config.ParseRunMode(runMode)
		if err != nil {
			return err
		}
		mode = parsed
	}
	mode = config.ResolveRunMode(mode)

	if !state.ValidEntityType(runEntityType) {
		return fmt.Errorf("invalid entity type %q", runEntityType)
	}
	entityType := state.EntityType(runEntityType)

	if runCustomPrompt != "" {
		cfg.Investigation.CustomUserPrompt = runCustomPrompt
	}

	st := state.NewInvestigation(state.CreateConfig{
		EntityID:         runEntityID,
		EntityType:       entityType,
		Mode:             mode,
		MaxTools:         cfg.Investigation.MaxTools,
		DateRangeDays:    cfg.Investigation.DateRangeDays,
		Parallel:         cfg.Investigation.ParallelExecution,
		CustomUserPrompt: cfg.Investigation.CustomUserPrompt,
	})
	investigationID := st.InvestigationID
	if runResumeID != "" {
		investigationID = runResumeID
	}

	rt, err := assemble(ctx, mode, runEntityID, investigationID)
	if err != nil {
		return err
	}
	defer rt.close()

	kind := rt.selector.Choose(investigationID, string(entityType), runForceGraph)
	if kind == flags.GraphSequential {
		rt.deps.Router = router.NewSequential()
	}
	logger.WithFields(map[string]any{
		"investigation_id": investigationID,
		"entity_id":        runEntityID,
		"mode":             mode.String(),
		"graph":            string(kind),
	}).Info("Starting investigation")

	exec := graph.NewExecutor(rt.deps, mode)

	g := guard.New(cfg.Guard, mode)
	if ok, reason := g.CanStartInvestigation(); !ok {
		return fmt.Errorf("guard refused investigation: %s", reason)
	}
	g.BeginInvestigation(investigationID)
	defer g.EndInvestigation(investigationID)
	g.OnEmergency(func(breaker guard.Breaker, reason string) {
		exec.Cancel(fmt.Sprintf("%s breaker open: %s", breaker, reason))
	})
	stopPolling := pollSpend(ctx, g, rt.client, investigationID)
	defer stopPolling()

	started := time.Now()
	var o *outcome.CanonicalFinalOutcome
	if runResumeID != "" {
		o, err = exec.Resume(ctx, runResumeID)
	} else {
		o, err = exec.Run(ctx, st)
	}
	g.RecordResult(err, "investigation run")
	rt.rollback.RecordRun(err != nil, o == nil,
		overrideCount(o), time.Since(started).Milliseconds())
	if rt.cached != nil && rt.client != nil {
		rt.cached.RecordSpend(context.Background(), rt.client.CostUSD())
	}

	if err != nil {
		return fmt.Errorf("investigation %s did not complete: %w", investigationID, err)
	}

	formatter := output.NewFormatter(format)
	if err := formatter.Format(o, os.Stdout); err != nil {
		return err
	}
	if runOutputDir != "" {
		if err := writeReportFile(o.InvestigationID, o, format); err != nil {
			return err
		}
	}
	return nil
}

func overrideCount(o *outcome.CanonicalFinalOutcome) int {
	if o == nil {
		return 0
	}
	return len(o.AIIntelligence.SafetyOverrides)
}

// runtime bundles the executor dependencies with everything that needs
// closing once the run finishes
type runtime struct {
	deps     graph.Deps
	client   *llm.Client
	cached   *sink.CachedSink
	selector *flags.GraphSelector
	rollback *flags.RollbackTriggers
	closers  []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func assemble(ctx context.Context, mode config.RunMode, entityID, investigationID string) (*runtime, error) {
	rt := &runtime{}

	store, err := openCheckpointStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.deps.Checkpointer = store

	resultSink, err := openSink(ctx, rt)
	if err != nil {
		return nil, err
	}
	rt.deps.Sink = resultSink

	switch mode {
	case config.ModeMock:
		suite := agents.NewMockSuiteForEntity(entityID)
		rt.deps.Investigator = suite
		rt.deps.Agents = suite
		rt.deps.Tools = suite
		rt.deps.Initializer = suite
		rt.deps.Assessor = confidence.NewEngine()
	default:
		client, err := llm.NewClient(ctx, cfg.API, llm.NewRateLimiter(cfg.API.RateLimit))
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
		rt.client = client
		suite := agents.NewDemoSuite(client, entityID)
		rt.deps.Investigator = suite
		rt.deps.Agents = suite
		rt.deps.Initializer = suite

		invoker := tools.NewInvoker(0)
		invoker.Register(tools.VelocityCheckTool())
		if cfg.Graph.Neo4jURI != "" {
			linkGraph, err := tools.NewLinkGraphTool(ctx, cfg.Graph)
			if err != nil {
				logger.WithError(err).Warn("Link-graph tool unavailable, continuing without it")
			} else {
				invoker.Register(linkGraph)
				rt.closers = append(rt.closers, func() { _ = linkGraph.Close(context.Background()) })
			}
		}
		rt.deps.Tools = invoker

		if cfg.API.Provider == "openai" && cfg.API.OpenAIKey != "" {
			rt.deps.Assessor = confidence.NewOpenAIAssessor(cfg.API.OpenAIModel)
		} else {
			rt.deps.Assessor = confidence.NewEngine()
		}
	}

	rt.deps.Router = router.New()
	rt.deps.Safety = safety.NewManager(mode)
	rt.deps.Finalizer = risk.NewFinalizer(logger, cfg.Risk)

	if runServerURL != "" {
		hub := monitor.NewHub()
		rt.deps.Emitter = hub
		addr := listenAddr(runServerURL)
		go func() {
			if err := monitor.Serve(addr, hub); err != nil {
				logger.WithError(err).WithField("addr", addr).Warn("Monitor server stopped")
			}
		}()
	}

	featureFlags := loadFeatureFlags(rt)
	rt.rollback = flags.NewRollbackTriggers(flags.DefaultRollbackThresholds())
	rt.selector = flags.NewGraphSelector(featureFlags, rt.rollback)

	return rt, nil
}

func openCheckpointStore(ctx context.Context) (graph.Checkpointer, error) {
	switch cfg.Checkpoint.Type {
	case "postgres":
		store, err := checkpoint.NewPostgresStoreFromDSN(ctx, cfg.Checkpoint.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres checkpoint store: %w", err)
		}
		return store, nil
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	default:
		path := cfg.Checkpoint.LocalPath
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		store, err := checkpoint.NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("sqlite checkpoint store: %w", err)
		}
		return store, nil
	}
}

func openSink(ctx context.Context, rt *runtime) (graph.ResultSink, error) {
	var base graph.ResultSink
	if cfg.Sink.PostgresDSN != "" {
		s, err := sink.NewPostgresSinkFromDSN(ctx, cfg.Sink.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		base = s
	} else {
		dir := runOutputDir
		if dir == "" {
			home, _ := os.UserHomeDir()
			dir = filepath.Join(home, ".fraudscope", "results")
		}
		s, err := sink.NewFileSink(dir)
		if err != nil {
			return nil, err
		}
		base = s
	}

	if cfg.Cache.RedisHost == "" {
		return base, nil
	}
	redisClient, err := cache.NewClient(ctx, cfg.Cache.RedisHost, cfg.Cache.RedisPort, cfg.Cache.RedisPassword)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, progress caching disabled")
		return base, nil
	}
	rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	rt.cached = sink.NewCachedSink(base, redisClient, uuid.NewString(), cfg.Cache.TTL)
	return rt.cached, nil
}

func loadFeatureFlags(rt *runtime) *flags.FeatureFlags {
	home, _ := os.UserHomeDir()
	store, err := flags.OpenStore(filepath.Join(home, ".fraudscope", "flags.db"))
	if err != nil {
		logger.WithError(err).Debug("Flag store unavailable, using defaults")
		return flags.New()
	}
	rt.closers = append(rt.closers, func() { _ = store.Close() })
	featureFlags, err := store.LoadAll()
	if err != nil {
		logger.WithError(err).Warn("Failed to load stored flags, using defaults")
		return flags.New()
	}
	return featureFlags
}

// pollSpend feeds the accumulated LLM cost into the guard and checks the
// per-investigation time budget while the run is in flight
func pollSpend(ctx context.Context, g *guard.Guard, client *llm.Client, investigationID string) func() {
	if client == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		var reported float64
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				total := client.CostUSD()
				if delta := total - reported; delta > 0 {
					g.RecordCost(investigationID, guard.SourceLLM, delta, safety.LevelStandard)
					reported = total
				}
				g.CheckTime(investigationID)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// listenAddr accepts either a bare listen address (":8181") or a URL
// ("http://localhost:8181") for --server-url
func listenAddr(raw string) string {
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return raw
}

func writeReportFile(name string, o *outcome.CanonicalFinalOutcome, format output.Format) error {
	if err := os.MkdirAll(runOutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(runOutputDir, fmt.Sprintf("report_%s.%s", name, format.Extension()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := output.NewFormatter(format).Format(o, f); err != nil {
		return err
	}
	logger.WithField("path", path).Info("Report written")
	return nil
}

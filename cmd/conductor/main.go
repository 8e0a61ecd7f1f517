// Command conductor delegates tasks and multi-step plans to an external
// coding agent subprocess and reports typed, aggregated results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"conductor/pkg/adapter"
	"conductor/pkg/config"
	"conductor/pkg/driver"
	"conductor/pkg/exec"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/orchestrator"
	"conductor/pkg/persistence"
	"conductor/pkg/plan"
	"conductor/pkg/resilience/ratelimit"
	"conductor/pkg/utils"
	"conductor/pkg/workspace"
)

const version = "0.2.0"

func main() {
	os.Exit(run())
}

//nolint:cyclop // Top-level wiring is inherently sequential.
func run() int {
	var (
		configPath  = flag.String("config", "", "path to conductor.yaml (defaults apply when omitted)")
		planPath    = flag.String("plan", "", "path to a YAML plan file")
		taskDesc    = flag.String("task", "", "single task description (alternative to -plan)")
		taskTimeout = flag.Duration("timeout", 0, "timeout for a -task execution (0 = adapter default)")
		historyN    = flag.Int("history", 0, "print the N most recent plan executions and exit")
		metricsPlan = flag.String("metrics", "", "print aggregated Prometheus metrics for the named plan and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("conductor %s\n", version)
		return 0
	}

	logger := logx.NewLogger("conductor")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("Failed to load config: %v", err)
			return 2
		}
		cfg = loaded
	}

	if *metricsPlan != "" {
		return printPlanMetrics(cfg.PrometheusURL, *metricsPlan, logger)
	}

	var store *persistence.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logger.Error("Failed to create database directory: %v", err)
			return 2
		}
		s, err := persistence.Open(cfg.DBPath)
		if err != nil {
			logger.Error("Failed to open history database: %v", err)
			return 2
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	if *historyN > 0 {
		return printHistory(store, *historyN, logger)
	}

	if (*planPath == "") == (*taskDesc == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -plan or -task is required")
		flag.Usage()
		return 2
	}

	p, err := loadPlan(*planPath, *taskDesc, *taskTimeout)
	if err != nil {
		logger.Error("%v", err)
		return 2
	}

	o, err := buildOrchestrator(cfg, store, logger)
	if err != nil {
		logger.Error("Failed to initialize: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	logger.Info("conductor %s starting: plan=%q agent=%s session=%s",
		version, p.Name, cfg.Agent.Capability, sessionID)

	result := o.ExecutePlan(ctx, p)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("Failed to encode result: %v", err)
		return 2
	}
	fmt.Println(string(out))

	switch result.Status {
	case plan.PlanStatusOK:
		return 0
	case plan.PlanStatusPartial:
		return 1
	default:
		return 2
	}
}

// loadPlan reads a plan file, or wraps a single -task description into a
// one-step plan so both paths share the orchestrator.
func loadPlan(planPath, taskDesc string, timeout time.Duration) (*plan.Plan, error) {
	if planPath != "" {
		p, err := plan.Load(planPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan: %w", err)
		}
		if p.Name == "" {
			p.Name = filepath.Base(planPath)
		}
		return p, nil
	}

	p := &plan.Plan{
		Name: "adhoc-task",
		Mode: plan.ModeSequential,
		Steps: []plan.PlanStep{{
			ID:            "task",
			MaxIterations: plan.DefaultMaxIterations,
			TaskSpec: plan.TaskSpec{
				Description: taskDesc,
				Timeout:     timeout,
			},
		}},
	}
	return p, nil
}

// buildOrchestrator wires the full execution stack from configuration.
func buildOrchestrator(cfg config.Config, store *persistence.Store, logger *logx.Logger) (*orchestrator.PlanOrchestrator, error) {
	registry := adapter.NewRegistry()
	if cfg.Agent.Capability == string(adapter.CapabilityGeneric) {
		registry.Register(adapter.NewGenericAdapter(cfg.Agent.Binary, cfg.Agent.Args))
	}

	ws, err := workspace.NewManager(cfg.ProjectRoot)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.NewWindowLimiter(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window())
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewPrometheusRecorder()

	tokens, err := utils.NewTokenCounter()
	if err != nil {
		logger.Warn("Token counter unavailable, budget checks will use estimation: %v", err)
		tokens = nil
	}

	d, err := driver.New(driver.Options{
		Capability:  adapter.Capability(cfg.Agent.Capability),
		Model:       cfg.Agent.Model,
		RequiredEnv: cfg.Agent.RequiredEnv,
		RetryConfig: cfg.Retry.Policy(),
		Registry:    registry,
		Executor:    exec.NewLocalExec(),
		Workspace:   ws,
		Limiter:     limiter,
		Recorder:    recorder,
		Tokens:      tokens,
	})
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Options{
		Driver:    d,
		Tool:      cfg.Agent.Capability,
		Root:      cfg.ProjectRoot,
		SessionID: uuid.NewString(),
		Recorder:  recorder,
		Store:     store,
	})
}

// printPlanMetrics queries Prometheus for a plan's aggregated step metrics.
func printPlanMetrics(prometheusURL, planName string, logger *logx.Logger) int {
	if prometheusURL == "" {
		fmt.Fprintln(os.Stderr, "metrics requires prometheus_url to be configured")
		return 2
	}

	svc, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		logger.Error("Failed to create metrics query service: %v", err)
		return 2
	}

	pm, err := svc.GetPlanMetrics(context.Background(), planName)
	if err != nil {
		logger.Error("Failed to query plan metrics: %v", err)
		return 2
	}

	out, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		logger.Error("Failed to encode plan metrics: %v", err)
		return 2
	}
	fmt.Println(string(out))
	return 0
}

// printHistory lists recent plan executions from the history database.
func printHistory(store *persistence.Store, limit int, logger *logx.Logger) int {
	if store == nil {
		fmt.Fprintln(os.Stderr, "history requires db_path to be configured")
		return 2
	}

	plans, err := store.RecentPlans(context.Background(), limit)
	if err != nil {
		logger.Error("Failed to read history: %v", err)
		return 2
	}

	out, err := json.MarshalIndent(plans, "", "  ")
	if err != nil {
		logger.Error("Failed to encode history: %v", err)
		return 2
	}
	fmt.Println(string(out))
	return 0
}

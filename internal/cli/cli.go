package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eenlars/evoflow/internal/config"
	internal_http "github.com/eenlars/evoflow/internal/http"
	"github.com/eenlars/evoflow/internal/log"
	internal_mcp "github.com/eenlars/evoflow/internal/mcp"
	internal_storage "github.com/eenlars/evoflow/internal/storage"
	"github.com/eenlars/evoflow/pkg/dataset"
	"github.com/eenlars/evoflow/pkg/evaluator"
	"github.com/eenlars/evoflow/pkg/llm"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/observer"
	"github.com/eenlars/evoflow/pkg/operator"
	"github.com/eenlars/evoflow/pkg/runner"
	"github.com/eenlars/evoflow/pkg/service"
	"github.com/eenlars/evoflow/pkg/snapshot"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Observers keep this many events of history per run.
const eventBufferSize = 1024

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Database connection string (overrides the config file)")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start an evolution run and wait for it to finish",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			store := initStore(cmd, cfg)
			defer store.Close()

			goal, _ := cmd.Flags().GetString("goal")
			if goal == "" {
				fmt.Fprintln(os.Stderr, "Error: --goal is required")
				os.Exit(1)
			}
			workflowID, _ := cmd.Flags().GetString("workflow")
			inputName, _ := cmd.Flags().GetString("input")
			strategy, _ := cmd.Flags().GetString("evaluator")

			runs := service.NewRunService(store, log.GetLogger())
			if workflowID == "" {
				wf, err := runs.RegisterWorkflow(goal)
				if err != nil {
					log.GetLogger().Errorf("Failed to register workflow: %v", err)
					fmt.Fprintf(os.Stderr, "Error: failed to register workflow: %v\n", err)
					os.Exit(1)
				}
				workflowID = wf.ID
				fmt.Fprintf(os.Stdout, "Registered workflow %s\n", workflowID)
			}

			input := resolveInput(store, inputName, goal)
			registry := observer.NewObserverRegistry(eventBufferSize)
			engine := buildEngine(cfg, store, registry, input, strategy)

			// Ctrl-C marks the run interrupted instead of killing it mid-write.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := engine.RunEvolution(ctx, workflowID, input)
			if run != nil {
				printRunOutcome(store, run.ID)
			}
			if err != nil {
				log.GetLogger().Errorf("Run failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	startCmd.Flags().String("goal", "", "What the evolved workflows should achieve")
	startCmd.Flags().String("workflow", "", "Existing workflow ID (registers a new one when empty)")
	startCmd.Flags().String("input", "", "Named evaluation input to score candidates against")
	startCmd.Flags().String("evaluator", "aggregated", "Evaluation strategy: aggregated or percase")

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted run from its last completed generation",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			store := initStore(cmd, cfg)
			defer store.Close()

			runID, _ := cmd.Flags().GetString("run")
			if runID == "" {
				fmt.Fprintln(os.Stderr, "Error: --run is required")
				os.Exit(1)
			}
			inputName, _ := cmd.Flags().GetString("input")
			strategy, _ := cmd.Flags().GetString("evaluator")

			prior, err := store.GetRun(runID)
			if err != nil {
				log.GetLogger().Errorf("Failed to load run %s: %v", runID, err)
				fmt.Fprintf(os.Stderr, "Error: failed to load run %s: %v\n", runID, err)
				os.Exit(1)
			}

			input := resolveInput(store, inputName, prior.Goal)
			registry := observer.NewObserverRegistry(eventBufferSize)
			engine := buildEngine(cfg, store, registry, input, strategy)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := engine.ResumeEvolution(ctx, runID, input)
			if run != nil {
				printRunOutcome(store, run.ID)
			}
			if err != nil {
				log.GetLogger().Errorf("Resume failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	resumeCmd.Flags().String("run", "", "The run to resume")
	resumeCmd.Flags().String("input", "", "Named evaluation input (defaults to the run's goal, prompt-only)")
	resumeCmd.Flags().String("evaluator", "aggregated", "Evaluation strategy: aggregated or percase")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show a run's status and generation history",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			store := initStore(cmd, cfg)
			defer store.Close()

			runID, _ := cmd.Flags().GetString("run")
			if runID == "" {
				listRuns(store)
				return
			}
			printRunOutcome(store, runID)
		},
	}
	statusCmd.Flags().String("run", "", "The run to inspect (lists all runs when empty)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP tool endpoint",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			store := initStore(cmd, cfg)
			defer store.Close()
			serve(cfg, store)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import-dataset",
		Short: "Import a GAIA metadata file as a named evaluation input",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			store := initStore(cmd, cfg)
			defer store.Close()

			file, _ := cmd.Flags().GetString("file")
			name, _ := cmd.Flags().GetString("name")
			if file == "" || name == "" {
				fmt.Fprintln(os.Stderr, "Error: --file and --name are required")
				os.Exit(1)
			}
			goal, _ := cmd.Flags().GetString("goal")
			levels, _ := cmd.Flags().GetIntSlice("levels")
			limit, _ := cmd.Flags().GetInt("limit")
			requireAnswer, _ := cmd.Flags().GetBool("require-answer")

			records, err := dataset.LoadGAIA(file, dataset.LoadOptions{
				Levels:        levels,
				Limit:         limit,
				RequireAnswer: requireAnswer,
			})
			if err != nil {
				log.GetLogger().Errorf("Failed to load dataset: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if len(records) == 0 {
				fmt.Fprintln(os.Stderr, "Error: no records left after filtering")
				os.Exit(1)
			}

			input := dataset.ToEvaluationInput(goal, records)
			if err := store.SaveEvaluationInput(name, input); err != nil {
				log.GetLogger().Errorf("Failed to save evaluation input: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to save evaluation input: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Imported %d cases as evaluation input '%s'\n", len(records), name)
		},
	}
	importCmd.Flags().String("file", "", "Path to the GAIA metadata file (JSONL or JSON array)")
	importCmd.Flags().String("name", "", "Name to store the evaluation input under")
	importCmd.Flags().String("goal", "", "Goal attached to the imported input")
	importCmd.Flags().IntSlice("levels", nil, "Keep only these difficulty levels")
	importCmd.Flags().Int("limit", 0, "Cap the number of imported cases (0 = unlimited)")
	importCmd.Flags().Bool("require-answer", false, "Drop cases without a ground-truth answer")

	rootCmd.AddCommand(startCmd, resumeCmd, statusCmd, serveCmd, importCmd)
}

func loadConfig(cmd *cobra.Command) *config.Config {
	// .env is optional; explicit environment wins either way.
	_ = godotenv.Load()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving config flag: %v", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.GetLogger().Errorf("Failed to load config: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initStore(cmd *cobra.Command, cfg *config.Config) *internal_storage.PostgresStore {
	connStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	if connStr == "" {
		connStr = cfg.ConnStr()
	}
	store, err := internal_storage.NewPostgresStore(connStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to initialize store: %v\n", err)
		os.Exit(1)
	}
	return store
}

// resolveInput looks up a stored evaluation input by name, falling back to a
// prompt-only input built from the goal. The goal always comes from the
// caller, not the stored input.
func resolveInput(store *internal_storage.PostgresStore, name, goal string) models.EvaluationInput {
	if name == "" {
		return models.EvaluationInput{Type: models.InputTypePromptOnly, Goal: goal}
	}
	input, err := store.GetEvaluationInput(name)
	if err != nil {
		log.GetLogger().Errorf("Failed to load evaluation input '%s': %v", name, err)
		fmt.Fprintf(os.Stderr, "Error: unknown evaluation input '%s'\n", name)
		os.Exit(1)
	}
	input.Goal = goal
	return input
}

func newSnapshotStore(cfg *config.Config) snapshot.Store {
	if cfg.Redis.Addr == "" {
		return snapshot.NewMemoryStore()
	}
	store, err := snapshot.NewRedisStore(snapshot.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.GetLogger().Errorf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		fmt.Fprintf(os.Stderr, "Error: failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	return store
}

func evolutionConfig(cfg *config.Config) service.Config {
	return service.Config{
		PopulationSize:         cfg.Evolution.PopulationSize,
		Generations:            cfg.Evolution.Generations,
		ElitismCount:           cfg.Evolution.ElitismCount,
		MaxConcurrentWorkflows: cfg.Evolution.MaxConcurrentWorkflows,
		MaximumTimeMinutes:     cfg.Evolution.MaximumTimeMinutes,
		MaxCostUSDPerRun:       cfg.Evolution.MaxCostUSDPerRun,
		EnableSpendingLimits:   cfg.Evolution.EnableSpendingLimits,
		Seeding:                service.SeedingMethod(cfg.Evolution.Seeding),
		CrossoverRatio:         cfg.Evolution.CrossoverRatio,
		MutationRatio:          cfg.Evolution.MutationRatio,
		RandomRatio:            cfg.Evolution.RandomRatio,
		Weights:                cfg.Evolution.Weights,
		Baselines:              cfg.Evolution.Baselines,
		StopRules:              cfg.Evolution.StopRules,
		StallGuard:             cfg.Evolution.StallGuard,
		EvaluationTimeout:      cfg.Evolution.EvaluationTimeout,
	}
}

// buildEngine assembles the full evaluation and reproduction stack for one
// evaluation input. Evaluators are bound to their input at construction, so
// every run (or request, in serve mode) gets its own engine.
func buildEngine(cfg *config.Config, store *internal_storage.PostgresStore, registry *observer.ObserverRegistry, input models.EvaluationInput, strategy string) *service.EvolutionEngine {
	logger := log.GetLogger()
	client := llm.NewHTTPClient(cfg.LLM.BaseURL, llm.Options{
		APIKey:                  cfg.LLM.APIKey,
		MaxConcurrentAIRequests: cfg.LLM.MaxConcurrentRequests,
	})

	wfRunner := runner.NewRunner(client, nil, registry, logger, runner.Options{
		JudgeModel: cfg.LLM.JudgeModel,
		StallGuard: cfg.Evolution.StallGuard,
	})
	recorder := service.NewInvocationService(store, logger)

	var eval evaluator.Evaluator
	switch strategy {
	case "percase":
		eval = evaluator.NewPerCaseEvaluator(wfRunner, client, cfg.LLM.JudgeModel, input, recorder, logger)
	default:
		eval = evaluator.NewAggregatedEvaluator(wfRunner, client, cfg.LLM.JudgeModel, input, recorder, logger)
	}

	engine, err := service.NewEvolutionEngine(service.EngineDeps{
		Store:     store,
		Runs:      service.NewRunService(store, logger),
		Evaluator: evaluator.NewGPAdapter(eval),
		Operators: operator.NewOperators(client, logger, operator.Options{Model: cfg.LLM.Model}),
		Snapshots: newSnapshotStore(cfg),
		Registry:  registry,
		Logger:    logger,
	}, evolutionConfig(cfg))
	if err != nil {
		log.GetLogger().Errorf("Invalid evolution config: %v", err)
		fmt.Fprintf(os.Stderr, "Error: invalid evolution config: %v\n", err)
		os.Exit(1)
	}
	return engine
}

// runLauncher builds a fresh engine per MCP start_run request so each run
// gets an evaluator bound to its own input.
type runLauncher struct {
	cfg      *config.Config
	store    *internal_storage.PostgresStore
	registry *observer.ObserverRegistry
}

func (l *runLauncher) RunEvolution(ctx context.Context, workflowID string, input models.EvaluationInput) (*models.Run, error) {
	engine := buildEngine(l.cfg, l.store, l.registry, input, "aggregated")
	return engine.RunEvolution(ctx, workflowID, input)
}

func serve(cfg *config.Config, store *internal_storage.PostgresStore) {
	logger := log.GetLogger()

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "evoflow"),
		)),
	)
	otel.SetMeterProvider(provider)

	registry := observer.NewObserverRegistry(eventBufferSize)
	api := internal_http.NewServer(store, registry)
	mcpSrv := internal_mcp.NewServer(store, &runLauncher{cfg: cfg, store: store, registry: registry})

	mux := http.NewServeMux()
	internal_mcp.MountHTTPHandlers(mux, mcpSrv.GetMCPServer())
	mux.Handle("/", api.Handler())

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Serving HTTP API and MCP endpoint on :%s", cfg.Server.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		logger.Errorf("HTTP server failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown failed: %v", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Meter provider shutdown failed: %v", err)
	}
}

func printRunOutcome(store *internal_storage.PostgresStore, runID string) {
	run, err := store.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load run %s: %v\n", runID, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Run %s\n", run.ID)
	fmt.Fprintf(os.Stdout, "  Goal:   %s\n", run.Goal)
	fmt.Fprintf(os.Stdout, "  Status: %s", run.Status)
	if eff := run.EffectiveStatus(time.Now()); eff != run.Status {
		fmt.Fprintf(os.Stdout, " (%s)", eff)
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintf(os.Stdout, "  Spend:  $%.4f\n", run.TotalCostUSD)
	if run.ErrorMsg != "" {
		fmt.Fprintf(os.Stdout, "  Error:  %s\n", run.ErrorMsg)
	}

	gens, err := store.ListGenerations(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list generations: %v\n", err)
		os.Exit(1)
	}
	for _, g := range gens {
		state := "open"
		if g.EndTime != nil {
			state = "done"
		}
		fmt.Fprintf(os.Stdout, "  Generation %d [%s]: best %.3f, cost $%.4f\n",
			g.Number, state, g.BestScore, g.CostUSD)
	}
}

func listRuns(store *internal_storage.PostgresStore) {
	runs, err := store.ListRuns()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "No runs found.")
		return
	}
	fmt.Fprintln(os.Stdout, "Runs:")
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "- %s  %-11s  $%.4f  %s\n",
			r.ID, r.EffectiveStatus(time.Now()), r.TotalCostUSD, r.Goal)
	}
}

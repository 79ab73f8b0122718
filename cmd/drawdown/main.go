package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dpgo/drawdown-planner/internal/calculation"
	"github.com/dpgo/drawdown-planner/internal/config"
	"github.com/dpgo/drawdown-planner/internal/output"
)

var (
	configPath string
	format     string
	verbose    bool

	seedOverride       int64
	iterationsOverride int
	workersOverride    int
	stressOverride     string
)

// rootCmd is the base command for the drawdown CLI.
var rootCmd = &cobra.Command{
	Use:   "drawdown",
	Short: "Long-horizon savings and withdrawal plan simulator",
	Long: `drawdown projects a household savings-and-withdrawal plan month by month
under the German capital-gains tax regime, quantifies outcome uncertainty via
Monte Carlo resampling, and searches a parameter grid for plan configurations
that hit a target success probability.`,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a single deterministic or seeded simulation",
	RunE:  runSimulate,
}

var monteCarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Run a Monte Carlo analysis over many seeded paths",
	RunE:  runMonteCarlo,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search the configured parameter grid for the best plan",
	RunE:  runOptimize,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "scenario.yaml", "Path to the scenario YAML file")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	monteCarloCmd.Flags().Int64Var(&seedOverride, "seed", 0, "Override the base seed")
	monteCarloCmd.Flags().IntVar(&iterationsOverride, "iterations", 0, "Override the iteration count")
	monteCarloCmd.Flags().IntVar(&workersOverride, "workers", 0, "Override the worker count (0 = all cores)")
	monteCarloCmd.Flags().StringVar(&stressOverride, "stress", "", "Apply a named stress scenario")
	simulateCmd.Flags().Int64Var(&seedOverride, "seed", 0, "Override the seed")
	simulateCmd.Flags().StringVar(&stressOverride, "stress", "", "Apply a named stress scenario")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(monteCarloCmd)
	rootCmd.AddCommand(optimizeCmd)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func loadScenario() (*config.ScenarioFile, error) {
	parser := config.NewInputParser()
	return parser.LoadFromFile(configPath)
}

func emit(report *output.Report) error {
	f, err := output.GetFormatterByName(format)
	if err != nil {
		return err
	}
	data, err := f.Format(report)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	file, err := loadScenario()
	if err != nil {
		return err
	}

	opts := file.Simulation
	if seedOverride != 0 {
		opts.Seed = seedOverride
	}
	if stressOverride != "" {
		opts.StressScenario = stressOverride
	}

	engine := calculation.NewEngine()
	engine.SetLogger(zerologAdapter{logger})
	run, err := engine.Simulate(cmd.Context(), &file.Scenario, opts)
	if err != nil {
		return err
	}
	return emit(&output.Report{Scenario: &file.Scenario, Run: run})
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	file, err := loadScenario()
	if err != nil {
		return err
	}

	opts := file.MonteCarlo
	if seedOverride != 0 {
		opts.Seed = seedOverride
	}
	if iterationsOverride > 0 {
		opts.Iterations = iterationsOverride
	}
	if workersOverride > 0 {
		opts.Workers = workersOverride
	}
	if stressOverride != "" {
		opts.StressScenario = stressOverride
	}
	opts.Progress = func(done, total int) {
		logger.Info().Int("done", done).Int("total", total).Msg("paths completed")
	}

	engine := calculation.NewEngine()
	runner := calculation.NewMonteCarloRunner(engine)
	runner.SetLogger(zerologAdapter{logger})
	result, err := runner.Run(cmd.Context(), &file.Scenario, opts)
	if err != nil {
		return err
	}
	return emit(&output.Report{Scenario: &file.Scenario, MonteCarlo: result})
}

func runOptimize(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	file, err := loadScenario()
	if err != nil {
		return err
	}
	if file.Optimizer == nil {
		return fmt.Errorf("scenario file has no optimizer section")
	}

	engine := calculation.NewEngine()
	runner := calculation.NewMonteCarloRunner(engine)
	optimizer := calculation.NewOptimizer(runner)
	optimizer.SetLogger(zerologAdapter{logger})

	best, err := optimizer.Optimize(cmd.Context(), &file.Scenario, *file.Optimizer)
	if err != nil {
		return err
	}
	if best == nil {
		return emit(&output.Report{Scenario: &file.Scenario, NoCandidate: true})
	}
	return emit(&output.Report{Scenario: &file.Scenario, Candidate: best})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

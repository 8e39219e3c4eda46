package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"departureboard/pkg/board"
	"departureboard/pkg/config"
	"departureboard/pkg/logging"
	"departureboard/pkg/metrics"
	"departureboard/pkg/otel"
	"departureboard/pkg/parser"
	"departureboard/pkg/pipeline"
	"departureboard/pkg/profiling"
	"departureboard/pkg/station"
	"departureboard/pkg/tracing"
	"departureboard/pkg/transport"

	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath       string
	apiURL           string
	interval         time.Duration
	timeout          time.Duration
	retries          int
	failureThreshold int
	posterInterval   time.Duration
	once             bool
	noColor          bool
	jsonOutput       bool
}

var opts runOptions

var rootCmd = &cobra.Command{
	Use:   "departureboard",
	Short: "Live public transport departure board",
	Long: `departureboard polls a HAFAS departures API for the configured stations
and renders the upcoming departures, events and posters in the terminal.

Observability is configured through the environment: OTEL_TRACING_ENABLED,
OTEL_METRICS_ENABLED, OTEL_EXPORTER_OTLP_* and PYROSCOPE_*.`,
	Version:       otel.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBoard(cmd.OutOrStdout())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", getEnv("BOARD_CONFIG", "data/config.json"), "Path to the board configuration")

	flags = rootCmd.Flags()
	flags.StringVar(&opts.apiURL, "api-url", getEnv("BOARD_API_URL", transport.DefaultBaseURL), "Departures API base URL")
	flags.DurationVar(&opts.interval, "interval", getEnvDuration("BOARD_INTERVAL", pipeline.DefaultInterval), "Refresh interval")
	flags.DurationVar(&opts.timeout, "timeout", getEnvDuration("BOARD_TIMEOUT", transport.DefaultTimeout), "Timeout per API request")
	flags.IntVar(&opts.retries, "retries", getEnvInt("BOARD_RETRIES", 2), "Retries for transient API failures within a tick")
	flags.IntVar(&opts.failureThreshold, "failure-threshold", getEnvInt("BOARD_FAILURE_THRESHOLD", board.DefaultFailureThreshold), "Consecutive failed ticks before a station shows the failure notice")
	flags.DurationVar(&opts.posterInterval, "poster-interval", getEnvDuration("BOARD_POSTER_INTERVAL", board.DefaultPosterInterval), "Time each poster image is shown")
	flags.BoolVar(&opts.once, "once", false, "Run a single refresh and exit")
	flags.BoolVar(&opts.noColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colors")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Write one JSON snapshot per refresh instead of the board")

	rootCmd.AddCommand(validateCmd)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBoard(stdout io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitTracing(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracing()

	shutdownMetrics, err := metrics.InitMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer shutdownMetrics()

	shutdownProfiling, err := profiling.InitProfiling()
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer shutdownProfiling()

	client := transport.NewClient(transport.Options{
		BaseURL:    opts.apiURL,
		Timeout:    opts.timeout,
		MaxRetries: opts.retries,
	})
	aggregator := station.NewAggregator(client, parser.NewDepartureParser())

	var sink pipeline.Sink
	if opts.jsonOutput {
		sink = pipeline.NewJSONSink(stdout)
	} else {
		sink = board.New(stdout, cfg, board.Options{
			FailureThreshold: opts.failureThreshold,
			PosterInterval:   opts.posterInterval,
			NoColor:          opts.noColor,
			Clear:            !opts.once,
		})
	}

	p, err := pipeline.New(pipeline.Config{
		Stations: cfg.Stations,
		Interval: opts.interval,
		Once:     opts.once,
	}, aggregator, sink)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	slog.Info("Starting departure board",
		"config", opts.configPath,
		"api", opts.apiURL,
		"stations", len(cfg.Stations),
		"interval", opts.interval,
		"once", opts.once,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down gracefully", "signal", sig)
		cancel()
		select {
		case <-time.After(5 * time.Second):
			slog.Warn("Shutdown timeout, forcing exit")
		case <-errChan:
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("pipeline error: %w", err)
		}
	}

	slog.Info("Departure board stopped")
	return nil
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return defaultValue
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"filterlaunch/internal/config"
	"filterlaunch/internal/gamedir"
	"filterlaunch/internal/github"
	"filterlaunch/internal/launcher"
	"filterlaunch/internal/source"
	"filterlaunch/internal/sync"
	"github.com/spf13/cobra"
)

// Exit codes for failures in the wrapper itself. The wrapped command's own
// exit code is forwarded verbatim.
const (
	exitUsage       = 2   // malformed source token or bad configuration
	exitLaunchError = 127 // wrapped command could not be started
	exitInterrupted = 130 // terminated by signal before launch
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

// exitError carries an explicit process exit code out of cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filterlaunch [source...] -- command [args...]",
	Short: "Update item filters from GitHub, then launch the game",
	Long: `filterlaunch keeps Path of Exile 2 item filters up to date without manual
downloads. It is meant to wrap the game's launch command (for example as a
Steam launch option): each source is resolved to its latest release or branch
tip, fresh content is installed atomically into the game's filter directory,
and the wrapped command is started with its exit code forwarded unchanged.

Sources may be builtin aliases (neversink-lite, cdrg), optionally with a
branch (cdrg/main), or explicit repositories (github:owner/repo or
github:owner/repo/branch). Without a branch the latest published release is
used; with a branch, the current tip commit.

A failing source never blocks the launch: the game starts with the previously
installed filter when one exists.`,
	Example: `  filterlaunch neversink-lite -- %command%
  filterlaunch cdrg github:NeverSinkDev/NeverSink-PoE2litefilter/main -- /usr/bin/game
  filterlaunch -- /usr/bin/game`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runLaunch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("filterlaunch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/filterlaunch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel(), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(versionCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cmd.SilenceErrors = true

	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	sources, wrapped := splitArgs(args, cmd.ArgsLenAtDash())

	// Parsing happens before any network activity; a malformed token is
	// fatal and nothing has been touched yet.
	descriptors, err := source.ParseAll(sources)
	if err != nil {
		logger.Error("invalid source argument", "error", err)
		return &exitError{code: exitUsage, err: err}
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return &exitError{code: exitUsage, err: err}
	}

	if err := syncFilters(ctx, cfg, logger, descriptors); err != nil {
		if ctx.Err() != nil {
			logger.Info("interrupted before launch, abandoning")
			return &exitError{code: exitInterrupted, err: err}
		}
		// Filter trouble must never prevent the game from starting.
		logger.Error("filter sync failed, launching with existing content", "error", err)
	}

	if len(wrapped) == 0 {
		logger.Info("nothing to execute provided")
		return nil
	}

	l := launcher.NewExecLauncher(logger)
	code, err := l.Launch(wrapped[0], wrapped[1:])
	if err != nil {
		logger.Error("could not start wrapped command", "error", err)
		return &exitError{code: exitLaunchError, err: err}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// splitArgs separates source tokens from the wrapped command line. dash is
// cobra's ArgsLenAtDash: the index of the "--" separator, or -1 when absent,
// in which case every argument is a source and there is nothing to launch.
func splitArgs(args []string, dash int) (sources, wrapped []string) {
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

// syncFilters runs the full resolve/fetch/install pipeline and logs the
// per-source outcomes. Only a cancelled context or a completely unusable
// destination is reported as an error; individual source failures stay
// warnings so the launch proceeds.
func syncFilters(ctx context.Context, cfg *config.Config, logger *slog.Logger, descriptors []source.Descriptor) error {
	if len(descriptors) == 0 {
		return nil
	}

	filterDir := cfg.Paths.FilterDir
	if filterDir == "" {
		var err error
		filterDir, err = gamedir.Locate(logger)
		if err != nil {
			return fmt.Errorf("could not find game directory: %w", err)
		}
	}
	logger.Debug("using filter directory", "path", filterDir)

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(cfg, client, logger, filterDir, os.Stderr)
	result, err := engine.Run(ctx, descriptors)
	if err != nil {
		return err
	}

	for _, o := range result.Outcomes {
		switch o.Kind {
		case sync.OutcomeFresh:
			logger.Info("filter updated", "source", o.Source.Key(), "version", o.Version)
		case sync.OutcomeCached:
			logger.Info("filter already up to date", "source", o.Source.Key(), "version", o.Version)
		case sync.OutcomeSoftFailure:
			logger.Warn("filter update failed, keeping previously installed version",
				"source", o.Source.Key(), "error", o.Err)
		case sync.OutcomeHardFailure:
			logger.Error("filter update failed and no previous version is installed",
				"source", o.Source.Key(), "error", o.Err)
		}
	}
	return nil
}

// buildClient assembles the GitHub client from configuration.
func buildClient(cfg *config.Config) (github.Client, error) {
	opts := []github.Option{
		github.WithUserAgent("filterlaunch/" + version),
		github.WithMaxPayloadBytes(cfg.Fetch.MaxPayloadBytes),
		github.WithRetries(cfg.Fetch.Retries),
		github.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
	}
	if cfg.GitHub.APIBaseURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIBaseURL))
	}

	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}
	if token != "" {
		opts = append(opts, github.WithToken(token))
	}

	return github.NewRESTClient(opts...), nil
}

// defaultLogLevel reads the FILTERLAUNCH_LOG environment variable; absent
// means quiet operation, reporting warnings only.
func defaultLogLevel() string {
	if lvl := os.Getenv("FILTERLAUNCH_LOG"); lvl != "" {
		return lvl
	}
	return "warn"
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug", "trace":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	// Stdout belongs to the wrapped command; all diagnostics go to stderr.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"filter_dir", cfg.Paths.FilterDir,
		"concurrency", cfg.Fetch.Concurrency,
		"retries", cfg.Fetch.Retries)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

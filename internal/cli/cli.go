package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/liveresolver/internal/app"
	"github.com/specialistvlad/liveresolver/internal/config"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Streams are the process streams the commands read from and write to.
// Logs always go to Err so that Out stays free for the stdio protocol and
// for resolve results.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath      string
	listen          string
	healthcheckPort int
	logLevel        string
	logFormat       string
	maxConcurrency  int
	metrics         bool
}

// Execute runs the command line in args. Help output returns nil; invalid
// usage returns an *ExitError with code 2.
func Execute(ctx context.Context, args []string, s Streams) error {
	root := NewRootCommand(s)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the liveresolver command tree.
func NewRootCommand(s Streams) *cobra.Command {
	flags := &globalFlags{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "liveresolver",
		Short: "Incremental graph resolver for live infrastructure designs",
		Long: "liveresolver keeps node graphs evaluated as hosts edit them. It runs as a " +
			"socket.io worker, as a stdio worker driven by a parent process, or resolves " +
			"HCL snapshots once and prints the outputs.",
		SilenceErrors: true,
		SilenceUsage:  true,
		// No Run: prints help by default.
	}
	root.SetIn(s.In)
	root.SetOut(s.Out)
	root.SetErr(s.Err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to an HCL config file")
	pf.StringVar(&flags.listen, "listen", defaults.Listen, "socket.io listen address")
	pf.IntVar(&flags.healthcheckPort, "healthcheck-port", defaults.HealthcheckPort, "port for the health check server, 0 disables it")
	pf.StringVar(&flags.logLevel, "log-level", defaults.LogLevel, "logging level: debug|info|warn|error")
	pf.StringVar(&flags.logFormat, "log-format", defaults.LogFormat, "log output format: text|json")
	pf.IntVar(&flags.maxConcurrency, "max-concurrency", defaults.MaxConcurrency, "computations one resolver instance runs at once")
	pf.BoolVar(&flags.metrics, "metrics", defaults.MetricsEnabled, "expose Prometheus metrics")

	root.AddCommand(
		newServeCommand(flags, s),
		newWorkerCommand(flags, s),
		newResolveCommand(flags, s),
	)
	return root
}

func newServeCommand(flags *globalFlags, s Streams) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve hosts over socket.io",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags, config.TransportSocketIO)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.NewApp(s.Err, cfg).Serve(ctx, nil, nil)
		},
	}
}

func newWorkerCommand(flags *globalFlags, s Streams) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve a single host over stdin and stdout",
		Long: "worker reads one JSON command per line from stdin and writes one JSON event " +
			"per line to stdout until stdin is closed.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags, config.TransportStdio)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.NewApp(s.Err, cfg).Serve(ctx, s.In, s.Out)
		},
	}
}

// loadConfig overlays the config file with the flags set explicitly on the
// command line.
func loadConfig(cmd *cobra.Command, flags *globalFlags, transport string) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, usageError(err)
	}
	cfg.Transport = transport

	changed := cmd.Flags().Changed
	if changed("listen") {
		cfg.Listen = flags.listen
	}
	if changed("healthcheck-port") {
		cfg.HealthcheckPort = flags.healthcheckPort
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if changed("max-concurrency") {
		cfg.MaxConcurrency = flags.maxConcurrency
	}
	if changed("metrics") {
		cfg.MetricsEnabled = flags.metrics
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	return &cfg, nil
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Message renders err for stderr.
func Message(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Message
	}
	return fmt.Sprintf("Error: %s", err)
}

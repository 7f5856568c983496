package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/gmailcli/internal/config"
	"github.com/teemow/gmailcli/internal/instrumentation"
	"github.com/teemow/gmailcli/internal/logging"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI.
func SetVersion(v string) {
	version = v
}

// session carries what PersistentPreRunE resolves for the running command.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
}

func (s *session) metrics() *instrumentation.Metrics {
	if s.provider == nil {
		return nil
	}
	return s.provider.Metrics()
}

// setup loads .env, the configuration, the logger and instrumentation.
func (s *session) setup(cmd *cobra.Command) error {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(cmd.Context(), instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	s.cfg = cfg
	s.logger = logger
	s.provider = provider
	logger.Debug("configuration loaded",
		slog.String("dir", cfg.Dir),
		slog.String("token_backend", cfg.TokenBackend),
		slog.Bool("instrumentation", provider.Enabled()))
	return nil
}

// close flushes telemetry. Errors are logged, never returned: the command
// has already produced its result.
func (s *session) close(ctx context.Context) {
	if s.provider == nil {
		return
	}
	if err := s.provider.Shutdown(ctx); err != nil {
		s.logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}

// newRootCmd builds the command tree around s.
func newRootCmd(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gmailcli",
		Short: "Read and send Gmail from the command line",
		Long: `gmailcli lists, reads and sends Gmail messages.

On first use it opens an OAuth consent flow in your browser and stores the
resulting token in ~/.gmail-cli/token.json. The OAuth client secret must be
saved as ~/.gmail-cli/credentials.json (Desktop app client from the Google
Cloud console).

Running gmailcli without a subcommand runs "read".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.setup(cmd)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "gmailcli version %s\n" .Version}}`)
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newReadCmd(s))
	rootCmd.AddCommand(newSendCmd(s))
	rootCmd.AddCommand(newAuthCmd(s))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// withDefaultCommand inserts "read" when no subcommand was given, so that
// "gmailcli -u -n 5" behaves like "gmailcli read -u -n 5".
func withDefaultCommand(root *cobra.Command, args []string) []string {
	if len(args) == 0 {
		return []string{"read"}
	}
	first := args[0]
	switch first {
	case "-h", "--help", "-v", "--version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return args
	}
	if !strings.HasPrefix(first, "-") {
		return args
	}
	if cmd, _, err := root.Find(args); err == nil && cmd != root {
		return args
	}
	return append([]string{"read"}, args...)
}

// run executes the CLI with args and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	s := &session{logger: slog.Default()}
	root := newRootCmd(s)
	root.SetArgs(withDefaultCommand(root, args))
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	s.close(context.WithoutCancel(ctx))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// Execute is the main entry point for the CLI application
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

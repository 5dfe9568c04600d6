// Package cmd defines the feedsync CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/app"
	"github.com/JakeFAU/feedsync/internal/config"
	"github.com/JakeFAU/feedsync/internal/logging"
	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service container the commands use. It is an interface so tests can
// inject a fake.
type App interface {
	Close() error
	Logger() *zap.Logger
	Config() config.Config
	Store() app.Store
	Ping(ctx context.Context) error
	Run(ctx context.Context) (reconcile.Report, error)
	PushMetrics(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err //nolint:wrapcheck // buildApp wraps
	}
	return a, nil
}

type rootOptions struct {
	configFile string
	dryRun     bool

	// app is set once PersistentPreRunE has built the services.
	app App
}

// closeApp releases the services built for this invocation, if any.
func (o *rootOptions) closeApp() {
	if o.app == nil {
		return
	}
	logger := o.app.Logger()
	if err := o.app.Close(); err != nil {
		logger.Warn("error closing services", zap.Error(err))
	}
	_ = logger.Sync()
	o.app = nil
}

// newRootCmd creates and configures the root command. The caller owns opts and must
// call opts.closeApp once the command returns.
func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedsync",
		Short: "Mirrors a WordPress site's articles into a local store.",
		Long: `feedsync reconciles a local article store with a WordPress site. Each run
compares the store with the site's post sitemaps, reads as many RSS feed pages as
needed to catch up, and backfills any article the feed no longer carries by
scraping its page.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := buildApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "use an in-memory store instead of Postgres")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func buildApp(ctx context.Context, opts *rootOptions) (App, error) {
	var overrides []config.Override
	if opts.dryRun {
		overrides = append(overrides, config.Set("sync.dry_run", true))
	}
	cfg, err := config.Load(opts.configFile, overrides...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	appInstance, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return appInstance, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes the CLI with args. Services are closed whether or not the command
// succeeds.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &rootOptions{}
	defer opts.closeApp()

	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "feedsync:", err)
		os.Exit(1)
	}
}

// Package cli is the simctl command tree: liberation and AUC runs against
// the configured registries, identifier normalization and operator tooling.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"simrelease/internal/app"
	"simrelease/internal/auc"
	"simrelease/internal/liberation"
	"simrelease/internal/platform/config"
	"simrelease/internal/platform/logger"
	"simrelease/internal/registry"
)

// Core is what the commands need from the assembled service.
type Core interface {
	Liberate(ctx context.Context, req liberation.Request) ([]liberation.Outcome, error)
	CreateAuc(ctx context.Context, identifiers []string, env registry.Environment) auc.Result
	Close(ctx context.Context) error
}

// Factory builds a Core for one command run.
type Factory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Core, error)

// RootOptions holds global flags and collaborators shared by all commands.
type RootOptions struct {
	ConfigPath string
	JSON       bool
	LogLevel   string

	factory Factory
	getenv  func(string) string
}

// NewRootCommand builds simctl. A nil factory assembles the real core from
// configuration.
func NewRootCommand(factory Factory) *cobra.Command {
	if factory == nil {
		factory = DefaultFactory
	}
	opts := &RootOptions{factory: factory, getenv: os.Getenv}

	cmd := &cobra.Command{
		Use:           "simctl",
		Short:         "Operate SIM liberation and AUC delivery",
		Long:          "simctl liberates SIM cards in the PROD and UAT registries and builds AUC batches for them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file (defaults to $SIMRELEASE_CONFIG)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print results as JSON")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(NewLiberateCommand(opts))
	cmd.AddCommand(NewAucCommand(opts))
	cmd.AddCommand(NewNormalizeCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))
	return cmd
}

func (o *RootOptions) config() (config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = o.getenv("SIMRELEASE_CONFIG")
	}
	return config.LoadFrom(path, o.getenv)
}

func (o *RootOptions) logger(stderr io.Writer) *slog.Logger {
	return logger.NewWithWriter(stderr, o.LogLevel, "text")
}

// withCore loads configuration, builds the core, runs fn and closes the core.
func (o *RootOptions) withCore(cmd *cobra.Command, fn func(ctx context.Context, core Core) error) error {
	cfg, err := o.config()
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	core, err := o.factory(ctx, cfg, o.logger(cmd.ErrOrStderr()))
	if err != nil {
		return WrapExitError(ExitCommandError, "initialize", err)
	}
	defer func() {
		if cerr := core.Close(context.WithoutCancel(ctx)); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: shutdown: %v\n", cerr)
		}
	}()
	return fn(ctx, core)
}

// DefaultFactory assembles the core with app.Build and runs its background
// workers until Close.
func DefaultFactory(ctx context.Context, cfg config.Config, logger *slog.Logger) (Core, error) {
	a, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.Start(runCtx)
	return &appCore{app: a, stop: cancel}, nil
}

type appCore struct {
	app  *app.App
	stop context.CancelFunc
}

func (c *appCore) Liberate(ctx context.Context, req liberation.Request) ([]liberation.Outcome, error) {
	return c.app.Engine.Liberate(ctx, req)
}

func (c *appCore) CreateAuc(ctx context.Context, identifiers []string, env registry.Environment) auc.Result {
	return c.app.Auc.Create(ctx, identifiers, env)
}

func (c *appCore) Close(ctx context.Context) error {
	c.stop()
	return c.app.Close(ctx)
}

// Package cmd defines and implements the CLI commands for the imgsize
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/imagesize-intrinsic/internal/app"
	"github.com/JakeFAU/imagesize-intrinsic/internal/config"
	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
	"github.com/JakeFAU/imagesize-intrinsic/internal/logging"
	"github.com/JakeFAU/imagesize-intrinsic/internal/pipeline"
)

// sessionKeyType is the key for storing the session in the context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session is what every subcommand needs: configuration, a logger, and the
// shared services. services is nil when they could not be built; commands
// then fall back to pass-through processing.
type session struct {
	cfg      config.Config
	logger   *zap.Logger
	services *app.App
}

func (r *session) newProcessor() imgsize.Processor {
	if r.services == nil {
		return pipeline.Passthrough{}
	}
	return r.services.NewProcessor()
}

func (r *session) close() {
	if r.services != nil {
		_ = r.services.Close()
	}
	_ = r.logger.Sync()
}

// newRootCmd creates and configures the root command. opts are passed to
// app.New for every invocation.
func newRootCmd(opts ...app.Option) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "imgsize",
		Short: "Annotate remote <img> tags with their intrinsic width and height.",
		Long: `imgsize reads rendered HTML, probes the remote images it references,
and writes width and height attributes onto each tag. Probed sizes are kept
in a dimension cache so later runs touch the network only for new images.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt := &session{cfg: cfg, logger: logger}
			services, err := app.New(cmd.Context(), cfg, logger, opts...)
			switch {
			case err == nil:
				rt.services = services
			case errors.Is(err, imgsize.ErrMissingDependency):
				logger.Warn("services unavailable, pages pass through unchanged", zap.Error(err))
			default:
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(sessionKey).(*session); ok && rt != nil {
				rt.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newRewriteCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveSession(ctx context.Context) (*session, error) {
	rt, ok := ctx.Value(sessionKey).(*session)
	if !ok || rt == nil {
		return nil, errors.New("session not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

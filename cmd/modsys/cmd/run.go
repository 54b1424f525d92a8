package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modsys"
	"github.com/GoCodeAlone/modsys/admin"
)

const shutdownTimeout = 30 * time.Second

// NewRunCommand creates the run command. verbose is the root --verbose flag.
func NewRunCommand(verbose *bool) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Bring the modules of a manifest up behind the admin API",
		Long: `Run registers a placeholder module for every manifest entry, initializes and
starts them in dependency order and serves the admin API until interrupted.
On exit every module is stopped and destroyed in reverse order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := modsys.LoadManifest(args[0])
			if err != nil {
				return err
			}

			cfg := m.System
			if cmd.Flags().Changed("addr") {
				cfg.AdminAddr = addr
			}
			logger := systemLogger{l: newLogger(cmd.ErrOrStderr(), levelFor(cfg.LogLevel, *verbose))}

			sys, err := modsys.New(modsys.WithConfig(&cfg), modsys.WithLogger(logger))
			if err != nil {
				return err
			}
			if err := m.Register(sys); err != nil {
				return err
			}
			return serve(cmd.Context(), sys, logger, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "admin API listen address (overrides the manifest)")

	return cmd
}

func serve(ctx context.Context, sys *modsys.ModuleSystem, logger modsys.Logger, cfg modsys.Config) error {
	if err := sys.Initialize(ctx); err != nil {
		logger.Error("Initialization failed", "error", err)
		return errors.Join(err, shutdown(ctx, sys, nil))
	}

	var reporter *admin.Reporter
	if cfg.ReportSchedule != "" {
		r, err := admin.NewReporter(sys, logger, cfg.ReportSchedule)
		if err != nil {
			return errors.Join(err, shutdown(ctx, sys, nil))
		}
		reporter = r
		reporter.Start()
	}

	serveErr := admin.NewServer(sys, logger).ListenAndServe(ctx, cfg.AdminAddr)
	return errors.Join(serveErr, shutdown(ctx, sys, reporter))
}

func shutdown(ctx context.Context, sys *modsys.ModuleSystem, reporter *admin.Reporter) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if reporter != nil {
		if err := reporter.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop reporter: %w", err))
		}
	}
	if err := sys.Shutdown(stopCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

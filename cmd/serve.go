package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"isp-portal/internal/usecase"
	"isp-portal/internal/wire"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, with the task worker and session monitor unless --no-worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			app := wire.Wiring(rt.repo, rt.deps, rt.db, rt.config, rt.logger)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return APIServer(ctx, app.Router, rt.config.App.Port, rt.logger)
			})

			if noWorker {
				rt.logger.Info("Background worker disabled for this process")
			} else {
				runBackground(ctx, g, usecase.NewWorker(rt.repo, app.Service, rt.publisher, rt.config, rt.logger))
			}

			if err := g.Wait(); err != nil {
				rt.logger.Error("Application terminated with error", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not run the task worker and session monitor in this process")

	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the task worker and session monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			service := usecase.NewService(rt.repo, rt.deps, rt.config, rt.logger)

			g, ctx := errgroup.WithContext(ctx)
			runBackground(ctx, g, usecase.NewWorker(rt.repo, service, rt.publisher, rt.config, rt.logger))

			return g.Wait()
		},
	}
}

func runBackground(ctx context.Context, g *errgroup.Group, worker *usecase.Worker) {
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return worker.RunMonitor(ctx) })
}

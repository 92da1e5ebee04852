package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reelpipe/infrastructure/configuration"
	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.GetLogger().WithError(err).Error("Application exited with error")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reelpipe",
		Short:         "Short-form video fetch and upload pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		runCmd("api", "Serve the HTTP API", true, false),
		runCmd("worker", "Consume queued jobs and run scheduled maintenance", false, true),
		runCmd("serve", "Run the API and the worker in one process", true, true),
		tokenCmd(),
	)
	return root
}

func runCmd(use, short string, withAPI, withWorker bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, withAPI, withWorker)
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configuration.Load()
			if err != nil {
				return err
			}
			if cfg.App.SecretKey == "" {
				return errors.New("app.secretKey is not set")
			}
			token, err := utils.GenerateToken(subject, ttl, cfg.App.SecretKey)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func run(ctx context.Context, withAPI, withWorker bool) error {
	cfg, err := configuration.Load()
	if err != nil {
		return err
	}
	logger.Configure(cfg.App.LogLevel, cfg.App.LogFormat, cfg.App.Env)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	if withAPI {
		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.App.Port),
			Handler:           a.router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.GetLogger().WithField("port", cfg.App.Port).Info("Starting HTTP server")
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.GetLogger().Info("Shutting down HTTP server")
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if withWorker {
		dispatcher := a.dispatcher()
		g.Go(func() error {
			err := dispatcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		sched, err := a.scheduler()
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(ctx) })
	}

	err = g.Wait()
	logger.GetLogger().Info("Application stopped")
	return err
}

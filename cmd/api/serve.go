package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tokens.hh/internal/api"
	"tokens.hh/internal/config"
	"tokens.hh/internal/engine"
	"tokens.hh/internal/ledger"
	"tokens.hh/internal/notify"
	"tokens.hh/internal/store/memory"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("migrate", false, "Apply the schema before serving")
	serveCmd.Flags().Bool("memory", false, "Keep all state in memory instead of Postgres")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireServe(); err != nil {
		return err
	}
	migrate, _ := cmd.Flags().GetBool("migrate")
	inMemory, _ := cmd.Flags().GetBool("memory")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		st     ledger.Store
		health func(context.Context) error
	)
	if inMemory {
		logger.Warn("using in-memory store, state is lost on exit")
		st = memory.New()
	} else {
		pg, pool, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema applied")
		}
		st = pg
		health = pool.Ping
	}

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notifier, logger, cfg.Notify.Buffer)

	rate, _ := cfg.PayoutRate()
	eng := engine.New(st,
		engine.WithLogger(logger),
		engine.WithPublisher(dispatcher),
		engine.WithMinWithdrawal(cfg.Ledger.MinWithdrawal),
		engine.WithPayoutRate(rate),
	)

	srv := api.NewServer(eng, cfg.API.AuthToken, logger,
		api.WithCORSOrigins(cfg.API.CORS),
		api.WithHealthCheck(health),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	if err := dispatcher.Close(ctxShutdown); err != nil {
		logger.Warn("notifications not drained", slog.Any("error", err))
	}
	logger.Info("stopped")
	return nil
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.Notify.SQSQueueURL == "" {
		return notify.LogNotifier{Logger: logger}, nil
	}
	n, err := notify.NewSQSNotifierFromEnv(ctx, cfg.Notify.SQSQueueURL)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing events to SQS", slog.String("queue_url", cfg.Notify.SQSQueueURL))
	return n, nil
}

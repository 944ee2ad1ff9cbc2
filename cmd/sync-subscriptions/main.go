// Команда sync-subscriptions выполняет один прогон сверки: срок подписки
// из хранилища дожимается в панель, отчёт печатается в лог. Хранилище
// задача не пишет, запускать её безопасно в любой момент.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/reconcile"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting subscription sync", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		_ = db.DB.Close()
	}()

	panelClient, err := panel.NewClient(cfg.Panel, logger)
	if err != nil {
		logger.Error("failed to build panel client", slog.Any("err", err))
		os.Exit(1)
	}
	panelAdapter := panel.NewAdapter(panelClient, cfg.Panel, logger)

	job := reconcile.New(db, panelClient, panelAdapter, cfg.Panel, logger)
	stats, err := job.Run(ctx, time.Now())
	if err != nil {
		logger.Error("reconciliation failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("reconciliation report",
		slog.Int("updated", stats.Updated),
		slog.Int("missing_remote", stats.MissingRemote),
		slog.Int("skipped", stats.Skipped))
}

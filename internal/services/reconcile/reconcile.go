// Package reconcile реализует пакетную сверку: срок подписки из
// хранилища дожимается в панель для всех активных выданных пользователей.
// Хранилище - источник истины, задача его никогда не пишет.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/metrics"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
)

// Repository описывает нужную часть хранилища: только чтение.
type Repository interface {
	ListActiveProvisioned(ctx context.Context, now time.Time) ([]*models.User, error)
}

// InboundReader читает цельный снимок инбаунда.
type InboundReader interface {
	GetInbound(ctx context.Context, inboundID int) (*panel.InboundSnapshot, error)
}

// ExpiryWriter пишет срок действия клиента в панель.
type ExpiryWriter interface {
	SetClientExpiry(ctx context.Context, inboundID int, email string, expiryMs int64) error
}

// Stats - отчёт одного прогона сверки.
type Stats struct {
	Updated       int // срок в панели обновлён
	MissingRemote int // в хранилище выдан, в панели клиента нет
	Skipped       int // запись хранилища нечитаема, пропущена
}

// Job - задача сверки.
type Job struct {
	repo   Repository
	reader InboundReader
	writer ExpiryWriter
	cfg    config.Panel
	log    *slog.Logger
}

// New создаёт задачу сверки.
func New(repo Repository, reader InboundReader, writer ExpiryWriter, cfg config.Panel, log *slog.Logger) *Job {
	return &Job{
		repo:   repo,
		reader: reader,
		writer: writer,
		cfg:    cfg,
		log:    log,
	}
}

// Run выполняет один прогон: один снимок инбаунда для сравнения, затем
// точечные записи срока для клиентов, у которых он разошёлся с
// хранилищем. Отсутствующие в панели и нечитаемые записи попадают в
// отчёт, но не прерывают прогон.
func (j *Job) Run(ctx context.Context, now time.Time) (Stats, error) {
	const op = "reconcile.Run"
	var stats Stats

	users, err := j.repo.ListActiveProvisioned(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	if len(users) == 0 {
		return stats, nil
	}

	snap, err := j.reader.GetInbound(ctx, j.cfg.InboundID)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	settings, err := snap.ParseSettings()
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}

	remote := make(map[string]*panel.ClientRecord, len(settings.Clients))
	for i := range settings.Clients {
		remote[settings.Clients[i].Email] = &settings.Clients[i]
	}

	for _, user := range users {
		var descriptor models.ProfileDescriptor
		if err := json.Unmarshal([]byte(*user.ProfileBlob), &descriptor); err != nil {
			stats.Skipped++
			metrics.ReconcileResults.WithLabelValues("skipped").Inc()
			j.log.Error("unparseable profile blob, skipping",
				slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
			continue
		}

		email := panel.ClientEmail(user.TelegramID)
		record, ok := remote[email]
		if !ok {
			stats.MissingRemote++
			metrics.ReconcileResults.WithLabelValues("missing").Inc()
			j.log.Warn("client present in store but missing in panel",
				slog.Int64("telegram_id", user.TelegramID),
				slog.String("email", email))
			continue
		}

		wantMs := user.SubscriptionEnd.UnixMilli()
		if record.ExpiryTime == wantMs {
			continue
		}

		if err := j.writer.SetClientExpiry(ctx, j.cfg.InboundID, email, wantMs); err != nil {
			j.log.Error("push expiry failed",
				slog.Int64("telegram_id", user.TelegramID), sl.Err(err))
			continue
		}
		stats.Updated++
		metrics.ReconcileResults.WithLabelValues("updated").Inc()
		j.log.Info("expiry pushed to panel",
			slog.Int64("telegram_id", user.TelegramID),
			slog.Int64("expiry_ms", wantMs))
	}

	j.log.Info("reconciliation finished",
		slog.Int("updated", stats.Updated),
		slog.Int("missing_remote", stats.MissingRemote),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

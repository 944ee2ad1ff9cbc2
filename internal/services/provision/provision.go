// Package provision отвечает за выдачу профиля панели пользователю:
// ровно один удалённый клиент и один сохранённый дескриптор на
// пользователя, сколько бы раз и насколько конкурентно выдачу ни запросили.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/kmutex"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// PanelAdapter описывает нужную часть адаптера панели.
type PanelAdapter interface {
	CreateClient(ctx context.Context, inboundID int, email string, limitIP int) (*models.ProfileDescriptor, error)
}

// ProfileRepository описывает методы хранилища для работы с профилем.
type ProfileRepository interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	SaveProfile(ctx context.Context, telegramID int64, profileBlob, panelClientID string) error
	ClearProfile(ctx context.Context, telegramID int64) error
}

// Service реализует выдачу профилей.
type Service struct {
	repo  ProfileRepository
	panel PanelAdapter
	locks *kmutex.KMutex
	cfg   config.Panel
	log   *slog.Logger
}

// New создаёт сервис выдачи профилей.
func New(repo ProfileRepository, panelAdapter PanelAdapter, cfg config.Panel, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		panel: panelAdapter,
		locks: kmutex.New(),
		cfg:   cfg,
		log:   log,
	}
}

func provisionKey(telegramID int64) string {
	return fmt.Sprintf("provision:%d", telegramID)
}

// EnsureProvisioned возвращает дескриптор профиля пользователя, создавая
// клиента в панели при первом обращении. Повторный вызов возвращает
// сохранённый дескриптор без похода в панель. Конкурентные вызовы для
// одного пользователя сериализуются замком по ключу, а хранилище держит
// второй рубеж: SaveProfile отказывает второму писателю.
// Запись в хранилище происходит только после подтверждённой мутации панели.
func (s *Service) EnsureProvisioned(ctx context.Context, telegramID int64) (*models.ProfileDescriptor, error) {
	const op = "provision.EnsureProvisioned"

	var descriptor *models.ProfileDescriptor
	err := s.locks.WithLock(provisionKey(telegramID), func() error {
		user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if user.ProfileBlob != nil {
			var stored models.ProfileDescriptor
			if err := json.Unmarshal([]byte(*user.ProfileBlob), &stored); err == nil {
				descriptor = &stored
				return nil
			}
			// Нечитаемый blob: считаем пользователя невыданным и
			// перевыдаём. Метка детерминированная, панель вернёт
			// существующего клиента, а не дубликат.
			s.log.Error("stored profile blob is unparseable, reprovisioning",
				slog.Int64("telegram_id", telegramID))
			if err := s.repo.ClearProfile(ctx, telegramID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		created, err := s.panel.CreateClient(ctx, s.cfg.InboundID,
			panel.ClientEmail(telegramID), user.DeviceLimit)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		blob, err := json.Marshal(created)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := s.repo.SaveProfile(ctx, telegramID, string(blob), created.ClientID); err != nil {
			if errors.Is(err, repository.ErrAlreadyProvisioned) {
				// Конкурентный писатель успел первым, его результат и отдаём.
				s.log.Warn("profile saved by concurrent caller",
					slog.Int64("telegram_id", telegramID))
				user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
				if err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				if user.ProfileBlob == nil {
					return fmt.Errorf("%s: profile vanished after concurrent save", op)
				}
				var stored models.ProfileDescriptor
				if err := json.Unmarshal([]byte(*user.ProfileBlob), &stored); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
				descriptor = &stored
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		s.log.Info("provisioned panel client",
			slog.Int64("telegram_id", telegramID),
			slog.String("client_id", created.ClientID))
		descriptor = created
		return nil
	})
	if err != nil {
		s.log.Error("provisioning failed",
			slog.Int64("telegram_id", telegramID), sl.Err(err))
		return nil, err
	}
	return descriptor, nil
}

// ConnectionURI возвращает ссылку подключения для пользователя,
// выдавая профиль при необходимости.
func (s *Service) ConnectionURI(ctx context.Context, telegramID int64) (string, error) {
	descriptor, err := s.EnsureProvisioned(ctx, telegramID)
	if err != nil {
		return "", err
	}
	return BuildVlessURI(s.cfg.Host, descriptor), nil
}

// BuildVlessURI собирает ссылку подключения из дескриптора. Чистая
// функция: без сети и побочных эффектов, одинаковый вход - одинаковый
// выход. spx экранируется, иначе ? и & внутри ломают разбор ссылки
// клиентом. Схема у хоста отрезается: клиентские приложения ждут голый
// адрес.
func BuildVlessURI(host string, d *models.ProfileDescriptor) string {
	fragment := d.Email
	if d.Remark != "" {
		fragment = d.Remark + "-" + d.Email
	}

	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")

	return fmt.Sprintf(
		"vless://%s@%s:%d?type=tcp&security=%s&pbk=%s&fp=%s&sni=%s&sid=%s&spx=%s#%s",
		d.ClientID, host, d.Port, d.Security,
		d.PublicKey, d.Fingerprint, d.SNI, d.ShortID,
		url.QueryEscape(d.SpiderX), fragment)
}

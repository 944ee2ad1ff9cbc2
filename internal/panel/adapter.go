package panel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/kmutex"
	"github.com/magabrotheeeer/vpn-access-manager/internal/models"
)

// InboundClient - нижний уровень: чтение и полная замена инбаунда.
type InboundClient interface {
	GetInbound(ctx context.Context, inboundID int) (*InboundSnapshot, error)
	UpdateInbound(ctx context.Context, inboundID int, snap *InboundSnapshot) error
	ClientTraffic(ctx context.Context, email string) (TrafficStats, error)
	Onlines(ctx context.Context) ([]string, error)
}

// Adapter предоставляет операции уровня клиента поверх цельного инбаунда.
// Инвариант: на один id инбаунда - не больше одного цикла
// read-modify-write одновременно; конкурирующие мутации встают в очередь
// на полосе kmutex, иначе вторая replace молча откатила бы первую.
// Операции только на чтение полосу не занимают.
type Adapter struct {
	client InboundClient
	lanes  *kmutex.KMutex
	cfg    config.Panel
	log    *slog.Logger
}

// NewAdapter создаёт адаптер над клиентом панели.
func NewAdapter(client InboundClient, cfg config.Panel, log *slog.Logger) *Adapter {
	return &Adapter{
		client: client,
		lanes:  kmutex.New(),
		cfg:    cfg,
		log:    log,
	}
}

// ClientEmail - детерминированная метка клиента для пользователя.
// Чистая функция от идентификатора: повторная выдача профиля после сбоя
// воссоздаёт ту же метку, а не дубликат.
func ClientEmail(telegramID int64) string {
	return "user_" + strconv.FormatInt(telegramID, 10)
}

func laneKey(inboundID int) string {
	return "inbound:" + strconv.Itoa(inboundID)
}

// mutate выполняет один сериализованный цикл read-modify-write.
// fn получает распакованные settings и возвращает признак, что replace нужен.
func (a *Adapter) mutate(ctx context.Context, op string, inboundID int,
	fn func(snap *InboundSnapshot, settings *Settings) (bool, error)) error {
	return a.lanes.WithLock(laneKey(inboundID), func() error {
		snap, err := a.client.GetInbound(ctx, inboundID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		settings, err := snap.ParseSettings()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		changed, err := fn(snap, settings)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !changed {
			return nil
		}

		if err := snap.SetSettings(settings); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := a.client.UpdateInbound(ctx, inboundID, snap); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}

// CreateClient добавляет клиента с меткой email в инбаунд и возвращает
// дескриптор профиля. limitIP ограничивает число одновременных устройств
// клиента (0 - без ограничения). Перед вставкой ищет клиента по метке:
// повторный вызов после ложноотрицательного таймаута не создаёт дубликата.
func (a *Adapter) CreateClient(ctx context.Context, inboundID int, email string, limitIP int) (*models.ProfileDescriptor, error) {
	const op = "panel.CreateClient"

	var descriptor *models.ProfileDescriptor
	err := a.mutate(ctx, op, inboundID, func(snap *InboundSnapshot, settings *Settings) (bool, error) {
		if existing := settings.FindClient(email); existing != nil {
			a.log.Info("panel client already exists, reusing",
				slog.String("email", email), slog.String("client_id", existing.ID))
			descriptor = a.describe(existing, snap)
			return false, nil
		}

		record := ClientRecord{
			ID:          uuid.NewString(),
			Flow:        "",
			Email:       email,
			LimitIP:     limitIP,
			Enable:      true,
			Fingerprint: a.cfg.RealityFingerprint,
			PublicKey:   a.cfg.RealityPublicKey,
			ShortID:     a.cfg.RealityShortID,
			SpiderX:     a.cfg.RealitySpiderX,
		}
		settings.Clients = append(settings.Clients, record)
		descriptor = a.describe(&record, snap)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return descriptor, nil
}

func (a *Adapter) describe(record *ClientRecord, snap *InboundSnapshot) *models.ProfileDescriptor {
	return &models.ProfileDescriptor{
		ClientID:    record.ID,
		Email:       record.Email,
		Port:        snap.Port,
		Security:    "reality",
		Remark:      snap.Remark,
		SNI:         a.cfg.RealitySNI,
		PublicKey:   a.cfg.RealityPublicKey,
		Fingerprint: a.cfg.RealityFingerprint,
		ShortID:     a.cfg.RealityShortID,
		SpiderX:     a.cfg.RealitySpiderX,
	}
}

// DeleteClientByEmail удаляет клиента с данной меткой.
func (a *Adapter) DeleteClientByEmail(ctx context.Context, inboundID int, email string) error {
	const op = "panel.DeleteClientByEmail"

	return a.mutate(ctx, op, inboundID, func(_ *InboundSnapshot, settings *Settings) (bool, error) {
		kept := settings.Clients[:0]
		for _, c := range settings.Clients {
			if c.Email != email {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(settings.Clients) {
			return false, ErrClientNotFound
		}
		settings.Clients = kept
		return true, nil
	})
}

// SetClientEnabled включает или выключает клиента, не трогая его учётку.
func (a *Adapter) SetClientEnabled(ctx context.Context, inboundID int, email string, enabled bool) error {
	const op = "panel.SetClientEnabled"

	return a.mutate(ctx, op, inboundID, func(_ *InboundSnapshot, settings *Settings) (bool, error) {
		record := settings.FindClient(email)
		if record == nil {
			return false, ErrClientNotFound
		}
		if record.Enable == enabled {
			return false, nil
		}
		record.Enable = enabled
		return true, nil
	})
}

// SetClientExpiry выставляет срок действия клиента в unix-миллисекундах.
func (a *Adapter) SetClientExpiry(ctx context.Context, inboundID int, email string, expiryMs int64) error {
	const op = "panel.SetClientExpiry"

	return a.mutate(ctx, op, inboundID, func(_ *InboundSnapshot, settings *Settings) (bool, error) {
		record := settings.FindClient(email)
		if record == nil {
			return false, ErrClientNotFound
		}
		if record.ExpiryTime == expiryMs {
			return false, nil
		}
		record.ExpiryTime = expiryMs
		return true, nil
	})
}

// ClientTraffic - проброс чтения счётчиков, без полосы.
func (a *Adapter) ClientTraffic(ctx context.Context, email string) (TrafficStats, error) {
	return a.client.ClientTraffic(ctx, email)
}

// Onlines - проброс чтения множества онлайн-клиентов, без полосы.
func (a *Adapter) Onlines(ctx context.Context) ([]string, error) {
	return a.client.Onlines(ctx)
}

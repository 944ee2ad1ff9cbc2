// Package accessmanager собирает HTTP-сервис управления доступом:
// хранилище с миграциями, кэш, брокер событий, клиент панели и поверх
// них - сервисы и маршруты. Фоновый обход подписок живёт в том же
// процессе и останавливается вместе с сервером.
package accessmanager

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-access-manager/internal/cache"
	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-access-manager/internal/migrations"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
	"github.com/magabrotheeeer/vpn-access-manager/internal/paymentprovider"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/provision"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// App инкапсулирует собранный сервис и его зависимости.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	amqpConn  *amqp.Connection
	lifecycle *lifecycle.Service
	sweepTick time.Duration
}

// New собирает приложение из конфига.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.Connect(cfg.RabbitMQURL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	amqpChannel, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, err
	}
	events := rabbitmq.NewPublisher(amqpChannel, rabbitmq.NotificationsExchange)

	panelClient, err := panel.NewClient(cfg.Panel, logger)
	if err != nil {
		return nil, err
	}
	panelAdapter := panel.NewAdapter(panelClient, cfg.Panel, logger)

	providerClient := paymentprovider.NewClient(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey)
	methodHolder := config.NewPaymentMethodHolder(cfg.Subscription.PaymentMethod)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)

	provisionService := provision.New(db, panelAdapter, cfg.Panel, logger)
	lifecycleService := lifecycle.New(db, panelAdapter, events, providerClient,
		cfg.Subscription, cfg.Panel, cfg.YooKassa.ReturnURL, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteDeps{
		Lifecycle:    lifecycleService,
		Provision:    provisionService,
		Panel:        panelAdapter,
		Repo:         db,
		Cache:        cacheRedis,
		MethodHolder: methodHolder,
		JWTMaker:     jwtMaker,
		WebhookKey:   cfg.YooKassa.WebhookSecret,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		logger:    logger,
		db:        db,
		amqpConn:  amqpConn,
		lifecycle: lifecycleService,
		sweepTick: cfg.Subscription.SweepInterval,
	}, nil
}

// Run запускает сервер и фоновый обход; блокируется до отмены контекста
// или фатальной ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.lifecycle.RunSweeper(sweepCtx, a.sweepTick)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.amqpConn.Close()
		_ = a.db.DB.Close()
		return err
	}
}

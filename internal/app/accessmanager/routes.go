// Package accessmanager предоставляет маршруты для основного приложения.
package accessmanager

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/vpn-access-manager/internal/cache"
	"github.com/magabrotheeeer/vpn-access-manager/internal/config"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/access"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/addbalance"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/paymentmethod"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/promocreate"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/promoinfo"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/promolist"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/admin/revoke"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/connection"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/payment/paybalance"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/promo/redeem"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/register"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/handlers/stats"
	"github.com/magabrotheeeer/vpn-access-manager/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-access-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-access-manager/internal/panel"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/lifecycle"
	"github.com/magabrotheeeer/vpn-access-manager/internal/services/provision"
	"github.com/magabrotheeeer/vpn-access-manager/internal/storage/repository"
)

// RouteDeps - зависимости маршрутов.
type RouteDeps struct {
	Lifecycle    *lifecycle.Service
	Provision    *provision.Service
	Panel        *panel.Adapter
	Repo         *repository.Storage
	Cache        *cache.Cache
	MethodHolder *config.PaymentMethodHolder
	JWTMaker     *jwt.MakerImpl
	WebhookKey   string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Пользовательские конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, 10, 30))
			r.Post("/users/register", register.New(logger, deps.Lifecycle).ServeHTTP)
			r.Get("/access/{telegramID}", access.New(logger, deps.Lifecycle).ServeHTTP)
			r.Get("/users/{telegramID}/stats", stats.New(logger, deps.Panel, deps.Cache).ServeHTTP)
			r.Get("/users/{telegramID}/connection", connection.New(logger, deps.Provision).ServeHTTP)
			r.Post("/promo/redeem", redeem.New(logger, deps.Lifecycle).ServeHTTP)
			r.Post("/payments", paymentcreate.New(logger, deps.Lifecycle, deps.MethodHolder).ServeHTTP)
			r.Post("/payments/balance", paybalance.New(logger, deps.Lifecycle, deps.MethodHolder).ServeHTTP)
		})

		// Админская группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.JWTMaker, logger))
			r.Post("/admin/grant", grant.New(logger, deps.Lifecycle).ServeHTTP)
			r.Post("/admin/revoke", revoke.New(logger, deps.Lifecycle).ServeHTTP)
			r.Post("/admin/balance", addbalance.New(logger, deps.Repo).ServeHTTP)
			r.Post("/admin/promo", promocreate.New(logger, deps.Repo).ServeHTTP)
			r.Get("/admin/promo", promolist.New(logger, deps.Repo).ServeHTTP)
			r.Get("/admin/promo/{code}", promoinfo.New(logger, deps.Repo).ServeHTTP)
			r.Put("/admin/payment-method", paymentmethod.New(logger, deps.MethodHolder).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации, подпись проверяет сам обработчик)
		r.Post("/payments/webhook", paymentwebhook.New(logger, deps.Lifecycle, deps.WebhookKey).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

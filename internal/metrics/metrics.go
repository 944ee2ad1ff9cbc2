// Package metrics регистрирует счётчики Prometheus для панели,
// фонового обхода подписок и задачи сверки.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PanelRequests считает запросы к панели по операции и исходу.
	PanelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_requests_total",
		Help: "Requests to the 3x-ui panel by operation and outcome.",
	}, []string{"op", "outcome"})

	// SweepUsersExamined считает пользователей, рассмотренных обходом.
	SweepUsersExamined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_users_examined_total",
		Help: "Users examined by the subscription sweep.",
	})

	// SweepRevoked считает успешно отозванные доступы.
	SweepRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_access_revoked_total",
		Help: "Remote clients disabled after subscription expiry.",
	})

	// SweepFailures считает пользователей, обработка которых упала;
	// обход продолжает работу и попробует снова на следующем тике.
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_failures_total",
		Help: "Per-user sweep failures, retried on the next tick.",
	})

	// ReconcileResults считает исходы задачи сверки по категориям
	// updated, missing, skipped.
	ReconcileResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_results_total",
		Help: "Drift reconciliation results by category.",
	}, []string{"result"})
)

package rabbitmq

// QueueConfig связывает очередь с ключом маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает топологию очередей уведомлений:
// предупреждение об истечении подписки и сообщение об отзыве доступа.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.expiring", RoutingKey: "expiring"},
		{QueueName: "notification.revoked", RoutingKey: "revoked"},
	}
}

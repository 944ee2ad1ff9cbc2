package models

import "time"

// ExpiringNotification - событие "подписка истекает в ближайшие сутки".
// Публикуется не чаще одного раза на окно подписки (дебаунс notified_expiring).
type ExpiringNotification struct {
	TelegramID      int64     `json:"telegram_id"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}

// RevokedNotification - событие "доступ отозван после истечения подписки".
type RevokedNotification struct {
	TelegramID int64     `json:"telegram_id"`
	RevokedAt  time.Time `json:"revoked_at"`
}

// Package models содержит доменные структуры: пользователя с окном подписки,
// промокоды с журналом активаций и ожидающие платежи.
package models

import "time"

// User представляет подписчика сервиса.
//
// SubscriptionEnd == nil или дата в прошлом означает отсутствие права доступа.
// ProfileBlob хранит сериализованный дескриптор профиля панели и появляется
// один раз при выдаче профиля. EnabledInPanel зеркалирует последнее известное
// состояние клиента в панели и может временно расходиться с ним, пока
// отключение в пути.
type User struct {
	ID               int64
	TelegramID       int64 // Уникальный идентификатор на платформе
	FullName         string
	Username         string
	RegistrationDate time.Time
	SubscriptionEnd  *time.Time
	ProfileBlob      *string
	PanelClientID    *string // Идентификатор клиента в панели, продублирован из ProfileBlob
	EnabledInPanel   bool
	NotifiedExpiring bool // Дебаунс уведомления "скоро истекает"
	Balance          float64
	DeviceLimit      int
	IsAdmin          bool
}

// EntitlementSource перечисляет источники продления подписки.
type EntitlementSource string

const (
	SourcePayment  EntitlementSource = "payment"
	SourcePromo    EntitlementSource = "promo"
	SourceAdmin    EntitlementSource = "admin"
	SourceReferral EntitlementSource = "referral"
	SourceTrial    EntitlementSource = "trial"
	SourceBalance  EntitlementSource = "balance"
)

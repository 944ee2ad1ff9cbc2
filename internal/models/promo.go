package models

import "time"

// PromoCode описывает промокод, дающий месяцы подписки вне платёжного потока.
// Инвариант: CurrentUses <= MaxUses, счётчик растёт только в той же
// транзакции, что и запись активации.
type PromoCode struct {
	ID          int
	Code        string // Уникальный код
	Months      int
	MaxUses     int
	CurrentUses int
	IsActive    bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// PromoRedemption - запись журнала активаций, уникальная по паре
// (telegram_id, promocode_id). Создаётся один раз и никогда не меняется.
type PromoRedemption struct {
	ID          int
	TelegramID  int64
	PromoCodeID int
	UsedAt      time.Time
}

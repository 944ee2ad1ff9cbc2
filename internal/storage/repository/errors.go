package repository

import "errors"

// Типизированные отказы хранилища. Конфликтные исходы (повторная
// активация промокода, исчерпанный лимит) - это ожидаемые ответы,
// а не исключительные пути.
var (
	ErrUserNotFound        = errors.New("storage: user not found")
	ErrPromoNotFound       = errors.New("storage: promo code not found")
	ErrPromoInactive       = errors.New("storage: promo code inactive")
	ErrPromoExpired        = errors.New("storage: promo code expired")
	ErrPromoExhausted      = errors.New("storage: promo code exhausted")
	ErrPromoAlreadyUsed    = errors.New("storage: promo code already used by this user")
	ErrPromoDuplicate      = errors.New("storage: promo code already exists")
	ErrInsufficientBalance = errors.New("storage: insufficient balance")
	// ErrAlreadyProvisioned - второй конкурентный писатель попытался
	// сохранить профиль пользователю, у которого он уже есть.
	ErrAlreadyProvisioned = errors.New("storage: profile already provisioned")
)

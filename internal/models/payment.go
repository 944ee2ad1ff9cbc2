package models

import "time"

// PendingPayment связывает выставленный счёт платёжного провайдера
// с пользователем и количеством оплачиваемых месяцев. Запись живёт от
// выставления счёта до подтверждения оплаты и закрывается атомарно
// вместе с продлением подписки - это и есть защита от двойного зачисления.
type PendingPayment struct {
	PaymentID         string // Идентификатор платежа у провайдера
	TelegramID        int64
	Months            int
	InvoiceMessageRef int64 // Ссылка на исходящее сообщение со счётом
	CreatedAt         time.Time
}

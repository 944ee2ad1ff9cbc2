package config

import "sync/atomic"

// PaymentMethod перечисляет допустимые значения переключателя оплаты.
const (
	PaymentMethodYooKassa = "yookassa"
	PaymentMethodBalance  = "balance"
	PaymentMethodBoth     = "both"
)

// MethodValue версионированное значение переключателя метода оплаты.
type MethodValue struct {
	Method  string
	Version uint64
}

// PaymentMethodHolder хранит текущий метод оплаты и отдаёт его атомарно.
// Заменяет глобальную мутабельную переменную: читатели всегда видят
// согласованную пару (значение, версия).
type PaymentMethodHolder struct {
	v atomic.Value
}

// NewPaymentMethodHolder создаёт холдер с начальным значением из конфига.
// Неизвестное значение заменяется на "both".
func NewPaymentMethodHolder(initial string) *PaymentMethodHolder {
	h := &PaymentMethodHolder{}
	h.v.Store(MethodValue{Method: normalizeMethod(initial), Version: 1})
	return h
}

// Get возвращает текущее значение переключателя.
func (h *PaymentMethodHolder) Get() MethodValue {
	return h.v.Load().(MethodValue)
}

// Set обновляет метод оплаты, увеличивая версию. Возвращает false,
// если значение не входит в список допустимых.
func (h *PaymentMethodHolder) Set(method string) bool {
	switch method {
	case PaymentMethodYooKassa, PaymentMethodBalance, PaymentMethodBoth:
	default:
		return false
	}
	cur := h.Get()
	h.v.Store(MethodValue{Method: method, Version: cur.Version + 1})
	return true
}

func normalizeMethod(m string) string {
	switch m {
	case PaymentMethodYooKassa, PaymentMethodBalance, PaymentMethodBoth:
		return m
	default:
		return PaymentMethodBoth
	}
}

package panel

import "errors"

// Ошибки панели по таксономии: AuthError провоцирует один прозрачный
// повторный логин, TransportError переповторяется планировщиком вызывающей
// стороны, NotFound фатален для конкретной операции.
var (
	// ErrAuth - неверные учётные данные или истёкшая сессия панели.
	ErrAuth = errors.New("panel: authentication failed")
	// ErrTransport - сеть или таймаут; никогда не трактуется как успех.
	ErrTransport = errors.New("panel: transport failure")
	// ErrNotFound - инбаунд отсутствует на панели.
	ErrNotFound = errors.New("panel: inbound not found")
	// ErrClientNotFound - клиента с такой меткой нет в инбаунде.
	ErrClientNotFound = errors.New("panel: client not found")
)

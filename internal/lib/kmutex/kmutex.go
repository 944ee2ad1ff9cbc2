// Package kmutex реализует набор мьютексов, адресуемых ключом.
// Используется для сериализации мутаций панели по id инбаунда
// (не больше одного read-modify-write цикла одновременно) и для
// пер-пользовательских блокировок при выдаче профиля.
package kmutex

import "sync"

// KMutex хранит по одному мьютексу на ключ. Конкурентные вызовы
// Lock с одним ключом выстраиваются в очередь, разные ключи
// не мешают друг другу.
type KMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New создает пустой набор мьютексов.
func New() *KMutex {
	return &KMutex{locks: make(map[string]*entry)}
}

// Lock блокирует мьютекс ключа key, создавая его при первом обращении.
func (k *KMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock освобождает мьютекс ключа key. Запись удаляется из набора,
// когда последний владелец отпустил её, чтобы набор не рос бесконечно.
func (k *KMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("kmutex: unlock of unknown key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// WithLock выполняет fn под мьютексом ключа key.
func (k *KMutex) WithLock(key string, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

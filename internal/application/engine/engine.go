package engine

import (
	"slices"
	"sync"
	"time"
)

// Claves de bloqueo por entidad. El orden de adquisición es siempre el orden
// lexicográfico de las claves, así dos operaciones nunca se bloquean en cruz.
const (
	VaultKey   = "vault"
	ReserveKey = "reserve"
	BreakerKey = "breaker"
)

func ERTKey(id string) string         { return "ert:" + id }
func DepositorKey(addr string) string { return "depositor:" + addr }
func ExecutorKey(addr string) string  { return "executor:" + addr }

// Locker serializa operaciones por entidad. Los locks se toman antes de abrir
// la transacción de storage y se sueltan después del commit.
//
// Una operación puede tomar primero la clave ert: de una ERT existente y después
// las compartidas (vault, reserve, breaker, executor:); nunca al revés.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker crea un Locker vacío.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock adquiere todas las claves en orden y devuelve la función que las libera.
func (l *Locker) Lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		kl := l.acquire(k)
		kl.mu.Lock()
		held = append(held, kl)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.release(keys[i])
			}
		})
	}
}

func (l *Locker) acquire(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Clock abstrae el reloj para poder fijar el tiempo en tests.
type Clock interface {
	Now() time.Time
}

// SystemClock devuelve la hora actual en UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock devuelve siempre el instante configurado hasta que se mueva.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance mueve el reloj d hacia adelante.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set fija el reloj en t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

package cache

// cache.go — slots de una sola entrada con TTL.
//
// Cada slot guarda únicamente el último valor calculado junto con la key para la
// que se calculó (normalmente el market id). Una lectura es hit solo si la key
// coincide y la edad es < TTL; si el mercado activo cambió, la key ya no coincide
// y el valor anterior no se sirve aunque siga dentro del TTL.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Clock permite simular el paso del tiempo en tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock es el reloj real.
var SystemClock Clock = systemClock{}

// Observer recibe hits y misses por slot. Lo implementa el adaptador de métricas.
type Observer interface {
	CacheHit(slot string)
	CacheMiss(slot string)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)  {}
func (nopObserver) CacheMiss(string) {}

// Entry es el contenido de un slot.
type Entry[T any] struct {
	Value    T
	Key      string
	StoredAt time.Time
}

// Slot es una caché de una sola entrada. Seguro para uso concurrente.
type Slot[T any] struct {
	name     string
	ttl      time.Duration
	clock    Clock
	observer Observer

	mu    sync.Mutex
	entry *Entry[T]
	group singleflight.Group
}

// NewSlot crea un slot con el TTL dado. clock y observer pueden ser nil.
func NewSlot[T any](name string, ttl time.Duration, clock Clock, observer Observer) *Slot[T] {
	if clock == nil {
		clock = SystemClock
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Slot[T]{name: name, ttl: ttl, clock: clock, observer: observer}
}

// Get devuelve la entrada si existe, su key coincide y no expiró.
// Una key distinta invalida la entrada en el acto.
func (s *Slot[T]) Get(key string) (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == nil {
		return Entry[T]{}, false
	}
	if s.entry.Key != key {
		s.entry = nil
		return Entry[T]{}, false
	}
	if s.clock.Now().Sub(s.entry.StoredAt) >= s.ttl {
		return Entry[T]{}, false
	}
	return *s.entry, true
}

// Set guarda value ligado a key, reemplazando lo anterior.
func (s *Slot[T]) Set(key string, value T) {
	s.store(key, value)
}

func (s *Slot[T]) store(key string, value T) Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry[T]{Value: value, Key: key, StoredAt: s.clock.Now()}
	s.entry = &e
	return e
}

// Invalidate vacía el slot.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
}

// GetOrLoad devuelve el valor cacheado para key o lo recalcula con load.
// Las llamadas concurrentes para la misma key comparten una única ejecución de load.
// load corre sin la cancelación del llamante que lo disparó, porque su resultado
// lo comparten otras llamadas; cada llamante deja de esperar cuando vence su propio ctx.
// Si load falla no se guarda nada.
func (s *Slot[T]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (Entry[T], error) {
	if e, ok := s.Get(key); ok {
		s.observer.CacheHit(s.name)
		return e, nil
	}
	s.observer.CacheMiss(s.name)

	ch := s.group.DoChan(key, func() (any, error) {
		if e, ok := s.Get(key); ok {
			return e, nil
		}
		value, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		return s.store(key, value), nil
	})

	select {
	case <-ctx.Done():
		return Entry[T]{}, fmt.Errorf("cache.GetOrLoad: %s: %w", s.name, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return Entry[T]{}, r.Err
		}
		return r.Val.(Entry[T]), nil
	}
}

// Package authstore is a generic in-memory key/value store whose entries
// expire a fixed TTL after they were last set.
package authstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 24 * time.Hour

type Record[T any] struct {
	Token     string
	Payload   T
	ExpiresAt time.Time
}

type Store[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]Record[T]
}

type Option func(*config)

type config struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

func New[T any](ttl time.Duration, opts ...Option) *Store[T] {
	cfg := config{now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[T]{
		ttl:     ttl,
		now:     cfg.now,
		records: make(map[string]Record[T]),
	}
}

// Get returns the payload only while the record is unexpired. An expired
// record is evicted on access.
func (s *Store[T]) Get(token string) (T, bool) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[token]
	if !ok {
		return zero, false
	}
	if !s.now().Before(r.ExpiresAt) {
		delete(s.records, token)
		return zero, false
	}
	return r.Payload, true
}

// Set stores payload under token, replacing any previous record.
func (s *Store[T]) Set(token string, payload T) Record[T] {
	r := Record[T]{Token: token, Payload: payload}
	s.mu.Lock()
	r.ExpiresAt = s.now().Add(s.ttl)
	s.records[token] = r
	s.mu.Unlock()
	return r
}

func (s *Store[T]) Destroy(token string) {
	s.mu.Lock()
	delete(s.records, token)
	s.mu.Unlock()
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep evicts every expired record and reports how many were removed.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	snapshot := maps.Clone(s.records)
	s.mu.Unlock()

	now := s.now()
	var expired []string
	for token, r := range snapshot {
		if !now.Before(r.ExpiresAt) {
			expired = append(expired, token)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, token := range expired {
		// The record may have been refreshed since the snapshot.
		if r, ok := s.records[token]; ok && !now.Before(r.ExpiresAt) {
			delete(s.records, token)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Store[T]) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				metrics.AuthSessionsEvicted.Add(float64(n))
				log.Info().Str("module", "authstore").Int("evicted", n).Msg("swept expired records")
			}
		}
	}
}

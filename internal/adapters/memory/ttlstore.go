package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	val     []byte
	expires time.Time
}

// TTLStore keeps JSON-encoded values until their expiry. Expired entries are
// invisible to Get and removed by SweepExpired.
type TTLStore struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

func NewTTLStore() *TTLStore {
	return &TTLStore{m: make(map[string]entry), now: time.Now}
}

// WithClock replaces the time source.
func (s *TTLStore) WithClock(now func() time.Time) *TTLStore {
	s.now = now
	return s
}

func (s *TTLStore) Get(_ context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	e, ok := s.m[key]
	s.mu.Unlock()
	if !ok || !s.now().Before(e.expires) {
		return false, nil
	}
	return true, json.Unmarshal(e.val, dst)
}

func (s *TTLStore) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.m[key] = entry{val: b, expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *TTLStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *TTLStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	var n int64
	if ok && now.Before(e.expires) {
		if err := json.Unmarshal(e.val, &n); err != nil {
			return 0, err
		}
	} else {
		e.expires = now.Add(ttl)
	}
	n++
	e.val = []byte(strconv.FormatInt(n, 10))
	s.m[key] = e
	return n, nil
}

func (s *TTLStore) SweepExpired(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if !now.Before(e.expires) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

// Len counts stored entries, expired ones included.
func (s *TTLStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

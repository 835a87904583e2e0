// Package memory holds single-process backends for development and tests.
// Nothing here is shared between API instances.
package memory

import (
	"context"
	"sync"

	"clarus_vitae/internal/domain"
)

const watchBuffer = 8

type watch struct {
	origin string
	ch     chan domain.StorageEvent
}

type SessionStore struct {
	mu       sync.Mutex
	data     map[string]string // session\x00key -> value
	watchers map[string]map[*watch]struct{}
	failSet  error
	failGet  error
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		data:     make(map[string]string),
		watchers: make(map[string]map[*watch]struct{}),
	}
}

func (s *SessionStore) Open(sessionID, contextID string) domain.SessionHandle {
	return &session{store: s, sid: sessionID, cid: contextID}
}

// FailWrites makes every Set return err until called with nil.
func (s *SessionStore) FailWrites(err error) {
	s.mu.Lock()
	s.failSet = err
	s.mu.Unlock()
}

// FailReads makes every Get return err until called with nil.
func (s *SessionStore) FailReads(err error) {
	s.mu.Lock()
	s.failGet = err
	s.mu.Unlock()
}

// Put writes a raw value as if another context had stored it.
func (s *SessionStore) Put(sessionID, key, value, origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(sessionID, key, value, origin)
}

// Drop removes a session's key, as when the browser session ends.
func (s *SessionStore) Drop(sessionID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := skey(sessionID, key)
	delete(s.data, k)
	s.notifyLocked(k, domain.StorageEvent{Key: key}, "")
}

func (s *SessionStore) putLocked(sessionID, key, value, origin string) {
	k := skey(sessionID, key)
	s.data[k] = value
	v := value
	s.notifyLocked(k, domain.StorageEvent{Key: key, Value: &v, Origin: origin}, origin)
}

// notifyLocked must run under s.mu so a watcher cannot close mid-send.
func (s *SessionStore) notifyLocked(k string, ev domain.StorageEvent, origin string) {
	for w := range s.watchers[k] {
		if origin != "" && w.origin == origin {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			// buffer full: a queued event already forces a re-read
		}
	}
}

func skey(sessionID, key string) string { return sessionID + "\x00" + key }

type session struct {
	store *SessionStore
	sid   string
	cid   string
}

func (h *session) Get(_ context.Context, key string) (string, bool, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.store.failGet != nil {
		return "", false, h.store.failGet
	}
	v, ok := h.store.data[skey(h.sid, key)]
	return v, ok, nil
}

func (h *session) Set(_ context.Context, key, value string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.store.failSet != nil {
		return h.store.failSet
	}
	h.store.putLocked(h.sid, key, value, h.cid)
	return nil
}

func (h *session) Watch(ctx context.Context, key string) (<-chan domain.StorageEvent, error) {
	w := &watch{origin: h.cid, ch: make(chan domain.StorageEvent, watchBuffer)}
	k := skey(h.sid, key)

	s := h.store
	s.mu.Lock()
	if s.watchers[k] == nil {
		s.watchers[k] = make(map[*watch]struct{})
	}
	s.watchers[k][w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[k], w)
		if len(s.watchers[k]) == 0 {
			delete(s.watchers, k)
		}
		close(w.ch)
		s.mu.Unlock()
	}()
	return w.ch, nil
}

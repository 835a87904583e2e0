package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

// ComparisonService hands out per-context comparison stores that share one
// session backend and one same-context bus.
type ComparisonService struct {
	backend   domain.SessionBackend
	bus       domain.ContextBus
	shareBase string
	events    func(event string)
	now       func() time.Time
}

func NewComparisonService(b domain.SessionBackend, bus domain.ContextBus, shareBase string) *ComparisonService {
	if bus == nil {
		bus = NewLocalBus()
	}
	return &ComparisonService{backend: b, bus: bus, shareBase: shareBase, events: func(string) {}, now: time.Now}
}

// WithEvents installs a hook receiving add|duplicate|full|remove|clear|persist_error|parse_error|read_error.
func (s *ComparisonService) WithEvents(fn func(event string)) *ComparisonService {
	if fn != nil {
		s.events = fn
	}
	return s
}

func (s *ComparisonService) WithClock(now func() time.Time) *ComparisonService {
	if now != nil {
		s.now = now
	}
	return s
}

// Store returns the comparison store of one browsing context of a session.
func (s *ComparisonService) Store(sessionID, contextID string) *ComparisonStore {
	h := s.backend.Open(sessionID, contextID)
	return &ComparisonStore{
		storage:   h,
		watcher:   h,
		bus:       s.bus,
		topic:     sessionID + "/" + contextID,
		shareBase: s.shareBase,
		events:    s.events,
		now:       s.now,
		session:   sessionID,
	}
}

// ShareURLFor builds the shareable link for items without touching storage.
func (s *ComparisonService) ShareURLFor(items []domain.ComparisonItem) string {
	return BuildShareableURL(s.shareBase, items)
}

// Watch starts a reactive view of the session's list for one context.
func (s *ComparisonService) Watch(ctx context.Context, sessionID, contextID string) *ComparisonWatcher {
	return NewComparisonWatcher(ctx, s.Store(sessionID, contextID))
}

// ComparisonStore is a bounded, insertion-ordered set of compared properties
// persisted in session storage. It never returns errors: unreadable state reads
// as empty and failed writes leave the prior state in place.
//
// There is no locking across contexts; two contexts writing at once may lose
// one of the writes.
type ComparisonStore struct {
	storage   domain.SessionStorage
	watcher   domain.StorageWatcher
	bus       domain.ContextBus
	topic     string
	shareBase string
	events    func(string)
	now       func() time.Time
	session   string

	mu   sync.Mutex
	list domain.ComparisonList
}

// Read loads the persisted list, falling back to empty on any failure.
func (s *ComparisonStore) Read(ctx context.Context) domain.ComparisonList {
	list, err := s.load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("session", s.session).Msg("comparison read failed")
	}
	s.mu.Lock()
	s.list = list.Clone()
	s.mu.Unlock()
	return list
}

// readForWrite loads the list a mutation starts from. ok is false when storage
// could not be read; the caller must then leave storage alone, since what is
// stored may be a valid list.
func (s *ComparisonStore) readForWrite(ctx context.Context, op string) (domain.ComparisonList, bool) {
	list, err := s.load(ctx)
	if err != nil {
		s.events("read_error")
		log.Warn().Err(err).Str("session", s.session).Str("op", op).Msg("comparison read failed, skipping write")
		return s.Current(), false
	}
	s.mu.Lock()
	s.list = list.Clone()
	s.mu.Unlock()
	return list, true
}

// load returns an error only when storage itself fails. Absent or unparsable
// state is the empty list.
func (s *ComparisonStore) load(ctx context.Context) (domain.ComparisonList, error) {
	empty := domain.ComparisonList{Items: []domain.ComparisonItem{}}

	raw, ok, err := s.storage.Get(ctx, domain.ComparisonStorageKey)
	if err != nil {
		return empty, err
	}
	if !ok || raw == "" {
		return empty, nil
	}
	var stored domain.ComparisonList
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.events("parse_error")
		log.Warn().Err(err).Str("session", s.session).Msg("comparison state unparsable, treating as empty")
		return empty, nil
	}
	return sanitize(stored), nil
}

// sanitize drops items without an id, duplicates, and anything past capacity.
func sanitize(in domain.ComparisonList) domain.ComparisonList {
	out := domain.ComparisonList{Items: make([]domain.ComparisonItem, 0, len(in.Items))}
	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.PropertyID == "" {
			continue
		}
		if _, dup := seen[it.PropertyID]; dup {
			continue
		}
		if len(out.Items) == domain.MaxComparisonItems {
			break
		}
		seen[it.PropertyID] = struct{}{}
		out.Items = append(out.Items, it)
	}
	return out
}

// Add appends a property. Adding an id already present, or adding to a full
// list, returns the current list unchanged.
func (s *ComparisonStore) Add(ctx context.Context, propertyID, propertySlug, propertyName string) domain.ComparisonList {
	cur, ok := s.readForWrite(ctx, "add")
	if !ok {
		return cur
	}
	if cur.Contains(propertyID) {
		s.events("duplicate")
		return cur
	}
	if cur.IsFull() {
		s.events("full")
		return cur
	}
	next := cur.Clone()
	next.Items = append(next.Items, domain.ComparisonItem{
		PropertyID:   propertyID,
		PropertySlug: propertySlug,
		PropertyName: propertyName,
		AddedAt:      s.now().UTC().Format(time.RFC3339Nano),
	})
	return s.commit(ctx, cur, next, "add")
}

// Remove filters out propertyID; remaining items keep their order.
func (s *ComparisonStore) Remove(ctx context.Context, propertyID string) domain.ComparisonList {
	cur, ok := s.readForWrite(ctx, "remove")
	if !ok {
		return cur
	}
	next := domain.ComparisonList{Items: make([]domain.ComparisonItem, 0, len(cur.Items))}
	for _, it := range cur.Items {
		if it.PropertyID != propertyID {
			next.Items = append(next.Items, it)
		}
	}
	return s.commit(ctx, cur, next, "remove")
}

func (s *ComparisonStore) Clear(ctx context.Context) domain.ComparisonList {
	cur, ok := s.readForWrite(ctx, "clear")
	if !ok {
		return cur
	}
	return s.commit(ctx, cur, domain.ComparisonList{Items: []domain.ComparisonItem{}}, "clear")
}

// Contains checks the last list this store read or wrote. No I/O.
func (s *ComparisonStore) Contains(propertyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Contains(propertyID)
}

// Current returns the last list this store read or wrote. No I/O.
func (s *ComparisonStore) Current() domain.ComparisonList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Clone()
}

// Subscribe signals after every successful write made through this context.
func (s *ComparisonStore) Subscribe() (<-chan struct{}, func()) {
	return s.bus.Subscribe(s.topic)
}

// ShareURL builds the shareable comparison link for the current list.
func (s *ComparisonStore) ShareURL() string {
	return BuildShareableURL(s.shareBase, s.Current().Items)
}

func (s *ComparisonStore) commit(ctx context.Context, prev, next domain.ComparisonList, event string) domain.ComparisonList {
	b, err := json.Marshal(next)
	if err == nil {
		err = s.storage.Set(ctx, domain.ComparisonStorageKey, string(b))
	}
	if err != nil {
		s.events("persist_error")
		log.Error().Err(err).Str("session", s.session).Str("op", event).Msg("comparison persist failed")
		return prev
	}

	s.mu.Lock()
	s.list = next.Clone()
	s.mu.Unlock()

	// other contexts hear the storage notification; this one needs its own signal
	s.bus.Publish(s.topic)
	s.events(event)
	return next
}

// ComparisonWatcher keeps a cached list fresh for one context. It listens to
// changes from other contexts and to writes made through this context, and
// re-reads the whole list on either signal.
type ComparisonWatcher struct {
	store   *ComparisonStore
	updates chan domain.ComparisonList
	done    chan struct{}

	mu      sync.RWMutex
	current domain.ComparisonList
}

func NewComparisonWatcher(ctx context.Context, store *ComparisonStore) *ComparisonWatcher {
	w := &ComparisonWatcher{
		store:   store,
		updates: make(chan domain.ComparisonList, 1),
		done:    make(chan struct{}),
	}

	native, err := store.watcher.Watch(ctx, domain.ComparisonStorageKey)
	if err != nil {
		// same-context updates still flow
		log.Warn().Err(err).Str("session", store.session).Msg("comparison watch unavailable")
		native = nil
	}
	local, unsub := store.Subscribe()

	w.current = store.Read(ctx)
	go w.run(ctx, native, local, unsub)
	return w
}

func (w *ComparisonWatcher) run(ctx context.Context, native <-chan domain.StorageEvent, local <-chan struct{}, unsub func()) {
	defer close(w.done)
	defer close(w.updates)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-native:
			if !ok {
				native = nil
				continue
			}
			w.refresh(ctx)
		case <-local:
			w.refresh(ctx)
		}
	}
}

func (w *ComparisonWatcher) refresh(ctx context.Context) {
	list := w.store.Read(ctx)
	w.mu.Lock()
	w.current = list
	w.mu.Unlock()

	// keep only the latest snapshot
	select {
	case <-w.updates:
	default:
	}
	w.updates <- list.Clone()
}

func (w *ComparisonWatcher) Current() domain.ComparisonList {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Clone()
}

// Updates yields refreshed lists; it closes when the watch context ends.
func (w *ComparisonWatcher) Updates() <-chan domain.ComparisonList { return w.updates }

// Done closes after the watcher has stopped.
func (w *ComparisonWatcher) Done() <-chan struct{} { return w.done }

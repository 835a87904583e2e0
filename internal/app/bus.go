package app

import "sync"

// LocalBus fans out same-context change signals. A signal carries no payload:
// subscribers re-read state, so a pending signal absorbs any that follow it.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe returns a signal channel for topic and a func that detaches it.
func (b *LocalBus) Subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan struct{}]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
		})
	}
}

func (b *LocalBus) Publish(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- struct{}{}:
		default: // already signalled
		}
	}
}

// Subscribers reports how many channels listen on topic.
func (b *LocalBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

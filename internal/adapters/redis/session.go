package redisad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

const watchBuffer = 8

// SessionStore keeps per-session values under "session:{sid}:{key}" with an
// idle TTL. Every write is announced on "session:{sid}:{key}:changed" so the
// other browsing contexts of the session can re-read.
type SessionStore struct {
	c   *redis.Client
	ttl time.Duration
}

func NewSessionStore(c *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{c: c, ttl: ttl}
}

func (s *SessionStore) Open(sessionID, contextID string) domain.SessionHandle {
	return &session{c: s.c, ttl: s.ttl, sid: sessionID, cid: contextID}
}

type notice struct {
	Origin string  `json:"origin"`
	Value  *string `json:"value"`
}

type session struct {
	c   *redis.Client
	ttl time.Duration
	sid string
	cid string
}

func (h *session) dataKey(key string) string { return fmt.Sprintf("session:%s:%s", h.sid, key) }
func (h *session) channel(key string) string { return h.dataKey(key) + ":changed" }

func (h *session) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := h.c.Get(ctx, h.dataKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value and publishes the change in one MULTI/EXEC.
func (h *session) Set(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(notice{Origin: h.cid, Value: &value})
	if err != nil {
		return err
	}
	_, err = h.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, h.dataKey(key), value, h.ttl)
		p.Publish(ctx, h.channel(key), payload)
		return nil
	})
	return err
}

// Watch subscribes before returning so no write issued afterwards is missed.
func (h *session) Watch(ctx context.Context, key string) (<-chan domain.StorageEvent, error) {
	ps := h.c.Subscribe(ctx, h.channel(key))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	out := make(chan domain.StorageEvent, watchBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var n notice
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					log.Warn().Err(err).Str("session", h.sid).Str("key", key).Msg("bad session notice")
					continue
				}
				if n.Origin == h.cid {
					continue
				}
				select {
				case out <- domain.StorageEvent{Key: key, Value: n.Value, Origin: n.Origin}:
				default:
					// a pending event already triggers a full re-read
				}
			}
		}
	}()
	return out, nil
}

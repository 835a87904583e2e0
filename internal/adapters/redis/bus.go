package redisad

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

const (
	busPrefix      = "ctxbus:"
	publishTimeout = 2 * time.Second
)

// ContextBus spreads same-context signals across API instances. Publish
// signals local subscribers at once and announces the topic on
// "ctxbus:{topic}"; announcements from other instances are replayed into the
// local bus.
type ContextBus struct {
	c     *redis.Client
	local domain.ContextBus
	id    string
	ps    *redis.PubSub
}

// NewContextBus subscribes before returning; the relay stops when ctx ends.
func NewContextBus(ctx context.Context, c *redis.Client, local domain.ContextBus) (*ContextBus, error) {
	ps := c.PSubscribe(ctx, busPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s*: %w", busPrefix, err)
	}
	b := &ContextBus{c: c, local: local, id: uuid.NewString(), ps: ps}
	go b.relay(ctx)
	return b, nil
}

func (b *ContextBus) Subscribe(topic string) (<-chan struct{}, func()) {
	return b.local.Subscribe(topic)
}

func (b *ContextBus) Publish(topic string) {
	b.local.Publish(topic)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.c.Publish(ctx, busPrefix+topic, b.id).Err(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("context signal publish failed")
	}
}

func (b *ContextBus) relay(ctx context.Context) {
	defer b.ps.Close()
	msgs := b.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if m.Payload == b.id {
				continue
			}
			b.local.Publish(strings.TrimPrefix(m.Channel, busPrefix))
		}
	}
}

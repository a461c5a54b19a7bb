/**
 * @description
 * PriceStreamHub multiplexes price-update events from Redis pub/sub to many
 * SSE clients without spawning a Redis subscription per HTTP request.
 * Subscribers register with their user id and only receive updates for
 * products they own.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type streamSubscriber struct {
	userID uuid.UUID
	ch     chan []byte
}

// PriceStreamHub fans price updates out to per-user SSE listeners
type PriceStreamHub struct {
	redis       *redis.Client
	channelName string

	mu          sync.RWMutex
	subscribers map[*streamSubscriber]struct{}
}

// NewPriceStreamHub starts a hub listening on channel
func NewPriceStreamHub(rdb *redis.Client, channel string) *PriceStreamHub {
	hub := &PriceStreamHub{
		redis:       rdb,
		channelName: channel,
		subscribers: make(map[*streamSubscriber]struct{}),
	}

	go hub.run()

	return hub
}

func (h *PriceStreamHub) run() {
	ctx := context.Background()

	for {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		ch := pubsub.Channel(redis.WithChannelSize(16384))

		for msg := range ch {
			h.broadcast([]byte(msg.Payload))
		}

		_ = pubsub.Close()

		// Avoid tight loop if Redis connection drops
		time.Sleep(time.Second)
	}
}

// broadcast routes an update to the subscribers owning the product
func (h *PriceStreamHub) broadcast(payload []byte) {
	var update PriceUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if sub.userID != update.UserID {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			// Subscriber is too slow; drop the oldest message to keep the hub responsive
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a listener for one user's updates and returns the
// channel plus a cleanup function.
func (h *PriceStreamHub) Subscribe(userID uuid.UUID) (<-chan []byte, func()) {
	sub := &streamSubscriber{
		userID: userID,
		ch:     make(chan []byte, 512),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[sub]; ok {
			delete(h.subscribers, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}

	return sub.ch, unsubscribe
}

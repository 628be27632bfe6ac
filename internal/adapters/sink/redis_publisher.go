// Package sink holds the destinations the export worker delivers finished
// sessions to.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var _ domain.CompletionSink = (*RedisPublisher)(nil)

const deliveredTTL = 7 * 24 * time.Hour

// RedisPublisher fans completion records out to the user's other devices over
// Redis pub/sub. A delivered marker per session keeps retries from publishing
// twice.
type RedisPublisher struct {
	client *redis.Client
	name   string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, name: "redis"}
}

func (p *RedisPublisher) Name() string {
	return p.name
}

func ChannelFor(userID string) string {
	return fmt.Sprintf("kanso:sessions:%s", userID)
}

func (p *RedisPublisher) deliveredKey(sessionID string) string {
	return fmt.Sprintf("kanso:delivered:%s:%s", p.name, sessionID)
}

func (p *RedisPublisher) Deliver(ctx context.Context, record domain.CompletionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.SessionID, err)
	}

	key := p.deliveredKey(record.SessionID)
	fresh, err := p.client.SetNX(ctx, key, 1, deliveredTTL).Result()
	if err != nil {
		return fmt.Errorf("mark %s delivered: %w", record.SessionID, err)
	}
	if !fresh {
		return nil
	}

	if err := p.client.Publish(ctx, ChannelFor(record.UserID), payload).Err(); err != nil {
		if delErr := p.client.Del(ctx, key).Err(); delErr != nil {
			log.Printf("[EXPORT] Failed to clear delivered marker %s: %v", key, delErr)
		}
		return fmt.Errorf("publish %s: %w", record.SessionID, err)
	}
	return nil
}

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agentpulse:history:"

// RedisStore keeps each agent's history in a capped Redis list so context
// survives restarts and is shared between replicas.
type RedisStore struct {
	client      redis.UniversalClient
	maxMessages int
	ttl         time.Duration
}

// NewRedisStore wraps client. ttl <= 0 disables expiry.
func NewRedisStore(client redis.UniversalClient, maxMessages int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, maxMessages: maxMessages, ttl: ttl}
}

func key(agentID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, agentID)
}

func (r *RedisStore) Recent(ctx context.Context, agentID int64, n int) ([]Message, error) {
	if n == 0 {
		return []Message{}, nil
	}
	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}
	raw, err := r.client.LRange(ctx, key(agentID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history of agent %d: %w", agentID, err)
	}
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *RedisStore) Append(ctx context.Context, agentID int64, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	k := key(agentID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, k, values...)
	if r.maxMessages > 0 {
		pipe.LTrim(ctx, k, -int64(r.maxMessages), -1)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, k, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history of agent %d: %w", agentID, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, agentID int64) error {
	if err := r.client.Del(ctx, key(agentID)).Err(); err != nil {
		return fmt.Errorf("clear history of agent %d: %w", agentID, err)
	}
	return nil
}

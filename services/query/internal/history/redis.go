// Package history keeps the turns of multi-turn query sessions.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docvault/pkg/domain"
)

const keyPrefix = "docvault:session:"

// RedisStore keeps each session as a capped Redis list of JSON turns with a TTL.
type RedisStore struct {
	client   redis.UniversalClient
	ttl      time.Duration
	maxTurns int
}

// NewRedisStore builds a history store. maxTurns caps the stored list.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, maxTurns int) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("history store requires a redis client")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &RedisStore{client: client, ttl: ttl, maxTurns: maxTurns}, nil
}

// Load returns up to limit most recent turns in chronological order.
func (s *RedisStore) Load(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 || limit > s.maxTurns {
		limit = s.maxTurns
	}
	raw, err := s.client.LRange(ctx, keyPrefix+sessionID, int64(-limit), -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	turns := make([]domain.Turn, 0, len(raw))
	for _, item := range raw {
		var turn domain.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Append adds a turn, trims the list and refreshes the TTL.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turn domain.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := keyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session history: %w", err)
	}
	return nil
}

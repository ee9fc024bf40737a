// Package store persists parsed session records.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/unicorntranscoder/unicornlb/session"
)

const keyPrefix = "unicornlb:session:"

// Redis keeps records in a Redis instance so restarts and sibling processes
// see the same sessions. Records carry no TTL; cleanup is explicit.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Set(ctx context.Context, sessionID string, rec *session.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+sessionID, b, 0).Err()
}

func (s *Redis) Get(ctx context.Context, sessionID string) (*session.Record, error) {
	b, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	var rec session.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &rec, nil
}

func (s *Redis) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyPrefix+sessionID).Err()
}

var _ session.Store = (*Redis)(nil)

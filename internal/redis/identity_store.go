package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neiandria/clinic-scheduling/internal/records"
)

// IdentityStore keeps the signed-in identity as a JSON value per session
// token, refreshed on every Load.
type IdentityStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdentityStore(client *redis.Client, ttl time.Duration) *IdentityStore {
	return &IdentityStore{client: client, ttl: ttl}
}

func identityKey(token string) string {
	return "session:identity:" + token
}

func (s *IdentityStore) Save(ctx context.Context, token string, id records.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := s.client.Set(ctx, identityKey(token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *IdentityStore) Load(ctx context.Context, token string) (*records.Identity, error) {
	data, err := s.client.Get(ctx, identityKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, records.ErrNoIdentity
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	var id records.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}

	if s.ttl > 0 {
		_ = s.client.Expire(ctx, identityKey(token), s.ttl).Err()
	}

	return &id, nil
}

func (s *IdentityStore) Clear(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, identityKey(token)).Err(); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

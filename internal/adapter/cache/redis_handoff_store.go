package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/repository"
)

const (
	statePrefix   = "oauth:state:"
	handoffPrefix = "oauth:handoff:"
)

// RedisHandoffStore implements HandoffStore backed by Redis. GETDEL gives the
// atomic read-and-delete the cross-process handoff relies on: under duplicate
// callbacks or concurrent redeems exactly one client observes the value.
type RedisHandoffStore struct {
	client redis.UniversalClient
}

var _ repository.HandoffStore = (*RedisHandoffStore)(nil)

// NewRedisHandoffStore constructs a Redis-backed handoff store.
func NewRedisHandoffStore(client redis.UniversalClient) *RedisHandoffStore {
	return &RedisHandoffStore{client: client}
}

// SaveLoginState stores the encoded pending login state under its TTL.
func (s *RedisHandoffStore) SaveLoginState(ctx context.Context, state domainauth.LoginState) error {
	return s.save(ctx, statePrefix+state.State, state, time.Until(state.ExpiresAt))
}

// TakeLoginState atomically consumes the state record.
func (s *RedisHandoffStore) TakeLoginState(ctx context.Context, stateToken string) (*domainauth.LoginState, error) {
	var state domainauth.LoginState
	ok, err := s.take(ctx, statePrefix+stateToken, &state)
	if err != nil || !ok {
		return nil, err
	}
	// TTL reaping can lag; a record past its window reads as absent either way.
	if state.Expired(time.Now()) {
		return nil, nil
	}
	return &state, nil
}

// SaveHandoff stores the authorization handoff under its own TTL.
func (s *RedisHandoffStore) SaveHandoff(ctx context.Context, handoff domainauth.AuthorizationHandoff) error {
	return s.save(ctx, handoffPrefix+handoff.ID, handoff, time.Until(handoff.ExpiresAt))
}

// TakeHandoff atomically consumes the handoff record.
func (s *RedisHandoffStore) TakeHandoff(ctx context.Context, handoffID string) (*domainauth.AuthorizationHandoff, error) {
	var handoff domainauth.AuthorizationHandoff
	ok, err := s.take(ctx, handoffPrefix+handoffID, &handoff)
	if err != nil || !ok {
		return nil, err
	}
	if handoff.Expired(time.Now()) {
		return nil, nil
	}
	return &handoff, nil
}

// Ping reports store connectivity for the health probe.
func (s *RedisHandoffStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping handoff store: %w", err)
	}
	return nil
}

func (s *RedisHandoffStore) save(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("persist %s: record already expired", key)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *RedisHandoffStore) take(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("take %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

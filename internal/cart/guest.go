package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanbokmall/checkout/internal/domain"
)

// SnapshotTTL bounds how long an abandoned guest cart survives. Guest lines
// are never removed explicitly; they expire, or are cleared by the login
// merge.
const SnapshotTTL = 30 * 24 * time.Hour

// RedisSnapshotStore holds guest cart snapshots keyed by the browser's cart
// token. It is the server-held shadow of what a client would keep in local
// storage: an ordered list of lines, written back whole on every mutation.
type RedisSnapshotStore struct {
	client *redis.Client
}

func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

func snapshotKey(token string) string {
	return "cart:guest:" + token
}

func (s *RedisSnapshotStore) Load(ctx context.Context, token string) ([]domain.CartLine, error) {
	data, err := s.client.Get(ctx, snapshotKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []domain.CartLine{}, nil
		}
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}

	return lines, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, token string, lines []domain.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}

	if err := s.client.Set(ctx, snapshotKey(token), data, SnapshotTTL).Err(); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}

	return nil
}

func (s *RedisSnapshotStore) Clear(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, snapshotKey(token)).Err(); err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}
	return nil
}

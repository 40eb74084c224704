package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// AttributeStore is the writable per-user attribute overlay, one hash per user.
type AttributeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewAttributeStore creates an attribute store using the "attrs:" key prefix.
func NewAttributeStore(client redis.UniversalClient) *AttributeStore {
	return &AttributeStore{client: client, prefix: "attrs:"}
}

func (s *AttributeStore) GetUserAttributes(ctx context.Context, userID string) (map[string]string, error) {
	if userID == "" {
		return map[string]string{}, nil
	}
	attrs, err := s.client.HGetAll(ctx, s.prefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return attrs, nil
}

func (s *AttributeStore) PutUserAttribute(ctx context.Context, userID, name, value string) error {
	if userID == "" || name == "" {
		return errors.New("user ID and attribute name are required")
	}
	if err := s.client.HSet(ctx, s.prefix+userID, name, value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

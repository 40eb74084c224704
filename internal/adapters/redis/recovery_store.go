package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainsession "github.com/target/sessionguard/internal/domain/session"
)

// RecoveryStore keeps one recovery snapshot per user. Take is atomic (GETDEL) so a
// snapshot is restored at most once even with concurrent sign-ins.
type RecoveryStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRecoveryStore creates a recovery store using the "recovery:" key prefix.
func NewRecoveryStore(client redis.UniversalClient) *RecoveryStore {
	return &RecoveryStore{client: client, prefix: "recovery:"}
}

func (s *RecoveryStore) Save(ctx context.Context, userID string, snap domainsession.RecoverySnapshot, ttl time.Duration) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("invalid recovery ttl %s", ttl)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal recovery snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+userID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RecoveryStore) Take(ctx context.Context, userID string) (domainsession.RecoverySnapshot, bool, error) {
	if userID == "" {
		return domainsession.RecoverySnapshot{}, false, nil
	}
	data, err := s.client.GetDel(ctx, s.prefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainsession.RecoverySnapshot{}, false, nil
		}
		return domainsession.RecoverySnapshot{}, false, fmt.Errorf("redis getdel: %w", err)
	}
	var snap domainsession.RecoverySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domainsession.RecoverySnapshot{}, false, fmt.Errorf("unmarshal recovery snapshot: %w", err)
	}
	return snap, true, nil
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-settlement/pkg/redis"
)

// IdempotencyGuard remembers gateway callbacks already seen for a while so
// replays can skip the database transaction.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether the transaction/outcome pair was already
// marked, marking it when it was not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, transactionID string, outcome string) (bool, error) {
	if transactionID == "" {
		return false, errors.New("transaction id is required")
	}
	key := g.key(transactionID, outcome)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Release forgets a mark so a retried delivery is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, transactionID string, outcome string) error {
	if transactionID == "" {
		return errors.New("transaction id is required")
	}
	return g.store.Del(ctx, g.key(transactionID, outcome))
}

func (g *IdempotencyGuard) key(transactionID, outcome string) string {
	return g.store.IdempotencyKey(g.scope, transactionID+":"+outcome)
}

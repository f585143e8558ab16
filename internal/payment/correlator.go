// Package payment holds the provider-facing correlation between a
// payment reference and its order.  Redis is only a fast path: the
// reference is also persisted on the order row, so a webhook arriving
// after a process restart (or with redis down) still resolves through
// the durable ledger lookup.  Losing every cache entry loses nothing.
package payment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payref:"

// Resolver is the durable fallback lookup, satisfied by the ledger.
type Resolver interface {
	ResolveOrderID(ctx context.Context, paymentRef string) (string, error)
}

// Correlator maps payment references to order ids.  A nil redis client
// disables the fast path entirely.
type Correlator struct {
	rdb      *redis.Client
	fallback Resolver
	ttl      time.Duration
}

// NewCorrelator builds a Correlator.  ttl should exceed the reservation
// TTL so the cache entry outlives any webhook the provider could still
// send for a live order.
func NewCorrelator(rdb *redis.Client, fallback Resolver, ttl time.Duration) *Correlator {
	return &Correlator{rdb: rdb, fallback: fallback, ttl: ttl}
}

// Remember stores the mapping best-effort.  Failures are ignored: the
// durable lookup always works.
func (c *Correlator) Remember(ctx context.Context, paymentRef, orderID string) {
	if c.rdb == nil || paymentRef == "" {
		return
	}
	_ = c.rdb.Set(ctx, keyPrefix+paymentRef, orderID, c.ttl).Err()
}

// Forget drops the mapping after an order reaches a terminal status.
func (c *Correlator) Forget(ctx context.Context, paymentRef string) {
	if c.rdb == nil || paymentRef == "" {
		return
	}
	_ = c.rdb.Del(ctx, keyPrefix+paymentRef).Err()
}

// Resolve returns the order id for a payment reference, trying the
// cache first and falling back to the durable lookup.
func (c *Correlator) Resolve(ctx context.Context, paymentRef string) (string, error) {
	if c.rdb != nil {
		if id, err := c.rdb.Get(ctx, keyPrefix+paymentRef).Result(); err == nil && id != "" {
			return id, nil
		}
	}
	return c.fallback.ResolveOrderID(ctx, paymentRef)
}

package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for request and donation
// mutations. Stores called with txCtx take part in the transaction.
// Implementations may wrap a database transaction or, in-memory, locks.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

const (
	numRequestShards        = 64
	defaultRequestTxTimeout = 5 * time.Second
)

type (
	txRequestKey struct{}
	txActiveKey  struct{}
)

// withTxRequest scopes the next transaction to a single request so the
// in-memory runner can lock one shard instead of the whole engine.
func withTxRequest(ctx context.Context, requestID id.RequestID) context.Context {
	return context.WithValue(ctx, txRequestKey{}, requestID)
}

// shardedRequestTx serialises in-memory transactions. Single-request
// transactions hold the global lock shared plus one shard; transactions that
// touch many requests, such as the expiry sweep, hold the global lock
// exclusively. Nested calls join the outer transaction.
type shardedRequestTx struct {
	global  sync.RWMutex
	shards  [numRequestShards]sync.Mutex
	timeout time.Duration
}

func newShardedRequestTx() *shardedRequestTx {
	return &shardedRequestTx{timeout: defaultRequestTxTimeout}
}

func (t *shardedRequestTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if active, _ := ctx.Value(txActiveKey{}).(bool); active {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if requestID, ok := ctx.Value(txRequestKey{}).(id.RequestID); ok {
		t.global.RLock()
		defer t.global.RUnlock()
		shard := &t.shards[shardFor(requestID)]
		shard.Lock()
		defer shard.Unlock()
	} else {
		t.global.Lock()
		defer t.global.Unlock()
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(context.WithValue(ctx, txActiveKey{}, true))
}

func shardFor(requestID id.RequestID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(requestID[:])
	return h.Sum32() % numRequestShards
}

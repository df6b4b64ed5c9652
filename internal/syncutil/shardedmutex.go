// Package syncutil holds small synchronisation helpers.
package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 64

// ShardedMutex is a fixed pool of channel-backed locks keyed by string.
// Memory stays bounded however many keys are seen; keys that share a shard
// also share a lock. Waiters give up when their context ends.
type ShardedMutex struct {
	shards [shardCount]chan struct{}
}

// NewShardedMutex returns a ShardedMutex with every shard unlocked.
func NewShardedMutex() *ShardedMutex {
	m := &ShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the lock for key and returns its release func. It returns
// ctx.Err() if ctx ends first.
func (m *ShardedMutex) Lock(ctx context.Context, key string) (func(), error) {
	ch := m.shards[shardOf(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the lock for key only if it is free.
func (m *ShardedMutex) TryLock(key string) (func(), bool) {
	ch := m.shards[shardOf(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

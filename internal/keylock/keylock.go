// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package keylock serializes operations per string key. Updates for
// the same device MAC must never interleave, while different devices
// proceed independently; a fixed pool of sharded mutexes gives that
// without unbounded per-key state.
package keylock

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// Map is a sharded set of mutexes indexed by key hash. The zero value
// is ready to use.
type Map struct {
	shards [shardCount]sync.Mutex
}

func (m *Map) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%shardCount]
}

// Lock acquires the mutex for key and returns its unlock function.
//
//	defer locks.Lock(mac)()
func (m *Map) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}

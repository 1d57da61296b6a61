// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe table of live sessions keyed by descriptor. Mutations
// come from the reactor; Len and Range may be called from other goroutines.

package session

import "sync"

// Table maps descriptors to sessions.
type Table struct {
	shards []*shard
	mask   uint32
}

type shard struct {
	mu       sync.RWMutex
	sessions map[int]*Session
}

// NewTable constructs a table with shardCount shards rounded up to a power of two.
func NewTable(shardCount int) *Table {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, m)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[int]*Session)}
	}
	return &Table{shards: shards, mask: m - 1}
}

func (t *Table) shard(fd int) *shard {
	return t.shards[uint32(fd)&t.mask]
}

// Add stores s under its descriptor, replacing any stale entry.
func (t *Table) Add(s *Session) {
	sh := t.shard(s.FD)
	sh.mu.Lock()
	sh.sessions[s.FD] = s
	sh.mu.Unlock()
}

// Get fetches a session if present.
func (t *Table) Get(fd int) (*Session, bool) {
	sh := t.shard(fd)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[fd]
	return s, ok
}

// Delete removes the session of fd and reports whether it was present.
func (t *Table) Delete(fd int) bool {
	sh := t.shard(fd)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[fd]; !ok {
		return false
	}
	delete(sh.sessions, fd)
	return true
}

// Len returns the number of sessions.
func (t *Table) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Range applies fn to all sessions. fn must not modify the table.
func (t *Table) Range(fn func(*Session)) {
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			fn(s)
		}
		sh.mu.RUnlock()
	}
}

// Snapshot returns the current sessions; the table may be modified while
// iterating over the result.
func (t *Table) Snapshot() []*Session {
	out := make([]*Session, 0, t.Len())
	t.Range(func(s *Session) { out = append(out, s) })
	return out
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

package correlator

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// shardCount must be a power of two.
const shardCount = 32

// table maps device ID to its pending request.
//
// Keys are spread over shardCount independently locked maps, so operations
// on unrelated devices rarely contend. No lock is held outside a single
// method call.
type table struct {
	shards [shardCount]shard
	n      atomic.Int64
}

type shard struct {
	mu sync.Mutex
	m  map[string]*pending
}

func newTable() *table {
	t := &table{}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*pending)
	}
	return t
}

func (t *table) shardFor(device string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(device)) //nolint:errcheck // hash.Hash never returns an error
	return &t.shards[h.Sum32()&(shardCount-1)]
}

// insert stores p for device and returns the entry it replaced, if any.
func (t *table) insert(device string, p *pending) *pending {
	s := t.shardFor(device)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.m[device]
	s.m[device] = p
	if prev == nil {
		t.n.Add(1)
	}
	return prev
}

// take removes and returns the entry for device. Only the caller that
// receives a non-nil entry may complete it.
func (t *table) take(device string) *pending {
	s := t.shardFor(device)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[device]
	if !ok {
		return nil
	}
	delete(s.m, device)
	t.n.Add(-1)
	return p
}

// takeIf removes the entry for device only if it is exactly p.
func (t *table) takeIf(device string, p *pending) bool {
	s := t.shardFor(device)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m[device] != p {
		return false
	}
	delete(s.m, device)
	t.n.Add(-1)
	return true
}

// get returns the current entry without removing it. Diagnostics only:
// never complete an entry obtained this way.
func (t *table) get(device string) *pending {
	s := t.shardFor(device)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[device]
}

func (t *table) len() int {
	return int(t.n.Load())
}

// snapshot returns the current entries, shard by shard. It is not an atomic
// view of the whole table.
func (t *table) snapshot() []*pending {
	out := make([]*pending, 0, t.len())
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, p := range s.m {
			out = append(out, p)
		}
		s.mu.Unlock()
	}
	return out
}

// drain removes and returns every entry.
func (t *table) drain() []*pending {
	var out []*pending
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for device, p := range s.m {
			out = append(out, p)
			delete(s.m, device)
			t.n.Add(-1)
		}
		s.mu.Unlock()
	}
	return out
}

// Package quotecache holds the latest observed quote per symbol plus a short
// intraday tick history. Writers race freely: last-write-wins by quote
// timestamp is the only concurrency control, so replayed or delayed upstream
// payloads can never roll a symbol backwards.
package quotecache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

const shardCount = 32

// Tick is one accepted intraday observation, kept in a bounded ring.
type Tick struct {
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`
	Volume   float64   `json:"volume"`
	Turnover float64   `json:"turnover"`
}

type entry struct {
	latest domain.QuoteSnapshot
	ticks  []Tick // ring buffer
	head   int    // next write position
	filled bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Cache is the sharded in-memory store. StaleAfter bounds how old the
// latest snapshot may be before reads report it stale; it should be about
// twice the ingest tick interval.
type Cache struct {
	shards     [shardCount]*shard
	ringSize   int
	staleAfter time.Duration

	accepted  atomic.Int64
	discarded atomic.Int64
}

// New builds a cache with the given tick-ring capacity and staleness bound.
func New(ringSize int, staleAfter time.Duration) *Cache {
	if ringSize <= 0 {
		ringSize = 240
	}
	c := &Cache{ringSize: ringSize, staleAfter: staleAfter}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return c
}

func (c *Cache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%shardCount]
}

// Put applies a snapshot under last-write-wins: it is accepted only when its
// timestamp is strictly newer than the stored one. Returns whether the write
// took effect. Accepted writes also append to the symbol's tick ring.
func (c *Cache) Put(q domain.QuoteSnapshot) bool {
	s := c.shardFor(q.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[q.Symbol]
	if !ok {
		e = &entry{ticks: make([]Tick, c.ringSize)}
		s.entries[q.Symbol] = e
	} else if !q.Timestamp.After(e.latest.Timestamp) {
		c.discarded.Add(1)
		return false
	}

	e.latest = q
	e.ticks[e.head] = Tick{Time: q.Timestamp, Price: q.Price, Volume: q.Volume, Turnover: q.Turnover}
	e.head++
	if e.head == c.ringSize {
		e.head = 0
		e.filled = true
	}
	c.accepted.Add(1)
	return true
}

// Get returns the latest stored snapshot regardless of age.
func (c *Cache) Get(symbol string) (domain.QuoteSnapshot, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	if !ok {
		return domain.QuoteSnapshot{}, false
	}
	return e.latest, true
}

// Latest returns the stored snapshot, or ErrStaleQuote when it is older
// than the staleness bound relative to now. Missing symbols are stale too.
func (c *Cache) Latest(symbol string, now time.Time) (domain.QuoteSnapshot, error) {
	q, ok := c.Get(symbol)
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrStaleQuote
	}
	if c.staleAfter > 0 && now.Sub(q.Timestamp) > c.staleAfter {
		return domain.QuoteSnapshot{}, domain.ErrStaleQuote
	}
	return q, nil
}

// Ticks returns the symbol's accepted ticks oldest-first. The slice is a
// copy and safe to retain.
func (c *Cache) Ticks(symbol string) []Tick {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	if !ok {
		return nil
	}

	if !e.filled {
		out := make([]Tick, e.head)
		copy(out, e.ticks[:e.head])
		return out
	}
	out := make([]Tick, 0, c.ringSize)
	out = append(out, e.ticks[e.head:]...)
	out = append(out, e.ticks[:e.head]...)
	return out
}

// Symbols lists every symbol currently cached.
func (c *Cache) Symbols() []string {
	out := make([]string, 0, 256)
	for _, s := range c.shards {
		s.mu.RLock()
		for sym := range s.entries {
			out = append(out, sym)
		}
		s.mu.RUnlock()
	}
	return out
}

// Stats reports accepted vs LWW-discarded write counts since start.
func (c *Cache) Stats() (accepted, discarded int64) {
	return c.accepted.Load(), c.discarded.Load()
}

// Package dnscache holds a bounded, TTL-expiring cache of DNS responses
// keyed by lowercased query name and query type.
package dnscache

import (
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"leshy/internal/clock"
)

type key struct {
	qname string
	qtype uint16
}

type entry struct {
	response   *dns.Msg
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// Cache is a capacity-bounded map from (qname, qtype) to a cached
// response. A capacity of 0 disables caching entirely: inserts are
// no-ops and lookups always miss.
type Cache struct {
	mu       sync.Mutex
	entries  map[key]entry
	capacity int
	clock    clock.Clock
}

// New returns a cache bounded to capacity entries, using the real
// system clock. capacity == 0 disables caching.
func New(capacity int) *Cache {
	return NewWithClock(capacity, &clock.RealClock{})
}

// NewWithClock returns a cache bounded to capacity entries whose TTL
// expiry is measured against c instead of the system clock, so tests
// can control elapsed time with clock.MockClock rather than sleeping.
func NewWithClock(capacity int, c clock.Clock) *Cache {
	return &Cache{
		entries:  make(map[key]entry),
		capacity: capacity,
		clock:    c,
	}
}

// Enabled reports whether the cache accepts inserts.
func (c *Cache) Enabled() bool {
	return c.capacity > 0
}

// Lookup returns a copy of the cached response for (qname, qtype) if one
// exists and has not expired. Qname comparison is case-insensitive;
// qtype comparison is exact. A stale entry is removed as a side effect.
func (c *Cache) Lookup(qname string, qtype uint16) *dns.Msg {
	k := key{qname: strings.ToLower(qname), qtype: qtype}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return nil
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, k)
		return nil
	}
	return e.response.Copy()
}

// Insert upserts a response under (qname, qtype) with the given TTL. A
// no-op when the cache is disabled. When at capacity and the key is new,
// expired entries are swept first; if the cache is still full after the
// sweep, the insert is silently dropped rather than evicting a live
// entry.
func (c *Cache) Insert(qname string, qtype uint16, response *dns.Msg, ttl time.Duration) {
	if !c.Enabled() {
		return
	}

	k := key{qname: strings.ToLower(qname), qtype: qtype}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		c.sweepExpiredLocked()
	}
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		return
	}

	c.entries[k] = entry{
		response:   response.Copy(),
		insertedAt: c.clock.Now(),
		ttl:        ttl,
	}
}

// Clear empties the cache, e.g. on reload.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]entry)
}

func (c *Cache) sweepExpiredLocked() {
	now := c.clock.Now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

// EffectiveTTL implements the cache's TTL cascade: NXDOMAIN or zero
// answer records get negativeTTL; otherwise the minimum TTL across
// answer records, clamped to [minTTL, maxTTL].
func EffectiveTTL(msg *dns.Msg, minTTL, maxTTL, negativeTTL int64) time.Duration {
	if msg.Rcode == dns.RcodeNameError || len(msg.Answer) == 0 {
		return time.Duration(negativeTTL) * time.Second
	}

	var min uint32 = ^uint32(0)
	for _, rr := range msg.Answer {
		if rr.Header().Ttl < min {
			min = rr.Header().Ttl
		}
	}

	ttl := int64(min)
	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	return time.Duration(ttl) * time.Second
}

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tui

import (
	"sync"
	"time"

	"github.com/yollayah/conductor/internal/ordered"
)

// SpriteFingerprint identifies one rendered avatar frame: a (mood, gesture,
// reaction, animation-frame-index) tuple collapsed to a single
// cache key, so the compositor never re-lays-out block cells for a pose it
// has already rendered this session.
type SpriteFingerprint string

// BlockMatrix is a sprite's rendered block-cell grid: one string per row,
// already grapheme-cluster-safe (built with uniseg so a multi-byte glyph
// never splits across two cells).
type BlockMatrix []string

type spriteEntry struct {
	matrix     BlockMatrix
	neverEvict bool
	expiresAt  time.Time // zero for never_evict entries
	lastUsed   time.Time
}

// DefaultSpriteCacheCapacity bounds the number of derived (non-pinned)
// variants kept alive at once. Only the entry count is capped; the cache
// has no byte budget.
const DefaultSpriteCacheCapacity = 256

// DefaultSpriteTTL is how long a derived variant survives without a lookup
// before SweepExpired reclaims it.
const DefaultSpriteTTL = 10 * time.Minute

// SpriteCache is the bounded sprite fingerprint -> BlockMatrix cache of
// spec §3: an LRU over derived variants plus a pinned set of base poses
// that TTL/eviction never touch. The ordered map keeps keys in insertion
// order; eviction scans every entry for the oldest last-used time.
type SpriteCache struct {
	mu       sync.Mutex
	entries  *ordered.Map[SpriteFingerprint, *spriteEntry]
	capacity int
	ttl      time.Duration
}

// NewSpriteCache constructs a SpriteCache. capacity <= 0 uses
// DefaultSpriteCacheCapacity; ttl <= 0 uses DefaultSpriteTTL.
func NewSpriteCache(capacity int, ttl time.Duration) *SpriteCache {
	if capacity <= 0 {
		capacity = DefaultSpriteCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultSpriteTTL
	}
	return &SpriteCache{
		entries:  ordered.New[SpriteFingerprint, *spriteEntry](),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Pin inserts a base pose that is never evicted by capacity pressure or
// SweepExpired, per "never_evict entries never removed." Base poses are
// expected to be pinned once at startup; the pinned set is therefore
// bounded by the fixed number of base poses, not by user input.
func (c *SpriteCache) Pin(fp SpriteFingerprint, matrix BlockMatrix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Set(fp, &spriteEntry{matrix: matrix, neverEvict: true, lastUsed: time.Now()})
}

// Put inserts a derived variant with the cache's configured TTL, evicting
// the least-recently-used non-pinned entry if the cache is at capacity.
func (c *SpriteCache) Put(fp SpriteFingerprint, matrix BlockMatrix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.entries.Set(fp, &spriteEntry{matrix: matrix, expiresAt: now.Add(c.ttl), lastUsed: now})
	c.evictOverCapacityLocked()
}

// Get looks up fp, refreshing its last-used time (and, for derived
// variants, extending its TTL window) on a hit.
func (c *SpriteCache) Get(fp SpriteFingerprint) (BlockMatrix, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(fp)
	if !ok {
		return nil, false
	}
	now := time.Now()
	if !e.neverEvict && now.After(e.expiresAt) {
		c.entries.Delete(fp)
		return nil, false
	}
	e.lastUsed = now
	if !e.neverEvict {
		e.expiresAt = now.Add(c.ttl)
	}
	return e.matrix, true
}

// SweepExpired removes every non-pinned entry whose TTL has elapsed and
// returns how many it removed. Nothing in this package schedules it; Get
// also drops an expired entry when it is looked up.
func (c *SpriteCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var expired []SpriteFingerprint
	for _, fp := range c.entries.Keys() {
		e, ok := c.entries.Get(fp)
		if ok && !e.neverEvict && now.After(e.expiresAt) {
			expired = append(expired, fp)
		}
	}
	for _, fp := range expired {
		c.entries.Delete(fp)
	}
	return len(expired)
}

// evictOverCapacityLocked drops least-recently-used non-pinned entries
// until the non-pinned population is back within capacity. Pinned entries
// never count against capacity pressure.
func (c *SpriteCache) evictOverCapacityLocked() {
	for c.countNonPinnedLocked() > c.capacity {
		var oldestKey SpriteFingerprint
		var oldestTime time.Time
		found := false
		for _, fp := range c.entries.Keys() {
			e, ok := c.entries.Get(fp)
			if !ok || e.neverEvict {
				continue
			}
			if !found || e.lastUsed.Before(oldestTime) {
				oldestKey, oldestTime, found = fp, e.lastUsed, true
			}
		}
		if !found {
			return
		}
		c.entries.Delete(oldestKey)
	}
}

func (c *SpriteCache) countNonPinnedLocked() int {
	n := 0
	for _, fp := range c.entries.Keys() {
		if e, ok := c.entries.Get(fp); ok && !e.neverEvict {
			n++
		}
	}
	return n
}

// Len returns the total number of cached entries, pinned and derived.
func (c *SpriteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

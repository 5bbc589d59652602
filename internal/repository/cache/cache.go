// Package cache provides the bounded in-memory tile cache. A single cache
// instance is shared across all zoom levels so coarse ancestor tiles cached at
// a previous zoom stay available for fallback display.
package cache

import (
	"container/list"
	"image"

	"github.com/bauervision/eidomap/internal/tile"
)

type entry struct {
	addr tile.Address
	img  image.Image
}

// LRU is a bounded tile cache with least-recently-used eviction. Recency
// updates are O(1): a doubly-linked list ordered by recency plus a hash index
// into it.
//
// LRU is not safe for concurrent use. The engine goroutine is its only owner;
// fetch workers never touch it and hand results across the engine's
// completion funnel instead.
type LRU struct {
	maxTiles int
	items    map[tile.Address]*list.Element
	order    *list.List
	onEvict  func(tile.Address)
}

// NewLRU creates a cache holding at most maxTiles entries. onEvict, if
// non-nil, is called for every evicted address.
func NewLRU(maxTiles int, onEvict func(tile.Address)) *LRU {
	if maxTiles < 1 {
		maxTiles = 1
	}
	return &LRU{
		maxTiles: maxTiles,
		items:    make(map[tile.Address]*list.Element),
		order:    list.New(),
		onEvict:  onEvict,
	}
}

// Get returns the cached image for addr. A hit marks the entry
// most-recently-used.
func (c *LRU) Get(addr tile.Address) (image.Image, bool) {
	elem, ok := c.items[addr]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*entry).img, true
}

// Put inserts or replaces the image for addr and marks it most-recently-used.
// If the cache then exceeds its bound, least-recently-used entries are evicted
// until the bound holds.
func (c *LRU) Put(addr tile.Address, img image.Image) {
	if elem, ok := c.items[addr]; ok {
		elem.Value.(*entry).img = img
		c.order.MoveToFront(elem)
		return
	}

	c.items[addr] = c.order.PushFront(&entry{addr: addr, img: img})

	for c.order.Len() > c.maxTiles {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		ent := oldest.Value.(*entry)
		delete(c.items, ent.addr)
		c.order.Remove(oldest)
		if c.onEvict != nil {
			c.onEvict(ent.addr)
		}
	}
}

// Has reports whether addr is cached without touching its recency.
func (c *LRU) Has(addr tile.Address) bool {
	_, ok := c.items[addr]
	return ok
}

// Len returns the number of cached tiles.
func (c *LRU) Len() int {
	return c.order.Len()
}

package cdf

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// CachedOpener wraps an Opener so metadata tables read through ReadVData
// are served from an in-memory LRU cache. Files of one product share their
// altitude table, so after the first file it is never read again.
type CachedOpener struct {
	inner domain.Opener
	cache *lruCache
}

// NewCachedOpener creates a cache decorator around an opener.
func NewCachedOpener(inner domain.Opener, maxEntries int) *CachedOpener {
	return &CachedOpener{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (o *CachedOpener) Open(name string) (domain.File, error) {
	f, err := o.inner.Open(name)
	if err != nil {
		return nil, err
	}
	product := ""
	if p, err := domain.ProductFromFileName(name); err == nil {
		product = p.Name
	}
	return &cachedFile{File: f, product: product, cache: o.cache}, nil
}

type cachedFile struct {
	domain.File
	product string
	cache   *lruCache
}

func (f *cachedFile) ReadVData(name string, count int) ([]float64, error) {
	key := fmt.Sprintf("%s|%s|%d", f.product, name, count)
	if values, ok := f.cache.get(key); ok {
		return append([]float64(nil), values...), nil
	}
	values, err := f.File.ReadVData(name, count)
	if err != nil {
		return nil, err
	}
	f.cache.put(key, append([]float64(nil), values...))
	return values, nil
}

// lruCache keeps the most recently read tables. Entries are never updated
// in place: a table read twice under one key has the same contents.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // of *entry, most recent first
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value []float64
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// put stores value unless key is already cached.
func (c *lruCache) put(key string, value []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

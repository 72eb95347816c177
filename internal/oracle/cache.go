package oracle

import (
	"strings"

	"github.com/bluele/gcache"
)

// Cache holds availability verdicts for the lifetime of one search.
type Cache interface {
	Get(key string) (Result, bool)
	Set(key string, r Result)
}

// CacheFactory builds an empty cache for a new search.
type CacheFactory func() Cache

type lruCache struct {
	c gcache.Cache
}

// NewLRUCache returns a bounded LRU cache holding at most size verdicts.
func NewLRUCache(size int) Cache {
	if size <= 0 {
		size = 1
	}
	return &lruCache{c: gcache.New(size).LRU().Build()}
}

// LRUFactory returns a CacheFactory producing caches of the given size.
func LRUFactory(size int) CacheFactory {
	return func() Cache { return NewLRUCache(size) }
}

func (l *lruCache) Get(key string) (Result, bool) {
	v, err := l.c.Get(key)
	if err != nil {
		return Result{}, false
	}
	r, ok := v.(Result)
	return r, ok
}

func (l *lruCache) Set(key string, r Result) {
	_ = l.c.Set(key, r)
}

// cacheKey fully qualifies a probe so that unrelated trains, dates and classes never collide.
func cacheKey(from, to string, q Query) string {
	return strings.Join([]string{q.TrainNo, from, to, q.Date, q.ClassType, q.Quota}, "|")
}

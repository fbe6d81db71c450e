package pagecache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Cache keeps rendered pages keyed by "path" or "path?query". Invalidating a
// path drops every page rendered for it, whatever the query.
type Cache struct {
	pages  *lru.Cache
	logger *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

func New(size int, logger *zap.Logger) (*Cache, error) {
	pages, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating page cache: %w", err)
	}
	return &Cache{
		pages:       pages,
		logger:      logger,
		generations: map[string]uint64{},
	}, nil
}

/* Builds the cache key of a page: the path, plus the encoded query when there is one. */
func Key(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}

func pathOf(key string) string {
	path, _, _ := strings.Cut(key, "?")
	return path
}

func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok := c.pages.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Generation must be read before rendering a page and handed back to Put.
func (c *Cache) Generation(path string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[path]
}

/* Stores a rendered page unless its path was invalidated after gen was read. */
func (c *Cache) Put(key string, gen uint64, page []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[pathOf(key)] != gen {
		return false
	}
	c.pages.Add(key, page)
	return true
}

func (c *Cache) Invalidate(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[path]++
	removed := 0
	for _, k := range c.pages.Keys() {
		key := k.(string)
		if pathOf(key) == path {
			c.pages.Remove(key)
			removed++
		}
	}

	c.logger.Debug("page cache invalidated",
		zap.String("path", path),
		zap.Int("pages_removed", removed))
	return nil
}

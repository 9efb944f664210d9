package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/twbeatles/navernews-tabsearch/internal/models"
)

// Manager caches read-side API responses. Any ingestion or mutation
// flushes it wholesale; entries are cheap to rebuild from storage.
type Manager struct {
	cache *cache.Cache
	mu    sync.RWMutex
}

func NewManager(defaultTTL time.Duration) *Manager {
	return &Manager{
		cache: cache.New(defaultTTL, 10*time.Minute),
	}
}

func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Get(key)
}

func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Set(key, value, ttl)
}

func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
}

func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Flush()
}

// ArticlesKey builds a stable cache key for an article list query.
func ArticlesKey(opts models.QueryOptions) string {
	return fmt.Sprintf("articles:%s:%s:%v:%v:%v:%v:%s:%s:%s:%d:%d",
		opts.Keyword,
		opts.Filter,
		opts.SortAscending,
		opts.OnlyBookmarked,
		opts.OnlyUnread,
		opts.HideDuplicates,
		strings.Join(opts.ExcludeWords, ","),
		opts.StartDate,
		opts.EndDate,
		opts.Limit,
		opts.Offset,
	)
}

// CountKey builds a cache key for an article count query.
func CountKey(opts models.QueryOptions) string {
	return "count:" + ArticlesKey(opts)
}

// StatsKey is the cache key of the store-wide statistics report.
const StatsKey = "stats"

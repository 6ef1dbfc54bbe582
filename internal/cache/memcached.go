package cache

import (
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// ErrScanUnsupported is returned by GetAll on backends without prefix
// scans.
var ErrScanUnsupported = errors.New("prefix scan not supported by this backend")

// MemcachedStore implements Store over memcached, for caches shared by
// several service instances. GetAll is unsupported: memcached has no key
// enumeration, and the retrieval path only uses keyed reads; GetAll exists
// for offline cache export against scannable backends.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// SetItems stores all items without expiration; staleness policy is an
// external concern.
func (c *MemcachedStore) SetItems(items map[string][]byte) error {
	for k, v := range items {
		if err := c.client.Set(&memcache.Item{Key: k, Value: v}); err != nil {
			return err
		}
	}
	return nil
}

// GetItems returns the values for keys in order, nil for missing keys.
func (c *MemcachedStore) GetItems(keys []string) ([][]byte, error) {
	found, err := c.client.GetMulti(keys)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if item, ok := found[k]; ok {
			out[i] = item.Value
		}
	}
	return out, nil
}

// GetAll is unsupported on memcached.
func (c *MemcachedStore) GetAll(prefix string) (map[string][]byte, error) {
	return nil, ErrScanUnsupported
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedStore) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}

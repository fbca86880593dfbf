package accounts

import (
	"sync"

	"github.com/fortiblox/stratus-builtins/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the number of accounts kept by a CachedDB.
const DefaultCacheSize = 4096

// CachedDB is an LRU read cache in front of another DB.
// Missing accounts are cached too, so repeated lookups of absent addresses
// don't reach the underlying store.
//
// Cache fills hold a read lock across the underlying read and writes hold the
// write lock until their entry is dropped, so a fill never caches a value that
// a concurrent write has already replaced.
type CachedDB struct {
	DB
	mu    sync.RWMutex
	cache *lru.Cache[types.Address, *Account]
}

// NewCachedDB wraps db with an LRU cache holding up to size accounts.
func NewCachedDB(db DB, size int) (*CachedDB, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[types.Address, *Account](size)
	if err != nil {
		return nil, errors.Wrap(err, "create account cache")
	}
	return &CachedDB{DB: db, cache: cache}, nil
}

// GetAccount retrieves an account, serving it from the cache when possible.
func (c *CachedDB) GetAccount(addr types.Address) (*Account, error) {
	if acc, ok := c.cache.Get(addr); ok {
		if acc == nil {
			return nil, ErrAccountNotFound
		}
		return acc.Clone(), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	acc, err := c.DB.GetAccount(addr)
	if errors.Is(err, ErrAccountNotFound) {
		c.cache.Add(addr, nil)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.cache.Add(addr, acc.Clone())
	return acc, nil
}

// HasAccount checks if an account exists.
func (c *CachedDB) HasAccount(addr types.Address) (bool, error) {
	if acc, ok := c.cache.Get(addr); ok {
		return acc != nil, nil
	}
	return c.DB.HasAccount(addr)
}

// SetAccount stores an account and drops its cache entry.
func (c *CachedDB) SetAccount(addr types.Address, account *Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.DB.SetAccount(addr, account)
	c.cache.Remove(addr)
	return err
}

// DeleteAccount removes an account and drops its cache entry.
func (c *CachedDB) DeleteAccount(addr types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.DB.DeleteAccount(addr)
	c.cache.Remove(addr)
	return err
}

// Close purges the cache and closes the underlying DB.
func (c *CachedDB) Close() error {
	c.cache.Purge()
	return c.DB.Close()
}

// Len returns the number of cached entries.
func (c *CachedDB) Len() int {
	return c.cache.Len()
}

// NewBatch returns a batch that invalidates touched cache entries on Flush.
func (c *CachedDB) NewBatch() Batch {
	return &cachedBatch{db: c, inner: NewWriter(c.DB)}
}

type cachedBatch struct {
	db      *CachedDB
	inner   Batch
	touched []types.Address
}

func (b *cachedBatch) SetAccount(addr types.Address, account *Account) error {
	b.touched = append(b.touched, addr)
	return b.inner.SetAccount(addr, account)
}

func (b *cachedBatch) DeleteAccount(addr types.Address) error {
	b.touched = append(b.touched, addr)
	return b.inner.DeleteAccount(addr)
}

func (b *cachedBatch) Flush() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	err := b.inner.Flush()
	for _, addr := range b.touched {
		b.db.cache.Remove(addr)
	}
	b.touched = nil
	return err
}

func (b *cachedBatch) Cancel() {
	b.inner.Cancel()
	b.touched = nil
}

var _ BatchDB = (*CachedDB)(nil)

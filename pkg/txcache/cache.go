// Package txcache implements the transaction cache: a mutable overlay over
// an accounts store that collects every write of a transaction (and of the
// nested calls it makes) until the executor commits or discards them.
//
// Entries live in an arena indexed by address. Each entry carries a dirty
// marker; only dirty entries end up in the resulting BlockchainUpdate. Every
// mutation is journalled, so a caller can take a Checkpoint and later
// RevertTo it to undo partially-applied work.
package txcache

import (
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/pkg/errors"
)

var (
	// ErrSealed is returned when using a cache after IntoUpdate.
	ErrSealed = errors.New("transaction cache sealed")

	// ErrBadCheckpoint is returned by RevertTo for an unknown checkpoint.
	ErrBadCheckpoint = errors.New("invalid checkpoint")
)

type entry struct {
	account *accounts.Account
	dirty   bool
}

// journalEntry holds the state of an entry before one mutation.
type journalEntry struct {
	slot      int
	prev      *accounts.Account
	prevDirty bool
}

// TxCache is a per-transaction overlay over an accounts store.
//
// A TxCache is not safe for concurrent use. One instance is shared by
// reference down a call stack.
type TxCache struct {
	source  accounts.DB
	entries []entry
	index   map[types.Address]int
	journal []journalEntry
	sealed  bool
}

// New creates an empty cache reading through to source.
func New(source accounts.DB) *TxCache {
	return &TxCache{
		source: source,
		index:  make(map[types.Address]int),
	}
}

// Source returns the backing store.
func (c *TxCache) Source() accounts.DB {
	return c.source
}

// slot returns the arena position of addr, loading it from the backing store
// on first access. Accounts missing from the store materialize empty.
func (c *TxCache) slot(addr types.Address) (int, error) {
	if i, ok := c.index[addr]; ok {
		return i, nil
	}

	acc, err := c.source.GetAccount(addr)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		acc = accounts.NewAccount(addr)
	case err != nil:
		return 0, errors.Wrapf(err, "load account %s", addr)
	}
	acc.Address = addr

	c.entries = append(c.entries, entry{account: acc})
	i := len(c.entries) - 1
	c.index[addr] = i
	return i, nil
}

// Load brings the given accounts into the cache without marking them dirty.
func (c *TxCache) Load(addrs ...types.Address) error {
	if c.sealed {
		return ErrSealed
	}
	for _, addr := range addrs {
		if _, err := c.slot(addr); err != nil {
			return err
		}
	}
	return nil
}

// Read returns a copy of the current state of addr, including writes made
// earlier through this cache.
func (c *TxCache) Read(addr types.Address) (*accounts.Account, error) {
	if c.sealed {
		return nil, ErrSealed
	}
	i, err := c.slot(addr)
	if err != nil {
		return nil, err
	}
	return c.entries[i].account.Clone(), nil
}

// Mutate edits addr in place and marks it dirty. If fn returns an error the
// account is restored and the error is returned unchanged.
func (c *TxCache) Mutate(addr types.Address, fn func(acc *accounts.Account) error) error {
	if c.sealed {
		return ErrSealed
	}
	i, err := c.slot(addr)
	if err != nil {
		return err
	}

	// fn may grow the arena, so entries are addressed by index afterwards.
	acc := c.entries[i].account
	cp := len(c.journal)
	c.journal = append(c.journal, journalEntry{
		slot:      i,
		prev:      acc.Clone(),
		prevDirty: c.entries[i].dirty,
	})
	if err := fn(acc); err != nil {
		if rerr := c.RevertTo(cp); rerr != nil {
			return rerr
		}
		return err
	}
	c.entries[i].dirty = true
	return nil
}

// Checkpoint returns a marker for the current journal position.
func (c *TxCache) Checkpoint() int {
	return len(c.journal)
}

// RevertTo undoes every mutation made since checkpoint cp.
func (c *TxCache) RevertTo(cp int) error {
	if c.sealed {
		return ErrSealed
	}
	if cp < 0 || cp > len(c.journal) {
		return ErrBadCheckpoint
	}
	for j := len(c.journal) - 1; j >= cp; j-- {
		je := c.journal[j]
		c.entries[je.slot] = entry{account: je.prev, dirty: je.prevDirty}
	}
	c.journal = c.journal[:cp]
	return nil
}

// IsDirty reports whether addr has been mutated through this cache.
func (c *TxCache) IsDirty(addr types.Address) bool {
	i, ok := c.index[addr]
	return ok && c.entries[i].dirty
}

// Update returns the accumulated mutations without consuming the cache.
func (c *TxCache) Update() *BlockchainUpdate {
	var dirty []*accounts.Account
	for _, e := range c.entries {
		if e.dirty {
			dirty = append(dirty, e.account.Clone())
		}
	}
	return newBlockchainUpdate(dirty)
}

// IntoUpdate returns the accumulated mutations and seals the cache. Every
// later call on the cache fails with ErrSealed.
func (c *TxCache) IntoUpdate() (*BlockchainUpdate, error) {
	if c.sealed {
		return nil, ErrSealed
	}
	u := c.Update()
	c.sealed = true
	c.entries = nil
	c.index = nil
	c.journal = nil
	return u, nil
}

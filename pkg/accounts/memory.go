package accounts

import (
	"sort"
	"sync"

	"github.com/fortiblox/stratus-builtins/internal/types"
)

// MemoryDB is an in-memory implementation of DB for tests and scenario runs.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Address]*Account
	sequence uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Address]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(addr types.Address) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(addr types.Address, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.setLocked(addr, account)
	return nil
}

func (m *MemoryDB) setLocked(addr types.Address, account *Account) {
	if account.IsEmpty() {
		delete(m.accounts, addr)
		return
	}
	stored := account.Clone()
	stored.Address = addr
	m.accounts[addr] = stored
}

// DeleteAccount removes an account.
func (m *MemoryDB) DeleteAccount(addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.accounts, addr)
	return nil
}

// HasAccount checks if an account exists.
func (m *MemoryDB) HasAccount(addr types.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[addr]
	return ok, nil
}

// IterateAccounts iterates over all accounts in ascending address order.
func (m *MemoryDB) IterateAccounts(fn func(addr types.Address, account *Account) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	addrs := make([]types.Address, 0, len(m.accounts))
	for addr := range m.accounts {
		addrs = append(addrs, addr)
	}
	snapshot := make(map[types.Address]*Account, len(addrs))
	for _, addr := range addrs {
		snapshot[addr] = m.accounts[addr].Clone()
	}
	m.mu.RUnlock()

	SortAddresses(addrs)
	for _, addr := range addrs {
		if err := fn(addr, snapshot[addr]); err != nil {
			return err
		}
	}
	return nil
}

// GetSequence returns the committed transaction counter.
func (m *MemoryDB) GetSequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sequence
}

// SetSequence updates the committed transaction counter.
func (m *MemoryDB) SetSequence(seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sequence = seq
	return nil
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Commit is a no-op for MemoryDB.
func (m *MemoryDB) Commit() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accounts = nil
	return nil
}

// NewBatch creates a batch applied under a single lock on Flush.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

type memoryOp struct {
	addr    types.Address
	account *Account // nil means delete
}

type memoryBatch struct {
	db  *MemoryDB
	ops []memoryOp
}

func (b *memoryBatch) SetAccount(addr types.Address, account *Account) error {
	b.ops = append(b.ops, memoryOp{addr: addr, account: account.Clone()})
	return nil
}

func (b *memoryBatch) DeleteAccount(addr types.Address) error {
	b.ops = append(b.ops, memoryOp{addr: addr})
	return nil
}

func (b *memoryBatch) Flush() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	if b.db.closed {
		return ErrClosed
	}
	for _, op := range b.ops {
		if op.account == nil {
			delete(b.db.accounts, op.addr)
			continue
		}
		b.db.setLocked(op.addr, op.account)
	}
	b.ops = nil
	return nil
}

func (b *memoryBatch) Cancel() {
	b.ops = nil
}

// SortAddresses sorts a slice of addresses in ascending order.
func SortAddresses(addrs []types.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Compare(addrs[j]) < 0
	})
}

var _ BatchDB = (*MemoryDB)(nil)

package accounts

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Key prefixes for BadgerDB storage.
var (
	// prefixAccount is the prefix for account data.
	// Key format: prefixAccount + address (32 bytes)
	prefixAccount = []byte{0x01}

	// prefixMeta is the prefix for metadata.
	prefixMeta = []byte{0x02}

	metaSequence      = append(append([]byte{}, prefixMeta...), []byte("sequence")...)
	metaAccountsCount = append(append([]byte{}, prefixMeta...), []byte("count")...)
)

// BadgerDBConfig contains configuration for BadgerDB.
type BadgerDBConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	NumCompactors    int
	NumMemtables     int
	ValueLogFileSize int64

	// Logger receives badger's internal logs. Nil disables them.
	Logger *zap.Logger
}

// DefaultBadgerDBConfig returns default configuration.
func DefaultBadgerDBConfig(path string) BadgerDBConfig {
	return BadgerDBConfig{
		Path:             path,
		SyncWrites:       false,
		NumCompactors:    2,
		NumMemtables:     5,
		ValueLogFileSize: 64 << 20, // 64MB
	}
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Infof(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }

// BadgerDB is a BadgerDB-backed implementation of the accounts database.
//
// Accounts are stored under prefixAccount+address in canonical serialized
// form, so iteration with the account prefix yields ascending address order.
// The transaction sequence and accounts count are cached in memory and
// persisted on Commit.
type BadgerDB struct {
	db *badger.DB

	sequence      atomic.Uint64
	accountsCount atomic.Uint64

	// mu serializes writers so the accounts count stays exact.
	mu sync.RWMutex

	closed atomic.Bool
}

// NewBadgerDB creates a new BadgerDB-backed accounts database.
func NewBadgerDB(cfg BadgerDBConfig) (*BadgerDB, error) {
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	if cfg.NumCompactors > 0 {
		opts = opts.WithNumCompactors(cfg.NumCompactors)
	}
	if cfg.NumMemtables > 0 {
		opts = opts.WithNumMemtables(cfg.NumMemtables)
	}
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{s: cfg.Logger.Sugar()})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}

	bdb := &BadgerDB{db: db}
	if err := bdb.loadMetadata(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load metadata")
	}
	return bdb, nil
}

// loadMetadata loads sequence and count from disk.
func (b *BadgerDB) loadMetadata() error {
	return b.db.View(func(txn *badger.Txn) error {
		seq, err := readMetaUint64(txn, metaSequence)
		if err != nil {
			return err
		}
		b.sequence.Store(seq)

		count, err := readMetaUint64(txn, metaAccountsCount)
		if err != nil {
			return err
		}
		b.accountsCount.Store(count)
		return nil
	})
}

func readMetaUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) >= 8 {
			v = binary.LittleEndian.Uint64(val)
		}
		return nil
	})
	return v, err
}

// accountKey returns the BadgerDB key for an account.
func accountKey(addr types.Address) []byte {
	key := make([]byte, 1+types.AddressSize)
	key[0] = prefixAccount[0]
	copy(key[1:], addr[:])
	return key
}

// GetAccount retrieves an account by address.
func (b *BadgerDB) GetAccount(addr types.Address) (*Account, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var account *Account
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(addr))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			acc, err := DeserializeAccount(val)
			if err != nil {
				return err
			}
			account = acc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// SetAccount stores an account.
func (b *BadgerDB) SetAccount(addr types.Address, account *Account) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	exists, err := b.hasAccountLocked(addr)
	if err != nil {
		return err
	}

	if account.IsEmpty() {
		if !exists {
			return nil
		}
		if err := b.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(accountKey(addr))
		}); err != nil {
			return err
		}
		b.accountsCount.Add(^uint64(0)) // Decrement
		return nil
	}

	data := withAddress(account, addr).Serialize()
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(addr), data)
	}); err != nil {
		return err
	}
	if !exists {
		b.accountsCount.Add(1)
	}
	return nil
}

// withAddress returns account with its Address field forced to addr.
func withAddress(account *Account, addr types.Address) *Account {
	if account.Address == addr {
		return account
	}
	c := account.Clone()
	c.Address = addr
	return c
}

// DeleteAccount removes an account.
func (b *BadgerDB) DeleteAccount(addr types.Address) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	exists, err := b.hasAccountLocked(addr)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(accountKey(addr))
	}); err != nil {
		return err
	}
	b.accountsCount.Add(^uint64(0)) // Decrement
	return nil
}

// HasAccount checks if an account exists.
func (b *BadgerDB) HasAccount(addr types.Address) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hasAccountLocked(addr)
}

// hasAccountLocked checks if an account exists (caller must hold lock).
func (b *BadgerDB) hasAccountLocked(addr types.Address) (bool, error) {
	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(accountKey(addr))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// GetSequence returns the committed transaction counter.
func (b *BadgerDB) GetSequence() uint64 {
	return b.sequence.Load()
}

// SetSequence updates the committed transaction counter.
func (b *BadgerDB) SetSequence(seq uint64) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.sequence.Store(seq)
	return nil
}

// AccountsCount returns the total number of accounts.
func (b *BadgerDB) AccountsCount() (uint64, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return b.accountsCount.Load(), nil
}

// Commit persists metadata (sequence, count).
func (b *BadgerDB) Commit() error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.commitMetadata()
}

func (b *BadgerDB) commitMetadata() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(txn *badger.Txn) error {
		seqBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(seqBuf, b.sequence.Load())
		if err := txn.Set(metaSequence, seqBuf); err != nil {
			return err
		}

		countBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(countBuf, b.accountsCount.Load())
		return txn.Set(metaAccountsCount, countBuf)
	})
}

// Close commits metadata and closes the database.
func (b *BadgerDB) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	commitErr := b.commitMetadata()
	if err := b.db.Close(); err != nil {
		return err
	}
	return commitErr
}

// IterateAccounts iterates over all accounts in ascending address order.
func (b *BadgerDB) IterateAccounts(fn func(addr types.Address, account *Account) error) error {
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 1+types.AddressSize {
				continue
			}
			var addr types.Address
			copy(addr[:], key[1:])

			err := item.Value(func(val []byte) error {
				account, err := DeserializeAccount(val)
				if err != nil {
					return errors.Wrapf(err, "account %s", addr)
				}
				return fn(addr, account)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// NewBatch creates a batch backed by a badger write batch.
func (b *BadgerDB) NewBatch() Batch {
	return b.NewBatchWriter()
}

// BatchWriter provides atomic batch writes.
type BatchWriter struct {
	db      *BadgerDB
	batch   *badger.WriteBatch
	added   int64
	deleted int64
	seen    map[types.Address]bool
}

// NewBatchWriter creates a new batch writer.
func (b *BadgerDB) NewBatchWriter() *BatchWriter {
	return &BatchWriter{
		db:    b,
		batch: b.db.NewWriteBatch(),
		seen:  make(map[types.Address]bool),
	}
}

// existed reports whether addr was stored before this batch, taking earlier
// writes of the same batch into account.
func (bw *BatchWriter) existed(addr types.Address) bool {
	if present, ok := bw.seen[addr]; ok {
		return present
	}
	exists, _ := bw.db.HasAccount(addr)
	return exists
}

// SetAccount adds an account write to the batch.
func (bw *BatchWriter) SetAccount(addr types.Address, account *Account) error {
	if account.IsEmpty() {
		return bw.DeleteAccount(addr)
	}

	exists := bw.existed(addr)
	if err := bw.batch.Set(accountKey(addr), withAddress(account, addr).Serialize()); err != nil {
		return err
	}
	if !exists {
		bw.added++
	}
	bw.seen[addr] = true
	return nil
}

// DeleteAccount adds an account deletion to the batch.
func (bw *BatchWriter) DeleteAccount(addr types.Address) error {
	if bw.existed(addr) {
		if err := bw.batch.Delete(accountKey(addr)); err != nil {
			return err
		}
		bw.deleted++
	}
	bw.seen[addr] = false
	return nil
}

// Flush writes all batched operations to disk.
func (bw *BatchWriter) Flush() error {
	bw.db.mu.Lock()
	defer bw.db.mu.Unlock()

	if err := bw.batch.Flush(); err != nil {
		return err
	}

	bw.db.accountsCount.Add(uint64(bw.added))
	if bw.deleted > 0 {
		bw.db.accountsCount.Add(^uint64(bw.deleted - 1)) // Subtract deleted
	}
	bw.added = 0
	bw.deleted = 0
	bw.seen = make(map[types.Address]bool)
	return nil
}

// Cancel cancels the batch without writing.
func (bw *BatchWriter) Cancel() {
	bw.batch.Cancel()
	bw.added = 0
	bw.deleted = 0
	bw.seen = make(map[types.Address]bool)
}

// RunGC runs garbage collection on the value log.
func (b *BadgerDB) RunGC() error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.RunValueLogGC(0.5)
}

// Sync ensures all writes are persisted to disk.
func (b *BadgerDB) Sync() error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.Sync()
}

var _ BatchDB = (*BadgerDB)(nil)

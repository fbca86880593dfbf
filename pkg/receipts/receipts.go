// Package receipts provides persistent storage for transaction receipts.
//
// Every executed transaction, successful or not, gets a receipt keyed by its
// sequence number. Logs of successful transactions are additionally indexed
// by emitting address so observers can query them without replaying.
package receipts

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrReceiptNotFound is returned when a receipt doesn't exist.
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("receipt store closed")

	// ErrDuplicate is returned when storing a sequence number twice.
	ErrDuplicate = errors.New("receipt already stored")
)

// Bucket names.
var (
	// bucketReceipts stores receipts keyed by sequence.
	bucketReceipts = []byte("receipts")

	// bucketTxByHash maps transaction hash -> sequence.
	bucketTxByHash = []byte("tx_by_hash")

	// bucketAddressLogs indexes logs by address+sequence+index.
	bucketAddressLogs = []byte("addr_logs")

	bucketMetadata = []byte("metadata")
)

var (
	keyLatestSequence = []byte("latest_sequence")
	keyReceiptCount   = []byte("receipt_count")
)

// Receipt records the outcome of one executed transaction.
type Receipt struct {
	Sequence   uint64
	TxHash     types.Hash
	From       types.Address
	To         types.Address
	Function   string
	Status     vm.ReturnCode
	Message    string
	Logs       []vm.TxLog
	ReturnData [][]byte
	GasUsed    uint64
}

// NewReceipt builds the receipt of in executed as transaction seq.
func NewReceipt(seq uint64, in *vm.TxInput, result *vm.TxResult) *Receipt {
	return &Receipt{
		Sequence:   seq,
		TxHash:     in.Hash(),
		From:       in.From,
		To:         in.To,
		Function:   in.Function,
		Status:     result.Status,
		Message:    result.Message,
		Logs:       result.Logs,
		ReturnData: result.ReturnData,
		GasUsed:    result.GasUsed,
	}
}

// Succeeded reports whether the transaction succeeded.
func (r *Receipt) Succeeded() bool {
	return r.Status == vm.Success
}

// LogEntry is an indexed log with its position.
type LogEntry struct {
	Sequence uint64
	TxHash   types.Hash
	Index    uint32
	Log      vm.TxLog
}

// LogQueryOptions configures log queries.
type LogQueryOptions struct {
	// Limit is the maximum number of entries to return.
	Limit int

	// Endpoint keeps only logs emitted by this function.
	Endpoint string

	// MinSequence keeps only logs of transactions >= MinSequence.
	MinSequence uint64
}

// Config holds receipt store configuration.
type Config struct {
	// Path is the database file.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// IndexLogs enables the address log index.
	IndexLogs bool
}

// DefaultConfig returns the default configuration for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:      path,
		IndexLogs: true,
	}
}

// Store persists receipts in BoltDB.
type Store struct {
	db     *bolt.DB
	config Config

	mu             sync.RWMutex
	latestSequence uint64
	receiptCount   uint64
	closed         bool
}

// Open creates or opens a receipt store.
func Open(config Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	s := &Store{db: db, config: config}
	if !config.ReadOnly {
		if err := s.initBuckets(); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "init buckets")
		}
	}
	if err := s.loadCachedValues(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load cached values")
	}
	return s, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReceipts, bucketTxByHash, bucketAddressLogs, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
}

func (s *Store) loadCachedValues() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return nil
		}
		if v := meta.Get(keyLatestSequence); v != nil {
			s.latestSequence = decodeSequence(v)
		}
		if v := meta.Get(keyReceiptCount); v != nil {
			s.receiptCount = decodeSequence(v)
		}
		return nil
	})
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// PutReceipt stores r and indexes its logs.
func (s *Store) PutReceipt(r *Receipt) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return errors.Wrap(err, "encode receipt")
	}
	seqKey := encodeSequence(r.Sequence)

	err := s.db.Update(func(tx *bolt.Tx) error {
		receipts := tx.Bucket(bucketReceipts)
		if receipts.Get(seqKey) != nil {
			return errors.Wrapf(ErrDuplicate, "sequence %d", r.Sequence)
		}
		if err := receipts.Put(seqKey, buf.Bytes()); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTxByHash).Put(r.TxHash[:], seqKey); err != nil {
			return err
		}

		if s.config.IndexLogs && r.Succeeded() {
			logs := tx.Bucket(bucketAddressLogs)
			for i, log := range r.Logs {
				entry := LogEntry{Sequence: r.Sequence, TxHash: r.TxHash, Index: uint32(i), Log: log}
				var entryBuf bytes.Buffer
				if err := gob.NewEncoder(&entryBuf).Encode(&entry); err != nil {
					return errors.Wrap(err, "encode log entry")
				}
				if err := logs.Put(encodeLogKey(log.Address, r.Sequence, uint32(i)), entryBuf.Bytes()); err != nil {
					return err
				}
			}
		}

		meta := tx.Bucket(bucketMetadata)
		s.mu.Lock()
		defer s.mu.Unlock()
		latest := s.latestSequence
		if r.Sequence > latest {
			latest = r.Sequence
		}
		if err := meta.Put(keyLatestSequence, encodeSequence(latest)); err != nil {
			return err
		}
		if err := meta.Put(keyReceiptCount, encodeSequence(s.receiptCount+1)); err != nil {
			return err
		}
		s.latestSequence = latest
		s.receiptCount++
		return nil
	})
	return err
}

// GetReceipt retrieves the receipt of transaction seq.
func (s *Store) GetReceipt(seq uint64) (*Receipt, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var r Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReceipts).Get(encodeSequence(seq))
		if data == nil {
			return ErrReceiptNotFound
		}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReceiptByHash retrieves a receipt by transaction hash.
func (s *Store) GetReceiptByHash(hash types.Hash) (*Receipt, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var seq uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTxByHash).Get(hash[:])
		if v == nil {
			return ErrReceiptNotFound
		}
		seq = decodeSequence(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetReceipt(seq)
}

// GetLogsForAddress returns logs emitted by address, newest first.
func (s *Store) GetLogsForAddress(address types.Address, opts *LogQueryOptions) ([]LogEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &LogQueryOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	var results []LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAddressLogs).Cursor()
		prefix := address[:]

		// Position past the last key of the prefix, then walk backwards.
		end := make([]byte, logKeySize)
		copy(end, prefix)
		for i := types.AddressSize; i < logKeySize; i++ {
			end[i] = 0xFF
		}
		k, v := c.Seek(end)
		switch {
		case k == nil:
			k, v = c.Last()
		case !bytes.HasPrefix(k, prefix):
			k, v = c.Prev()
		}

		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var entry LogEntry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&entry); err != nil {
				return errors.Wrap(err, "decode log entry")
			}
			if entry.Sequence < opts.MinSequence {
				break
			}
			if opts.Endpoint != "" && entry.Log.Endpoint != opts.Endpoint {
				continue
			}
			results = append(results, entry)
			if len(results) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// LatestSequence returns the highest stored sequence.
func (s *Store) LatestSequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSequence
}

// Count returns the number of stored receipts.
func (s *Store) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receiptCount
}

// Sync forces a sync of the database to disk.
func (s *Store) Sync() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Sync()
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

const logKeySize = types.AddressSize + 8 + 4

func encodeSequence(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func decodeSequence(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// encodeLogKey builds address || sequence || index so keys of one address
// sort by emission order.
func encodeLogKey(addr types.Address, seq uint64, index uint32) []byte {
	key := make([]byte, logKeySize)
	copy(key, addr[:])
	binary.BigEndian.PutUint64(key[types.AddressSize:], seq)
	binary.BigEndian.PutUint32(key[types.AddressSize+8:], index)
	return key
}

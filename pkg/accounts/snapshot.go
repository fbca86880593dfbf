package accounts

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// Snapshot file magic bytes for format validation.
var snapshotMagic = []byte{'B', 'V', 'S', 'N'}

const snapshotHeaderSize = 4 + 8 + 8 + types.HashSize

// maxAccountSerializedSize bounds a single account record on read.
const maxAccountSerializedSize = 4 * maxFieldSize

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	// Version is the snapshot format version.
	Version uint32

	// Sequence is the committed transaction counter at snapshot time.
	Sequence uint64

	// AccountsCount is the number of accounts in the snapshot.
	AccountsCount uint64

	// StateRoot is the Merkle root of all accounts (see ComputeStateRoot).
	StateRoot types.Hash
}

// SnapshotWriter writes accounts to a snapshot file.
// Snapshot format:
//   - Magic (4 bytes): "BVSN"
//   - Version (4 bytes, little-endian)
//   - Sequence (8 bytes, little-endian)
//   - AccountsCount (8 bytes, little-endian)
//   - StateRoot (32 bytes)
//   - Accounts data (zstd compressed), for each account:
//   - Address (32 bytes)
//   - AccountSize (4 bytes, little-endian)
//   - AccountData (variable, serialized account)
type SnapshotWriter struct {
	file   *os.File
	enc    *zstd.Encoder
	writer *bufio.Writer
	header SnapshotHeader
	count  uint64
}

// NewSnapshotWriter creates a new snapshot writer.
func NewSnapshotWriter(path string, sequence uint64, root types.Hash) (*SnapshotWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create snapshot directory")
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create snapshot file")
	}

	sw := &SnapshotWriter{
		file: file,
		header: SnapshotHeader{
			Version:   snapshotVersion,
			Sequence:  sequence,
			StateRoot: root,
		},
	}

	// Placeholder header, rewritten with the final count on Close.
	if err := sw.writeHeader(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	sw.enc, err = zstd.NewWriter(file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, "init zstd writer")
	}
	sw.writer = bufio.NewWriter(sw.enc)
	return sw, nil
}

func (sw *SnapshotWriter) writeHeader() error {
	if _, err := sw.file.Write(snapshotMagic); err != nil {
		return err
	}

	buf := make([]byte, snapshotHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], sw.header.Version)
	binary.LittleEndian.PutUint64(buf[4:], sw.header.Sequence)
	binary.LittleEndian.PutUint64(buf[12:], sw.header.AccountsCount)
	copy(buf[20:], sw.header.StateRoot[:])

	_, err := sw.file.Write(buf)
	return err
}

// WriteAccount writes a single account to the snapshot.
func (sw *SnapshotWriter) WriteAccount(addr types.Address, account *Account) error {
	if _, err := sw.writer.Write(addr[:]); err != nil {
		return err
	}

	data := withAddress(account, addr).Serialize()
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(data)))
	if _, err := sw.writer.Write(sizeBuf[:]); err != nil {
		return err
	}
	if _, err := sw.writer.Write(data); err != nil {
		return err
	}

	sw.count++
	return nil
}

// Close finalizes and closes the snapshot.
func (sw *SnapshotWriter) Close() error {
	if err := sw.writer.Flush(); err != nil {
		sw.file.Close()
		return err
	}
	if err := sw.enc.Close(); err != nil {
		sw.file.Close()
		return err
	}

	sw.header.AccountsCount = sw.count
	if _, err := sw.file.Seek(0, io.SeekStart); err != nil {
		sw.file.Close()
		return err
	}
	if err := sw.writeHeader(); err != nil {
		sw.file.Close()
		return err
	}
	return sw.file.Close()
}

// SnapshotReader reads accounts from a snapshot file.
type SnapshotReader struct {
	file   *os.File
	dec    *zstd.Decoder
	reader *bufio.Reader
	Header SnapshotHeader
	read   uint64
}

// OpenSnapshot opens a snapshot file for reading.
func OpenSnapshot(path string) (*SnapshotReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, errors.Wrap(err, "open snapshot")
	}

	sr := &SnapshotReader{file: file}
	if err := sr.readHeader(); err != nil {
		file.Close()
		return nil, err
	}

	sr.dec, err = zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "init zstd reader")
	}
	sr.reader = bufio.NewReader(sr.dec)
	return sr, nil
}

func (sr *SnapshotReader) readHeader() error {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(sr.file, magic); err != nil {
		return errors.Wrap(err, "read magic")
	}
	if string(magic) != string(snapshotMagic) {
		return errors.Errorf("invalid snapshot magic: %q", magic)
	}

	buf := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(sr.file, buf); err != nil {
		return errors.Wrap(err, "read header")
	}

	sr.Header.Version = binary.LittleEndian.Uint32(buf[0:])
	if sr.Header.Version != snapshotVersion {
		return errors.Errorf("unsupported snapshot version: %d", sr.Header.Version)
	}
	sr.Header.Sequence = binary.LittleEndian.Uint64(buf[4:])
	sr.Header.AccountsCount = binary.LittleEndian.Uint64(buf[12:])
	copy(sr.Header.StateRoot[:], buf[20:])
	return nil
}

// ReadAccount reads the next account from the snapshot.
// Returns io.EOF when all accounts have been read.
func (sr *SnapshotReader) ReadAccount() (types.Address, *Account, error) {
	if sr.read >= sr.Header.AccountsCount {
		return types.Address{}, nil, io.EOF
	}

	var addr types.Address
	if _, err := io.ReadFull(sr.reader, addr[:]); err != nil {
		return types.Address{}, nil, errors.Wrap(err, "read address")
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(sr.reader, sizeBuf[:]); err != nil {
		return types.Address{}, nil, errors.Wrap(err, "read size")
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size > maxAccountSerializedSize {
		return types.Address{}, nil, errors.Errorf("account size %d exceeds maximum %d", size, maxAccountSerializedSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(sr.reader, data); err != nil {
		return types.Address{}, nil, errors.Wrap(err, "read account data")
	}

	account, err := DeserializeAccount(data)
	if err != nil {
		return types.Address{}, nil, errors.Wrap(err, "deserialize account")
	}

	sr.read++
	return addr, account, nil
}

// Close closes the snapshot reader.
func (sr *SnapshotReader) Close() error {
	if sr.dec != nil {
		sr.dec.Close()
	}
	return sr.file.Close()
}

// CreateSnapshot writes every account of db to a snapshot file at path.
func CreateSnapshot(db DB, path string) (*SnapshotHeader, error) {
	root, err := ComputeStateRoot(db)
	if err != nil {
		return nil, errors.Wrap(err, "compute state root")
	}

	writer, err := NewSnapshotWriter(path, db.GetSequence(), root)
	if err != nil {
		return nil, err
	}

	err = db.IterateAccounts(func(addr types.Address, account *Account) error {
		return writer.WriteAccount(addr, account)
	})
	if err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "write accounts")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "finalize snapshot")
	}

	header := writer.header
	return &header, nil
}

// LoadSnapshot replaces the contents of db with the accounts of the snapshot
// at path and verifies the resulting state root against the header.
func LoadSnapshot(db DB, path string) (*SnapshotHeader, error) {
	reader, err := OpenSnapshot(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := clearAccounts(db); err != nil {
		return nil, errors.Wrap(err, "clear accounts")
	}

	const maxBatchSize = 1000
	w := NewWriter(db)
	pending := 0
	for {
		addr, account, err := reader.ReadAccount()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Cancel()
			return nil, errors.Wrap(err, "read account")
		}
		if err := w.SetAccount(addr, account); err != nil {
			w.Cancel()
			return nil, errors.Wrap(err, "set account")
		}

		pending++
		if pending >= maxBatchSize {
			if err := w.Flush(); err != nil {
				return nil, errors.Wrap(err, "flush batch")
			}
			w = NewWriter(db)
			pending = 0
		}
	}
	if err := w.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush final batch")
	}

	if err := db.SetSequence(reader.Header.Sequence); err != nil {
		return nil, errors.Wrap(err, "set sequence")
	}
	if err := db.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}

	computed, err := ComputeStateRoot(db)
	if err != nil {
		return nil, errors.Wrap(err, "compute state root")
	}
	if computed != reader.Header.StateRoot {
		return nil, errors.Errorf("state root mismatch: expected %s, got %s",
			reader.Header.StateRoot, computed)
	}

	header := reader.Header
	return &header, nil
}

// ReadSnapshotHeader returns the header of a snapshot file without loading it.
func ReadSnapshotHeader(path string) (*SnapshotHeader, error) {
	reader, err := OpenSnapshot(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	header := reader.Header
	return &header, nil
}

// SnapshotFilename returns the standard filename for a snapshot.
// Format: snapshot-{sequence}-{root prefix}.bvsnap
func SnapshotFilename(sequence uint64, root types.Hash) string {
	return fmt.Sprintf("snapshot-%d-%s.bvsnap", sequence, root.Hex()[:16])
}

// ParseSnapshotFilename extracts the sequence from a snapshot filename.
func ParseSnapshotFilename(filename string) (uint64, error) {
	var seq uint64
	var rest string
	if _, err := fmt.Sscanf(filename, "snapshot-%d-%s", &seq, &rest); err != nil {
		return 0, errors.Errorf("invalid snapshot filename: %s", filename)
	}
	return seq, nil
}

func clearAccounts(db DB) error {
	var addrs []types.Address
	err := db.IterateAccounts(func(addr types.Address, _ *Account) error {
		addrs = append(addrs, addr)
		return nil
	})
	if err != nil {
		return err
	}
	w := NewWriter(db)
	for _, addr := range addrs {
		if err := w.DeleteAccount(addr); err != nil {
			w.Cancel()
			return err
		}
	}
	return w.Flush()
}

// NewWriter returns a Batch for db. Stores without batch support get a
// writer that applies every operation immediately.
func NewWriter(db DB) Batch {
	if bdb, ok := db.(BatchDB); ok {
		return bdb.NewBatch()
	}
	return directWriter{db: db}
}

type directWriter struct {
	db DB
}

func (w directWriter) SetAccount(addr types.Address, account *Account) error {
	return w.db.SetAccount(addr, account)
}

func (w directWriter) DeleteAccount(addr types.Address) error {
	return w.db.DeleteAccount(addr)
}

func (directWriter) Flush() error { return nil }
func (directWriter) Cancel()      {}

package accounts

import (
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/zeebo/blake3"
)

// ComputeAccountHash computes the hash of a single account:
// BLAKE3(address || canonical serialization).
func ComputeAccountHash(addr types.Address, account *Account) types.Hash {
	h := blake3.New()
	h.Write(addr[:])
	h.Write(withAddress(account, addr).Serialize())

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AccountHashEntry pairs an address with its account hash.
type AccountHashEntry struct {
	Address types.Address
	Hash    types.Hash
}

// ComputeStateRoot computes the Merkle root over every account of db.
// Accounts are visited in ascending address order, so equal states produce
// equal roots regardless of the store implementation.
func ComputeStateRoot(db DB) (types.Hash, error) {
	var hashes []types.Hash
	err := db.IterateAccounts(func(addr types.Address, account *Account) error {
		hashes = append(hashes, ComputeAccountHash(addr, account))
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeDeltaHash computes the Merkle root over the given accounts as
// currently stored. Missing accounts contribute a zero hash.
// The addresses must be sorted for deterministic results.
func ComputeDeltaHash(db DB, addrs []types.Address) (types.Hash, error) {
	if len(addrs) == 0 {
		return types.Hash{}, nil
	}

	hashes := make([]types.Hash, 0, len(addrs))
	for _, addr := range addrs {
		account, err := db.GetAccount(addr)
		if err == ErrAccountNotFound {
			hashes = append(hashes, types.Hash{})
			continue
		}
		if err != nil {
			return types.Hash{}, err
		}
		hashes = append(hashes, ComputeAccountHash(addr, account))
	}
	return ComputeMerkleRoot(hashes), nil
}

// ComputeMerkleRoot computes the binary Merkle root of a list of hashes.
//
// Tree structure:
//   - Leaf: BLAKE3(0x00 || hash)
//   - Node: BLAKE3(0x01 || left || right)
//   - If odd number of nodes, last node is paired with zero hash
func ComputeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(hashes))
	for i, h := range hashes {
		level[i] = computeLeafHash(h)
	}

	for len(level) > 1 {
		next := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = computeNodeHash(level[i], right)
		}
		level = next
	}
	return level[0]
}

func computeLeafHash(data types.Hash) types.Hash {
	buf := make([]byte, 1+types.HashSize)
	buf[0] = 0x00
	copy(buf[1:], data[:])
	return blake3.Sum256(buf)
}

func computeNodeHash(left, right types.Hash) types.Hash {
	buf := make([]byte, 1+2*types.HashSize)
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[1+types.HashSize:], right[:])
	return blake3.Sum256(buf)
}

package txcache

import (
	"sort"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/pkg/errors"
)

// BlockchainUpdate is the set of accounts mutated by a transaction, ordered
// by address. It is applied to a store in full or discarded in full.
type BlockchainUpdate struct {
	accounts []*accounts.Account
}

func newBlockchainUpdate(accs []*accounts.Account) *BlockchainUpdate {
	sort.Slice(accs, func(i, j int) bool {
		return accs[i].Address.Compare(accs[j].Address) < 0
	})
	return &BlockchainUpdate{accounts: accs}
}

// EmptyUpdate returns an update with no accounts.
func EmptyUpdate() *BlockchainUpdate {
	return &BlockchainUpdate{}
}

// IsEmpty reports whether the update touches no account.
func (u *BlockchainUpdate) IsEmpty() bool {
	return u == nil || len(u.accounts) == 0
}

// Len returns the number of accounts in the update.
func (u *BlockchainUpdate) Len() int {
	if u == nil {
		return 0
	}
	return len(u.accounts)
}

// Accounts returns the updated accounts in ascending address order.
// The returned accounts must not be modified.
func (u *BlockchainUpdate) Accounts() []*accounts.Account {
	if u == nil {
		return nil
	}
	return u.accounts
}

// Addresses returns the updated addresses in ascending order.
func (u *BlockchainUpdate) Addresses() []types.Address {
	addrs := make([]types.Address, 0, u.Len())
	for _, acc := range u.Accounts() {
		addrs = append(addrs, acc.Address)
	}
	return addrs
}

// Get returns the updated state of addr, or nil when addr is not part of the
// update.
func (u *BlockchainUpdate) Get(addr types.Address) *accounts.Account {
	accs := u.Accounts()
	i := sort.Search(len(accs), func(i int) bool {
		return accs[i].Address.Compare(addr) >= 0
	})
	if i < len(accs) && accs[i].Address == addr {
		return accs[i]
	}
	return nil
}

// Apply writes every account of the update to db. Stores implementing
// accounts.BatchDB receive all writes in one batch.
func (u *BlockchainUpdate) Apply(db accounts.DB) error {
	if u.IsEmpty() {
		return nil
	}

	w := accounts.NewWriter(db)
	for _, acc := range u.accounts {
		if err := w.SetAccount(acc.Address, acc); err != nil {
			w.Cancel()
			return errors.Wrapf(err, "apply account %s", acc.Address)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush update")
	}
	return nil
}

// Package accounts implements the account store holding ledger state.
//
// Every account owns a base-currency (MOA) balance and a set of DCDT token
// holdings keyed by (token identifier, nonce). Nonce 0 is the fungible
// instance of a token; non-zero nonces are individual NFT/SFT instances that
// carry metadata (name, creator, royalties, hash, attributes, URIs).
//
// The store is only ever written through a transaction cache (see package
// txcache); implementations here provide the ground-truth state the cache
// falls back to:
//   - MemoryDB: in-memory store used by tests and scenario runs
//   - BadgerDB: persistent store backed by BadgerDB
//   - CachedDB: LRU read cache in front of any DB
//
// Accounts are serialized in a canonical binary format (map entries sorted by
// key) so the same state always produces the same bytes and the same hash.
package accounts

import (
	"math/big"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/pkg/errors"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when account data is malformed.
	ErrInvalidData = errors.New("invalid account data")

	// ErrSnapshotNotFound is returned when a snapshot doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInsufficientFunds is returned when a balance would go negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Token roles granted by the token manager to an account.
const (
	RoleLocalMint           = "DCDTRoleLocalMint"
	RoleLocalBurn           = "DCDTRoleLocalBurn"
	RoleNFTCreate           = "DCDTRoleNFTCreate"
	RoleNFTAddQuantity      = "DCDTRoleNFTAddQuantity"
	RoleNFTBurn             = "DCDTRoleNFTBurn"
	RoleNFTAddURI           = "DCDTRoleNFTAddURI"
	RoleNFTUpdateAttributes = "DCDTRoleNFTUpdateAttributes"
)

// TokenInstance is a single token holding, keyed by nonce within its
// TokenData. Fungible holdings only use Balance.
type TokenInstance struct {
	Nonce      uint64
	Balance    *big.Int
	Name       []byte
	Creator    types.Address
	Royalties  uint64
	Hash       []byte
	Attributes []byte
	URIs       [][]byte
}

// Clone creates a deep copy of the instance.
func (t *TokenInstance) Clone() *TokenInstance {
	if t == nil {
		return nil
	}
	c := &TokenInstance{
		Nonce:      t.Nonce,
		Balance:    cloneBig(t.Balance),
		Name:       cloneBytes(t.Name),
		Creator:    t.Creator,
		Royalties:  t.Royalties,
		Hash:       cloneBytes(t.Hash),
		Attributes: cloneBytes(t.Attributes),
	}
	if t.URIs != nil {
		c.URIs = make([][]byte, len(t.URIs))
		for i, uri := range t.URIs {
			c.URIs[i] = cloneBytes(uri)
		}
	}
	return c
}

// HasMetadata reports whether the instance carries NFT metadata.
func (t *TokenInstance) HasMetadata() bool {
	return len(t.Name) > 0 || !t.Creator.IsZero() || t.Royalties > 0 ||
		len(t.Hash) > 0 || len(t.Attributes) > 0 || len(t.URIs) > 0
}

// TokenData groups all instances of one token identifier held by an account.
type TokenData struct {
	Instances map[uint64]*TokenInstance

	// LastNonce is the nonce of the most recently created NFT instance.
	LastNonce uint64

	Roles mapset.Set[string]
}

func newTokenData() *TokenData {
	return &TokenData{
		Instances: make(map[uint64]*TokenInstance),
		Roles:     mapset.NewThreadUnsafeSet[string](),
	}
}

// Clone creates a deep copy of the token data.
func (d *TokenData) Clone() *TokenData {
	if d == nil {
		return nil
	}
	c := newTokenData()
	c.LastNonce = d.LastNonce
	for nonce, inst := range d.Instances {
		c.Instances[nonce] = inst.Clone()
	}
	if d.Roles != nil {
		c.Roles.Append(d.Roles.ToSlice()...)
	}
	return c
}

func (d *TokenData) isEmpty() bool {
	return len(d.Instances) == 0 && d.LastNonce == 0 && (d.Roles == nil || d.Roles.Cardinality() == 0)
}

// SortedRoles returns the roles in lexicographic order.
func (d *TokenData) SortedRoles() []string {
	if d.Roles == nil {
		return nil
	}
	roles := d.Roles.ToSlice()
	sort.Strings(roles)
	return roles
}

// SortedNonces returns the instance nonces in ascending order.
func (d *TokenData) SortedNonces() []uint64 {
	nonces := make([]uint64, 0, len(d.Instances))
	for nonce := range d.Instances {
		nonces = append(nonces, nonce)
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	return nonces
}

// Account represents a single account in the state.
type Account struct {
	Address types.Address

	// Nonce is the account transaction nonce, unrelated to token nonces.
	Nonce uint64

	// Balance is the base currency (MOA) balance.
	Balance *big.Int

	// DCDT maps token identifiers to the account's holdings of that token.
	DCDT map[string]*TokenData

	Username []byte

	// Code is non-empty for smart contract accounts.
	Code []byte

	// Owner is the owner of a smart contract account.
	Owner types.Address

	// DeveloperRewards accumulated by a smart contract account.
	DeveloperRewards *big.Int

	Storage map[string][]byte
}

// NewAccount creates an empty account at the given address.
func NewAccount(addr types.Address) *Account {
	return &Account{
		Address:          addr,
		Balance:          new(big.Int),
		DCDT:             make(map[string]*TokenData),
		DeveloperRewards: new(big.Int),
		Storage:          make(map[string][]byte),
	}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := &Account{
		Address:          a.Address,
		Nonce:            a.Nonce,
		Balance:          cloneBig(a.Balance),
		DCDT:             make(map[string]*TokenData, len(a.DCDT)),
		Username:         cloneBytes(a.Username),
		Code:             cloneBytes(a.Code),
		Owner:            a.Owner,
		DeveloperRewards: cloneBig(a.DeveloperRewards),
		Storage:          make(map[string][]byte, len(a.Storage)),
	}
	for token, data := range a.DCDT {
		c.DCDT[token] = data.Clone()
	}
	for k, v := range a.Storage {
		c.Storage[k] = cloneBytes(v)
	}
	return c
}

// IsEmpty returns true if the account holds nothing at all.
// Empty accounts are deleted from storage.
func (a *Account) IsEmpty() bool {
	if a.Nonce != 0 || len(a.Username) != 0 || len(a.Code) != 0 || !a.Owner.IsZero() {
		return false
	}
	if a.Balance != nil && a.Balance.Sign() != 0 {
		return false
	}
	if a.DeveloperRewards != nil && a.DeveloperRewards.Sign() != 0 {
		return false
	}
	for _, data := range a.DCDT {
		if !data.isEmpty() {
			return false
		}
	}
	return len(a.Storage) == 0
}

// IsContract reports whether the account holds contract code.
func (a *Account) IsContract() bool {
	return len(a.Code) > 0
}

// Token returns the holdings of a token identifier, or nil.
func (a *Account) Token(token []byte) *TokenData {
	return a.DCDT[string(token)]
}

// TokenInstance returns the holding keyed by (token, nonce), or nil.
func (a *Account) TokenInstance(token []byte, nonce uint64) *TokenInstance {
	data := a.Token(token)
	if data == nil {
		return nil
	}
	return data.Instances[nonce]
}

// TokenBalance returns a copy of the balance of (token, nonce); zero when the
// holding doesn't exist.
func (a *Account) TokenBalance(token []byte, nonce uint64) *big.Int {
	inst := a.TokenInstance(token, nonce)
	if inst == nil || inst.Balance == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(inst.Balance)
}

// tokenData returns the token data for token, creating it on first access.
func (a *Account) tokenData(token []byte) *TokenData {
	if a.DCDT == nil {
		a.DCDT = make(map[string]*TokenData)
	}
	data, ok := a.DCDT[string(token)]
	if !ok {
		data = newTokenData()
		a.DCDT[string(token)] = data
	}
	return data
}

// instance locates or creates the holding keyed by (token, nonce).
func (a *Account) instance(token []byte, nonce uint64) *TokenInstance {
	data := a.tokenData(token)
	inst, ok := data.Instances[nonce]
	if !ok {
		inst = &TokenInstance{Nonce: nonce, Balance: new(big.Int)}
		data.Instances[nonce] = inst
	}
	if inst.Balance == nil {
		inst.Balance = new(big.Int)
	}
	return inst
}

// IncreaseTokenBalance adds value to the (token, nonce) holding.
func (a *Account) IncreaseTokenBalance(token []byte, nonce uint64, value *big.Int) {
	inst := a.instance(token, nonce)
	inst.Balance.Add(inst.Balance, value)
}

// DecreaseTokenBalance subtracts value from the (token, nonce) holding.
// A holding whose balance reaches zero is removed from the account.
func (a *Account) DecreaseTokenBalance(token []byte, nonce uint64, value *big.Int) error {
	inst := a.TokenInstance(token, nonce)
	if inst == nil || inst.Balance == nil || inst.Balance.Cmp(value) < 0 {
		return ErrInsufficientFunds
	}
	inst.Balance.Sub(inst.Balance, value)
	if inst.Balance.Sign() == 0 {
		a.removeInstance(token, nonce)
	}
	return nil
}

func (a *Account) removeInstance(token []byte, nonce uint64) {
	data := a.Token(token)
	if data == nil {
		return
	}
	delete(data.Instances, nonce)
	if data.isEmpty() {
		delete(a.DCDT, string(token))
	}
}

// AddURIs appends uris, in order, to the URI list of the (token, nonce)
// holding, creating the holding if needed. Existing URIs are never touched.
func (a *Account) AddURIs(token []byte, nonce uint64, uris [][]byte) {
	inst := a.instance(token, nonce)
	for _, uri := range uris {
		inst.URIs = append(inst.URIs, cloneBytes(uri))
	}
}

// SetAttributes replaces the attributes of the (token, nonce) holding,
// creating the holding if needed.
func (a *Account) SetAttributes(token []byte, nonce uint64, attributes []byte) {
	a.instance(token, nonce).Attributes = cloneBytes(attributes)
}

// CreateNFT stores a new instance under the next nonce of token and returns
// that nonce. The instance's Nonce field is overwritten.
func (a *Account) CreateNFT(token []byte, inst *TokenInstance) uint64 {
	data := a.tokenData(token)
	data.LastNonce++
	created := inst.Clone()
	created.Nonce = data.LastNonce
	if created.Balance == nil {
		created.Balance = new(big.Int)
	}
	data.Instances[created.Nonce] = created
	return created.Nonce
}

// ReceiveInstance credits value of (token, nonce) to the account. When the
// account has no holding yet, metadata is copied from src.
func (a *Account) ReceiveInstance(token []byte, nonce uint64, value *big.Int, src *TokenInstance) {
	existing := a.TokenInstance(token, nonce)
	if existing == nil && src != nil {
		inst := src.Clone()
		inst.Nonce = nonce
		inst.Balance = new(big.Int)
		a.tokenData(token).Instances[nonce] = inst
	}
	a.IncreaseTokenBalance(token, nonce, value)
}

// HasRole reports whether the account holds role for token.
func (a *Account) HasRole(token []byte, role string) bool {
	data := a.Token(token)
	return data != nil && data.Roles != nil && data.Roles.Contains(role)
}

// SetRoles grants roles for token.
func (a *Account) SetRoles(token []byte, roles ...string) {
	data := a.tokenData(token)
	if data.Roles == nil {
		data.Roles = mapset.NewThreadUnsafeSet[string]()
	}
	data.Roles.Append(roles...)
}

// SortedTokens returns the token identifiers held by the account in
// lexicographic order.
func (a *Account) SortedTokens() []string {
	tokens := make([]string, 0, len(a.DCDT))
	for token := range a.DCDT {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent read access.
type DB interface {
	// GetAccount retrieves an account by address.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(addr types.Address) (*Account, error)

	// SetAccount stores an account.
	// Empty accounts (see Account.IsEmpty) are deleted instead.
	SetAccount(addr types.Address, account *Account) error

	// DeleteAccount removes an account.
	// Returns nil if the account doesn't exist.
	DeleteAccount(addr types.Address) error

	// HasAccount checks if an account exists.
	HasAccount(addr types.Address) (bool, error)

	// IterateAccounts calls fn for every account in ascending address order.
	// Returning an error from fn stops the iteration.
	IterateAccounts(fn func(addr types.Address, account *Account) error) error

	// GetSequence returns the number of committed transactions.
	GetSequence() uint64

	// SetSequence updates the committed transaction counter.
	SetSequence(seq uint64) error

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Commit persists pending metadata.
	Commit() error

	// Close closes the database.
	Close() error
}

// Batch groups account writes that are applied together on Flush.
type Batch interface {
	SetAccount(addr types.Address, account *Account) error
	DeleteAccount(addr types.Address) error
	Flush() error
	Cancel()
}

// BatchDB is a DB able to apply several writes atomically.
type BatchDB interface {
	DB
	NewBatch() Batch
}

// Package scenario runs JSON transaction scenarios against the executor.
//
// A scenario is a list of steps. "setState" seeds accounts, "tx" executes a
// transaction and optionally checks its result, "checkState" compares
// accounts against expectations. Values use the notation understood by
// ParseValue; "*" in an expectation matches anything.
package scenario

import (
	"bytes"
	"encoding/json"
	"math/big"
	"os"

	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
)

// Step kinds.
const (
	StepSetState   = "setState"
	StepTx         = "tx"
	StepCheckState = "checkState"
)

// Any matches every value in an expectation.
const Any = "*"

// Scenario is a named list of steps.
type Scenario struct {
	Name    string `json:"name"`
	Comment string `json:"comment,omitempty"`
	Steps   []Step `json:"steps"`
}

// Step is one scenario step.
type Step struct {
	Step    string `json:"step"`
	ID      string `json:"id,omitempty"`
	Comment string `json:"comment,omitempty"`

	// Accounts is used by setState and checkState, keyed by address.
	Accounts map[string]AccountSpec `json:"accounts,omitempty"`

	Tx     *TxSpec     `json:"tx,omitempty"`
	Expect *ExpectSpec `json:"expect,omitempty"`
}

// AccountSpec describes an account. In checkState only the fields that are
// set are compared.
type AccountSpec struct {
	Nonce            string               `json:"nonce,omitempty"`
	Balance          string               `json:"balance,omitempty"`
	Username         string               `json:"username,omitempty"`
	Code             string               `json:"code,omitempty"`
	Owner            string               `json:"owner,omitempty"`
	DeveloperRewards string               `json:"developerRewards,omitempty"`
	DCDT             map[string]TokenSpec `json:"dcdt,omitempty"`
	Storage          map[string]string    `json:"storage,omitempty"`
}

// TokenSpec describes the holdings of one token identifier.
type TokenSpec struct {
	Instances []InstanceSpec `json:"instances,omitempty"`
	LastNonce string         `json:"lastNonce,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
}

// InstanceSpec describes a (token, nonce) holding.
type InstanceSpec struct {
	Nonce      string   `json:"nonce"`
	Balance    string   `json:"balance,omitempty"`
	Name       string   `json:"name,omitempty"`
	Creator    string   `json:"creator,omitempty"`
	Royalties  string   `json:"royalties,omitempty"`
	Hash       string   `json:"hash,omitempty"`
	Attributes string   `json:"attributes,omitempty"`
	URIs       []string `json:"uris,omitempty"`
}

// TxSpec describes a transaction.
type TxSpec struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Function  string   `json:"function"`
	Arguments []string `json:"arguments,omitempty"`
	Value     string   `json:"value,omitempty"`
	GasLimit  string   `json:"gasLimit,omitempty"`
}

// ExpectSpec describes the expected result of a transaction. Nil fields are
// not checked.
type ExpectSpec struct {
	Status  string     `json:"status"`
	Message *string    `json:"message,omitempty"`
	Logs    *[]LogSpec `json:"logs,omitempty"`
	Out     []string   `json:"out,omitempty"`
	GasUsed string     `json:"gasUsed,omitempty"`
}

// LogSpec describes an expected log.
type LogSpec struct {
	Address  string   `json:"address"`
	Endpoint string   `json:"endpoint"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data,omitempty"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return Parse(data)
}

// Parse decodes a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	for i, step := range s.Steps {
		switch step.Step {
		case StepSetState, StepCheckState:
		case StepTx:
			if step.Tx == nil {
				return nil, errors.Errorf("step %d: tx step without tx", i)
			}
		default:
			return nil, errors.Errorf("step %d: unknown step %q", i, step.Step)
		}
	}
	return &s, nil
}

// Input builds the transaction input.
func (t *TxSpec) Input() (*vm.TxInput, error) {
	from, err := ParseAddress(t.From)
	if err != nil {
		return nil, errors.Wrap(err, "from")
	}
	to, err := ParseAddress(t.To)
	if err != nil {
		return nil, errors.Wrap(err, "to")
	}
	in := &vm.TxInput{
		From:     from,
		To:       to,
		Function: t.Function,
		Args:     make([][]byte, 0, len(t.Arguments)),
	}
	for i, arg := range t.Arguments {
		b, err := ParseValue(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		in.Args = append(in.Args, b)
	}
	if t.Value != "" {
		if in.CallValue, err = ParseBig(t.Value); err != nil {
			return nil, errors.Wrap(err, "value")
		}
	}
	if t.GasLimit != "" {
		if in.GasLimit, err = ParseUint64(t.GasLimit); err != nil {
			return nil, errors.Wrap(err, "gas limit")
		}
	}
	return in, nil
}

// Build creates the account at addr described by s.
func (s *AccountSpec) Build(addr string) (*accounts.Account, error) {
	address, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	acc := accounts.NewAccount(address)
	if s.Nonce != "" {
		if acc.Nonce, err = ParseUint64(s.Nonce); err != nil {
			return nil, errors.Wrap(err, "nonce")
		}
	}
	if s.Balance != "" {
		if acc.Balance, err = ParseBig(s.Balance); err != nil {
			return nil, errors.Wrap(err, "balance")
		}
	}
	if s.DeveloperRewards != "" {
		if acc.DeveloperRewards, err = ParseBig(s.DeveloperRewards); err != nil {
			return nil, errors.Wrap(err, "developer rewards")
		}
	}
	if s.Username != "" {
		if acc.Username, err = ParseValue(s.Username); err != nil {
			return nil, errors.Wrap(err, "username")
		}
	}
	if s.Code != "" {
		if acc.Code, err = ParseValue(s.Code); err != nil {
			return nil, errors.Wrap(err, "code")
		}
	}
	if s.Owner != "" {
		if acc.Owner, err = ParseAddress(s.Owner); err != nil {
			return nil, errors.Wrap(err, "owner")
		}
	}
	for key, value := range s.Storage {
		k, err := ParseValue(key)
		if err != nil {
			return nil, errors.Wrap(err, "storage key")
		}
		v, err := ParseValue(value)
		if err != nil {
			return nil, errors.Wrap(err, "storage value")
		}
		acc.Storage[string(k)] = v
	}
	for tokenKey, spec := range s.DCDT {
		token, err := ParseValue(tokenKey)
		if err != nil {
			return nil, errors.Wrap(err, "token")
		}
		if err := spec.apply(acc, token); err != nil {
			return nil, errors.Wrapf(err, "token %s", token)
		}
	}
	return acc, nil
}

func (s *TokenSpec) apply(acc *accounts.Account, token []byte) error {
	acc.SetRoles(token, s.Roles...)
	data := acc.Token(token)
	for _, is := range s.Instances {
		inst, err := is.build()
		if err != nil {
			return err
		}
		data.Instances[inst.Nonce] = inst
		if inst.Nonce > data.LastNonce {
			data.LastNonce = inst.Nonce
		}
	}
	if s.LastNonce != "" {
		n, err := ParseUint64(s.LastNonce)
		if err != nil {
			return errors.Wrap(err, "last nonce")
		}
		data.LastNonce = n
	}
	return nil
}

func (s *InstanceSpec) build() (*accounts.TokenInstance, error) {
	var err error
	inst := &accounts.TokenInstance{Balance: new(big.Int)}
	if inst.Nonce, err = ParseUint64(s.Nonce); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	if s.Balance != "" {
		if inst.Balance, err = ParseBig(s.Balance); err != nil {
			return nil, errors.Wrap(err, "balance")
		}
	}
	if s.Name != "" {
		if inst.Name, err = ParseValue(s.Name); err != nil {
			return nil, errors.Wrap(err, "name")
		}
	}
	if s.Creator != "" {
		if inst.Creator, err = ParseAddress(s.Creator); err != nil {
			return nil, errors.Wrap(err, "creator")
		}
	}
	if s.Royalties != "" {
		if inst.Royalties, err = ParseUint64(s.Royalties); err != nil {
			return nil, errors.Wrap(err, "royalties")
		}
	}
	if s.Hash != "" {
		if inst.Hash, err = ParseValue(s.Hash); err != nil {
			return nil, errors.Wrap(err, "hash")
		}
	}
	if s.Attributes != "" {
		if inst.Attributes, err = ParseValue(s.Attributes); err != nil {
			return nil, errors.Wrap(err, "attributes")
		}
	}
	for _, uri := range s.URIs {
		b, err := ParseValue(uri)
		if err != nil {
			return nil, errors.Wrap(err, "uri")
		}
		inst.URIs = append(inst.URIs, b)
	}
	return inst, nil
}

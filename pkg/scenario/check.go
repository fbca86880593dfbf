package scenario

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
)

// ErrMismatch is returned when a result or account differs from its
// expectation.
var ErrMismatch = errors.New("mismatch")

func mismatch(format string, args ...interface{}) error {
	return errors.Wrap(ErrMismatch, fmt.Sprintf(format, args...))
}

// Check compares a transaction result with the expectation.
func (e *ExpectSpec) Check(result *vm.TxResult) error {
	status := e.Status
	if status == "" {
		status = "0"
	}
	if status != Any {
		want, err := ParseUint64(status)
		if err != nil {
			return errors.Wrap(err, "status")
		}
		if uint64(result.Status) != want {
			return mismatch("status: want %d, got %d (%s)", want, result.Status, result.Message)
		}
	}
	if e.Message != nil && *e.Message != Any && *e.Message != result.Message {
		return mismatch("message: want %q, got %q", *e.Message, result.Message)
	}
	if e.GasUsed != "" && e.GasUsed != Any {
		want, err := ParseUint64(e.GasUsed)
		if err != nil {
			return errors.Wrap(err, "gas used")
		}
		if result.GasUsed != want {
			return mismatch("gas used: want %d, got %d", want, result.GasUsed)
		}
	}
	if e.Out != nil {
		if err := checkValues("out", e.Out, result.ReturnData); err != nil {
			return err
		}
	}
	if e.Logs != nil {
		logs := *e.Logs
		if len(logs) != len(result.Logs) {
			return mismatch("logs: want %d, got %d", len(logs), len(result.Logs))
		}
		for i := range logs {
			if err := logs[i].check(&result.Logs[i]); err != nil {
				return errors.Wrapf(err, "log %d", i)
			}
		}
	}
	return nil
}

func (l *LogSpec) check(log *vm.TxLog) error {
	if l.Address != Any {
		addr, err := ParseAddress(l.Address)
		if err != nil {
			return errors.Wrap(err, "address")
		}
		if addr != log.Address {
			return mismatch("address: want %s, got %s", addr, log.Address)
		}
	}
	if l.Endpoint != Any && l.Endpoint != log.Endpoint {
		return mismatch("endpoint: want %q, got %q", l.Endpoint, log.Endpoint)
	}
	if err := checkValues("topics", l.Topics, log.Topics); err != nil {
		return err
	}
	return checkValue("data", l.Data, log.Data)
}

func checkValues(field string, want []string, got [][]byte) error {
	if len(want) != len(got) {
		return mismatch("%s: want %d values, got %d", field, len(want), len(got))
	}
	for i := range want {
		if err := checkValue(fmt.Sprintf("%s[%d]", field, i), want[i], got[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(field, want string, got []byte) error {
	if want == Any {
		return nil
	}
	b, err := ParseValue(want)
	if err != nil {
		return errors.Wrap(err, field)
	}
	if !bytes.Equal(b, got) {
		return mismatch("%s: want 0x%x, got 0x%x", field, b, got)
	}
	return nil
}

func checkBig(field, want string, got *big.Int) error {
	if want == "" || want == Any {
		return nil
	}
	v, err := ParseBig(want)
	if err != nil {
		return errors.Wrap(err, field)
	}
	if got == nil {
		got = new(big.Int)
	}
	if v.Cmp(got) != 0 {
		return mismatch("%s: want %s, got %s", field, v, got)
	}
	return nil
}

func checkUint64(field, want string, got uint64) error {
	if want == "" || want == Any {
		return nil
	}
	v, err := ParseUint64(want)
	if err != nil {
		return errors.Wrap(err, field)
	}
	if v != got {
		return mismatch("%s: want %d, got %d", field, v, got)
	}
	return nil
}

func checkOptional(field, want string, got []byte) error {
	if want == "" {
		return nil
	}
	return checkValue(field, want, got)
}

// Check compares acc with s. Fields left empty are not compared.
func (s *AccountSpec) Check(acc *accounts.Account) error {
	if err := checkUint64("nonce", s.Nonce, acc.Nonce); err != nil {
		return err
	}
	if err := checkBig("balance", s.Balance, acc.Balance); err != nil {
		return err
	}
	if err := checkBig("developerRewards", s.DeveloperRewards, acc.DeveloperRewards); err != nil {
		return err
	}
	if err := checkOptional("username", s.Username, acc.Username); err != nil {
		return err
	}
	if err := checkOptional("code", s.Code, acc.Code); err != nil {
		return err
	}
	if s.Owner != "" && s.Owner != Any {
		owner, err := ParseAddress(s.Owner)
		if err != nil {
			return errors.Wrap(err, "owner")
		}
		if owner != acc.Owner {
			return mismatch("owner: want %s, got %s", owner, acc.Owner)
		}
	}
	keys := make([]string, 0, len(s.Storage))
	for k := range s.Storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		k, err := ParseValue(key)
		if err != nil {
			return errors.Wrap(err, "storage key")
		}
		if err := checkValue("storage "+key, s.Storage[key], acc.Storage[string(k)]); err != nil {
			return err
		}
	}
	tokens := make([]string, 0, len(s.DCDT))
	for k := range s.DCDT {
		tokens = append(tokens, k)
	}
	sort.Strings(tokens)
	for _, key := range tokens {
		token, err := ParseValue(key)
		if err != nil {
			return errors.Wrap(err, "token")
		}
		spec := s.DCDT[key]
		if err := spec.check(acc, token); err != nil {
			return errors.Wrapf(err, "token %s", token)
		}
	}
	return nil
}

func (s *TokenSpec) check(acc *accounts.Account, token []byte) error {
	data := acc.Token(token)
	if data == nil {
		if len(s.Instances) == 0 && len(s.Roles) == 0 && s.LastNonce == "" {
			return nil
		}
		return mismatch("no holdings")
	}
	if err := checkUint64("lastNonce", s.LastNonce, data.LastNonce); err != nil {
		return err
	}
	for _, role := range s.Roles {
		if !acc.HasRole(token, role) {
			return mismatch("missing role %s", role)
		}
	}
	for _, is := range s.Instances {
		nonce, err := ParseUint64(is.Nonce)
		if err != nil {
			return errors.Wrap(err, "nonce")
		}
		inst := data.Instances[nonce]
		if inst == nil {
			if is.Balance == "" || is.Balance == Any {
				continue
			}
			if v, err := ParseBig(is.Balance); err == nil && v.Sign() == 0 {
				continue
			}
			return mismatch("nonce %d: no instance", nonce)
		}
		if err := is.check(inst); err != nil {
			return errors.Wrapf(err, "nonce %d", nonce)
		}
	}
	return nil
}

func (s *InstanceSpec) check(inst *accounts.TokenInstance) error {
	if err := checkBig("balance", s.Balance, inst.Balance); err != nil {
		return err
	}
	if err := checkOptional("name", s.Name, inst.Name); err != nil {
		return err
	}
	if s.Creator != "" && s.Creator != Any {
		creator, err := ParseAddress(s.Creator)
		if err != nil {
			return errors.Wrap(err, "creator")
		}
		if creator != inst.Creator {
			return mismatch("creator: want %s, got %s", creator, inst.Creator)
		}
	}
	if err := checkUint64("royalties", s.Royalties, inst.Royalties); err != nil {
		return err
	}
	if err := checkOptional("hash", s.Hash, inst.Hash); err != nil {
		return err
	}
	if err := checkOptional("attributes", s.Attributes, inst.Attributes); err != nil {
		return err
	}
	if s.URIs != nil {
		return checkValues("uris", s.URIs, inst.URIs)
	}
	return nil
}

// Package vm defines the values that cross the execution boundary:
// transaction inputs, results, logs and return codes, plus the gas meter
// used to charge builtin functions.
package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"golang.org/x/crypto/sha3"
)

// ReturnCode is the status of a transaction. Values match the ledger's
// numbering.
type ReturnCode uint8

const (
	Success                ReturnCode = 0
	FunctionNotFound       ReturnCode = 1
	FunctionWrongSignature ReturnCode = 2
	ContractNotFound       ReturnCode = 3
	UserError              ReturnCode = 4
	OutOfGas               ReturnCode = 5
	AccountCollision       ReturnCode = 6
	OutOfFunds             ReturnCode = 7
	CallStackOverflow      ReturnCode = 8
	ContractInvalid        ReturnCode = 9
	ExecutionFailed        ReturnCode = 10
)

var returnCodeNames = map[ReturnCode]string{
	Success:                "ok",
	FunctionNotFound:       "function not found",
	FunctionWrongSignature: "wrong signature for function",
	ContractNotFound:       "contract not found",
	UserError:              "user error",
	OutOfGas:               "out of gas",
	AccountCollision:       "account collision",
	OutOfFunds:             "out of funds",
	CallStackOverflow:      "call stack overflow",
	ContractInvalid:        "contract invalid",
	ExecutionFailed:        "execution failed",
}

// String returns the ledger's message for the code.
func (c ReturnCode) String() string {
	if name, ok := returnCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown return code %d", uint8(c))
}

// TxInput is a transaction as handed to the executor. It is treated as
// immutable once constructed.
type TxInput struct {
	From      types.Address
	To        types.Address
	Function  string
	Args      [][]byte
	CallValue *big.Int
	GasLimit  uint64
}

// Value returns the call value, zero when unset.
func (in *TxInput) Value() *big.Int {
	if in.CallValue == nil {
		return new(big.Int)
	}
	return in.CallValue
}

// Hash returns the Keccak-256 hash of the canonical encoding of the input.
func (in *TxInput) Hash() types.Hash {
	h := sha3.NewLegacyKeccak256()
	var n [8]byte

	h.Write(in.From[:])
	h.Write(in.To[:])
	writeField := func(b []byte) {
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeField([]byte(in.Function))
	binary.BigEndian.PutUint64(n[:], uint64(len(in.Args)))
	h.Write(n[:])
	for _, arg := range in.Args {
		writeField(arg)
	}
	writeField(types.EncodeBigUint(in.CallValue))
	binary.BigEndian.PutUint64(n[:], in.GasLimit)
	h.Write(n[:])

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// TxLog is an event emitted by a transaction.
type TxLog struct {
	Address  types.Address
	Endpoint string
	Topics   [][]byte
	Data     []byte
}

// TxResult is the outcome of a transaction. Failures are reported here
// rather than as Go errors.
type TxResult struct {
	Status     ReturnCode
	Message    string
	Logs       []TxLog
	ReturnData [][]byte
	GasUsed    uint64
}

// FromVMError returns a failed result carrying message.
func FromVMError(message string) *TxResult {
	return Failed(ExecutionFailed, message)
}

// Failed returns a failed result with the given code.
func Failed(code ReturnCode, message string) *TxResult {
	return &TxResult{Status: code, Message: message}
}

// Succeeded reports whether the transaction succeeded.
func (r *TxResult) Succeeded() bool {
	return r.Status == Success
}

// Merge appends the logs and return data of a nested call to r.
func (r *TxResult) Merge(nested *TxResult) {
	r.Logs = append(r.Logs, nested.Logs...)
	r.ReturnData = append(r.ReturnData, nested.ReturnData...)
	r.GasUsed += nested.GasUsed
}

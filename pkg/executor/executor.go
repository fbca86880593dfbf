// Package executor is the dispatch boundary of the engine.
//
// The executor receives a transaction, looks its function up in the builtin
// registry and runs it against a transaction cache over the account store.
// Calls that are not builtins go to contract dispatch or, for plain accounts,
// move base currency. Successful transactions are committed to the store in
// full; failed ones are discarded in full. Either way a receipt is recorded
// and the logs of committed transactions are published.
package executor

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/fortiblox/stratus-builtins/internal/logging"
	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/receipts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/fortiblox/stratus-builtins/pkg/vm/builtin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:generate mockgen -source executor.go -destination executor_mocks.go -package executor

// DefaultMaxCallDepth bounds nested calls.
const DefaultMaxCallDepth = 32

// ContractCaller executes contract code. Implementations mutate state only
// through cache and may call back into Executor.ExecuteNested with depth+1.
type ContractCaller interface {
	Call(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error)
}

// LogSink receives the logs of committed transactions.
type LogSink interface {
	Publish(txHash types.Hash, seq uint64, logs []vm.TxLog)
}

// ReceiptSink records the outcome of every executed transaction.
type ReceiptSink interface {
	PutReceipt(r *receipts.Receipt) error
}

// Config holds executor configuration.
type Config struct {
	// MaxCallDepth bounds nested calls. Deeper calls fail with
	// CallStackOverflow.
	MaxCallDepth int

	// EnforceRoles makes builtins check token roles.
	EnforceRoles bool

	// Gas is the builtin cost schedule. Nil disables gas accounting.
	Gas *vm.GasSchedule

	// Contracts executes calls to contract accounts. Nil makes such calls
	// fail with ContractInvalid.
	Contracts ContractCaller

	// Logs and Receipts are optional observers.
	Logs     LogSink
	Receipts ReceiptSink

	Logger *zap.Logger
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxCallDepth: DefaultMaxCallDepth,
		Gas:          vm.DefaultGasSchedule(),
	}
}

// Executor runs transactions against an account store. Top-level
// transactions are serialized.
type Executor struct {
	mu       sync.Mutex
	db       accounts.DB
	registry *builtin.Registry
	ctx      *builtin.Context
	config   Config
	log      *zap.Logger
}

// New creates an executor over db. A nil registry uses
// builtin.DefaultRegistry.
func New(db accounts.DB, registry *builtin.Registry, config Config) *Executor {
	if registry == nil {
		registry = builtin.DefaultRegistry()
	}
	if config.MaxCallDepth <= 0 {
		config.MaxCallDepth = DefaultMaxCallDepth
	}
	logger := logging.OrNop(config.Logger)
	return &Executor{
		db:       db,
		registry: registry,
		ctx: &builtin.Context{
			Gas:          config.Gas,
			EnforceRoles: config.EnforceRoles,
			Logger:       logger,
		},
		config: config,
		log:    logger,
	}
}

// Registry returns the builtin registry.
func (e *Executor) Registry() *builtin.Registry {
	return e.registry
}

// Execute runs in as a top-level transaction and commits or discards its
// effects. Ledger failures are reported in the result. The error is only
// set when the state or the sequence could not be committed. Receipts are
// recorded after the commit, so a receipt that cannot be stored is logged and
// the committed result is still returned.
func (e *Executor) Execute(in *vm.TxInput) (*vm.TxResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cache := txcache.New(e.db)
	result, err := e.ExecuteNested(in, cache, 0)
	if err != nil {
		return nil, err
	}

	seq := e.db.GetSequence() + 1
	log := e.log.With(zap.Uint64("sequence", seq), zap.String("function", in.Function))

	if result.Succeeded() {
		update, err := cache.IntoUpdate()
		if err != nil {
			return nil, errors.Wrap(err, "collect update")
		}
		if err := update.Apply(e.db); err != nil {
			log.Error("commit failed", zap.Error(err))
			return nil, errors.Wrap(err, "commit update")
		}
		log.Debug("transaction committed", zap.Int("accounts", update.Len()), zap.Int("logs", len(result.Logs)))
	} else {
		log.Debug("transaction failed", zap.Stringer("status", result.Status), zap.String("message", result.Message))
	}

	if err := e.db.SetSequence(seq); err != nil {
		return nil, errors.Wrap(err, "set sequence")
	}
	if err := e.db.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit store")
	}

	if e.config.Receipts != nil {
		if err := e.config.Receipts.PutReceipt(receipts.NewReceipt(seq, in, result)); err != nil {
			log.Error("store receipt failed", zap.String("tx", in.Hash().Hex()), zap.Error(err))
		}
	}
	if e.config.Logs != nil && result.Succeeded() && len(result.Logs) > 0 {
		e.config.Logs.Publish(in.Hash(), seq, result.Logs)
	}
	return result, nil
}

// ExecuteNested runs in against cache at the given call depth without
// committing. A failed call leaves cache as it was before the call.
func (e *Executor) ExecuteNested(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
	if depth > e.config.MaxCallDepth {
		return vm.Failed(vm.CallStackOverflow, vm.CallStackOverflow.String()), nil
	}

	if fn, ok := e.registry.Lookup(in.Function); ok {
		e.log.Debug("dispatch builtin", zap.String("function", in.Function), zap.Int("depth", depth))
		return e.executeBuiltin(fn, in, cache, depth)
	}
	return e.executeCall(in, cache, depth)
}

// executeBuiltin runs fn and the contract call it may request. A failed
// follow-up call aborts the builtin.
func (e *Executor) executeBuiltin(fn builtin.BuiltinFunction, in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
	pending, fail := builtin.Begin(fn, e.ctx, in, cache)
	if fail != nil {
		return fail, nil
	}
	if err := pending.Apply(); err != nil {
		if pending.Failure() != nil {
			return pending.Failure(), nil
		}
		return nil, errors.Wrapf(err, "apply %s", fn.Name())
	}

	var nested *vm.TxResult
	if call := pending.FollowUp(); call != nil {
		var err error
		nested, err = e.ExecuteNested(call, cache, depth+1)
		if err != nil {
			if _, _, aerr := pending.Abort(err.Error()); aerr != nil {
				return nil, errors.Wrap(aerr, "abort builtin")
			}
			return nil, err
		}
		if !nested.Succeeded() {
			failed, _, err := pending.Abort(nested.Message)
			if err != nil {
				return nil, errors.Wrap(err, "abort builtin")
			}
			failed.Status = nested.Status
			return failed, nil
		}
	}

	result, _, err := pending.Finalize()
	if err != nil {
		return nil, errors.Wrapf(err, "finalize %s", fn.Name())
	}
	if nested != nil {
		result.Merge(nested)
	}
	return result, nil
}

// executeCall handles calls that are not builtins: value moves first, then
// the contract, if any, runs. Any failure reverts both.
func (e *Executor) executeCall(in *vm.TxInput, cache *txcache.TxCache, depth int) (*vm.TxResult, error) {
	dest, err := cache.Read(in.To)
	if err != nil {
		return nil, err
	}
	if !dest.IsContract() && in.Function != "" {
		return vm.Failed(vm.FunctionNotFound, fmt.Sprintf("invalid function %q", in.Function)), nil
	}

	checkpoint := cache.Checkpoint()
	if fail, err := e.transferValue(in, cache); err != nil || fail != nil {
		return fail, err
	}
	if !dest.IsContract() {
		return &vm.TxResult{Status: vm.Success}, nil
	}

	if e.config.Contracts == nil {
		if err := cache.RevertTo(checkpoint); err != nil {
			return nil, err
		}
		return vm.Failed(vm.ContractInvalid, "contract execution not available"), nil
	}

	e.log.Debug("dispatch contract", zap.Stringer("to", in.To), zap.String("function", in.Function), zap.Int("depth", depth))
	result, err := e.config.Contracts.Call(in, cache, depth)
	if err == nil && result.Succeeded() {
		return result, nil
	}
	if rerr := cache.RevertTo(checkpoint); rerr != nil {
		return nil, errors.Wrap(rerr, "revert contract call")
	}
	if err != nil {
		return nil, errors.Wrap(err, "contract call")
	}
	return result, nil
}

// transferValue moves the call value of in from sender to receiver.
func (e *Executor) transferValue(in *vm.TxInput, cache *txcache.TxCache) (*vm.TxResult, error) {
	value := in.Value()
	if value.Sign() == 0 {
		return nil, nil
	}
	if value.Sign() < 0 {
		return vm.FromVMError("negative value"), nil
	}

	sender, err := cache.Read(in.From)
	if err != nil {
		return nil, err
	}
	if sender.Balance.Cmp(value) < 0 {
		return vm.Failed(vm.OutOfFunds, vm.OutOfFunds.String()), nil
	}

	amount := new(big.Int).Set(value)
	if err := cache.Mutate(in.From, func(acc *accounts.Account) error {
		acc.Balance.Sub(acc.Balance, amount)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := cache.Mutate(in.To, func(acc *accounts.Account) error {
		acc.Balance.Add(acc.Balance, amount)
		return nil
	}); err != nil {
		return nil, err
	}
	return nil, nil
}

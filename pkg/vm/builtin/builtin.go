// Package builtin implements the native token operations of the ledger:
// minting, burning, transferring and mutating NFT metadata.
//
// Every builtin runs in two phases. Prepare validates the input against the
// current state and returns an Effect; nothing is written to the cache until
// the Effect runs. Begin, Pending.Apply and Pending.Finalize drive those
// phases explicitly, and Execute runs all of them in one call.
package builtin

import (
	"github.com/fortiblox/stratus-builtins/internal/logging"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/txcache"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Error types. Their messages end up in failed results.
var (
	ErrInvalidPhase       = errors.New("invalid phase")
	ErrCallValueNotZero   = errors.New("built in function called with tx value is not allowed")
	ErrActionNotAllowed   = errors.New("action is not allowed")
	ErrInsufficientFunds  = accounts.ErrInsufficientFunds
	ErrInvalidValue       = errors.New("invalid value")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUserNameAlreadySet = errors.New("username already set")
	ErrNotOwner           = errors.New("operation in account not permitted")
	ErrNotContract        = errors.New("destination is not a smart contract")
	ErrNoRewards          = errors.New("no developer rewards to claim")
	ErrTokenNotFound      = errors.New("token instance not found")
)

// BuiltinFunction is a native operation invoked like a contract call.
type BuiltinFunction interface {
	// Name returns the canonical function name.
	Name() string

	// Prepare validates in against the state visible through cache and
	// returns the effect to apply. Prepare must not mutate cache.
	Prepare(ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (Effect, error)
}

// Effect applies a validated operation to the cache.
type Effect func(cache *txcache.TxCache) (*Outcome, error)

// Outcome is what an applied effect produced.
type Outcome struct {
	Logs       []vm.TxLog
	ReturnData [][]byte

	// FollowUp is a contract call requested by a transfer, if any.
	FollowUp *vm.TxInput
}

// Context carries execution settings shared by all builtins.
type Context struct {
	// Gas is the flat cost schedule. Nil disables gas accounting.
	Gas *vm.GasSchedule

	// EnforceRoles makes token operations check the sender's token roles.
	EnforceRoles bool

	Logger *zap.Logger
}

// DefaultContext returns a context with the default gas schedule and role
// checks disabled.
func DefaultContext() *Context {
	return &Context{
		Gas:    vm.DefaultGasSchedule(),
		Logger: zap.NewNop(),
	}
}

func (c *Context) logger() *zap.Logger {
	if c == nil {
		return zap.NewNop()
	}
	return logging.OrNop(c.Logger)
}

// Phase is the state of a Pending call.
type Phase int

const (
	PhaseValidated Phase = iota + 1
	PhaseMutated
	PhaseFinalized
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseValidated:
		return "validated"
	case PhaseMutated:
		return "mutated"
	case PhaseFinalized:
		return "finalized"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Pending is a validated builtin call waiting to be applied and finalized.
type Pending struct {
	fn         BuiltinFunction
	ctx        *Context
	in         *vm.TxInput
	cache      *txcache.TxCache
	effect     Effect
	checkpoint int
	gasUsed    uint64
	outcome    *Outcome
	failure    *vm.TxResult
	phase      Phase
}

// Begin validates a call of fn. On success it returns a Pending in phase
// PhaseValidated; otherwise it returns the failed result and the cache is
// left untouched.
func Begin(fn BuiltinFunction, ctx *Context, in *vm.TxInput, cache *txcache.TxCache) (*Pending, *vm.TxResult) {
	if ctx == nil {
		ctx = DefaultContext()
	}
	log := ctx.logger().With(zap.String("function", fn.Name()), zap.Stringer("from", in.From))

	if in.Value().Sign() != 0 {
		log.Debug("builtin rejected", zap.Error(ErrCallValueNotZero))
		return nil, failure(ErrCallValueNotZero)
	}

	effect, err := fn.Prepare(ctx, in, cache)
	if err != nil {
		log.Debug("builtin rejected", zap.Error(err))
		return nil, failure(err)
	}

	meter := vm.NewGasMeter(in.GasLimit)
	if err := meter.Consume(ctx.Gas.Cost(fn.Name(), in.Args)); err != nil {
		log.Debug("builtin rejected", zap.Error(err), zap.Uint64("gasLimit", in.GasLimit))
		return nil, failure(err)
	}

	return &Pending{
		fn:         fn,
		ctx:        ctx,
		in:         in,
		cache:      cache,
		effect:     effect,
		checkpoint: cache.Checkpoint(),
		gasUsed:    meter.Consumed(),
		phase:      PhaseValidated,
	}, nil
}

// Phase returns the current phase.
func (p *Pending) Phase() Phase {
	return p.phase
}

// Apply runs the effect against the cache. If the effect fails, every
// mutation it made is reverted, the call is aborted and the error returned.
func (p *Pending) Apply() error {
	if p.phase != PhaseValidated {
		return ErrInvalidPhase
	}

	outcome, err := p.effect(p.cache)
	if err != nil {
		if rerr := p.cache.RevertTo(p.checkpoint); rerr != nil {
			return errors.Wrap(rerr, "revert failed effect")
		}
		p.phase = PhaseAborted
		p.failure = failure(err)
		p.ctx.logger().Warn("builtin effect failed",
			zap.String("function", p.fn.Name()), zap.Error(err))
		return err
	}

	p.outcome = outcome
	p.phase = PhaseMutated
	return nil
}

// FollowUp returns the contract call requested by the applied effect, or
// nil when there is none or the effect has not been applied yet.
func (p *Pending) FollowUp() *vm.TxInput {
	if p.outcome == nil {
		return nil
	}
	return p.outcome.FollowUp
}

// Finalize completes an applied call, returning the success result and the
// mutations accumulated in the cache.
func (p *Pending) Finalize() (*vm.TxResult, *txcache.BlockchainUpdate, error) {
	if p.phase != PhaseMutated {
		return nil, nil, ErrInvalidPhase
	}
	p.phase = PhaseFinalized

	result := &vm.TxResult{
		Status:     vm.Success,
		Logs:       p.outcome.Logs,
		ReturnData: p.outcome.ReturnData,
		GasUsed:    p.gasUsed,
	}
	return result, p.cache.Update(), nil
}

// Abort reverts everything the call wrote to the cache and returns a failed
// result carrying reason, with an empty update.
func (p *Pending) Abort(reason string) (*vm.TxResult, *txcache.BlockchainUpdate, error) {
	if p.phase != PhaseValidated && p.phase != PhaseMutated {
		return nil, nil, ErrInvalidPhase
	}
	if err := p.cache.RevertTo(p.checkpoint); err != nil {
		return nil, nil, errors.Wrap(err, "revert aborted call")
	}
	p.phase = PhaseAborted
	p.failure = vm.FromVMError(reason)
	return p.failure, txcache.EmptyUpdate(), nil
}

// Input returns the transaction input of the call.
func (p *Pending) Input() *vm.TxInput {
	return p.in
}

// Failure returns the failed result of an aborted call.
func (p *Pending) Failure() *vm.TxResult {
	return p.failure
}

// Execute runs fn to completion: validation, mutation, the optional
// continuation and finalization. cont, when non-nil, is called exactly once
// after the mutation and before finalization. Failed calls return an empty
// update and leave the cache as it was.
func Execute(fn BuiltinFunction, ctx *Context, in *vm.TxInput, cache *txcache.TxCache, cont func()) (*vm.TxResult, *txcache.BlockchainUpdate) {
	p, fail := Begin(fn, ctx, in, cache)
	if fail != nil {
		return fail, txcache.EmptyUpdate()
	}
	if err := p.Apply(); err != nil {
		if p.Failure() != nil {
			return p.Failure(), txcache.EmptyUpdate()
		}
		return failure(err), txcache.EmptyUpdate()
	}
	if cont != nil {
		cont()
	}
	result, update, err := p.Finalize()
	if err != nil {
		return failure(err), txcache.EmptyUpdate()
	}
	return result, update
}

// failure converts a validation or effect error into a failed result.
func failure(err error) *vm.TxResult {
	if errors.Is(err, vm.ErrOutOfGas) {
		return vm.Failed(vm.OutOfGas, err.Error())
	}
	return vm.FromVMError(err.Error())
}

package vm

import (
	"github.com/pkg/errors"
)

// Default flat gas costs. These are fixed per operation and are not meant to
// reproduce a real ledger's cost model.
const (
	GasDCDTLocalMint           = uint64(50_000)
	GasDCDTLocalBurn           = uint64(50_000)
	GasDCDTNFTCreate           = uint64(150_000)
	GasDCDTNFTAddQuantity      = uint64(50_000)
	GasDCDTNFTBurn             = uint64(50_000)
	GasDCDTNFTAddURI           = uint64(50_000)
	GasDCDTNFTUpdateAttributes = uint64(50_000)
	GasDCDTTransfer            = uint64(200_000)
	GasDCDTNFTTransfer         = uint64(200_000)
	GasMultiDCDTNFTTransfer    = uint64(200_000)
	GasChangeOwnerAddress      = uint64(5_000_000)
	GasSetUserName             = uint64(1_000_000)
	GasClaimDeveloperRewards   = uint64(6_000_000)

	// GasPerDataByte is charged for every argument byte.
	GasPerDataByte = uint64(1_500)
)

var (
	// ErrOutOfGas is returned when the gas limit is exhausted.
	ErrOutOfGas = errors.New("not enough gas")
)

// GasMeter tracks gas consumption of one call. A meter with a zero limit is
// unmetered: every charge succeeds and is still recorded.
type GasMeter struct {
	limit    uint64
	consumed uint64
}

// NewGasMeter creates a meter for the given limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges cost. Returns ErrOutOfGas, without charging, if the
// remaining gas is insufficient.
func (m *GasMeter) Consume(cost uint64) error {
	if m.limit == 0 {
		m.consumed += cost
		return nil
	}
	if m.Remaining() < cost {
		return ErrOutOfGas
	}
	m.consumed += cost
	return nil
}

// Remaining returns the gas left. Unmetered meters report zero.
func (m *GasMeter) Remaining() uint64 {
	if m.limit == 0 || m.consumed >= m.limit {
		return 0
	}
	return m.limit - m.consumed
}

// Consumed returns the total gas consumed.
func (m *GasMeter) Consumed() uint64 {
	return m.consumed
}

// Limit returns the gas limit.
func (m *GasMeter) Limit() uint64 {
	return m.limit
}

// Unmetered reports whether the meter has no limit.
func (m *GasMeter) Unmetered() bool {
	return m.limit == 0
}

// GasSchedule maps builtin function names to their flat cost.
type GasSchedule struct {
	Costs       map[string]uint64
	PerDataByte uint64
}

// DefaultGasSchedule returns the default flat costs.
func DefaultGasSchedule() *GasSchedule {
	return &GasSchedule{
		Costs: map[string]uint64{
			"DCDTLocalMint":           GasDCDTLocalMint,
			"DCDTLocalBurn":           GasDCDTLocalBurn,
			"DCDTNFTCreate":           GasDCDTNFTCreate,
			"DCDTNFTAddQuantity":      GasDCDTNFTAddQuantity,
			"DCDTNFTBurn":             GasDCDTNFTBurn,
			"DCDTNFTAddURI":           GasDCDTNFTAddURI,
			"DCDTNFTUpdateAttributes": GasDCDTNFTUpdateAttributes,
			"DCDTTransfer":            GasDCDTTransfer,
			"DCDTNFTTransfer":         GasDCDTNFTTransfer,
			"MultiDCDTNFTTransfer":    GasMultiDCDTNFTTransfer,
			"ChangeOwnerAddress":      GasChangeOwnerAddress,
			"SetUserName":             GasSetUserName,
			"ClaimDeveloperRewards":   GasClaimDeveloperRewards,
		},
		PerDataByte: GasPerDataByte,
	}
}

// Cost returns the cost of calling name with args. Unknown names cost only
// their data bytes. A nil schedule costs nothing.
func (s *GasSchedule) Cost(name string, args [][]byte) uint64 {
	if s == nil {
		return 0
	}
	cost := s.Costs[name]
	for _, arg := range args {
		cost += uint64(len(arg)) * s.PerDataByte
	}
	return cost
}

package engine

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/volbot/volcluster/internal/config"
	"github.com/volbot/volcluster/internal/domain"
)

var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// TradeParams is one cycle's randomized trade sizing.
type TradeParams struct {
	AmountSOL      decimal.Decimal
	AmountLamports uint64
	VolumeEstimate float64
}

// ParamGenerator derives per-cycle trade amounts from the tier table. The
// draw is uniform within the tier's bounds; no state is carried between
// cycles.
type ParamGenerator struct {
	cfg config.Config
}

func NewParamGenerator(cfg config.Config) *ParamGenerator {
	return &ParamGenerator{cfg: cfg}
}

func (g *ParamGenerator) Next(plan domain.PlanID) (TradeParams, error) {
	tier, ok := g.cfg.Tier(plan)
	if !ok {
		return TradeParams{}, fmt.Errorf("unknown plan %q", plan)
	}
	amountSOL := tier.AmountMinSOL + rand.Float64()*(tier.AmountMaxSOL-tier.AmountMinSOL)

	d := decimal.NewFromFloat(amountSOL)
	lamports := d.Mul(lamportsPerSOL).Floor()

	return TradeParams{
		AmountSOL:      d,
		AmountLamports: uint64(lamports.IntPart()),
		VolumeEstimate: tier.VolumePerCycle,
	}, nil
}

// SOLToLamports converts a SOL amount to base units, flooring fractional
// lamports.
func SOLToLamports(sol float64) uint64 {
	return uint64(decimal.NewFromFloat(sol).Mul(lamportsPerSOL).Floor().IntPart())
}

// LamportsToSOL is the display-side inverse.
func LamportsToSOL(lamports uint64) float64 {
	f, _ := decimal.NewFromInt(int64(lamports)).Div(lamportsPerSOL).Float64()
	return f
}

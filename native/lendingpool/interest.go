package lendingpool

import "math/big"

// Utilisation breakpoints of the interest rate model, at E6 scale.
var utilisationBreakpointsE6 = []int64{500_000, 600_000, 700_000, 800_000, 900_000, 950_000, 1_000_000}

// InterestRateModel shapes how the debt rate reacts to reserve utilisation.
// It is a piecewise-linear curve through seven breakpoints; the segment below
// 50% utilisation starts at a zero rate. An asset without a model is a
// protocol stablecoin whose debt rate is administered directly.
type InterestRateModel struct {
	// Per-millisecond debt rates at the 50/60/70/80/90/95/100 % utilisation
	// breakpoints, in the same unit as CurrentDebtRateE18.
	RateAt50E18  *big.Int
	RateAt60E18  *big.Int
	RateAt70E18  *big.Int
	RateAt80E18  *big.Int
	RateAt90E18  *big.Int
	RateAt95E18  *big.Int
	RateAt100E18 *big.Int
}

// Clone returns a deep copy of the interest model.
func (m *InterestRateModel) Clone() *InterestRateModel {
	if m == nil {
		return nil
	}
	return &InterestRateModel{
		RateAt50E18:  cloneBig(m.RateAt50E18),
		RateAt60E18:  cloneBig(m.RateAt60E18),
		RateAt70E18:  cloneBig(m.RateAt70E18),
		RateAt80E18:  cloneBig(m.RateAt80E18),
		RateAt90E18:  cloneBig(m.RateAt90E18),
		RateAt95E18:  cloneBig(m.RateAt95E18),
		RateAt100E18: cloneBig(m.RateAt100E18),
	}
}

// EnsureDefaults populates nil breakpoint rates so RLP handling is safe.
func (m *InterestRateModel) EnsureDefaults() {
	if m.RateAt50E18 == nil {
		m.RateAt50E18 = big.NewInt(0)
	}
	if m.RateAt60E18 == nil {
		m.RateAt60E18 = big.NewInt(0)
	}
	if m.RateAt70E18 == nil {
		m.RateAt70E18 = big.NewInt(0)
	}
	if m.RateAt80E18 == nil {
		m.RateAt80E18 = big.NewInt(0)
	}
	if m.RateAt90E18 == nil {
		m.RateAt90E18 = big.NewInt(0)
	}
	if m.RateAt95E18 == nil {
		m.RateAt95E18 = big.NewInt(0)
	}
	if m.RateAt100E18 == nil {
		m.RateAt100E18 = big.NewInt(0)
	}
}

func (m *InterestRateModel) breakpointRates() []*big.Int {
	return []*big.Int{
		m.RateAt50E18, m.RateAt60E18, m.RateAt70E18, m.RateAt80E18,
		m.RateAt90E18, m.RateAt95E18, m.RateAt100E18,
	}
}

// Validate rejects models whose breakpoint rates decrease, which would make
// the derived curve fall as utilisation rises.
func (m *InterestRateModel) Validate() error {
	m.EnsureDefaults()
	rates := m.breakpointRates()
	for i := 1; i < len(rates); i++ {
		if rates[i].Cmp(rates[i-1]) < 0 {
			return ErrInvalidInterestRateModel
		}
	}
	return nil
}

// DebtRateE18 interpolates the debt rate for the given utilisation. Each
// segment adds +1 after its division so the rate is strictly positive for any
// positive utilisation; beyond 100% the curve extrapolates with the slope of
// the final segment.
func (m *InterestRateModel) DebtRateE18(utilisationE6 *big.Int) *big.Int {
	if m == nil || utilisationE6 == nil || utilisationE6.Sign() == 0 {
		return big.NewInt(0)
	}
	rates := m.breakpointRates()

	// Segment from the origin to the 50% breakpoint.
	first := big.NewInt(utilisationBreakpointsE6[0])
	if utilisationE6.Cmp(first) <= 0 {
		rate := new(big.Int).Mul(orZero(rates[0]), utilisationE6)
		rate.Quo(rate, first)
		return rate.Add(rate, big.NewInt(1))
	}

	for i := 1; i < len(utilisationBreakpointsE6); i++ {
		hi := big.NewInt(utilisationBreakpointsE6[i])
		if utilisationE6.Cmp(hi) > 0 {
			continue
		}
		lo := big.NewInt(utilisationBreakpointsE6[i-1])
		span := new(big.Int).Sub(hi, lo)
		rise := new(big.Int).Sub(orZero(rates[i]), orZero(rates[i-1]))
		offset := new(big.Int).Sub(utilisationE6, lo)
		rate := new(big.Int).Mul(rise, offset)
		rate.Quo(rate, span)
		rate.Add(rate, orZero(rates[i-1]))
		return rate.Add(rate, big.NewInt(1))
	}

	// Past full utilisation: extrapolate with the 95->100 segment slope.
	last := len(rates) - 1
	lo := big.NewInt(utilisationBreakpointsE6[last-1])
	hi := big.NewInt(utilisationBreakpointsE6[last])
	span := new(big.Int).Sub(hi, lo)
	rise := new(big.Int).Sub(orZero(rates[last]), orZero(rates[last-1]))
	offset := new(big.Int).Sub(utilisationE6, hi)
	rate := new(big.Int).Mul(rise, offset)
	rate.Quo(rate, span)
	rate.Add(rate, orZero(rates[last]))
	return rate.Add(rate, big.NewInt(1))
}

// recalculateRates re-derives the current rates of a reserve from its
// utilisation. Protocol stablecoins keep their administered debt rate and only
// re-derive the deposit side.
func recalculateRates(data *ReserveData, model *InterestRateModel) {
	if model != nil {
		data.CurrentDebtRateE18 = model.DebtRateE18(data.UtilisationE6())
	}
	if data.TotalDeposit == nil || data.TotalDeposit.Sign() == 0 ||
		data.TotalDebt == nil || data.TotalDebt.Sign() == 0 {
		data.CurrentDepositRateE18 = big.NewInt(0)
		return
	}
	rate := new(big.Int).Mul(data.TotalDebt, data.CurrentDebtRateE18)
	data.CurrentDepositRateE18 = rate.Quo(rate, data.TotalDeposit)
}

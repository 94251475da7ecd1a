package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// maxAssets caps the number of registered assets. The three account bitmaps
// are 128-bit values, so asset ids beyond 127 cannot be tracked.
const maxAssets = 128

// ReserveData captures the per-asset totals and the currently derived rates.
// Amount values are denominated in the asset's smallest unit and expressed as
// big integers to match on-chain precision.
type ReserveData struct {
	// Activated is the master gate; when false every action on the reserve
	// fails.
	Activated bool
	// Frozen blocks deposits and borrows while still allowing withdraws,
	// repays and liquidations.
	Frozen bool
	// TotalDeposit is the aggregate deposit balance across all accounts.
	TotalDeposit *big.Int
	// TotalDebt tracks the outstanding debt across all accounts.
	TotalDebt *big.Int
	// CurrentDepositRateE18 is the per-millisecond deposit rate derived from
	// utilisation.
	CurrentDepositRateE18 *big.Int
	// CurrentDebtRateE18 is the per-millisecond debt rate derived from
	// utilisation, or administered directly for protocol stablecoins.
	CurrentDebtRateE18 *big.Int
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (r *ReserveData) EnsureDefaults() {
	if r.TotalDeposit == nil {
		r.TotalDeposit = big.NewInt(0)
	}
	if r.TotalDebt == nil {
		r.TotalDebt = big.NewInt(0)
	}
	if r.CurrentDepositRateE18 == nil {
		r.CurrentDepositRateE18 = big.NewInt(0)
	}
	if r.CurrentDebtRateE18 == nil {
		r.CurrentDebtRateE18 = big.NewInt(0)
	}
}

// UtilisationE6 returns total debt over total deposit at E6 scale. An empty
// reserve reports full utilisation.
func (r *ReserveData) UtilisationE6() *big.Int {
	if r.TotalDeposit == nil || r.TotalDeposit.Sign() == 0 {
		return new(big.Int).Set(oneE6)
	}
	if r.TotalDebt == nil || r.TotalDebt.Sign() == 0 {
		return big.NewInt(0)
	}
	u := new(big.Int).Mul(r.TotalDebt, oneE6)
	return u.Quo(u, r.TotalDeposit)
}

// ReserveIndexesAndFees tracks the cumulative interest indexes of a reserve
// together with the fee cuts taken when interest materialises into accounts.
type ReserveIndexesAndFees struct {
	// DepositIndexE18 is the cumulative interest index applied to deposits.
	// Monotone non-decreasing, initialised to 1e18.
	DepositIndexE18 *big.Int
	// DebtIndexE18 is the cumulative interest index applied to debt.
	DebtIndexE18 *big.Int
	// DepositFeeE6 is the cut taken from accrued deposit interest, at most 1e6.
	DepositFeeE6 *big.Int
	// DebtFeeE6 is the surcharge added to accrued debt interest.
	DebtFeeE6 *big.Int
	// LastUpdateTimestamp records the millisecond timestamp when the indexes
	// were last advanced.
	LastUpdateTimestamp uint64
}

// EnsureDefaults initialises nil indexes to 1e18 and nil fees to zero.
func (r *ReserveIndexesAndFees) EnsureDefaults() {
	if r.DepositIndexE18 == nil || r.DepositIndexE18.Sign() == 0 {
		r.DepositIndexE18 = new(big.Int).Set(oneE18)
	}
	if r.DebtIndexE18 == nil || r.DebtIndexE18.Sign() == 0 {
		r.DebtIndexE18 = new(big.Int).Set(oneE18)
	}
	if r.DepositFeeE6 == nil {
		r.DepositFeeE6 = big.NewInt(0)
	}
	if r.DebtFeeE6 == nil {
		r.DebtFeeE6 = big.NewInt(0)
	}
}

// ReserveRestrictions carries the optional caps and minimums of a reserve.
// A zero cap means unlimited; zero minimums disable the respective check.
type ReserveRestrictions struct {
	MaxTotalDeposit *big.Int
	MaxTotalDebt    *big.Int
	MinCollateral   *big.Int
	MinDebt         *big.Int
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (r *ReserveRestrictions) EnsureDefaults() {
	if r.MaxTotalDeposit == nil {
		r.MaxTotalDeposit = big.NewInt(0)
	}
	if r.MaxTotalDebt == nil {
		r.MaxTotalDebt = big.NewInt(0)
	}
	if r.MinCollateral == nil {
		r.MinCollateral = big.NewInt(0)
	}
	if r.MinDebt == nil {
		r.MinDebt = big.NewInt(0)
	}
}

// AccountReserveData maintains one account's deposit and debt in a single
// reserve together with the indexes last applied to them.
type AccountReserveData struct {
	Deposit                *big.Int
	Debt                   *big.Int
	AppliedDepositIndexE18 *big.Int
	AppliedDebtIndexE18    *big.Int
}

// EnsureDefaults initialises nil balances to zero and nil indexes to 1e18.
func (a *AccountReserveData) EnsureDefaults() {
	if a.Deposit == nil {
		a.Deposit = big.NewInt(0)
	}
	if a.Debt == nil {
		a.Debt = big.NewInt(0)
	}
	if a.AppliedDepositIndexE18 == nil || a.AppliedDepositIndexE18.Sign() == 0 {
		a.AppliedDepositIndexE18 = new(big.Int).Set(oneE18)
	}
	if a.AppliedDebtIndexE18 == nil || a.AppliedDebtIndexE18.Sign() == 0 {
		a.AppliedDebtIndexE18 = new(big.Int).Set(oneE18)
	}
}

// AccountConfig tracks which assets an account has touched. Each bitmap is
// indexed by asset id; bit i is set iff the account has a non-zero deposit,
// has flagged asset i as collateral, or has non-zero debt respectively.
type AccountConfig struct {
	Deposits     *big.Int
	Collaterals  *big.Int
	Borrows      *big.Int
	MarketRuleID uint32
}

// EnsureDefaults populates nil bitmaps so RLP handling is safe.
func (c *AccountConfig) EnsureDefaults() {
	if c.Deposits == nil {
		c.Deposits = big.NewInt(0)
	}
	if c.Collaterals == nil {
		c.Collaterals = big.NewInt(0)
	}
	if c.Borrows == nil {
		c.Borrows = big.NewInt(0)
	}
}

func setBit(bitmap *big.Int, id uint32, set bool) *big.Int {
	v := 0
	if set {
		v = 1
	}
	return new(big.Int).SetBit(bitmap, int(id), uint(v))
}

func hasBit(bitmap *big.Int, id uint32) bool {
	if bitmap == nil {
		return false
	}
	return bitmap.Bit(int(id)) == 1
}

// AssetRule is one entry of a market rule. Each coefficient is individually
// optional; an absent borrow or collateral coefficient disables the
// respective use of the asset under that rule.
type AssetRule struct {
	HasCollateral           bool
	CollateralCoefficientE6 uint64
	HasBorrow               bool
	BorrowCoefficientE6     uint64
	HasPenalty              bool
	PenaltyE6               uint64
}

// Tightens reports whether next only narrows this rule entry: no coefficient
// may be removed, the collateral coefficient may not rise, the borrow
// coefficient may not fall, and the penalty may not fall.
func (r AssetRule) Tightens(next AssetRule) bool {
	if r.HasCollateral {
		if !next.HasCollateral || next.CollateralCoefficientE6 > r.CollateralCoefficientE6 {
			return false
		}
	}
	if r.HasBorrow {
		if !next.HasBorrow || next.BorrowCoefficientE6 < r.BorrowCoefficientE6 {
			return false
		}
	}
	if r.HasPenalty {
		if !next.HasPenalty || next.PenaltyE6 < r.PenaltyE6 {
			return false
		}
	}
	return true
}

// MarketRule is an ordered sequence of asset rules indexed by asset id.
// Entries beyond the slice length, or all-false entries, are absent.
type MarketRule struct {
	Rules []AssetRule
}

// Entry returns the rule entry for the given asset id and whether any of its
// coefficients are present.
func (m *MarketRule) Entry(id uint32) (AssetRule, bool) {
	if m == nil || int(id) >= len(m.Rules) {
		return AssetRule{}, false
	}
	entry := m.Rules[id]
	return entry, entry.HasCollateral || entry.HasBorrow || entry.HasPenalty
}

// SetEntry grows the rule vector as needed and stores the entry for the
// given asset id.
func (m *MarketRule) SetEntry(id uint32, entry AssetRule) {
	for int(id) >= len(m.Rules) {
		m.Rules = append(m.Rules, AssetRule{})
	}
	m.Rules[id] = entry
}

// ReserveTokens binds a reserve to the wrapper token pair the pool
// instantiated at registration.
type ReserveTokens struct {
	DepositToken crypto.Address
	DebtToken    crypto.Address
}

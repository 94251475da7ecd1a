package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// The view surface reads state as of the engine timestamp without persisting
// anything: reserves are advanced and accounts materialised on copies.

// viewReserve loads a reserve and advances its indexes virtually.
func (e *Engine) viewReserve(asset crypto.Address) (*reserveCtx, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	r, err := e.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	if err := advanceIndexes(r.data, r.indexes, e.nowMs); err != nil {
		return nil, err
	}
	return r, nil
}

// ViewReserveData returns the reserve totals and rates as of now.
func (e *Engine) ViewReserveData(asset crypto.Address) (*ReserveData, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return r.data, nil
}

// ViewReserveIndexes returns the reserve indexes and fee cuts as of now.
func (e *Engine) ViewReserveIndexes(asset crypto.Address) (*ReserveIndexesAndFees, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return r.indexes, nil
}

// CurrentUtilisationE6 returns total debt over total deposit at E6 scale as
// of the engine timestamp.
func (e *Engine) CurrentUtilisationE6(asset crypto.Address) (*big.Int, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return r.data.UtilisationE6(), nil
}

// CurrentDebtRateE18 returns the per-millisecond debt rate as of the engine
// timestamp.
func (e *Engine) CurrentDebtRateE18(asset crypto.Address) (*big.Int, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return cloneBig(r.data.CurrentDebtRateE18), nil
}

// CurrentDepositRateE18 returns the per-millisecond deposit rate as of the
// engine timestamp.
func (e *Engine) CurrentDepositRateE18(asset crypto.Address) (*big.Int, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return cloneBig(r.data.CurrentDepositRateE18), nil
}

// ViewReserveRestrictions returns the stored caps and minimums.
func (e *Engine) ViewReserveRestrictions(asset crypto.Address) (*ReserveRestrictions, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	id, ok, err := e.state.AssetID(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return e.state.ReserveRestrictions(id)
}

// ViewInterestRateModel returns the reserve's rate model, or nil for a
// protocol stablecoin.
func (e *Engine) ViewInterestRateModel(asset crypto.Address) (*InterestRateModel, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	id, ok, err := e.state.AssetID(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return e.state.InterestRateModel(id)
}

// ViewReserveTokens returns the wrapper token pair of the reserve.
func (e *Engine) ViewReserveTokens(asset crypto.Address) (*ReserveTokens, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	id, ok, err := e.state.AssetID(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return e.state.ReserveTokens(id)
}

// ViewAccountConfig returns the account's bitmaps and market rule id.
func (e *Engine) ViewAccountConfig(account crypto.Address) (*AccountConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AccountConfig(account)
}

// ViewMarketRule returns the market rule with the given id.
func (e *Engine) ViewMarketRule(ruleID uint32) (*MarketRule, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.MarketRule(ruleID)
}

// ViewFlashLoanFeeE6 returns the pool-wide flash loan fee.
func (e *Engine) ViewFlashLoanFeeE6() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FlashLoanFeeE6()
}

// ViewAccountReserveData returns the account's entry for the asset with
// interest materialised as of now.
func (e *Engine) ViewAccountReserveData(asset, account crypto.Address) (*AccountReserveData, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	entry, err := e.state.AccountReserve(r.id, account)
	if err != nil {
		return nil, err
	}
	if _, err := materialiseInterest(entry, r.indexes); err != nil {
		return nil, err
	}
	return entry, nil
}

// DepositOf reports the account's current deposit balance in the asset. The
// deposit token's balance_of delegates here.
func (e *Engine) DepositOf(asset, account crypto.Address) (*big.Int, error) {
	entry, err := e.ViewAccountReserveData(asset, account)
	if err != nil {
		return nil, err
	}
	return entry.Deposit, nil
}

// DebtOf reports the account's current debt in the asset. The debt token's
// balance_of delegates here.
func (e *Engine) DebtOf(asset, account crypto.Address) (*big.Int, error) {
	entry, err := e.ViewAccountReserveData(asset, account)
	if err != nil {
		return nil, err
	}
	return entry.Debt, nil
}

// TotalDepositOf reports the reserve's aggregate deposit as of now. The
// deposit token's total_supply delegates here.
func (e *Engine) TotalDepositOf(asset crypto.Address) (*big.Int, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return r.data.TotalDeposit, nil
}

// TotalDebtOf reports the reserve's aggregate debt as of now. The debt
// token's total_supply delegates here.
func (e *Engine) TotalDebtOf(asset crypto.Address) (*big.Int, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	return r.data.TotalDebt, nil
}

// AccountHealth values the account's collateral and debt in USD power terms
// as of now and reports whether it is solvent. Equality counts as solvent.
func (e *Engine) AccountHealth(account crypto.Address) (*big.Int, *big.Int, bool, error) {
	if e == nil || e.state == nil {
		return nil, nil, false, errNilState
	}
	s := e.newSession()
	cfg, err := s.config(account)
	if err != nil {
		return nil, nil, false, err
	}
	colIDs, debtIDs := collateralAndDebtIDs(cfg)
	for _, id := range append(append([]uint32{}, colIDs...), debtIDs...) {
		asset, err := e.state.AssetAddress(id)
		if err != nil {
			return nil, nil, false, err
		}
		if _, err := s.reserve(asset); err != nil {
			return nil, nil, false, err
		}
	}
	collateralPower, debtPower, err := e.accountPowersE6(s, account)
	if err != nil {
		return nil, nil, false, err
	}
	return collateralPower, debtPower, collateralPower.Cmp(debtPower) >= 0, nil
}

// ViewProtocolIncome computes the withdrawable income of one asset as the
// underlying balance plus total debt minus total deposit, floored at zero.
func (e *Engine) ViewProtocolIncome(asset crypto.Address) (*big.Int, error) {
	r, err := e.viewReserve(asset)
	if err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	balance, err := e.tokens.BalanceOf(asset, e.poolAddress)
	if err != nil {
		return nil, err
	}
	income := new(big.Int).Add(orZero(balance), r.data.TotalDebt)
	income.Sub(income, r.data.TotalDeposit)
	if income.Sign() < 0 {
		income = big.NewInt(0)
	}
	return income, nil
}

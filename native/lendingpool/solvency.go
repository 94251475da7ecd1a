package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// collateralSet returns the asset ids counted as collateral together with the
// ids carrying debt for the given config.
func collateralAndDebtIDs(cfg *AccountConfig) ([]uint32, []uint32) {
	cfg.EnsureDefaults()
	collateral := new(big.Int).And(cfg.Deposits, cfg.Collaterals)
	var colIDs, debtIDs []uint32
	for id := uint32(0); id < maxAssets; id++ {
		if hasBit(collateral, id) {
			colIDs = append(colIDs, id)
		}
		if hasBit(cfg.Borrows, id) {
			debtIDs = append(debtIDs, id)
		}
	}
	return colIDs, debtIDs
}

// solvencyReserve reads a reserve for the solvency walk, reusing the session
// copy when the action already touched and advanced it. Untouched reserves are
// valued at their stored indexes.
func (e *Engine) solvencyReserve(s *session, id uint32) (*reserveCtx, error) {
	if s != nil {
		if ctx, ok := s.reserves[id]; ok {
			return ctx, nil
		}
	}
	return e.loadReserveByID(id)
}

// solvencyEntry returns a scratch copy of the account's entry with interest
// materialised virtually against the reserve's current indexes. Nothing is
// persisted.
func (e *Engine) solvencyEntry(s *session, r *reserveCtx, account crypto.Address) (*AccountReserveData, error) {
	var entry *AccountReserveData
	if s != nil {
		if cached, ok := s.entries[entryKey(r.id, account)]; ok {
			entry = cached
		}
	}
	if entry == nil {
		loaded, err := e.state.AccountReserve(r.id, account)
		if err != nil {
			return nil, err
		}
		entry = loaded
	}
	scratch := &AccountReserveData{
		Deposit:                cloneBig(entry.Deposit),
		Debt:                   cloneBig(entry.Debt),
		AppliedDepositIndexE18: cloneBig(entry.AppliedDepositIndexE18),
		AppliedDebtIndexE18:    cloneBig(entry.AppliedDebtIndexE18),
	}
	if _, err := materialiseInterest(scratch, r.indexes); err != nil {
		return nil, err
	}
	return scratch, nil
}

// assetValueE8 converts a token amount into USD at E8 scale, rounded down.
func (e *Engine) assetValueE8(amount, priceE18, decimalMult *big.Int) (*big.Int, error) {
	den := new(big.Int).Mul(orZero(decimalMult), oneE10)
	return mulDivDown(amount, priceE18, den)
}

func (e *Engine) priceOf(prices []*big.Int, pos int) (*big.Int, error) {
	if pos >= len(prices) || prices[pos] == nil || prices[pos].Sign() <= 0 {
		return nil, ErrNoPriceFeed
	}
	return prices[pos], nil
}

// accountPowersE6 values the account's collateral and debt in USD power
// terms under its market rule. Collateral values are scaled down by the
// collateral coefficient rounding down, debt values up by the borrow
// coefficient rounding up.
func (e *Engine) accountPowersE6(s *session, account crypto.Address) (*big.Int, *big.Int, error) {
	var cfg *AccountConfig
	if s != nil {
		loaded, err := s.config(account)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else {
		loaded, err := e.state.AccountConfig(account)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	colIDs, debtIDs := collateralAndDebtIDs(cfg)
	if len(colIDs) == 0 && len(debtIDs) == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}

	rule, err := e.state.MarketRule(cfg.MarketRuleID)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[uint32]int)
	ids := make([]uint32, 0, len(colIDs)+len(debtIDs))
	for _, id := range colIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = len(ids)
			ids = append(ids, id)
		}
	}
	for _, id := range debtIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = len(ids)
			ids = append(ids, id)
		}
	}

	reserves := make([]*reserveCtx, len(ids))
	assets := make([]crypto.Address, len(ids))
	for i, id := range ids {
		ctx, err := e.solvencyReserve(s, id)
		if err != nil {
			return nil, nil, err
		}
		reserves[i] = ctx
		assets[i] = ctx.asset
	}
	if e.priceFeed == nil {
		return nil, nil, ErrNoPriceFeed
	}
	prices, err := e.priceFeed.PricesOf(assets)
	if err != nil {
		return nil, nil, err
	}

	collateralPower := big.NewInt(0)
	debtPower := big.NewInt(0)
	for _, id := range colIDs {
		pos := seen[id]
		r := reserves[pos]
		entry, err := e.solvencyEntry(s, r, account)
		if err != nil {
			return nil, nil, err
		}
		if entry.Deposit.Sign() == 0 {
			continue
		}
		ruleEntry, ok := rule.Entry(id)
		if !ok || !ruleEntry.HasCollateral {
			return nil, nil, ErrRuleCollateralDisable
		}
		price, err := e.priceOf(prices, pos)
		if err != nil {
			return nil, nil, err
		}
		mult, err := e.state.DecimalMultiplier(id)
		if err != nil {
			return nil, nil, err
		}
		value, err := e.assetValueE8(entry.Deposit, price, mult)
		if err != nil {
			return nil, nil, err
		}
		power, err := e8MulE6ToE6Down(value, new(big.Int).SetUint64(ruleEntry.CollateralCoefficientE6))
		if err != nil {
			return nil, nil, err
		}
		collateralPower.Add(collateralPower, power)
	}
	for _, id := range debtIDs {
		pos := seen[id]
		r := reserves[pos]
		entry, err := e.solvencyEntry(s, r, account)
		if err != nil {
			return nil, nil, err
		}
		if entry.Debt.Sign() == 0 {
			continue
		}
		ruleEntry, ok := rule.Entry(id)
		if !ok || !ruleEntry.HasBorrow {
			return nil, nil, ErrRuleBorrowDisable
		}
		price, err := e.priceOf(prices, pos)
		if err != nil {
			return nil, nil, err
		}
		mult, err := e.state.DecimalMultiplier(id)
		if err != nil {
			return nil, nil, err
		}
		value, err := e.assetValueE8(entry.Debt, price, mult)
		if err != nil {
			return nil, nil, err
		}
		power, err := e8MulE6ToE6Up(value, new(big.Int).SetUint64(ruleEntry.BorrowCoefficientE6))
		if err != nil {
			return nil, nil, err
		}
		debtPower.Add(debtPower, power)
	}
	return collateralPower, debtPower, nil
}

// checkSolvency fails with ErrInsufficientCollateral when the account's
// collateral power no longer covers its debt power. Equal powers are solvent.
func (e *Engine) checkSolvency(s *session, account crypto.Address) error {
	collateralPower, debtPower, err := e.accountPowersE6(s, account)
	if err != nil {
		return err
	}
	if collateralPower.Cmp(debtPower) < 0 {
		return ErrInsufficientCollateral
	}
	return nil
}

// requireInsolvent is the liquidation gate: an account at or above the
// solvency boundary may not be liquidated.
func (e *Engine) requireInsolvent(s *session, account crypto.Address) error {
	collateralPower, debtPower, err := e.accountPowersE6(s, account)
	if err != nil {
		return err
	}
	if collateralPower.Cmp(debtPower) >= 0 {
		return ErrCollaterized
	}
	return nil
}

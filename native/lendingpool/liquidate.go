package lendingpool

import (
	"math/big"

	"lendpool/core/events"
	"lendpool/crypto"
)

// Liquidate lets the caller repay part of an insolvent account's debt and
// seize a discounted share of one of its collateral deposits in return. The
// seized amount stays inside the pool as the caller's deposit. The caller may
// demand a minimum seize ratio per repaid unit at E18 scale. It returns the
// debt actually repaid and the collateral taken.
func (e *Engine) Liquidate(caller, liquidated crypto.Address, assetToRepay, assetToTake crypto.Address, amountToRepay, minReceivedPerRepaidE18 *big.Int) (*big.Int, *big.Int, error) {
	repaid, taken, err := e.liquidate(caller, liquidated, assetToRepay, assetToTake, amountToRepay, minReceivedPerRepaidE18)
	e.record("liquidate", err)
	if err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.LendingLiquidation{
		Liquidator:   caller,
		Liquidated:   liquidated,
		AssetToRepay: assetToRepay,
		AssetToTake:  assetToTake,
		AmountRepaid: repaid,
		AmountTaken:  taken,
	})
	return repaid, taken, nil
}

func (e *Engine) liquidate(caller, liquidated crypto.Address, assetToRepay, assetToTake crypto.Address, amountToRepay, minReceivedPerRepaidE18 *big.Int) (*big.Int, *big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	if err := requireAmount(amountToRepay); err != nil {
		return nil, nil, err
	}
	s := e.newSession()
	fail := func(err error) (*big.Int, *big.Int, error) {
		e.state.Discard()
		return nil, nil, err
	}

	rRepay, err := s.reserve(assetToRepay)
	if err != nil {
		return fail(err)
	}
	rTake, err := s.reserve(assetToTake)
	if err != nil {
		return fail(err)
	}
	if !rRepay.data.Activated || !rTake.data.Activated {
		return fail(ErrReserveInactive)
	}

	cfgLiquidated, err := s.config(liquidated)
	if err != nil {
		return fail(err)
	}
	if !hasBit(cfgLiquidated.Collaterals, rTake.id) {
		return fail(ErrTakingNotACollateral)
	}
	// The solvency gate runs against the advanced indexes but before any
	// balance moves.
	if err := e.requireInsolvent(s, liquidated); err != nil {
		return fail(err)
	}

	debtEntry, err := s.entry(rRepay, liquidated)
	if err != nil {
		return fail(err)
	}
	accruedDebtSide, err := materialiseIntoReserve(rRepay, debtEntry)
	if err != nil {
		return fail(err)
	}
	takeEntry, err := s.entry(rTake, liquidated)
	if err != nil {
		return fail(err)
	}
	accruedTakeSide, err := materialiseIntoReserve(rTake, takeEntry)
	if err != nil {
		return fail(err)
	}
	if debtEntry.Debt.Sign() == 0 {
		return fail(ErrNothingToRepay)
	}
	if takeEntry.Deposit.Sign() == 0 {
		return fail(ErrNothingToCompensateWith)
	}

	actualRepay := new(big.Int).Set(amountToRepay)
	if debtEntry.Debt.Cmp(actualRepay) < 0 {
		actualRepay.Set(debtEntry.Debt)
	}

	if e.priceFeed == nil {
		return fail(ErrNoPriceFeed)
	}
	prices, err := e.priceFeed.PricesOf([]crypto.Address{assetToRepay, assetToTake})
	if err != nil {
		return fail(err)
	}
	priceRepay, err := e.priceOf(prices, 0)
	if err != nil {
		return fail(err)
	}
	priceTake, err := e.priceOf(prices, 1)
	if err != nil {
		return fail(err)
	}

	rule, err := e.state.MarketRule(cfgLiquidated.MarketRuleID)
	if err != nil {
		return fail(err)
	}
	penaltyRepay := big.NewInt(0)
	if entry, ok := rule.Entry(rRepay.id); ok && entry.HasPenalty {
		penaltyRepay.SetUint64(entry.PenaltyE6)
	}
	penaltyTake := big.NewInt(0)
	if entry, ok := rule.Entry(rTake.id); ok && entry.HasPenalty {
		penaltyTake.SetUint64(entry.PenaltyE6)
	}

	multRepay, err := e.state.DecimalMultiplier(rRepay.id)
	if err != nil {
		return fail(err)
	}
	multTake, err := e.state.DecimalMultiplier(rTake.id)
	if err != nil {
		return fail(err)
	}
	amountToTake, err := calculateAmountToTake(actualRepay, priceRepay, priceTake, multRepay, multTake, penaltyRepay, penaltyTake)
	if err != nil {
		return fail(err)
	}
	if takeEntry.Deposit.Cmp(amountToTake) < 0 {
		amountToTake = new(big.Int).Set(takeEntry.Deposit)
	}
	if minReceivedPerRepaidE18 != nil && minReceivedPerRepaidE18.Sign() > 0 {
		perRepaid, err := mulDivDown(amountToTake, oneE18, actualRepay)
		if err != nil {
			return fail(err)
		}
		if perRepaid.Cmp(minReceivedPerRepaidE18) < 0 {
			return fail(ErrMinimumReceived)
		}
	}

	// Repay leg. The minimal-debt floor is not enforced here so a dust
	// remainder cannot block a liquidation.
	debtEntry.Debt = new(big.Int).Sub(debtEntry.Debt, actualRepay)
	rRepay.data.TotalDebt = new(big.Int).Sub(rRepay.data.TotalDebt, actualRepay)
	if rRepay.data.TotalDebt.Sign() < 0 {
		rRepay.data.TotalDebt = big.NewInt(0)
	}
	refreshDebtBits(cfgLiquidated, rRepay, debtEntry)
	recalculateRates(rRepay.data, rRepay.model)

	// Take leg: a deposit transfer inside the take reserve, totals unchanged.
	takeEntry.Deposit = new(big.Int).Sub(takeEntry.Deposit, amountToTake)
	refreshDepositBits(cfgLiquidated, rTake, takeEntry)

	cfgLiquidator, err := s.config(caller)
	if err != nil {
		return fail(err)
	}
	liquidatorEntry, err := s.entry(rTake, caller)
	if err != nil {
		return fail(err)
	}
	accruedLiquidator, err := materialiseIntoReserve(rTake, liquidatorEntry)
	if err != nil {
		return fail(err)
	}
	liquidatorEntry.Deposit = new(big.Int).Add(liquidatorEntry.Deposit, amountToTake)
	if err := checkBalance(liquidatorEntry.Deposit); err != nil {
		return fail(err)
	}
	refreshDepositBits(cfgLiquidator, rTake, liquidatorEntry)
	recalculateRates(rTake.data, rTake.model)

	if err := s.persist(); err != nil {
		return fail(err)
	}
	if err := e.pullUnderlying(rRepay, caller, actualRepay); err != nil {
		return fail(err)
	}
	if err := e.notifyDebtToken(rRepay, liquidated, accruedDebtSide.DebtDelta, TransferEvent{From: liquidated, Amount: actualRepay}); err != nil {
		return fail(err)
	}
	if err := e.notifyDepositToken(rRepay, liquidated, accruedDebtSide.DepositDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.notifyDepositToken(rTake, liquidated, accruedTakeSide.DepositDelta, TransferEvent{From: liquidated, To: caller, Amount: amountToTake}); err != nil {
		return fail(err)
	}
	if err := e.notifyDebtToken(rTake, liquidated, accruedTakeSide.DebtDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.notifyDepositToken(rTake, caller, accruedLiquidator.DepositDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.notifyDebtToken(rTake, caller, accruedLiquidator.DebtDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.state.Commit(); err != nil {
		return nil, nil, err
	}
	return actualRepay, amountToTake, nil
}

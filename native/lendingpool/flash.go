package lendingpool

import (
	"fmt"
	"math/big"

	"lendpool/core/events"
	"lendpool/crypto"
	"lendpool/observability"
)

// FlashLoan transfers the requested amounts to the receiver, invokes its
// callback and pulls each principal plus fee back. The callback may re-enter
// the pool with ordinary actions. No reserve state changes; the fees stay in
// the pool as protocol income.
func (e *Engine) FlashLoan(caller crypto.Address, receiver FlashLoanReceiver, assets []crypto.Address, amounts []*big.Int, params []byte) error {
	err := e.flashLoan(caller, receiver, assets, amounts, params)
	e.record("flash_loan", err)
	return err
}

func (e *Engine) flashLoan(caller crypto.Address, receiver FlashLoanReceiver, assets []crypto.Address, amounts []*big.Int, params []byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	if receiver == nil {
		return ErrFlashLoanReceiver
	}
	if len(assets) != len(amounts) {
		return ErrFlashLoanLengthMismatch
	}
	if len(assets) == 0 {
		return ErrAmountNotGreaterThanZero
	}

	feeE6, err := e.state.FlashLoanFeeE6()
	if err != nil {
		return err
	}
	reductionE6 := e.flashFeeReductionE6(caller)

	reserves := make([]*reserveCtx, len(assets))
	fees := make([]*big.Int, len(assets))
	for i, asset := range assets {
		if err := requireAmount(amounts[i]); err != nil {
			return err
		}
		r, err := e.loadReserve(asset)
		if err != nil {
			return err
		}
		if !r.data.Activated {
			return ErrReserveInactive
		}
		reserves[i] = r
		fee, err := mulDivUp(amounts[i], feeE6, oneE6)
		if err != nil {
			return err
		}
		if reductionE6.Sign() > 0 {
			remaining := new(big.Int).Sub(oneE6, reductionE6)
			if fee, err = mulDivUp(fee, remaining, oneE6); err != nil {
				return err
			}
		}
		fees[i] = fee
	}

	to := receiver.Address()
	for i, r := range reserves {
		if err := e.pushUnderlying(r, to, amounts[i]); err != nil {
			return err
		}
	}
	if err := receiver.ExecuteOperation(assets, amounts, fees, params); err != nil {
		return fmt.Errorf("%w: %v", ErrFlashLoanReceiver, err)
	}
	for i, r := range reserves {
		owed := new(big.Int).Add(amounts[i], fees[i])
		if err := e.pullUnderlying(r, to, owed); err != nil {
			return err
		}
	}
	for _, fee := range fees {
		feeUnits, _ := new(big.Float).SetInt(fee).Float64()
		observability.LendingPoolMetrics().RecordFlashLoanFee(feeUnits)
	}
	for i := range assets {
		e.emitter.Emit(events.LendingFlashLoan{
			Receiver: to,
			Caller:   caller,
			Asset:    assets[i],
			Amount:   amounts[i],
			Fee:      fees[i],
		})
	}
	return nil
}

// flashFeeReductionE6 resolves the caller's fee discount. Accounts holding
// the flash borrower role pay no fee; otherwise the optional provider is
// queried once per call and its answer clamped into [0, 1e6].
func (e *Engine) flashFeeReductionE6(caller crypto.Address) *big.Int {
	if e.roles != nil && e.roles.HasRole(RoleFlashBorrower, caller.Bytes()) {
		return new(big.Int).Set(oneE6)
	}
	if e.feeReduction == nil {
		return big.NewInt(0)
	}
	reduction := e.feeReduction.FlashLoanFeeReduction(caller)
	if reduction == nil || reduction.Sign() < 0 {
		return big.NewInt(0)
	}
	if reduction.Cmp(oneE6) > 0 {
		return new(big.Int).Set(oneE6)
	}
	return reduction
}

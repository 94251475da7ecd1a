package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// TransferDepositFromTo moves deposit balance between two accounts inside one
// reserve. Only the reserve's deposit token may call it. It returns the
// accrued-interest deltas materialised for from and to so the token can emit
// the matching interest mints.
func (e *Engine) TransferDepositFromTo(caller, asset, from, to crypto.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	fromDelta, toDelta, err := e.transferDepositFromTo(caller, asset, from, to, amount)
	e.record("transfer_deposit", err)
	return fromDelta, toDelta, err
}

func (e *Engine) transferDepositFromTo(caller, asset, from, to crypto.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	if err := requireAmount(amount); err != nil {
		return nil, nil, err
	}
	s := e.newSession()
	fail := func(err error) (*big.Int, *big.Int, error) {
		e.state.Discard()
		return nil, nil, err
	}
	r, err := s.reserve(asset)
	if err != nil {
		return fail(err)
	}
	tokens, err := e.state.ReserveTokens(r.id)
	if err != nil {
		return fail(err)
	}
	if !caller.Equal(tokens.DepositToken) {
		return fail(ErrMissingRole)
	}
	if !r.data.Activated {
		return fail(ErrReserveInactive)
	}

	cfgFrom, err := s.config(from)
	if err != nil {
		return fail(err)
	}
	entryFrom, err := s.entry(r, from)
	if err != nil {
		return fail(err)
	}
	accruedFrom, err := materialiseIntoReserve(r, entryFrom)
	if err != nil {
		return fail(err)
	}
	cfgTo, err := s.config(to)
	if err != nil {
		return fail(err)
	}
	entryTo, err := s.entry(r, to)
	if err != nil {
		return fail(err)
	}
	accruedTo, err := materialiseIntoReserve(r, entryTo)
	if err != nil {
		return fail(err)
	}

	if entryFrom.Deposit.Cmp(amount) < 0 {
		return fail(ErrInsufficientDeposit)
	}
	entryFrom.Deposit = new(big.Int).Sub(entryFrom.Deposit, amount)
	entryTo.Deposit = new(big.Int).Add(entryTo.Deposit, amount)
	if err := checkBalance(entryTo.Deposit); err != nil {
		return fail(err)
	}
	refreshDepositBits(cfgFrom, r, entryFrom)
	refreshDepositBits(cfgTo, r, entryTo)
	recalculateRates(r.data, r.model)

	if err := s.persist(); err != nil {
		return fail(err)
	}
	if err := e.checkSolvency(s, from); err != nil {
		return fail(err)
	}
	if err := e.notifyDebtToken(r, from, accruedFrom.DebtDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.notifyDebtToken(r, to, accruedTo.DebtDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.state.Commit(); err != nil {
		return nil, nil, err
	}
	return accruedFrom.DepositDelta, accruedTo.DepositDelta, nil
}

// TransferDebtFromTo moves debt between two accounts inside one reserve. Only
// the reserve's debt token may call it; the recipient of the new debt must
// stay solvent. It returns the accrued-interest deltas for from and to.
func (e *Engine) TransferDebtFromTo(caller, asset, from, to crypto.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	fromDelta, toDelta, err := e.transferDebtFromTo(caller, asset, from, to, amount)
	e.record("transfer_debt", err)
	return fromDelta, toDelta, err
}

func (e *Engine) transferDebtFromTo(caller, asset, from, to crypto.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	if err := requireAmount(amount); err != nil {
		return nil, nil, err
	}
	s := e.newSession()
	fail := func(err error) (*big.Int, *big.Int, error) {
		e.state.Discard()
		return nil, nil, err
	}
	r, err := s.reserve(asset)
	if err != nil {
		return fail(err)
	}
	tokens, err := e.state.ReserveTokens(r.id)
	if err != nil {
		return fail(err)
	}
	if !caller.Equal(tokens.DebtToken) {
		return fail(ErrMissingRole)
	}
	if !r.data.Activated {
		return fail(ErrReserveInactive)
	}

	cfgFrom, err := s.config(from)
	if err != nil {
		return fail(err)
	}
	entryFrom, err := s.entry(r, from)
	if err != nil {
		return fail(err)
	}
	accruedFrom, err := materialiseIntoReserve(r, entryFrom)
	if err != nil {
		return fail(err)
	}
	cfgTo, err := s.config(to)
	if err != nil {
		return fail(err)
	}
	entryTo, err := s.entry(r, to)
	if err != nil {
		return fail(err)
	}
	accruedTo, err := materialiseIntoReserve(r, entryTo)
	if err != nil {
		return fail(err)
	}

	if entryFrom.Debt.Cmp(amount) < 0 {
		return fail(ErrInsufficientDebt)
	}
	entryFrom.Debt = new(big.Int).Sub(entryFrom.Debt, amount)
	entryTo.Debt = new(big.Int).Add(entryTo.Debt, amount)
	if err := checkBalance(entryTo.Debt); err != nil {
		return fail(err)
	}
	if min := r.restrictions.MinDebt; min.Sign() > 0 {
		if entryFrom.Debt.Sign() > 0 && entryFrom.Debt.Cmp(min) < 0 {
			return fail(ErrMinimalDebt)
		}
		if entryTo.Debt.Cmp(min) < 0 {
			return fail(ErrMinimalDebt)
		}
	}
	refreshDebtBits(cfgFrom, r, entryFrom)
	refreshDebtBits(cfgTo, r, entryTo)
	recalculateRates(r.data, r.model)

	if err := s.persist(); err != nil {
		return fail(err)
	}
	if err := e.checkSolvency(s, to); err != nil {
		return fail(err)
	}
	if err := e.notifyDepositToken(r, from, accruedFrom.DepositDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.notifyDepositToken(r, to, accruedTo.DepositDelta, TransferEvent{}); err != nil {
		return fail(err)
	}
	if err := e.state.Commit(); err != nil {
		return nil, nil, err
	}
	return accruedFrom.DebtDelta, accruedTo.DebtDelta, nil
}

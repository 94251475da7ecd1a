package lendingpool

import (
	"fmt"
	"math/big"

	"lendpool/core/events"
	"lendpool/crypto"
)

// ActionKind selects the balance operation an Action performs.
type ActionKind uint8

const (
	ActionDeposit ActionKind = iota
	ActionWithdraw
	ActionBorrow
	ActionRepay
)

// Action is one step of a batched execution. A zero OnBehalfOf targets the
// caller's own account.
type Action struct {
	Kind       ActionKind
	Asset      crypto.Address
	OnBehalfOf crypto.Address
	Amount     *big.Int
}

func actionLabel(kind ActionKind) string {
	switch kind {
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	default:
		return "unknown"
	}
}

func executeLabel(actions []Action) string {
	if len(actions) == 1 {
		return actionLabel(actions[0].Kind)
	}
	return "execute"
}

func requireAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotGreaterThanZero
	}
	return nil
}

// --- balance primitives ---

// refreshDepositBits keeps the deposit bitmap in sync with the entry balance
// and drops the collateral flag when the balance no longer qualifies.
func refreshDepositBits(cfg *AccountConfig, r *reserveCtx, entry *AccountReserveData) {
	has := entry.Deposit.Sign() > 0
	cfg.Deposits = setBit(cfg.Deposits, r.id, has)
	if !has {
		cfg.Collaterals = setBit(cfg.Collaterals, r.id, false)
		return
	}
	if min := r.restrictions.MinCollateral; min.Sign() > 0 && entry.Deposit.Cmp(min) < 0 {
		cfg.Collaterals = setBit(cfg.Collaterals, r.id, false)
	}
}

func refreshDebtBits(cfg *AccountConfig, r *reserveCtx, entry *AccountReserveData) {
	cfg.Borrows = setBit(cfg.Borrows, r.id, entry.Debt.Sign() > 0)
}

func materialiseIntoReserve(r *reserveCtx, entry *AccountReserveData) (accruedInterest, error) {
	accrued, err := materialiseInterest(entry, r.indexes)
	if err != nil {
		return accrued, err
	}
	applyAccrualToTotals(r.data, accrued)
	return accrued, nil
}

func applyDeposit(r *reserveCtx, cfg *AccountConfig, entry *AccountReserveData, amount *big.Int) (accruedInterest, error) {
	if !r.data.Activated {
		return zeroAccrual(), ErrReserveInactive
	}
	if r.data.Frozen {
		return zeroAccrual(), ErrReserveFrozen
	}
	accrued, err := materialiseIntoReserve(r, entry)
	if err != nil {
		return accrued, err
	}
	entry.Deposit = new(big.Int).Add(entry.Deposit, amount)
	if err := checkBalance(entry.Deposit); err != nil {
		return accrued, err
	}
	r.data.TotalDeposit = new(big.Int).Add(r.data.TotalDeposit, amount)
	if err := checkBalance(r.data.TotalDeposit); err != nil {
		return accrued, err
	}
	if cap := r.restrictions.MaxTotalDeposit; cap.Sign() > 0 && r.data.TotalDeposit.Cmp(cap) > 0 {
		return accrued, ErrMaxDepositReached
	}
	refreshDepositBits(cfg, r, entry)
	recalculateRates(r.data, r.model)
	return accrued, nil
}

// applyWithdraw removes up to amount from the entry's deposit. With clip the
// request is capped at the available balance, otherwise exceeding it is an
// error. It reports whether the asset was flagged as collateral when the
// withdraw started, which decides whether a solvency check is due.
func applyWithdraw(r *reserveCtx, cfg *AccountConfig, entry *AccountReserveData, amount *big.Int, clip bool) (*big.Int, accruedInterest, bool, error) {
	if !r.data.Activated {
		return nil, zeroAccrual(), false, ErrReserveInactive
	}
	accrued, err := materialiseIntoReserve(r, entry)
	if err != nil {
		return nil, accrued, false, err
	}
	wasCollateral := hasBit(cfg.Collaterals, r.id)
	if entry.Deposit.Sign() == 0 {
		return nil, accrued, wasCollateral, ErrInsufficientDeposit
	}
	actual := new(big.Int).Set(amount)
	if entry.Deposit.Cmp(actual) < 0 {
		if !clip {
			return nil, accrued, wasCollateral, ErrInsufficientDeposit
		}
		actual.Set(entry.Deposit)
	}
	entry.Deposit = new(big.Int).Sub(entry.Deposit, actual)
	r.data.TotalDeposit = new(big.Int).Sub(r.data.TotalDeposit, actual)
	if r.data.TotalDeposit.Sign() < 0 {
		r.data.TotalDeposit = big.NewInt(0)
	}
	refreshDepositBits(cfg, r, entry)
	recalculateRates(r.data, r.model)
	return actual, accrued, wasCollateral, nil
}

func applyBorrow(r *reserveCtx, cfg *AccountConfig, entry *AccountReserveData, amount *big.Int) (accruedInterest, error) {
	if !r.data.Activated {
		return zeroAccrual(), ErrReserveInactive
	}
	if r.data.Frozen {
		return zeroAccrual(), ErrReserveFrozen
	}
	accrued, err := materialiseIntoReserve(r, entry)
	if err != nil {
		return accrued, err
	}
	entry.Debt = new(big.Int).Add(entry.Debt, amount)
	if err := checkBalance(entry.Debt); err != nil {
		return accrued, err
	}
	if min := r.restrictions.MinDebt; min.Sign() > 0 && entry.Debt.Cmp(min) < 0 {
		return accrued, ErrMinimalDebt
	}
	r.data.TotalDebt = new(big.Int).Add(r.data.TotalDebt, amount)
	if err := checkBalance(r.data.TotalDebt); err != nil {
		return accrued, err
	}
	if cap := r.restrictions.MaxTotalDebt; cap.Sign() > 0 && r.data.TotalDebt.Cmp(cap) > 0 {
		return accrued, ErrMaxDebtReached
	}
	refreshDebtBits(cfg, r, entry)
	recalculateRates(r.data, r.model)
	return accrued, nil
}

// applyRepay clears up to amount of the entry's debt. Repaying more than is
// owed settles the whole debt when clip is set; a partial repayment may not
// leave a remainder below the reserve's minimal debt.
func applyRepay(r *reserveCtx, cfg *AccountConfig, entry *AccountReserveData, amount *big.Int, clip bool) (*big.Int, accruedInterest, error) {
	if !r.data.Activated {
		return nil, zeroAccrual(), ErrReserveInactive
	}
	accrued, err := materialiseIntoReserve(r, entry)
	if err != nil {
		return nil, accrued, err
	}
	if entry.Debt.Sign() == 0 {
		return nil, accrued, ErrNothingToRepay
	}
	actual := new(big.Int).Set(amount)
	if entry.Debt.Cmp(actual) < 0 {
		if !clip {
			return nil, accrued, ErrInsufficientDebt
		}
		actual.Set(entry.Debt)
	}
	entry.Debt = new(big.Int).Sub(entry.Debt, actual)
	if min := r.restrictions.MinDebt; entry.Debt.Sign() > 0 && min.Sign() > 0 && entry.Debt.Cmp(min) < 0 {
		return nil, accrued, ErrMinimalDebt
	}
	r.data.TotalDebt = new(big.Int).Sub(r.data.TotalDebt, actual)
	if r.data.TotalDebt.Sign() < 0 {
		r.data.TotalDebt = big.NewInt(0)
	}
	refreshDebtBits(cfg, r, entry)
	recalculateRates(r.data, r.model)
	return actual, accrued, nil
}

// --- entry points ---

// Deposit supplies amount of asset from the caller into onBehalfOf's account.
func (e *Engine) Deposit(caller, onBehalfOf, asset crypto.Address, amount *big.Int) error {
	_, err := e.Execute(caller, []Action{{Kind: ActionDeposit, Asset: asset, OnBehalfOf: onBehalfOf, Amount: amount}})
	return err
}

// Withdraw redeems up to amount of onBehalfOf's deposit and sends the
// underlying to the caller. It returns the amount actually withdrawn.
func (e *Engine) Withdraw(caller, onBehalfOf, asset crypto.Address, amount *big.Int) (*big.Int, error) {
	results, err := e.Execute(caller, []Action{{Kind: ActionWithdraw, Asset: asset, OnBehalfOf: onBehalfOf, Amount: amount}})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Borrow draws amount of asset against onBehalfOf's collateral and sends the
// underlying to the caller.
func (e *Engine) Borrow(caller, onBehalfOf, asset crypto.Address, amount *big.Int) error {
	_, err := e.Execute(caller, []Action{{Kind: ActionBorrow, Asset: asset, OnBehalfOf: onBehalfOf, Amount: amount}})
	return err
}

// Repay settles up to amount of onBehalfOf's debt with the caller's tokens.
// It returns the amount actually repaid.
func (e *Engine) Repay(caller, onBehalfOf, asset crypto.Address, amount *big.Int) (*big.Int, error) {
	results, err := e.Execute(caller, []Action{{Kind: ActionRepay, Asset: asset, OnBehalfOf: onBehalfOf, Amount: amount}})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Execute runs a batch of actions atomically with a single solvency check per
// affected account at the end. Token transfers are issued only after every
// balance mutation and check has succeeded.
func (e *Engine) Execute(caller crypto.Address, actions []Action) ([]*big.Int, error) {
	results, evts, err := e.execute(caller, actions)
	e.record(executeLabel(actions), err)
	if err != nil {
		return nil, err
	}
	for _, evt := range evts {
		e.emitter.Emit(evt)
	}
	return results, nil
}

func (e *Engine) execute(caller crypto.Address, actions []Action) ([]*big.Int, []events.Event, error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	if len(actions) == 0 {
		return nil, nil, nil
	}
	s := e.newSession()
	fail := func(err error) ([]*big.Int, []events.Event, error) {
		e.state.Discard()
		return nil, nil, err
	}

	results := make([]*big.Int, len(actions))
	evts := make([]events.Event, 0, len(actions))
	var deferred []func() error
	needCheck := make(map[string]crypto.Address)

	for i, action := range actions {
		onBehalfOf := action.OnBehalfOf
		if onBehalfOf.IsZero() {
			onBehalfOf = caller
		}
		if err := requireAmount(action.Amount); err != nil {
			return fail(err)
		}
		r, err := s.reserve(action.Asset)
		if err != nil {
			return fail(err)
		}
		cfg, err := s.config(onBehalfOf)
		if err != nil {
			return fail(err)
		}
		entry, err := s.entry(r, onBehalfOf)
		if err != nil {
			return fail(err)
		}

		switch action.Kind {
		case ActionDeposit:
			accrued, err := applyDeposit(r, cfg, entry, action.Amount)
			if err != nil {
				return fail(err)
			}
			amount := new(big.Int).Set(action.Amount)
			results[i] = amount
			account := onBehalfOf
			reserve := r
			deferred = append(deferred, func() error {
				if err := e.pullUnderlying(reserve, caller, amount); err != nil {
					return err
				}
				if err := e.notifyDepositToken(reserve, account, accrued.DepositDelta, TransferEvent{To: account, Amount: amount}); err != nil {
					return err
				}
				return e.notifyDebtToken(reserve, account, accrued.DebtDelta, TransferEvent{})
			})
			evts = append(evts, events.LendingDeposit{Asset: action.Asset, Caller: caller, OnBehalfOf: account, Amount: amount})

		case ActionWithdraw:
			actual, accrued, wasCollateral, err := applyWithdraw(r, cfg, entry, action.Amount, true)
			if err != nil {
				return fail(err)
			}
			results[i] = actual
			if wasCollateral {
				needCheck[string(onBehalfOf.Bytes())] = onBehalfOf
			}
			account := onBehalfOf
			reserve := r
			deferred = append(deferred, func() error {
				if err := e.pushUnderlying(reserve, caller, actual); err != nil {
					return err
				}
				if err := e.notifyDebtToken(reserve, account, accrued.DebtDelta, TransferEvent{}); err != nil {
					return err
				}
				principal := TransferEvent{From: account, Amount: actual}
				if !caller.Equal(account) && e.wrappers != nil {
					tokens, err := e.state.ReserveTokens(reserve.id)
					if err != nil {
						return err
					}
					return e.notifyWithAllowance(tokens.DepositToken, accrued.DepositDelta, principal, account, caller)
				}
				return e.notifyDepositToken(reserve, account, accrued.DepositDelta, principal)
			})
			evts = append(evts, events.LendingWithdraw{Asset: action.Asset, Caller: caller, OnBehalfOf: account, Amount: actual})

		case ActionBorrow:
			accrued, err := applyBorrow(r, cfg, entry, action.Amount)
			if err != nil {
				return fail(err)
			}
			amount := new(big.Int).Set(action.Amount)
			results[i] = amount
			needCheck[string(onBehalfOf.Bytes())] = onBehalfOf
			account := onBehalfOf
			reserve := r
			deferred = append(deferred, func() error {
				if err := e.pushUnderlying(reserve, caller, amount); err != nil {
					return err
				}
				if err := e.notifyDepositToken(reserve, account, accrued.DepositDelta, TransferEvent{}); err != nil {
					return err
				}
				principal := TransferEvent{To: account, Amount: amount}
				if !caller.Equal(account) && e.wrappers != nil {
					tokens, err := e.state.ReserveTokens(reserve.id)
					if err != nil {
						return err
					}
					return e.notifyWithAllowance(tokens.DebtToken, accrued.DebtDelta, principal, account, caller)
				}
				return e.notifyDebtToken(reserve, account, accrued.DebtDelta, principal)
			})
			evts = append(evts, events.LendingBorrow{Asset: action.Asset, Caller: caller, OnBehalfOf: account, Amount: amount})

		case ActionRepay:
			actual, accrued, err := applyRepay(r, cfg, entry, action.Amount, true)
			if err != nil {
				return fail(err)
			}
			results[i] = actual
			account := onBehalfOf
			reserve := r
			deferred = append(deferred, func() error {
				if err := e.pullUnderlying(reserve, caller, actual); err != nil {
					return err
				}
				if err := e.notifyDepositToken(reserve, account, accrued.DepositDelta, TransferEvent{}); err != nil {
					return err
				}
				return e.notifyDebtToken(reserve, account, accrued.DebtDelta, TransferEvent{From: account, Amount: actual})
			})
			evts = append(evts, events.LendingRepay{Asset: action.Asset, Caller: caller, OnBehalfOf: account, Amount: actual})

		default:
			return fail(fmt.Errorf("lending pool: unknown action kind %d", action.Kind))
		}
	}

	if err := s.persist(); err != nil {
		return fail(err)
	}
	for _, account := range needCheck {
		if err := e.checkSolvency(s, account); err != nil {
			return fail(err)
		}
	}
	for _, fn := range deferred {
		if err := fn(); err != nil {
			return fail(err)
		}
	}
	if err := e.state.Commit(); err != nil {
		return nil, nil, err
	}
	return results, evts, nil
}

// SetAsCollateral toggles the caller's collateral flag for the asset.
// Flagging requires a qualifying deposit under the caller's market rule;
// unflagging must leave the account solvent.
func (e *Engine) SetAsCollateral(caller, asset crypto.Address, flag bool) error {
	err := e.setAsCollateral(caller, asset, flag)
	e.record("set_as_collateral", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingCollateralSet{Caller: caller, Asset: asset, Set: flag})
	return nil
}

func (e *Engine) setAsCollateral(caller, asset crypto.Address, flag bool) error {
	if err := e.begin(); err != nil {
		return err
	}
	s := e.newSession()
	fail := func(err error) error {
		e.state.Discard()
		return err
	}
	r, err := s.reserve(asset)
	if err != nil {
		return fail(err)
	}
	cfg, err := s.config(caller)
	if err != nil {
		return fail(err)
	}
	if flag {
		entry, err := s.entry(r, caller)
		if err != nil {
			return fail(err)
		}
		if _, err := materialiseIntoReserve(r, entry); err != nil {
			return fail(err)
		}
		recalculateRates(r.data, r.model)
		rule, err := e.state.MarketRule(cfg.MarketRuleID)
		if err != nil {
			return fail(err)
		}
		ruleEntry, ok := rule.Entry(r.id)
		if !ok || !ruleEntry.HasCollateral {
			return fail(ErrRuleCollateralDisable)
		}
		if entry.Deposit.Sign() == 0 {
			return fail(ErrInsufficientDeposit)
		}
		if min := r.restrictions.MinCollateral; min.Sign() > 0 && entry.Deposit.Cmp(min) < 0 {
			return fail(ErrMinimalCollateral)
		}
		cfg.Collaterals = setBit(cfg.Collaterals, r.id, true)
	} else {
		cfg.Collaterals = setBit(cfg.Collaterals, r.id, false)
	}
	if err := s.persist(); err != nil {
		return fail(err)
	}
	if !flag {
		if err := e.checkSolvency(s, caller); err != nil {
			return fail(err)
		}
	}
	return e.state.Commit()
}

// ChooseMarketRule switches the caller's account to another market rule. The
// account must remain solvent under the new rule.
func (e *Engine) ChooseMarketRule(caller crypto.Address, ruleID uint32) error {
	err := e.chooseMarketRule(caller, ruleID)
	e.record("choose_market_rule", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingMarketRuleChosen{Caller: caller, RuleID: ruleID})
	return nil
}

func (e *Engine) chooseMarketRule(caller crypto.Address, ruleID uint32) error {
	if err := e.begin(); err != nil {
		return err
	}
	s := e.newSession()
	fail := func(err error) error {
		e.state.Discard()
		return err
	}
	count, err := e.state.RuleCount()
	if err != nil {
		return fail(err)
	}
	if ruleID >= count {
		return fail(fmt.Errorf("%w: %d", ErrMarketRuleInvalidID, ruleID))
	}
	cfg, err := s.config(caller)
	if err != nil {
		return fail(err)
	}
	cfg.MarketRuleID = ruleID
	if err := s.persist(); err != nil {
		return fail(err)
	}
	if err := e.checkSolvency(s, caller); err != nil {
		return fail(err)
	}
	return e.state.Commit()
}

// AccumulateInterest advances the reserve's indexes to the current timestamp
// and re-derives its rates. Anyone may poke a reserve.
func (e *Engine) AccumulateInterest(asset crypto.Address) error {
	err := e.accumulateInterest(asset)
	e.record("accumulate_interest", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingInterestsAccumulated{Asset: asset})
	return nil
}

func (e *Engine) accumulateInterest(asset crypto.Address) error {
	if err := e.begin(); err != nil {
		return err
	}
	s := e.newSession()
	r, err := s.reserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	recalculateRates(r.data, r.model)
	if err := s.persist(); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

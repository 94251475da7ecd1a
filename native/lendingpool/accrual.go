package lendingpool

import "math/big"

// advanceIndexes moves a reserve's indexes and totals from their last update
// to nowMs. The deposit side rounds down and the debt side rounds up, so the
// protocol never under-charges borrowers. Advancing twice at the same
// timestamp is a no-op.
func advanceIndexes(data *ReserveData, indexes *ReserveIndexesAndFees, nowMs uint64) error {
	data.EnsureDefaults()
	indexes.EnsureDefaults()
	if nowMs <= indexes.LastUpdateTimestamp {
		return nil
	}
	delta := new(big.Int).SetUint64(nowMs - indexes.LastUpdateTimestamp)

	depositGrowth, err := e24MulE0ToE18Down(data.CurrentDepositRateE18, delta)
	if err != nil {
		return err
	}
	debtGrowth, err := e24MulE0ToE18Up(data.CurrentDebtRateE18, delta)
	if err != nil {
		return err
	}
	depositFactorE18 := new(big.Int).Add(oneE18, depositGrowth)
	debtFactorE18 := new(big.Int).Add(oneE18, debtGrowth)

	if data.TotalDeposit, err = e18MulE18Down(data.TotalDeposit, depositFactorE18); err != nil {
		return err
	}
	if data.TotalDebt, err = e18MulE18Down(data.TotalDebt, debtFactorE18); err != nil {
		return err
	}
	if indexes.DepositIndexE18, err = e18MulE18Down(indexes.DepositIndexE18, depositFactorE18); err != nil {
		return err
	}
	if indexes.DebtIndexE18, err = e18MulE18Up(indexes.DebtIndexE18, debtFactorE18); err != nil {
		return err
	}
	indexes.LastUpdateTimestamp = nowMs
	return nil
}

// accruedInterest reports what one account materialisation changed.
type accruedInterest struct {
	// DepositDelta and DebtDelta are the balance increases the wrapper
	// tokens report as synthetic interest mints.
	DepositDelta *big.Int
	DebtDelta    *big.Int
	// DepositFee left the depositor aggregate and became protocol income;
	// DebtFee was charged on top of index growth.
	DepositFee *big.Int
	DebtFee    *big.Int
}

func zeroAccrual() accruedInterest {
	return accruedInterest{
		DepositDelta: big.NewInt(0),
		DebtDelta:    big.NewInt(0),
		DepositFee:   big.NewInt(0),
		DebtFee:      big.NewInt(0),
	}
}

// materialiseInterest rescales an account's balances to the current reserve
// indexes, taking the reserve's fee cuts. Deposits round down and debt rounds
// up, including the debt fee, so rounding always favours the protocol.
func materialiseInterest(account *AccountReserveData, indexes *ReserveIndexesAndFees) (accruedInterest, error) {
	account.EnsureDefaults()
	indexes.EnsureDefaults()
	out := zeroAccrual()

	if account.Deposit.Sign() > 0 && account.AppliedDepositIndexE18.Cmp(indexes.DepositIndexE18) != 0 {
		gross, err := mulDivDown(account.Deposit, indexes.DepositIndexE18, account.AppliedDepositIndexE18)
		if err != nil {
			return out, err
		}
		interest := new(big.Int).Sub(gross, account.Deposit)
		fee, err := mulDivUp(interest, indexes.DepositFeeE6, oneE6)
		if err != nil {
			return out, err
		}
		newDeposit := new(big.Int).Sub(gross, fee)
		out.DepositDelta = new(big.Int).Sub(newDeposit, account.Deposit)
		out.DepositFee = fee
		account.Deposit = newDeposit
	}

	if account.Debt.Sign() > 0 && account.AppliedDebtIndexE18.Cmp(indexes.DebtIndexE18) != 0 {
		gross, err := mulDivUp(account.Debt, indexes.DebtIndexE18, account.AppliedDebtIndexE18)
		if err != nil {
			return out, err
		}
		interest := new(big.Int).Sub(gross, account.Debt)
		fee, err := mulDivUp(interest, indexes.DebtFeeE6, oneE6)
		if err != nil {
			return out, err
		}
		newDebt := new(big.Int).Add(gross, fee)
		out.DebtDelta = new(big.Int).Sub(newDebt, account.Debt)
		out.DebtFee = fee
		account.Debt = newDebt
	}

	account.AppliedDepositIndexE18 = new(big.Int).Set(indexes.DepositIndexE18)
	account.AppliedDebtIndexE18 = new(big.Int).Set(indexes.DebtIndexE18)
	return out, nil
}

// applyAccrualToTotals folds one account's materialisation into the reserve
// totals. The index advancement already grew the totals at gross rates, so
// only the fee components move here: the deposit fee leaves the depositor
// aggregate (it becomes implicit protocol income) and the debt fee is charged
// on top of the aggregate debt.
func applyAccrualToTotals(data *ReserveData, accrued accruedInterest) {
	data.EnsureDefaults()
	if accrued.DepositFee != nil && accrued.DepositFee.Sign() > 0 {
		data.TotalDeposit = new(big.Int).Sub(data.TotalDeposit, accrued.DepositFee)
		if data.TotalDeposit.Sign() < 0 {
			data.TotalDeposit = big.NewInt(0)
		}
	}
	if accrued.DebtFee != nil && accrued.DebtFee.Sign() > 0 {
		data.TotalDebt = new(big.Int).Add(data.TotalDebt, accrued.DebtFee)
	}
}

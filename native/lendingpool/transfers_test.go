package lendingpool

import (
	"errors"
	"math/big"
	"testing"

	"lendpool/crypto"
)

func (env *testEnv) wrapperTokens(t *testing.T, asset crypto.Address) *ReserveTokens {
	t.Helper()
	id, ok, err := env.store.AssetID(asset)
	if err != nil || !ok {
		t.Fatalf("asset id: ok=%v err=%v", ok, err)
	}
	tokens, err := env.store.ReserveTokens(id)
	if err != nil {
		t.Fatalf("reserve tokens: %v", err)
	}
	return tokens
}

func TestTransferDepositRequiresDepositTokenCaller(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	user := makeAddress(0x20)
	other := makeAddress(0x21)
	env.tokens.setBalance(asset, user, big.NewInt(1_000_000))
	if err := env.engine.Deposit(user, user, asset, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, _, err := env.engine.TransferDepositFromTo(user, asset, user, other, big.NewInt(100)); !errors.Is(err, ErrMissingRole) {
		t.Fatalf("non-token caller: got %v", err)
	}
}

func TestTransferDepositChecksSenderSolvency(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	user := makeAddress(0x20)
	other := makeAddress(0x21)
	env.tokens.setBalance(asset, user, big.NewInt(1_000_000))

	if err := env.engine.Deposit(user, user, asset, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.SetAsCollateral(user, asset, true); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if err := env.engine.Borrow(user, user, asset, big.NewInt(500_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	depositToken := env.wrapperTokens(t, asset).DepositToken
	if _, _, err := env.engine.TransferDepositFromTo(depositToken, asset, user, other, big.NewInt(600_000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("insolvent sender: got %v", err)
	}
	if _, _, err := env.engine.TransferDepositFromTo(depositToken, asset, user, other, big.NewInt(100_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if entry := env.accountEntry(t, asset, user); entry.Deposit.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("sender deposit = %s, want 900000", entry.Deposit)
	}
	if entry := env.accountEntry(t, asset, other); entry.Deposit.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("recipient deposit = %s, want 100000", entry.Deposit)
	}
	// The move is internal, totals stay put.
	if data := env.reserveData(t, asset); data.TotalDeposit.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("total deposit = %s, want 1000000", data.TotalDeposit)
	}
}

func TestTransferDepositRejectsOverdraw(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	user := makeAddress(0x20)
	other := makeAddress(0x21)
	env.tokens.setBalance(asset, user, big.NewInt(1_000))
	if err := env.engine.Deposit(user, user, asset, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	depositToken := env.wrapperTokens(t, asset).DepositToken
	if _, _, err := env.engine.TransferDepositFromTo(depositToken, asset, user, other, big.NewInt(1_001)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("overdraw: got %v", err)
	}
}

func TestTransferDebtChecksRecipientSolvency(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	user := makeAddress(0x20)
	other := makeAddress(0x21)
	env.tokens.setBalance(asset, user, big.NewInt(1_000_000))
	env.tokens.setBalance(asset, other, big.NewInt(1_000_000))

	if err := env.engine.Deposit(user, user, asset, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.SetAsCollateral(user, asset, true); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if err := env.engine.Borrow(user, user, asset, big.NewInt(500_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	debtToken := env.wrapperTokens(t, asset).DebtToken
	// The recipient has no collateral, so the debt cannot move.
	if _, _, err := env.engine.TransferDebtFromTo(debtToken, asset, user, other, big.NewInt(200_000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("uncovered recipient: got %v", err)
	}

	if err := env.engine.Deposit(other, other, asset, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.SetAsCollateral(other, asset, true); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if _, _, err := env.engine.TransferDebtFromTo(debtToken, asset, user, other, big.NewInt(200_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if entry := env.accountEntry(t, asset, user); entry.Debt.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("sender debt = %s, want 300000", entry.Debt)
	}
	if entry := env.accountEntry(t, asset, other); entry.Debt.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("recipient debt = %s, want 200000", entry.Debt)
	}
}

func TestTransferDebtHonoursMinimalDebt(t *testing.T) {
	env := newTestEnv(t)
	asset := env.register(t, 0x10, RegisterAssetParams{
		Decimals:          6,
		Rules:             defaultRule(),
		Restrictions:      ReserveRestrictions{MinDebt: big.NewInt(100_000)},
		InterestRateModel: flatModel(0),
	})
	user := makeAddress(0x20)
	other := makeAddress(0x21)
	for _, acct := range []crypto.Address{user, other} {
		env.tokens.setBalance(asset, acct, big.NewInt(1_000_000))
		if err := env.engine.Deposit(acct, acct, asset, big.NewInt(1_000_000)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
		if err := env.engine.SetAsCollateral(acct, asset, true); err != nil {
			t.Fatalf("set collateral: %v", err)
		}
	}
	if err := env.engine.Borrow(user, user, asset, big.NewInt(150_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	debtToken := env.wrapperTokens(t, asset).DebtToken
	// Moving 60000 would leave the sender at 90000 and the recipient at
	// 60000, both below the floor.
	if _, _, err := env.engine.TransferDebtFromTo(debtToken, asset, user, other, big.NewInt(60_000)); !errors.Is(err, ErrMinimalDebt) {
		t.Fatalf("dust remainder: got %v", err)
	}
	if _, _, err := env.engine.TransferDebtFromTo(debtToken, asset, user, other, big.NewInt(150_000)); err != nil {
		t.Fatalf("full move: %v", err)
	}
}

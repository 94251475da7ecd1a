package lendingpool

import (
	"errors"
	"math/big"
	"testing"

	"lendpool/core/events"
	"lendpool/crypto"
)

// liquidationScenario sets up a borrower about to go under water: the account
// deposits 1e6 of assetB as collateral and borrows 5e5 of assetA, both priced
// at 1e18.
func liquidationScenario(t *testing.T) (*testEnv, crypto.Address, crypto.Address, crypto.Address, crypto.Address) {
	t.Helper()
	env := newTestEnv(t)
	assetA := env.registerDefault(t, 0x10)
	assetB := env.registerDefault(t, 0x11)
	user := makeAddress(0x20)
	liquidator := makeAddress(0x21)

	env.tokens.setBalance(assetB, user, big.NewInt(1_000_000))
	env.tokens.setBalance(assetA, env.pool, big.NewInt(10_000_000))
	env.tokens.setBalance(assetA, liquidator, big.NewInt(1_000_000))

	if err := env.engine.Deposit(user, user, assetB, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.SetAsCollateral(user, assetB, true); err != nil {
		t.Fatalf("set collateral: %v", err)
	}
	if err := env.engine.Borrow(user, user, assetA, big.NewInt(500_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return env, assetA, assetB, user, liquidator
}

func TestLiquidateSolventAccountRejected(t *testing.T) {
	env, assetA, assetB, user, liquidator := liquidationScenario(t)
	_, _, err := env.engine.Liquidate(liquidator, user, assetA, assetB, big.NewInt(100_000), nil)
	if !errors.Is(err, ErrCollaterized) {
		t.Fatalf("solvent liquidation: got %v", err)
	}
}

func TestLiquidateAfterPriceDrop(t *testing.T) {
	env, assetA, assetB, user, liquidator := liquidationScenario(t)
	// Collateral price halves: collateral power 450000 no longer covers the
	// debt power of 550000.
	env.feed.set(assetB, e18(500_000))

	// Demanding more collateral per repaid unit than the penalty bonus
	// yields fails the whole call.
	tooGreedy := new(big.Int).Add(e18(2_200_000), big.NewInt(1))
	if _, _, err := env.engine.Liquidate(liquidator, user, assetA, assetB, big.NewInt(400_000), tooGreedy); !errors.Is(err, ErrMinimumReceived) {
		t.Fatalf("greedy minimum: got %v", err)
	}

	repaid, taken, err := env.engine.Liquidate(liquidator, user, assetA, assetB, big.NewInt(400_000), e18(2_200_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("repaid = %s, want 400000", repaid)
	}
	// 400000 repaid at price ratio 2 with a 10% combined penalty bonus.
	if taken.Cmp(big.NewInt(880_000)) != 0 {
		t.Fatalf("taken = %s, want 880000", taken)
	}

	debtEntry := env.accountEntry(t, assetA, user)
	if debtEntry.Debt.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("remaining debt = %s, want 100000", debtEntry.Debt)
	}
	takeEntry := env.accountEntry(t, assetB, user)
	if takeEntry.Deposit.Cmp(big.NewInt(120_000)) != 0 {
		t.Fatalf("remaining collateral = %s, want 120000", takeEntry.Deposit)
	}
	liquidatorEntry := env.accountEntry(t, assetB, liquidator)
	if liquidatorEntry.Deposit.Cmp(big.NewInt(880_000)) != 0 {
		t.Fatalf("liquidator deposit = %s, want 880000", liquidatorEntry.Deposit)
	}
	// The seized deposit stays inside the pool, so the take reserve's total
	// is unchanged while the repay reserve's debt shrank.
	if data := env.reserveData(t, assetB); data.TotalDeposit.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("take reserve total = %s, want 1000000", data.TotalDeposit)
	}
	if data := env.reserveData(t, assetA); data.TotalDebt.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("repay reserve debt = %s, want 100000", data.TotalDebt)
	}
	if got := env.tokens.balanceOf(assetA, liquidator); got.Cmp(big.NewInt(600_000)) != 0 {
		t.Fatalf("liquidator underlying = %s, want 600000", got)
	}
}

func TestLiquidateClipsRepayToDebt(t *testing.T) {
	env, assetA, assetB, user, liquidator := liquidationScenario(t)
	env.feed.set(assetB, e18(500_000))

	repaid, _, err := env.engine.Liquidate(liquidator, user, assetA, assetB, big.NewInt(900_000), nil)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("repaid = %s, want clipped 500000", repaid)
	}
	if entry := env.accountEntry(t, assetA, user); entry.Debt.Sign() != 0 {
		t.Fatalf("debt = %s, want 0", entry.Debt)
	}
}

func TestLiquidateRequiresCollateralFlag(t *testing.T) {
	env, assetA, _, user, liquidator := liquidationScenario(t)
	// assetA is never flagged as the borrower's collateral.
	_, _, err := env.engine.Liquidate(liquidator, user, assetA, assetA, big.NewInt(100_000), nil)
	if !errors.Is(err, ErrTakingNotACollateral) {
		t.Fatalf("non-collateral take: got %v", err)
	}
}

func TestLiquidateEmitsEvent(t *testing.T) {
	env, assetA, assetB, user, liquidator := liquidationScenario(t)
	env.feed.set(assetB, e18(500_000))
	if _, _, err := env.engine.Liquidate(liquidator, user, assetA, assetB, big.NewInt(400_000), nil); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	evts := env.emitter.ofType(events.TypeLendingLiquidation)
	if len(evts) != 1 {
		t.Fatalf("liquidation events = %d, want 1", len(evts))
	}
}

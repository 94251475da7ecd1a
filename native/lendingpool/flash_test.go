package lendingpool

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"lendpool/core/events"
	"lendpool/crypto"
)

type mockFlashReceiver struct {
	addr   crypto.Address
	called bool
	fail   bool
	hook   func(assets []crypto.Address, amounts, fees []*big.Int) error
}

func (m *mockFlashReceiver) Address() crypto.Address { return m.addr }

func (m *mockFlashReceiver) ExecuteOperation(assets []crypto.Address, amounts, fees []*big.Int, params []byte) error {
	m.called = true
	if m.fail {
		return fmt.Errorf("receiver refused")
	}
	if m.hook != nil {
		return m.hook(assets, amounts, fees)
	}
	return nil
}

func TestFlashLoanChargesFee(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	if err := env.engine.SetFlashLoanFee(env.admin, big.NewInt(10_000)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.tokens.setBalance(asset, env.pool, big.NewInt(2_000_000))

	receiver := &mockFlashReceiver{addr: makeAddress(0x30)}
	// The receiver starts with only the fee it owes on top of the loan.
	env.tokens.setBalance(asset, receiver.addr, big.NewInt(10_000))

	caller := makeAddress(0x31)
	if err := env.engine.FlashLoan(caller, receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(1_000_000)}, nil); err != nil {
		t.Fatalf("flash loan: %v", err)
	}
	if !receiver.called {
		t.Fatalf("receiver callback not invoked")
	}
	if got := env.tokens.balanceOf(asset, env.pool); got.Cmp(big.NewInt(2_010_000)) != 0 {
		t.Fatalf("pool balance = %s, want 2010000", got)
	}
	if got := env.tokens.balanceOf(asset, receiver.addr); got.Sign() != 0 {
		t.Fatalf("receiver balance = %s, want 0", got)
	}

	evts := env.emitter.ofType(events.TypeLendingFlashLoan)
	if len(evts) != 1 {
		t.Fatalf("flash loan events = %d, want 1", len(evts))
	}
	evt := evts[0].(events.LendingFlashLoan)
	if evt.Fee.Cmp(big.NewInt(10_000)) != 0 || evt.Amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected event payload: %+v", evt)
	}
}

func TestFlashLoanShortRepaymentFails(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	if err := env.engine.SetFlashLoanFee(env.admin, big.NewInt(10_000)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.tokens.setBalance(asset, env.pool, big.NewInt(2_000_000))

	receiver := &mockFlashReceiver{addr: makeAddress(0x30)}
	// Holds one unit less than the fee owed.
	env.tokens.setBalance(asset, receiver.addr, big.NewInt(9_999))

	caller := makeAddress(0x31)
	err := env.engine.FlashLoan(caller, receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(1_000_000)}, nil)
	if !errors.Is(err, ErrUnderlyingToken) {
		t.Fatalf("short repayment: got %v", err)
	}
}

func TestFlashLoanReceiverErrorSurfaces(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	env.tokens.setBalance(asset, env.pool, big.NewInt(2_000_000))

	receiver := &mockFlashReceiver{addr: makeAddress(0x30), fail: true}
	err := env.engine.FlashLoan(makeAddress(0x31), receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(1_000)}, nil)
	if !errors.Is(err, ErrFlashLoanReceiver) {
		t.Fatalf("receiver error: got %v", err)
	}
}

func TestFlashLoanArgumentValidation(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)

	if err := env.engine.FlashLoan(makeAddress(0x31), nil, []crypto.Address{asset}, []*big.Int{big.NewInt(1)}, nil); !errors.Is(err, ErrFlashLoanReceiver) {
		t.Fatalf("nil receiver: got %v", err)
	}
	receiver := &mockFlashReceiver{addr: makeAddress(0x30)}
	if err := env.engine.FlashLoan(makeAddress(0x31), receiver, []crypto.Address{asset}, nil, nil); !errors.Is(err, ErrFlashLoanLengthMismatch) {
		t.Fatalf("length mismatch: got %v", err)
	}
	if err := env.engine.FlashLoan(makeAddress(0x31), receiver, nil, nil, nil); !errors.Is(err, ErrAmountNotGreaterThanZero) {
		t.Fatalf("empty batch: got %v", err)
	}
	if err := env.engine.FlashLoan(makeAddress(0x31), receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(0)}, nil); !errors.Is(err, ErrAmountNotGreaterThanZero) {
		t.Fatalf("zero amount: got %v", err)
	}
}

type mockFeeReduction struct {
	reductions map[string]*big.Int
}

func (m *mockFeeReduction) FlashLoanFeeReduction(account crypto.Address) *big.Int {
	return m.reductions[string(account.Bytes())]
}

func TestFlashLoanFeeReductionBackendHalvesFee(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	if err := env.engine.SetFlashLoanFee(env.admin, big.NewInt(10_000)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.tokens.setBalance(asset, env.pool, big.NewInt(2_000_000))

	caller := makeAddress(0x31)
	env.engine.SetFeeReductionBackend(&mockFeeReduction{
		reductions: map[string]*big.Int{string(caller.Bytes()): big.NewInt(500_000)},
	})
	// The admin entry point records the provider identity independently of
	// the wired backend.
	if err := env.engine.SetFeeReductionProvider(env.admin, makeAddress(0x50)); err != nil {
		t.Fatalf("set provider: %v", err)
	}

	receiver := &mockFlashReceiver{addr: makeAddress(0x30)}
	env.tokens.setBalance(asset, receiver.addr, big.NewInt(5_000))
	if err := env.engine.FlashLoan(caller, receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(1_000_000)}, nil); err != nil {
		t.Fatalf("flash loan: %v", err)
	}
	if got := env.tokens.balanceOf(asset, env.pool); got.Cmp(big.NewInt(2_005_000)) != 0 {
		t.Fatalf("pool balance = %s, want 2005000", got)
	}

	// Another caller gets no discount from the backend.
	other := makeAddress(0x32)
	receiver = &mockFlashReceiver{addr: makeAddress(0x33)}
	env.tokens.setBalance(asset, receiver.addr, big.NewInt(10_000))
	if err := env.engine.FlashLoan(other, receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(1_000_000)}, nil); err != nil {
		t.Fatalf("undiscounted flash loan: %v", err)
	}
	if got := env.tokens.balanceOf(asset, env.pool); got.Cmp(big.NewInt(2_015_000)) != 0 {
		t.Fatalf("pool balance = %s, want 2015000", got)
	}
}

func TestFlashLoanFlashBorrowerRolePaysNoFee(t *testing.T) {
	env := newTestEnv(t)
	asset := env.registerDefault(t, 0x10)
	if err := env.engine.SetFlashLoanFee(env.admin, big.NewInt(10_000)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	env.tokens.setBalance(asset, env.pool, big.NewInt(2_000_000))

	caller := makeAddress(0x31)
	env.roles.grant(RoleFlashBorrower, caller)
	receiver := &mockFlashReceiver{addr: makeAddress(0x30)}
	receiver.hook = func(_ []crypto.Address, _, fees []*big.Int) error {
		if fees[0].Sign() != 0 {
			return fmt.Errorf("fee = %s, want 0", fees[0])
		}
		return nil
	}
	if err := env.engine.FlashLoan(caller, receiver, []crypto.Address{asset}, []*big.Int{big.NewInt(1_000_000)}, nil); err != nil {
		t.Fatalf("flash loan: %v", err)
	}
	if got := env.tokens.balanceOf(asset, env.pool); got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("pool balance = %s, want unchanged 2000000", got)
	}
}

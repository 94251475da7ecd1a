package lendingpool

import (
	"math/big"
	"testing"

	"lendpool/crypto"
)

type wrapperCall struct {
	token     crypto.Address
	events    []TransferEvent
	owner     crypto.Address
	spender   crypto.Address
	allowance *big.Int
}

type mockWrapperBackend struct {
	calls []wrapperCall
}

func (m *mockWrapperBackend) EmitTransferEvents(token crypto.Address, events []TransferEvent) error {
	m.calls = append(m.calls, wrapperCall{token: token, events: events})
	return nil
}

func (m *mockWrapperBackend) EmitTransferEventAndDecreaseAllowance(token crypto.Address, event TransferEvent, owner, spender crypto.Address, amount *big.Int) error {
	m.calls = append(m.calls, wrapperCall{
		token:     token,
		events:    []TransferEvent{event},
		owner:     owner,
		spender:   spender,
		allowance: amount,
	})
	return nil
}

func (m *mockWrapperBackend) callsFor(token crypto.Address) []wrapperCall {
	var out []wrapperCall
	for _, call := range m.calls {
		if call.token.Equal(token) {
			out = append(out, call)
		}
	}
	return out
}

func TestDepositNotifiesDepositToken(t *testing.T) {
	env := newTestEnv(t)
	wrappers := &mockWrapperBackend{}
	env.engine.SetWrapperBackend(wrappers)
	asset := env.registerDefault(t, 0x10)
	user := makeAddress(0x20)
	env.tokens.setBalance(asset, user, big.NewInt(1_000))

	if err := env.engine.Deposit(user, user, asset, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	depositToken := env.wrapperTokens(t, asset).DepositToken
	calls := wrappers.callsFor(depositToken)
	if len(calls) != 1 {
		t.Fatalf("deposit token calls = %d, want 1", len(calls))
	}
	evs := calls[0].events
	if len(evs) != 1 || evs[0].Amount.Cmp(big.NewInt(1_000)) != 0 || !evs[0].To.Equal(user) {
		t.Fatalf("unexpected transfer events: %+v", evs)
	}
	if !evs[0].From.IsZero() {
		t.Fatalf("principal mint should carry a zero From: %+v", evs[0])
	}
}

func TestWithdrawByOtherCallerConsumesAllowance(t *testing.T) {
	env := newTestEnv(t)
	wrappers := &mockWrapperBackend{}
	env.engine.SetWrapperBackend(wrappers)
	asset := env.registerDefault(t, 0x10)
	owner := makeAddress(0x20)
	spender := makeAddress(0x21)
	env.tokens.setBalance(asset, owner, big.NewInt(1_000))

	if err := env.engine.Deposit(owner, owner, asset, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	withdrawn, err := env.engine.Withdraw(spender, owner, asset, big.NewInt(400))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("withdrawn = %s, want 400", withdrawn)
	}
	// The underlying goes to the caller, not the owner.
	if got := env.tokens.balanceOf(asset, spender); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("spender underlying = %s, want 400", got)
	}

	depositToken := env.wrapperTokens(t, asset).DepositToken
	var allowanceCall *wrapperCall
	for i := range wrappers.calls {
		if wrappers.calls[i].allowance != nil {
			allowanceCall = &wrappers.calls[i]
		}
	}
	if allowanceCall == nil {
		t.Fatalf("no allowance-consuming notification recorded")
	}
	if !allowanceCall.token.Equal(depositToken) {
		t.Fatalf("allowance call hit token %x", allowanceCall.token.Bytes())
	}
	if !allowanceCall.owner.Equal(owner) || !allowanceCall.spender.Equal(spender) {
		t.Fatalf("allowance parties: owner=%x spender=%x", allowanceCall.owner.Bytes(), allowanceCall.spender.Bytes())
	}
	if allowanceCall.allowance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("allowance consumed = %s, want 400", allowanceCall.allowance)
	}
}

func TestRepayNotifiesDebtTokenBurn(t *testing.T) {
	env := newTestEnv(t)
	wrappers := &mockWrapperBackend{}
	env.engine.SetWrapperBackend(wrappers)
	asset := env.registerDefault(t, 0x10)
	user := makeAddress(0x20)
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
	wrappers.calls = nil
	if _, err := env.engine.Repay(user, user, asset, big.NewInt(500_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}

	debtToken := env.wrapperTokens(t, asset).DebtToken
	calls := wrappers.callsFor(debtToken)
	if len(calls) != 1 {
		t.Fatalf("debt token calls = %d, want 1", len(calls))
	}
	evs := calls[0].events
	if len(evs) != 1 || !evs[0].From.Equal(user) || !evs[0].To.IsZero() {
		t.Fatalf("repay should burn from the account: %+v", evs)
	}
}

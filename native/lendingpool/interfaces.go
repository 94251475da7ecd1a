package lendingpool

import (
	"math/big"

	"lendpool/crypto"
)

// TokenBackend moves underlying asset tokens on behalf of the pool. Errors
// from the backend surface as ErrUnderlyingToken wrapping the cause.
type TokenBackend interface {
	Transfer(asset, to crypto.Address, amount *big.Int) error
	TransferFrom(asset, from, to crypto.Address, amount *big.Int) error
	BalanceOf(asset, owner crypto.Address) (*big.Int, error)
	// Mint and Burn are used instead of transfers for protocol stablecoins:
	// the pool mints on withdraw/borrow and burns on deposit/repay.
	Mint(asset, to crypto.Address, amount *big.Int) error
	Burn(asset, from crypto.Address, amount *big.Int) error
}

// TokenFactory instantiates the wrapper token pair when an asset registers.
// The returned addresses are stored in the reserve record; the tokens hold
// the pool address and call back into it for balance accounting.
type TokenFactory interface {
	Instantiate(code []byte, asset crypto.Address, name, symbol string, decimals uint8) (crypto.Address, error)
}

// TransferEvent is a synthetic transfer notification relayed to a wrapper
// token so it can mirror pool-side balance changes. A zero From marks an
// interest mint.
type TransferEvent struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

// WrapperBackend delivers transfer events to wrapper token contracts. Both
// entry points are callable only by the pool on the token side.
type WrapperBackend interface {
	EmitTransferEvents(token crypto.Address, events []TransferEvent) error
	EmitTransferEventAndDecreaseAllowance(token crypto.Address, event TransferEvent, owner, spender crypto.Address, amount *big.Int) error
}

// PriceFeed returns USD prices per whole asset unit scaled by 1e18, in the
// order of the requested assets. A missing asset yields ErrNoPriceFeed.
type PriceFeed interface {
	PricesOf(assets []crypto.Address) ([]*big.Int, error)
}

// FeeReductionProvider scales down flash-loan fees per caller. The returned
// value is at E6 scale within [0, 1e6].
type FeeReductionProvider interface {
	FlashLoanFeeReduction(account crypto.Address) *big.Int
}

// FlashLoanReceiver is invoked between the out-transfer and the repayment
// pull of a flash loan. The callback may re-enter the pool with ordinary
// actions against the receiver's own account.
type FlashLoanReceiver interface {
	Address() crypto.Address
	ExecuteOperation(assets []crypto.Address, amounts, fees []*big.Int, params []byte) error
}

// RoleView answers role membership queries for the administrative surface.
type RoleView interface {
	HasRole(role string, addr []byte) bool
}

// Roles guarding the administrative entry points.
const (
	RoleParametersAdmin     = "ROLE_PARAMETERS_ADMIN"
	RoleEmergencyAdmin      = "ROLE_EMERGENCY_ADMIN"
	RoleAssetListingAdmin   = "ROLE_ASSET_LISTING_ADMIN"
	RoleStablecoinRateAdmin = "ROLE_STABLECOIN_RATE_ADMIN"
	RoleTreasury            = "ROLE_TREASURY"
	RoleFlashBorrower       = "ROLE_FLASH_BORROWER"
)

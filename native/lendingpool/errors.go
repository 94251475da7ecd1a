package lendingpool

import "errors"

var (
	errNilState  = errors.New("lending pool: state not configured")
	errNilTokens = errors.New("lending pool: token backend not configured")

	// Arithmetic.
	ErrMathOverflow  = errors.New("lending pool: math overflow")
	ErrMathUnderflow = errors.New("lending pool: math underflow")
	ErrDivByZero     = errors.New("lending pool: division by zero")

	// Registration.
	ErrAlreadyRegistered            = errors.New("lending pool: asset already registered")
	ErrAssetNotRegistered           = errors.New("lending pool: asset not registered")
	ErrMarketRuleInvalidID          = errors.New("lending pool: invalid market rule id")
	ErrAssetIsProtocolStablecoin    = errors.New("lending pool: asset is a protocol stablecoin")
	ErrAssetIsNotProtocolStablecoin = errors.New("lending pool: asset is not a protocol stablecoin")
	ErrAssetLimitReached            = errors.New("lending pool: registered asset limit reached")
	ErrInvalidInterestRateModel     = errors.New("lending pool: breakpoint rates must be non-decreasing")

	// Action preconditions.
	ErrAmountNotGreaterThanZero = errors.New("lending pool: amount must be greater than zero")
	ErrFlashLoanLengthMismatch  = errors.New("lending pool: flash loan amounts and assets have inconsistent lengths")
	ErrInsufficientDeposit      = errors.New("lending pool: insufficient deposit")
	ErrInsufficientDebt         = errors.New("lending pool: insufficient debt")

	// Market rules and solvency.
	ErrRuleBorrowDisable       = errors.New("lending pool: market rule disables borrowing this asset")
	ErrRuleCollateralDisable   = errors.New("lending pool: market rule disables this asset as collateral")
	ErrInsufficientCollateral  = errors.New("lending pool: insufficient collateral")
	ErrTakingNotACollateral    = errors.New("lending pool: asset to take is not flagged as collateral")
	ErrNothingToRepay          = errors.New("lending pool: nothing to repay")
	ErrNothingToCompensateWith = errors.New("lending pool: nothing to compensate with")
	ErrCollaterized            = errors.New("lending pool: account is collaterized")
	ErrMinimumReceived         = errors.New("lending pool: minimum received not met")
	ErrAssetRuleLoosened       = errors.New("lending pool: asset rule may only be tightened")

	// Reserve state.
	ErrReserveInactive   = errors.New("lending pool: reserve inactive")
	ErrReserveFrozen     = errors.New("lending pool: reserve frozen")
	ErrAlreadySet        = errors.New("lending pool: value already set")
	ErrMaxDepositReached = errors.New("lending pool: maximal total deposit reached")
	ErrMaxDebtReached    = errors.New("lending pool: maximal total debt reached")
	ErrMinimalCollateral = errors.New("lending pool: deposit below minimal collateral")
	ErrMinimalDebt       = errors.New("lending pool: debt below minimal debt")

	// External collaborators.
	ErrNoPriceFeed       = errors.New("lending pool: no price feed for asset")
	ErrFlashLoanReceiver = errors.New("lending pool: flash loan receiver failed")
	ErrMissingRole       = errors.New("lending pool: missing role")
	ErrUnderlyingToken   = errors.New("lending pool: underlying token call failed")
)

package events

import (
	"math/big"
	"strconv"

	"lendpool/core/types"
	"lendpool/crypto"
)

const (
	// TypeLendingDeposit is emitted when underlying tokens are supplied to a reserve.
	TypeLendingDeposit = "lendingpool.deposit"
	// TypeLendingWithdraw is emitted when a deposit is redeemed for underlying tokens.
	TypeLendingWithdraw = "lendingpool.withdraw"
	// TypeLendingBorrow is emitted when debt is drawn against collateral.
	TypeLendingBorrow = "lendingpool.borrow"
	// TypeLendingRepay is emitted when outstanding debt is repaid.
	TypeLendingRepay = "lendingpool.repay"
	// TypeLendingFlashLoan is emitted once per asset after a flash loan round-trip.
	TypeLendingFlashLoan = "lendingpool.flash_loan"
	// TypeLendingLiquidation is emitted after a successful liquidation.
	TypeLendingLiquidation = "lendingpool.liquidation"
	// TypeLendingCollateralSet is emitted when an account toggles a collateral flag.
	TypeLendingCollateralSet = "lendingpool.collateral_set"
	// TypeLendingMarketRuleChosen is emitted when an account adopts a market rule.
	TypeLendingMarketRuleChosen = "lendingpool.market_rule_chosen"
	// TypeLendingInterestsAccumulated is emitted after reserve indexes advance.
	TypeLendingInterestsAccumulated = "lendingpool.interests_accumulated"
	// TypeLendingAssetRegistered is emitted when a new asset joins the pool.
	TypeLendingAssetRegistered = "lendingpool.asset_registered"

	TypeLendingPriceFeedProviderChanged    = "lendingpool.price_feed_provider_changed"
	TypeLendingFeeReductionProviderChanged = "lendingpool.fee_reduction_provider_changed"
	TypeLendingFlashLoanFeeChanged         = "lendingpool.flash_loan_fee_changed"
	TypeLendingReserveActivated            = "lendingpool.reserve_activated"
	TypeLendingReserveFrozen               = "lendingpool.reserve_frozen"
	TypeLendingInterestRateModelChanged    = "lendingpool.reserve_interest_rate_model_changed"
	TypeLendingReserveRestrictionsChanged  = "lendingpool.reserve_restrictions_changed"
	TypeLendingReserveFeesChanged          = "lendingpool.reserve_fees_changed"
	TypeLendingAssetRulesChanged           = "lendingpool.asset_rules_changed"
	TypeLendingIncomeTaken                 = "lendingpool.income_taken"
	TypeLendingStablecoinDebtRateChanged   = "lendingpool.stablecoin_debt_rate_changed"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

// LendingDeposit captures a completed deposit action.
type LendingDeposit struct {
	Asset      crypto.Address
	Caller     crypto.Address
	OnBehalfOf crypto.Address
	Amount     *big.Int
}

func (LendingDeposit) EventType() string { return TypeLendingDeposit }

func (e LendingDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingDeposit,
		Attributes: map[string]string{
			"asset":      addressString(e.Asset),
			"caller":     addressString(e.Caller),
			"onBehalfOf": addressString(e.OnBehalfOf),
			"amount":     amountString(e.Amount),
		},
	}
}

// LendingWithdraw captures a completed withdraw action.
type LendingWithdraw struct {
	Asset      crypto.Address
	Caller     crypto.Address
	OnBehalfOf crypto.Address
	Amount     *big.Int
}

func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

func (e LendingWithdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingWithdraw,
		Attributes: map[string]string{
			"asset":      addressString(e.Asset),
			"caller":     addressString(e.Caller),
			"onBehalfOf": addressString(e.OnBehalfOf),
			"amount":     amountString(e.Amount),
		},
	}
}

// LendingBorrow captures a completed borrow action.
type LendingBorrow struct {
	Asset      crypto.Address
	Caller     crypto.Address
	OnBehalfOf crypto.Address
	Amount     *big.Int
}

func (LendingBorrow) EventType() string { return TypeLendingBorrow }

func (e LendingBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingBorrow,
		Attributes: map[string]string{
			"asset":      addressString(e.Asset),
			"caller":     addressString(e.Caller),
			"onBehalfOf": addressString(e.OnBehalfOf),
			"amount":     amountString(e.Amount),
		},
	}
}

// LendingRepay captures a completed repay action.
type LendingRepay struct {
	Asset      crypto.Address
	Caller     crypto.Address
	OnBehalfOf crypto.Address
	Amount     *big.Int
}

func (LendingRepay) EventType() string { return TypeLendingRepay }

func (e LendingRepay) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingRepay,
		Attributes: map[string]string{
			"asset":      addressString(e.Asset),
			"caller":     addressString(e.Caller),
			"onBehalfOf": addressString(e.OnBehalfOf),
			"amount":     amountString(e.Amount),
		},
	}
}

// LendingFlashLoan is emitted once per asset after the borrow and repayment
// transfers both settled.
type LendingFlashLoan struct {
	Receiver crypto.Address
	Caller   crypto.Address
	Asset    crypto.Address
	Amount   *big.Int
	Fee      *big.Int
}

func (LendingFlashLoan) EventType() string { return TypeLendingFlashLoan }

func (e LendingFlashLoan) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingFlashLoan,
		Attributes: map[string]string{
			"receiver": addressString(e.Receiver),
			"caller":   addressString(e.Caller),
			"asset":    addressString(e.Asset),
			"amount":   amountString(e.Amount),
			"fee":      amountString(e.Fee),
		},
	}
}

// LendingLiquidation records the repaid debt and seized collateral of a
// liquidation.
type LendingLiquidation struct {
	Liquidator   crypto.Address
	Liquidated   crypto.Address
	AssetToRepay crypto.Address
	AssetToTake  crypto.Address
	AmountRepaid *big.Int
	AmountTaken  *big.Int
}

func (LendingLiquidation) EventType() string { return TypeLendingLiquidation }

func (e LendingLiquidation) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingLiquidation,
		Attributes: map[string]string{
			"liquidator":   addressString(e.Liquidator),
			"liquidated":   addressString(e.Liquidated),
			"assetToRepay": addressString(e.AssetToRepay),
			"assetToTake":  addressString(e.AssetToTake),
			"amountRepaid": amountString(e.AmountRepaid),
			"amountTaken":  amountString(e.AmountTaken),
		},
	}
}

// LendingCollateralSet records a collateral flag toggle.
type LendingCollateralSet struct {
	Caller crypto.Address
	Asset  crypto.Address
	Set    bool
}

func (LendingCollateralSet) EventType() string { return TypeLendingCollateralSet }

func (e LendingCollateralSet) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingCollateralSet,
		Attributes: map[string]string{
			"caller": addressString(e.Caller),
			"asset":  addressString(e.Asset),
			"set":    strconv.FormatBool(e.Set),
		},
	}
}

// LendingMarketRuleChosen records an account switching risk profile.
type LendingMarketRuleChosen struct {
	Caller crypto.Address
	RuleID uint32
}

func (LendingMarketRuleChosen) EventType() string { return TypeLendingMarketRuleChosen }

func (e LendingMarketRuleChosen) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingMarketRuleChosen,
		Attributes: map[string]string{
			"caller": addressString(e.Caller),
			"ruleId": strconv.FormatUint(uint64(e.RuleID), 10),
		},
	}
}

// LendingInterestsAccumulated is emitted after a reserve's indexes advance.
type LendingInterestsAccumulated struct {
	Asset crypto.Address
}

func (LendingInterestsAccumulated) EventType() string { return TypeLendingInterestsAccumulated }

func (e LendingInterestsAccumulated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingInterestsAccumulated,
		Attributes: map[string]string{
			"asset": addressString(e.Asset),
		},
	}
}

// LendingAssetRegistered announces a freshly listed asset and its wrapper
// token pair.
type LendingAssetRegistered struct {
	Asset        crypto.Address
	Name         string
	Symbol       string
	Decimals     uint8
	DepositToken crypto.Address
	DebtToken    crypto.Address
}

func (LendingAssetRegistered) EventType() string { return TypeLendingAssetRegistered }

func (e LendingAssetRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingAssetRegistered,
		Attributes: map[string]string{
			"asset":        addressString(e.Asset),
			"name":         e.Name,
			"symbol":       e.Symbol,
			"decimals":     strconv.FormatUint(uint64(e.Decimals), 10),
			"depositToken": addressString(e.DepositToken),
			"debtToken":    addressString(e.DebtToken),
		},
	}
}

// LendingPriceFeedProviderChanged records a price feed provider swap.
type LendingPriceFeedProviderChanged struct {
	Provider crypto.Address
}

func (LendingPriceFeedProviderChanged) EventType() string {
	return TypeLendingPriceFeedProviderChanged
}

func (e LendingPriceFeedProviderChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingPriceFeedProviderChanged,
		Attributes: map[string]string{
			"provider": addressString(e.Provider),
		},
	}
}

// LendingFeeReductionProviderChanged records a fee reduction provider swap.
type LendingFeeReductionProviderChanged struct {
	Provider crypto.Address
}

func (LendingFeeReductionProviderChanged) EventType() string {
	return TypeLendingFeeReductionProviderChanged
}

func (e LendingFeeReductionProviderChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingFeeReductionProviderChanged,
		Attributes: map[string]string{
			"provider": addressString(e.Provider),
		},
	}
}

// LendingFlashLoanFeeChanged records a flash-loan fee update.
type LendingFlashLoanFeeChanged struct {
	FlashLoanFeeE6 *big.Int
}

func (LendingFlashLoanFeeChanged) EventType() string { return TypeLendingFlashLoanFeeChanged }

func (e LendingFlashLoanFeeChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingFlashLoanFeeChanged,
		Attributes: map[string]string{
			"flashLoanFeeE6": amountString(e.FlashLoanFeeE6),
		},
	}
}

// LendingReserveActivated records a reserve activation gate change.
type LendingReserveActivated struct {
	Asset  crypto.Address
	Active bool
}

func (LendingReserveActivated) EventType() string { return TypeLendingReserveActivated }

func (e LendingReserveActivated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveActivated,
		Attributes: map[string]string{
			"asset":  addressString(e.Asset),
			"active": strconv.FormatBool(e.Active),
		},
	}
}

// LendingReserveFrozen records a reserve freeze gate change.
type LendingReserveFrozen struct {
	Asset  crypto.Address
	Frozen bool
}

func (LendingReserveFrozen) EventType() string { return TypeLendingReserveFrozen }

func (e LendingReserveFrozen) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveFrozen,
		Attributes: map[string]string{
			"asset":  addressString(e.Asset),
			"frozen": strconv.FormatBool(e.Frozen),
		},
	}
}

// LendingInterestRateModelChanged records a model parameter update.
type LendingInterestRateModelChanged struct {
	Asset crypto.Address
}

func (LendingInterestRateModelChanged) EventType() string {
	return TypeLendingInterestRateModelChanged
}

func (e LendingInterestRateModelChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingInterestRateModelChanged,
		Attributes: map[string]string{
			"asset": addressString(e.Asset),
		},
	}
}

// LendingReserveRestrictionsChanged records a restrictions update.
type LendingReserveRestrictionsChanged struct {
	Asset crypto.Address
}

func (LendingReserveRestrictionsChanged) EventType() string {
	return TypeLendingReserveRestrictionsChanged
}

func (e LendingReserveRestrictionsChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveRestrictionsChanged,
		Attributes: map[string]string{
			"asset": addressString(e.Asset),
		},
	}
}

// LendingReserveFeesChanged records a reserve fee update.
type LendingReserveFeesChanged struct {
	Asset        crypto.Address
	DepositFeeE6 *big.Int
	DebtFeeE6    *big.Int
}

func (LendingReserveFeesChanged) EventType() string { return TypeLendingReserveFeesChanged }

func (e LendingReserveFeesChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingReserveFeesChanged,
		Attributes: map[string]string{
			"asset":        addressString(e.Asset),
			"depositFeeE6": amountString(e.DepositFeeE6),
			"debtFeeE6":    amountString(e.DebtFeeE6),
		},
	}
}

// LendingAssetRulesChanged records a market-rule entry update for one asset.
type LendingAssetRulesChanged struct {
	RuleID uint32
	Asset  crypto.Address
}

func (LendingAssetRulesChanged) EventType() string { return TypeLendingAssetRulesChanged }

func (e LendingAssetRulesChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingAssetRulesChanged,
		Attributes: map[string]string{
			"ruleId": strconv.FormatUint(uint64(e.RuleID), 10),
			"asset":  addressString(e.Asset),
		},
	}
}

// LendingIncomeTaken records protocol income swept by the treasury.
type LendingIncomeTaken struct {
	Asset  crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (LendingIncomeTaken) EventType() string { return TypeLendingIncomeTaken }

func (e LendingIncomeTaken) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingIncomeTaken,
		Attributes: map[string]string{
			"asset":  addressString(e.Asset),
			"to":     addressString(e.To),
			"amount": amountString(e.Amount),
		},
	}
}

// LendingStablecoinDebtRateChanged records an administered debt rate update.
type LendingStablecoinDebtRateChanged struct {
	Asset       crypto.Address
	DebtRateE18 *big.Int
}

func (LendingStablecoinDebtRateChanged) EventType() string {
	return TypeLendingStablecoinDebtRateChanged
}

func (e LendingStablecoinDebtRateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingStablecoinDebtRateChanged,
		Attributes: map[string]string{
			"asset":       addressString(e.Asset),
			"debtRateE18": amountString(e.DebtRateE18),
		},
	}
}

package lendingpool

import (
	"fmt"
	"math/big"

	"lendpool/core/events"
	"lendpool/crypto"
)

const maxAssetDecimals = 30

func (e *Engine) requireRole(role string, caller crypto.Address) error {
	if e.roles == nil || !e.roles.HasRole(role, caller.Bytes()) {
		return fmt.Errorf("%w: %s", ErrMissingRole, role)
	}
	return nil
}

func (e *Engine) adminLog(msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg, args...)
}

// RegisterAssetParams carries everything needed to list a new asset. A nil
// InterestRateModel marks the asset as a protocol stablecoin whose debt rate
// is administered directly.
type RegisterAssetParams struct {
	Asset             crypto.Address
	DepositTokenCode  []byte
	DebtTokenCode     []byte
	Name              string
	Symbol            string
	Decimals          uint8
	Rules             AssetRule
	Restrictions      ReserveRestrictions
	DepositFeeE6      *big.Int
	DebtFeeE6         *big.Int
	InterestRateModel *InterestRateModel
}

// RegisterAsset lists a new asset: it allocates an id, instantiates the
// wrapper token pair, seeds the default market rule entry and activates the
// reserve.
func (e *Engine) RegisterAsset(caller crypto.Address, params RegisterAssetParams) (uint32, error) {
	id, err := e.registerAsset(caller, params)
	e.record("register_asset", err)
	return id, err
}

func (e *Engine) registerAsset(caller crypto.Address, params RegisterAssetParams) (uint32, error) {
	if err := e.begin(); err != nil {
		return 0, err
	}
	if err := e.requireRole(RoleAssetListingAdmin, caller); err != nil {
		return 0, err
	}
	fail := func(err error) (uint32, error) {
		e.state.Discard()
		return 0, err
	}
	if params.Decimals > maxAssetDecimals {
		return fail(fmt.Errorf("lending pool: decimals %d exceed %d", params.Decimals, maxAssetDecimals))
	}
	depositFee := orZero(params.DepositFeeE6)
	debtFee := orZero(params.DebtFeeE6)
	if depositFee.Sign() < 0 || depositFee.Cmp(oneE6) > 0 || debtFee.Sign() < 0 {
		return fail(fmt.Errorf("lending pool: invalid reserve fees"))
	}
	if params.InterestRateModel != nil {
		if err := params.InterestRateModel.Validate(); err != nil {
			return fail(err)
		}
	}

	id, err := e.state.RegisterAssetID(params.Asset)
	if err != nil {
		return fail(err)
	}
	mult := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(params.Decimals)), nil)
	if err := e.state.PutDecimalMultiplier(id, mult); err != nil {
		return fail(err)
	}
	data := &ReserveData{Activated: true}
	data.EnsureDefaults()
	if err := e.state.PutReserveData(id, data); err != nil {
		return fail(err)
	}
	indexes := &ReserveIndexesAndFees{
		DepositFeeE6:        depositFee,
		DebtFeeE6:           debtFee,
		LastUpdateTimestamp: e.nowMs,
	}
	indexes.EnsureDefaults()
	if err := e.state.PutReserveIndexes(id, indexes); err != nil {
		return fail(err)
	}
	restrictions := params.Restrictions
	if err := e.state.PutReserveRestrictions(id, &restrictions); err != nil {
		return fail(err)
	}
	if params.InterestRateModel != nil {
		if err := e.state.PutInterestRateModel(id, params.InterestRateModel.Clone()); err != nil {
			return fail(err)
		}
	}

	tokens := &ReserveTokens{}
	if e.factory != nil {
		depositToken, err := e.factory.Instantiate(params.DepositTokenCode, params.Asset, params.Name+" Deposit", "d"+params.Symbol, params.Decimals)
		if err != nil {
			return fail(err)
		}
		debtToken, err := e.factory.Instantiate(params.DebtTokenCode, params.Asset, params.Name+" Debt", "v"+params.Symbol, params.Decimals)
		if err != nil {
			return fail(err)
		}
		tokens.DepositToken = depositToken
		tokens.DebtToken = debtToken
	}
	if err := e.state.PutReserveTokens(id, tokens); err != nil {
		return fail(err)
	}

	// Seed the entry in the default market rule, creating rule 0 on the
	// first registration.
	ruleCount, err := e.state.RuleCount()
	if err != nil {
		return fail(err)
	}
	if ruleCount == 0 {
		rule := &MarketRule{}
		rule.SetEntry(id, params.Rules)
		if _, err := e.state.AppendMarketRule(rule); err != nil {
			return fail(err)
		}
	} else {
		rule, err := e.state.MarketRule(0)
		if err != nil {
			return fail(err)
		}
		rule.SetEntry(id, params.Rules)
		if err := e.state.PutMarketRule(0, rule); err != nil {
			return fail(err)
		}
	}

	if err := e.state.Commit(); err != nil {
		return 0, err
	}
	e.adminLog("lendingpool: asset registered", "asset", params.Asset.String(), "id", id, "symbol", params.Symbol)
	e.emitter.Emit(events.LendingAssetRegistered{
		Asset:        params.Asset,
		Name:         params.Name,
		Symbol:       params.Symbol,
		Decimals:     params.Decimals,
		DepositToken: tokens.DepositToken,
		DebtToken:    tokens.DebtToken,
	})
	e.emitter.Emit(events.LendingReserveActivated{Asset: params.Asset, Active: true})
	e.emitter.Emit(events.LendingReserveRestrictionsChanged{Asset: params.Asset})
	e.emitter.Emit(events.LendingReserveFeesChanged{Asset: params.Asset, DepositFeeE6: depositFee, DebtFeeE6: debtFee})
	e.emitter.Emit(events.LendingAssetRulesChanged{RuleID: 0, Asset: params.Asset})
	if params.InterestRateModel != nil {
		e.emitter.Emit(events.LendingInterestRateModelChanged{Asset: params.Asset})
	}
	return id, nil
}

// SetReserveActive flips the reserve's master gate. Setting the current
// state again fails with ErrAlreadySet.
func (e *Engine) SetReserveActive(caller, asset crypto.Address, active bool) error {
	err := e.setReserveActive(caller, asset, active)
	e.record("set_reserve_active", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingReserveActivated{Asset: asset, Active: active})
	return nil
}

func (e *Engine) setReserveActive(caller, asset crypto.Address, active bool) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleEmergencyAdmin, caller); err != nil {
		return err
	}
	r, err := e.loadReserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	if r.data.Activated == active {
		e.state.Discard()
		return ErrAlreadySet
	}
	r.data.Activated = active
	if err := e.state.PutReserveData(r.id, r.data); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.adminLog("lendingpool: reserve activation changed", "asset", asset.String(), "active", active)
	return nil
}

// SetReserveFrozen flips the reserve's freeze gate, blocking new deposits and
// borrows. Setting the current state again fails with ErrAlreadySet.
func (e *Engine) SetReserveFrozen(caller, asset crypto.Address, frozen bool) error {
	err := e.setReserveFrozen(caller, asset, frozen)
	e.record("set_reserve_frozen", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingReserveFrozen{Asset: asset, Frozen: frozen})
	return nil
}

func (e *Engine) setReserveFrozen(caller, asset crypto.Address, frozen bool) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleEmergencyAdmin, caller); err != nil {
		return err
	}
	r, err := e.loadReserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	if r.data.Frozen == frozen {
		e.state.Discard()
		return ErrAlreadySet
	}
	r.data.Frozen = frozen
	if err := e.state.PutReserveData(r.id, r.data); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.adminLog("lendingpool: reserve freeze changed", "asset", asset.String(), "frozen", frozen)
	return nil
}

// SetReserveRestrictions replaces the caps and minimums of a reserve.
func (e *Engine) SetReserveRestrictions(caller, asset crypto.Address, restrictions ReserveRestrictions) error {
	err := e.setReserveRestrictions(caller, asset, restrictions)
	e.record("set_reserve_restrictions", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingReserveRestrictionsChanged{Asset: asset})
	return nil
}

func (e *Engine) setReserveRestrictions(caller, asset crypto.Address, restrictions ReserveRestrictions) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return err
	}
	r, err := e.loadReserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.PutReserveRestrictions(r.id, &restrictions); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

// SetReserveFees replaces the fee cuts applied when interest materialises.
// The deposit fee may not exceed 100%.
func (e *Engine) SetReserveFees(caller, asset crypto.Address, depositFeeE6, debtFeeE6 *big.Int) error {
	err := e.setReserveFees(caller, asset, depositFeeE6, debtFeeE6)
	e.record("set_reserve_fees", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingReserveFeesChanged{Asset: asset, DepositFeeE6: orZero(depositFeeE6), DebtFeeE6: orZero(debtFeeE6)})
	return nil
}

func (e *Engine) setReserveFees(caller, asset crypto.Address, depositFeeE6, debtFeeE6 *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return err
	}
	depositFee := orZero(depositFeeE6)
	debtFee := orZero(debtFeeE6)
	if depositFee.Sign() < 0 || depositFee.Cmp(oneE6) > 0 || debtFee.Sign() < 0 {
		return fmt.Errorf("lending pool: invalid reserve fees")
	}
	r, err := e.loadReserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	r.indexes.DepositFeeE6 = cloneBig(depositFee)
	r.indexes.DebtFeeE6 = cloneBig(debtFee)
	if err := e.state.PutReserveIndexes(r.id, r.indexes); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

// SetInterestRateModel replaces the rate curve of a non-stablecoin reserve.
// The reserve accrues at its old rates up to now before the new curve takes
// effect.
func (e *Engine) SetInterestRateModel(caller, asset crypto.Address, model *InterestRateModel) error {
	err := e.setInterestRateModel(caller, asset, model)
	e.record("set_interest_rate_model", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingInterestRateModelChanged{Asset: asset})
	return nil
}

func (e *Engine) setInterestRateModel(caller, asset crypto.Address, model *InterestRateModel) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return err
	}
	if model == nil {
		return ErrInvalidInterestRateModel
	}
	if err := model.Validate(); err != nil {
		return err
	}
	s := e.newSession()
	r, err := s.reserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	if r.model == nil {
		e.state.Discard()
		return ErrAssetIsProtocolStablecoin
	}
	r.model = model.Clone()
	recalculateRates(r.data, r.model)
	if err := e.state.PutInterestRateModel(r.id, r.model); err != nil {
		e.state.Discard()
		return err
	}
	if err := s.persist(); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

// SetStablecoinDebtRate administers the debt rate of a protocol stablecoin
// reserve directly.
func (e *Engine) SetStablecoinDebtRate(caller, asset crypto.Address, debtRateE18 *big.Int) error {
	err := e.setStablecoinDebtRate(caller, asset, debtRateE18)
	e.record("set_stablecoin_debt_rate", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingStablecoinDebtRateChanged{Asset: asset, DebtRateE18: orZero(debtRateE18)})
	return nil
}

func (e *Engine) setStablecoinDebtRate(caller, asset crypto.Address, debtRateE18 *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleStablecoinRateAdmin, caller); err != nil {
		return err
	}
	rate := orZero(debtRateE18)
	if rate.Sign() < 0 {
		return ErrMathUnderflow
	}
	s := e.newSession()
	r, err := s.reserve(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	if r.model != nil {
		e.state.Discard()
		return ErrAssetIsNotProtocolStablecoin
	}
	r.data.CurrentDebtRateE18 = cloneBig(rate)
	recalculateRates(r.data, nil)
	if err := s.persist(); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

// AddMarketRule appends a new market rule and returns its id.
func (e *Engine) AddMarketRule(caller crypto.Address, rule *MarketRule) (uint32, error) {
	id, affected, err := e.addMarketRule(caller, rule)
	e.record("add_market_rule", err)
	if err != nil {
		return 0, err
	}
	for _, asset := range affected {
		e.emitter.Emit(events.LendingAssetRulesChanged{RuleID: id, Asset: asset})
	}
	return id, nil
}

func (e *Engine) addMarketRule(caller crypto.Address, rule *MarketRule) (uint32, []crypto.Address, error) {
	if err := e.begin(); err != nil {
		return 0, nil, err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return 0, nil, err
	}
	if rule == nil {
		rule = &MarketRule{}
	}
	fail := func(err error) (uint32, []crypto.Address, error) {
		e.state.Discard()
		return 0, nil, err
	}
	count, err := e.state.AssetCount()
	if err != nil {
		return fail(err)
	}
	if len(rule.Rules) > int(count) {
		return fail(fmt.Errorf("%w: rule covers %d assets, %d registered", ErrAssetNotRegistered, len(rule.Rules), count))
	}
	var affected []crypto.Address
	for id := range rule.Rules {
		if entry, ok := rule.Entry(uint32(id)); ok && (entry.HasCollateral || entry.HasBorrow || entry.HasPenalty) {
			asset, err := e.state.AssetAddress(uint32(id))
			if err != nil {
				return fail(err)
			}
			affected = append(affected, asset)
		}
	}
	id, err := e.state.AppendMarketRule(rule)
	if err != nil {
		return fail(err)
	}
	if err := e.state.Commit(); err != nil {
		return 0, nil, err
	}
	e.adminLog("lendingpool: market rule added", "ruleId", id)
	return id, affected, nil
}

// ModifyAssetRule updates one asset's entry in an existing market rule. An
// entry may only be tightened, never loosened, so existing positions cannot
// become riskier by fiat.
func (e *Engine) ModifyAssetRule(caller crypto.Address, ruleID uint32, asset crypto.Address, entry AssetRule) error {
	err := e.modifyAssetRule(caller, ruleID, asset, entry)
	e.record("modify_asset_rule", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingAssetRulesChanged{RuleID: ruleID, Asset: asset})
	return nil
}

func (e *Engine) modifyAssetRule(caller crypto.Address, ruleID uint32, asset crypto.Address, entry AssetRule) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return err
	}
	id, ok, err := e.state.AssetID(asset)
	if err != nil {
		e.state.Discard()
		return err
	}
	if !ok {
		e.state.Discard()
		return ErrAssetNotRegistered
	}
	rule, err := e.state.MarketRule(ruleID)
	if err != nil {
		e.state.Discard()
		return err
	}
	current, _ := rule.Entry(id)
	if !current.Tightens(entry) {
		e.state.Discard()
		return ErrAssetRuleLoosened
	}
	rule.SetEntry(id, entry)
	if err := e.state.PutMarketRule(ruleID, rule); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

// TakeProtocolIncome sweeps the accumulated protocol income of the given
// assets to the target address. A nil asset list sweeps every registered
// asset. It returns the amount taken per swept asset.
func (e *Engine) TakeProtocolIncome(caller crypto.Address, assets []crypto.Address, to crypto.Address) ([]*big.Int, error) {
	amounts, swept, err := e.takeProtocolIncome(caller, assets, to)
	e.record("take_protocol_income", err)
	if err != nil {
		return nil, err
	}
	for i, asset := range swept {
		if amounts[i].Sign() > 0 {
			e.emitter.Emit(events.LendingIncomeTaken{Asset: asset, To: to, Amount: amounts[i]})
		}
	}
	return amounts, nil
}

func (e *Engine) takeProtocolIncome(caller crypto.Address, assets []crypto.Address, to crypto.Address) ([]*big.Int, []crypto.Address, error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	if err := e.requireRole(RoleTreasury, caller); err != nil {
		return nil, nil, err
	}
	fail := func(err error) ([]*big.Int, []crypto.Address, error) {
		e.state.Discard()
		return nil, nil, err
	}
	if assets == nil {
		count, err := e.state.AssetCount()
		if err != nil {
			return fail(err)
		}
		for id := uint32(0); id < count; id++ {
			asset, err := e.state.AssetAddress(id)
			if err != nil {
				return fail(err)
			}
			assets = append(assets, asset)
		}
	}
	if e.tokens == nil {
		return fail(errNilTokens)
	}

	s := e.newSession()
	amounts := make([]*big.Int, len(assets))
	type payout struct {
		r      *reserveCtx
		amount *big.Int
	}
	var payouts []payout
	for i, asset := range assets {
		r, err := s.reserve(asset)
		if err != nil {
			return fail(err)
		}
		balance, err := e.tokens.BalanceOf(asset, e.poolAddress)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrUnderlyingToken, err))
		}
		income := new(big.Int).Add(orZero(balance), r.data.TotalDebt)
		income.Sub(income, r.data.TotalDeposit)
		if income.Sign() <= 0 {
			amounts[i] = big.NewInt(0)
			continue
		}
		amounts[i] = income
		payouts = append(payouts, payout{r: r, amount: income})
	}
	if err := s.persist(); err != nil {
		return fail(err)
	}
	for _, p := range payouts {
		if err := e.pushUnderlying(p.r, to, p.amount); err != nil {
			return fail(err)
		}
	}
	if err := e.state.Commit(); err != nil {
		return nil, nil, err
	}
	e.adminLog("lendingpool: protocol income taken", "to", to.String(), "assets", len(assets))
	return amounts, assets, nil
}

// SetPriceFeedProvider records the identity of the oracle the host wires in.
func (e *Engine) SetPriceFeedProvider(caller, provider crypto.Address) error {
	err := e.setProviderAddress(caller, provider, e.state.PutPriceFeedProviderAddress)
	e.record("set_price_feed_provider", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingPriceFeedProviderChanged{Provider: provider})
	return nil
}

// SetFeeReductionProvider records the identity of the flash-loan fee
// discounter.
func (e *Engine) SetFeeReductionProvider(caller, provider crypto.Address) error {
	err := e.setProviderAddress(caller, provider, e.state.PutFeeReductionProviderAddress)
	e.record("set_fee_reduction_provider", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingFeeReductionProviderChanged{Provider: provider})
	return nil
}

func (e *Engine) setProviderAddress(caller, provider crypto.Address, put func([]byte) error) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return err
	}
	if err := put(provider.Bytes()); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

// SetFlashLoanFee updates the pool-wide flash loan fee.
func (e *Engine) SetFlashLoanFee(caller crypto.Address, feeE6 *big.Int) error {
	err := e.setFlashLoanFee(caller, feeE6)
	e.record("set_flash_loan_fee", err)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.LendingFlashLoanFeeChanged{FlashLoanFeeE6: orZero(feeE6)})
	return nil
}

func (e *Engine) setFlashLoanFee(caller crypto.Address, feeE6 *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireRole(RoleParametersAdmin, caller); err != nil {
		return err
	}
	fee := orZero(feeE6)
	if fee.Sign() < 0 || fee.Cmp(oneE6) > 0 {
		return fmt.Errorf("lending pool: invalid flash loan fee")
	}
	if err := e.state.PutFlashLoanFeeE6(fee); err != nil {
		e.state.Discard()
		return err
	}
	return e.state.Commit()
}

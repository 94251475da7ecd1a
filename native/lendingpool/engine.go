package lendingpool

import (
	"fmt"
	"log/slog"
	"math/big"

	"lendpool/core/events"
	"lendpool/crypto"
	nativecommon "lendpool/native/common"
	"lendpool/observability"
)

const moduleName = "lendingpool"

// PoolState is the persistence surface the engine mutates. The storage
// facade implements it; tests may substitute their own.
type PoolState interface {
	AssetID(asset crypto.Address) (uint32, bool, error)
	AssetAddress(id uint32) (crypto.Address, error)
	AssetCount() (uint32, error)
	RegisterAssetID(asset crypto.Address) (uint32, error)

	ReserveData(id uint32) (*ReserveData, error)
	PutReserveData(id uint32, data *ReserveData) error
	ReserveIndexes(id uint32) (*ReserveIndexesAndFees, error)
	PutReserveIndexes(id uint32, indexes *ReserveIndexesAndFees) error
	ReserveRestrictions(id uint32) (*ReserveRestrictions, error)
	PutReserveRestrictions(id uint32, restrictions *ReserveRestrictions) error
	DecimalMultiplier(id uint32) (*big.Int, error)
	PutDecimalMultiplier(id uint32, mult *big.Int) error
	InterestRateModel(id uint32) (*InterestRateModel, error)
	PutInterestRateModel(id uint32, model *InterestRateModel) error
	ReserveTokens(id uint32) (*ReserveTokens, error)
	PutReserveTokens(id uint32, tokens *ReserveTokens) error

	AccountReserve(id uint32, account crypto.Address) (*AccountReserveData, error)
	PutAccountReserve(id uint32, account crypto.Address, entry *AccountReserveData) error
	AccountConfig(account crypto.Address) (*AccountConfig, error)
	PutAccountConfig(account crypto.Address, config *AccountConfig) error

	MarketRule(ruleID uint32) (*MarketRule, error)
	PutMarketRule(ruleID uint32, rule *MarketRule) error
	RuleCount() (uint32, error)
	AppendMarketRule(rule *MarketRule) (uint32, error)

	FlashLoanFeeE6() (*big.Int, error)
	PutFlashLoanFeeE6(fee *big.Int) error
	PriceFeedProviderAddress() ([]byte, error)
	PutPriceFeedProviderAddress(addr []byte) error
	FeeReductionProviderAddress() ([]byte, error)
	PutFeeReductionProviderAddress(addr []byte) error

	Commit() error
	Discard()
}

// Engine orchestrates the state transitions of the lending pool. All entry
// points are atomic: either every buffered write commits or none does.
type Engine struct {
	state        PoolState
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	roles        RoleView
	logger       *slog.Logger
	tokens       TokenBackend
	wrappers     WrapperBackend
	factory      TokenFactory
	priceFeed    PriceFeed
	feeReduction FeeReductionProvider
	poolAddress  crypto.Address
	nowMs        uint64
}

// NewEngine constructs a lending pool engine identified by the pool address
// used for underlying token custody.
func NewEngine(poolAddress crypto.Address) *Engine {
	return &Engine{
		poolAddress: poolAddress,
		emitter:     events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state PoolState) { e.state = state }

// SetEmitter configures the event emitter used to broadcast pool events.
// Passing nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetRoles wires the access-control subsystem used by the admin surface.
func (e *Engine) SetRoles(roles RoleView) {
	if e == nil {
		return
	}
	e.roles = roles
}

// SetLogger attaches a structured logger for the administrative paths.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logger
}

// SetTokenBackend wires the underlying asset token interface.
func (e *Engine) SetTokenBackend(tokens TokenBackend) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetWrapperBackend wires the wrapper token event sink.
func (e *Engine) SetWrapperBackend(wrappers WrapperBackend) {
	if e == nil {
		return
	}
	e.wrappers = wrappers
}

// SetTokenFactory wires the factory instantiating wrapper tokens during
// asset registration.
func (e *Engine) SetTokenFactory(factory TokenFactory) {
	if e == nil {
		return
	}
	e.factory = factory
}

// SetPriceFeed wires the oracle resolved from the registered provider
// address.
func (e *Engine) SetPriceFeed(feed PriceFeed) {
	if e == nil {
		return
	}
	e.priceFeed = feed
}

// SetFeeReductionBackend wires the optional flash-loan fee discounter.
func (e *Engine) SetFeeReductionBackend(provider FeeReductionProvider) {
	if e == nil {
		return
	}
	e.feeReduction = provider
}

// SetTimestamp records the millisecond timestamp used when advancing
// reserve indexes. The host sets it once per transaction.
func (e *Engine) SetTimestamp(nowMs uint64) {
	if e == nil {
		return
	}
	e.nowMs = nowMs
}

// PoolAddress returns the custody address of the pool.
func (e *Engine) PoolAddress() crypto.Address { return e.poolAddress }

func (e *Engine) begin() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) record(action string, err error) {
	observability.LendingPoolMetrics().RecordAction(action, err == nil)
}

// reserveCtx bundles everything loaded for one reserve during an action.
type reserveCtx struct {
	id           uint32
	asset        crypto.Address
	data         *ReserveData
	indexes      *ReserveIndexesAndFees
	restrictions *ReserveRestrictions
	model        *InterestRateModel
	advanced     bool
}

func (r *reserveCtx) stablecoin() bool { return r.model == nil }

func (e *Engine) loadReserve(asset crypto.Address) (*reserveCtx, error) {
	id, ok, err := e.state.AssetID(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	data, err := e.state.ReserveData(id)
	if err != nil {
		return nil, err
	}
	indexes, err := e.state.ReserveIndexes(id)
	if err != nil {
		return nil, err
	}
	restrictions, err := e.state.ReserveRestrictions(id)
	if err != nil {
		return nil, err
	}
	model, err := e.state.InterestRateModel(id)
	if err != nil {
		return nil, err
	}
	return &reserveCtx{
		id:           id,
		asset:        asset,
		data:         data,
		indexes:      indexes,
		restrictions: restrictions,
		model:        model,
	}, nil
}

func (e *Engine) loadReserveByID(id uint32) (*reserveCtx, error) {
	asset, err := e.state.AssetAddress(id)
	if err != nil {
		return nil, err
	}
	return e.loadReserve(asset)
}

// session tracks the reserves, configs and account entries an action has
// loaded and mutated, so every record is loaded once and persisted once.
type session struct {
	engine   *Engine
	reserves map[uint32]*reserveCtx
	order    []uint32
	configs  map[string]*AccountConfig
	accounts map[string]crypto.Address
	entries  map[string]*AccountReserveData
	entryIDs []string
	entryRef map[string]entryRef
}

type entryRef struct {
	id      uint32
	account crypto.Address
}

func entryKey(id uint32, account crypto.Address) string {
	return fmt.Sprintf("%d/%x", id, account.Bytes())
}

func (e *Engine) newSession() *session {
	return &session{
		engine:   e,
		reserves: make(map[uint32]*reserveCtx),
		configs:  make(map[string]*AccountConfig),
		accounts: make(map[string]crypto.Address),
		entries:  make(map[string]*AccountReserveData),
		entryRef: make(map[string]entryRef),
	}
}

// reserve loads a reserve once per session and advances its indexes to the
// engine timestamp on first touch.
func (s *session) reserve(asset crypto.Address) (*reserveCtx, error) {
	id, ok, err := s.engine.state.AssetID(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	if ctx, loaded := s.reserves[id]; loaded {
		return ctx, nil
	}
	ctx, err := s.engine.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	if err := advanceIndexes(ctx.data, ctx.indexes, s.engine.nowMs); err != nil {
		return nil, err
	}
	ctx.advanced = true
	s.reserves[id] = ctx
	s.order = append(s.order, id)
	return ctx, nil
}

func (s *session) config(account crypto.Address) (*AccountConfig, error) {
	key := string(account.Bytes())
	if cfg, ok := s.configs[key]; ok {
		return cfg, nil
	}
	cfg, err := s.engine.state.AccountConfig(account)
	if err != nil {
		return nil, err
	}
	s.configs[key] = cfg
	s.accounts[key] = account
	return cfg, nil
}

func (s *session) entry(r *reserveCtx, account crypto.Address) (*AccountReserveData, error) {
	key := entryKey(r.id, account)
	if entry, ok := s.entries[key]; ok {
		return entry, nil
	}
	entry, err := s.engine.state.AccountReserve(r.id, account)
	if err != nil {
		return nil, err
	}
	s.entries[key] = entry
	s.entryIDs = append(s.entryIDs, key)
	s.entryRef[key] = entryRef{id: r.id, account: account}
	return entry, nil
}

// persist writes every loaded record back through the state facade. The
// facade buffers the writes; the entry point commits them after all external
// calls succeeded.
func (s *session) persist() error {
	for _, id := range s.order {
		ctx := s.reserves[id]
		if err := s.engine.state.PutReserveData(id, ctx.data); err != nil {
			return err
		}
		if err := s.engine.state.PutReserveIndexes(id, ctx.indexes); err != nil {
			return err
		}
	}
	for _, key := range s.entryIDs {
		ref := s.entryRef[key]
		if err := s.engine.state.PutAccountReserve(ref.id, ref.account, s.entries[key]); err != nil {
			return err
		}
	}
	for key, cfg := range s.configs {
		if err := s.engine.state.PutAccountConfig(s.accounts[key], cfg); err != nil {
			return err
		}
	}
	return nil
}

// --- underlying token movement ---

func (e *Engine) pullUnderlying(r *reserveCtx, from crypto.Address, amount *big.Int) error {
	if e.tokens == nil {
		return errNilTokens
	}
	var err error
	if r.stablecoin() {
		err = e.tokens.Burn(r.asset, from, amount)
	} else {
		err = e.tokens.TransferFrom(r.asset, from, e.poolAddress, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnderlyingToken, err)
	}
	return nil
}

func (e *Engine) pushUnderlying(r *reserveCtx, to crypto.Address, amount *big.Int) error {
	if e.tokens == nil {
		return errNilTokens
	}
	var err error
	if r.stablecoin() {
		err = e.tokens.Mint(r.asset, to, amount)
	} else {
		err = e.tokens.Transfer(r.asset, to, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnderlyingToken, err)
	}
	return nil
}

// --- wrapper token notifications ---

// notifyDepositToken reports the accrued-interest mint and the principal
// movement to the deposit token of the reserve. A zero principal From marks
// a mint, a zero To a burn.
func (e *Engine) notifyDepositToken(r *reserveCtx, account crypto.Address, accrued *big.Int, principal TransferEvent) error {
	if e.wrappers == nil {
		return nil
	}
	tokens, err := e.state.ReserveTokens(r.id)
	if err != nil {
		return err
	}
	evs := make([]TransferEvent, 0, 2)
	if accrued != nil && accrued.Sign() > 0 {
		evs = append(evs, TransferEvent{To: account, Amount: accrued})
	}
	if principal.Amount != nil && principal.Amount.Sign() > 0 {
		evs = append(evs, principal)
	}
	if len(evs) == 0 {
		return nil
	}
	return e.wrappers.EmitTransferEvents(tokens.DepositToken, evs)
}

func (e *Engine) notifyDebtToken(r *reserveCtx, account crypto.Address, accrued *big.Int, principal TransferEvent) error {
	if e.wrappers == nil {
		return nil
	}
	tokens, err := e.state.ReserveTokens(r.id)
	if err != nil {
		return err
	}
	evs := make([]TransferEvent, 0, 2)
	if accrued != nil && accrued.Sign() > 0 {
		evs = append(evs, TransferEvent{To: account, Amount: accrued})
	}
	if principal.Amount != nil && principal.Amount.Sign() > 0 {
		evs = append(evs, principal)
	}
	if len(evs) == 0 {
		return nil
	}
	return e.wrappers.EmitTransferEvents(tokens.DebtToken, evs)
}

// notifyWithAllowance reports a principal movement that also consumes the
// caller's wrapper-token allowance against the owner. Only the principal
// amount is deducted, never the accrued interest.
func (e *Engine) notifyWithAllowance(token crypto.Address, accrued *big.Int, principal TransferEvent, owner, spender crypto.Address) error {
	if e.wrappers == nil {
		return nil
	}
	if accrued != nil && accrued.Sign() > 0 {
		if err := e.wrappers.EmitTransferEvents(token, []TransferEvent{{To: owner, Amount: accrued}}); err != nil {
			return err
		}
	}
	return e.wrappers.EmitTransferEventAndDecreaseAllowance(token, principal, owner, spender, principal.Amount)
}

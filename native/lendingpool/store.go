package lendingpool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"lendpool/crypto"
	"lendpool/storage"
)

// Storage is the persistence facade of the pool. It keeps every record RLP
// encoded in a write-buffered key-value store; an action commits the buffer
// only once it has fully succeeded.
type Storage struct {
	db *storage.Overlay
}

// NewStorage wraps the provided database with the pool's keyed record layout.
func NewStorage(db storage.Database) *Storage {
	return &Storage{db: storage.NewOverlay(db)}
}

// Commit flushes all writes buffered since the last commit or discard.
func (s *Storage) Commit() error { return s.db.Commit() }

// Discard drops all writes buffered since the last commit.
func (s *Storage) Discard() { s.db.Discard() }

// Close releases the underlying database.
func (s *Storage) Close() { s.db.Close() }

func (s *Storage) kvPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

func (s *Storage) kvGet(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// --- Asset registry ---

// AssetID resolves an asset address to its dense id.
func (s *Storage) AssetID(asset crypto.Address) (uint32, bool, error) {
	var id uint32
	ok, err := s.kvGet(assetIDKey(asset.Bytes()), &id)
	return id, ok, err
}

// AssetAddress resolves an asset id back to its address.
func (s *Storage) AssetAddress(id uint32) (crypto.Address, error) {
	var raw []byte
	ok, err := s.kvGet(assetAddressKey(id), &raw)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, ErrAssetNotRegistered
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw), nil
}

// AssetCount returns the number of registered assets.
func (s *Storage) AssetCount() (uint32, error) {
	var next uint32
	if _, err := s.kvGet(nextAssetIDKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}

// RegisterAssetID allocates a fresh id for the asset. Ids are dense and
// never reused; the 128-asset bitmap bound is enforced here.
func (s *Storage) RegisterAssetID(asset crypto.Address) (uint32, error) {
	if _, exists, err := s.AssetID(asset); err != nil {
		return 0, err
	} else if exists {
		return 0, ErrAlreadyRegistered
	}
	next, err := s.AssetCount()
	if err != nil {
		return 0, err
	}
	if next >= maxAssets {
		return 0, ErrAssetLimitReached
	}
	if err := s.kvPut(assetIDKey(asset.Bytes()), next); err != nil {
		return 0, err
	}
	if err := s.kvPut(assetAddressKey(next), asset.Bytes()); err != nil {
		return 0, err
	}
	if err := s.kvPut(nextAssetIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// --- Reserve records ---

// ReserveData loads the totals and rates of a reserve.
func (s *Storage) ReserveData(id uint32) (*ReserveData, error) {
	data := new(ReserveData)
	ok, err := s.kvGet(reserveDataKey(id), data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	data.EnsureDefaults()
	return data, nil
}

func (s *Storage) PutReserveData(id uint32, data *ReserveData) error {
	data.EnsureDefaults()
	return s.kvPut(reserveDataKey(id), data)
}

// ReserveIndexes loads the cumulative indexes and fee cuts of a reserve.
func (s *Storage) ReserveIndexes(id uint32) (*ReserveIndexesAndFees, error) {
	indexes := new(ReserveIndexesAndFees)
	ok, err := s.kvGet(reserveIndexesKey(id), indexes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	indexes.EnsureDefaults()
	return indexes, nil
}

func (s *Storage) PutReserveIndexes(id uint32, indexes *ReserveIndexesAndFees) error {
	indexes.EnsureDefaults()
	return s.kvPut(reserveIndexesKey(id), indexes)
}

// ReserveRestrictions loads the caps and minimums of a reserve.
func (s *Storage) ReserveRestrictions(id uint32) (*ReserveRestrictions, error) {
	restrictions := new(ReserveRestrictions)
	ok, err := s.kvGet(restrictionsKey(id), restrictions)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	restrictions.EnsureDefaults()
	return restrictions, nil
}

func (s *Storage) PutReserveRestrictions(id uint32, restrictions *ReserveRestrictions) error {
	restrictions.EnsureDefaults()
	return s.kvPut(restrictionsKey(id), restrictions)
}

// DecimalMultiplier returns 10^decimals for the asset.
func (s *Storage) DecimalMultiplier(id uint32) (*big.Int, error) {
	mult := new(big.Int)
	ok, err := s.kvGet(decimalMultiplierKey(id), mult)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return mult, nil
}

func (s *Storage) PutDecimalMultiplier(id uint32, mult *big.Int) error {
	return s.kvPut(decimalMultiplierKey(id), mult)
}

// InterestRateModel returns the reserve's rate model, or nil when the asset
// is a protocol stablecoin.
func (s *Storage) InterestRateModel(id uint32) (*InterestRateModel, error) {
	model := new(InterestRateModel)
	ok, err := s.kvGet(interestModelKey(id), model)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	model.EnsureDefaults()
	return model, nil
}

func (s *Storage) PutInterestRateModel(id uint32, model *InterestRateModel) error {
	model.EnsureDefaults()
	return s.kvPut(interestModelKey(id), model)
}

type rlpReserveTokens struct {
	DepositToken []byte
	DebtToken    []byte
}

// ReserveTokens returns the wrapper token pair bound to the reserve.
func (s *Storage) ReserveTokens(id uint32) (*ReserveTokens, error) {
	var raw rlpReserveTokens
	ok, err := s.kvGet(reserveTokensKey(id), &raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return &ReserveTokens{
		DepositToken: wrapperAddress(raw.DepositToken),
		DebtToken:    wrapperAddress(raw.DebtToken),
	}, nil
}

// wrapperAddress decodes a stored wrapper token address. Assets registered
// without a token factory store no address at all; those read back as the
// zero address.
func wrapperAddress(raw []byte) crypto.Address {
	if len(raw) == 0 {
		return crypto.Address{}
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func (s *Storage) PutReserveTokens(id uint32, tokens *ReserveTokens) error {
	return s.kvPut(reserveTokensKey(id), &rlpReserveTokens{
		DepositToken: tokens.DepositToken.Bytes(),
		DebtToken:    tokens.DebtToken.Bytes(),
	})
}

// --- Account records ---

// AccountReserve loads the account's entry for a reserve, lazily creating a
// zeroed record on first touch. A zero balance never deletes the record.
func (s *Storage) AccountReserve(id uint32, account crypto.Address) (*AccountReserveData, error) {
	entry := new(AccountReserveData)
	if _, err := s.kvGet(accountReserveKey(id, account.Bytes()), entry); err != nil {
		return nil, err
	}
	entry.EnsureDefaults()
	return entry, nil
}

func (s *Storage) PutAccountReserve(id uint32, account crypto.Address, entry *AccountReserveData) error {
	entry.EnsureDefaults()
	return s.kvPut(accountReserveKey(id, account.Bytes()), entry)
}

// AccountConfig loads the account's bitmaps, lazily creating them.
func (s *Storage) AccountConfig(account crypto.Address) (*AccountConfig, error) {
	config := new(AccountConfig)
	if _, err := s.kvGet(accountConfigKey(account.Bytes()), config); err != nil {
		return nil, err
	}
	config.EnsureDefaults()
	return config, nil
}

func (s *Storage) PutAccountConfig(account crypto.Address, config *AccountConfig) error {
	config.EnsureDefaults()
	return s.kvPut(accountConfigKey(account.Bytes()), config)
}

// --- Market rules ---

// MarketRule loads the rule with the given id.
func (s *Storage) MarketRule(ruleID uint32) (*MarketRule, error) {
	rule := new(MarketRule)
	ok, err := s.kvGet(marketRuleKey(ruleID), rule)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMarketRuleInvalidID, ruleID)
	}
	return rule, nil
}

func (s *Storage) PutMarketRule(ruleID uint32, rule *MarketRule) error {
	return s.kvPut(marketRuleKey(ruleID), rule)
}

// RuleCount returns the number of registered market rules.
func (s *Storage) RuleCount() (uint32, error) {
	var next uint32
	if _, err := s.kvGet(nextRuleIDKey, &next); err != nil {
		return 0, err
	}
	return next, nil
}

// AppendMarketRule stores the rule under a fresh id. Rules are append-only.
func (s *Storage) AppendMarketRule(rule *MarketRule) (uint32, error) {
	next, err := s.RuleCount()
	if err != nil {
		return 0, err
	}
	if err := s.PutMarketRule(next, rule); err != nil {
		return 0, err
	}
	if err := s.kvPut(nextRuleIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// --- Pool scalars ---

// FlashLoanFeeE6 returns the pool-wide flash loan fee.
func (s *Storage) FlashLoanFeeE6() (*big.Int, error) {
	fee := new(big.Int)
	if _, err := s.kvGet(flashLoanFeeKey, fee); err != nil {
		return nil, err
	}
	return fee, nil
}

func (s *Storage) PutFlashLoanFeeE6(fee *big.Int) error {
	return s.kvPut(flashLoanFeeKey, orZero(fee))
}

// PriceFeedProviderAddress returns the registered price feed identity.
func (s *Storage) PriceFeedProviderAddress() ([]byte, error) {
	var raw []byte
	if _, err := s.kvGet(priceFeedProviderKey, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Storage) PutPriceFeedProviderAddress(addr []byte) error {
	return s.kvPut(priceFeedProviderKey, addr)
}

// FeeReductionProviderAddress returns the registered fee reduction identity.
func (s *Storage) FeeReductionProviderAddress() ([]byte, error) {
	var raw []byte
	if _, err := s.kvGet(feeReductionKey, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Storage) PutFeeReductionProviderAddress(addr []byte) error {
	return s.kvPut(feeReductionKey, addr)
}

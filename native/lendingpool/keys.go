package lendingpool

import "encoding/binary"

var (
	assetIDPrefix         = []byte("lendingpool/asset-id/")
	assetAddressPrefix    = []byte("lendingpool/asset-address/")
	reserveDataPrefix     = []byte("lendingpool/reserve-data/")
	reserveIndexesPrefix  = []byte("lendingpool/reserve-indexes/")
	restrictionsPrefix    = []byte("lendingpool/reserve-restrictions/")
	decimalMultPrefix     = []byte("lendingpool/decimal-multiplier/")
	interestModelPrefix   = []byte("lendingpool/interest-model/")
	reserveTokensPrefix   = []byte("lendingpool/reserve-tokens/")
	accountReservePrefix  = []byte("lendingpool/account-reserve/")
	accountConfigPrefix   = []byte("lendingpool/account-config/")
	marketRulePrefix      = []byte("lendingpool/market-rule/")
	nextAssetIDKey        = []byte("lendingpool/next-asset-id")
	nextRuleIDKey         = []byte("lendingpool/next-rule-id")
	flashLoanFeeKey       = []byte("lendingpool/flash-loan-fee")
	priceFeedProviderKey  = []byte("lendingpool/price-feed-provider")
	feeReductionKey       = []byte("lendingpool/fee-reduction-provider")
)

func appendUint32(prefix []byte, id uint32) []byte {
	buf := make([]byte, len(prefix)+4)
	copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[len(prefix):], id)
	return buf
}

func appendBytes(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func assetIDKey(asset []byte) []byte        { return appendBytes(assetIDPrefix, asset) }
func assetAddressKey(id uint32) []byte      { return appendUint32(assetAddressPrefix, id) }
func reserveDataKey(id uint32) []byte       { return appendUint32(reserveDataPrefix, id) }
func reserveIndexesKey(id uint32) []byte    { return appendUint32(reserveIndexesPrefix, id) }
func restrictionsKey(id uint32) []byte      { return appendUint32(restrictionsPrefix, id) }
func decimalMultiplierKey(id uint32) []byte { return appendUint32(decimalMultPrefix, id) }
func interestModelKey(id uint32) []byte     { return appendUint32(interestModelPrefix, id) }
func reserveTokensKey(id uint32) []byte     { return appendUint32(reserveTokensPrefix, id) }
func accountConfigKey(addr []byte) []byte   { return appendBytes(accountConfigPrefix, addr) }
func marketRuleKey(id uint32) []byte        { return appendUint32(marketRulePrefix, id) }

func accountReserveKey(id uint32, addr []byte) []byte {
	buf := appendUint32(accountReservePrefix, id)
	return append(buf, addr...)
}

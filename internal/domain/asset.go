package domain

// AssetPolicy bit flags attached to an asset by its owner.
type AssetPolicy uint32

const (
	AssetPolicyTransferable AssetPolicy = 1 << iota
	AssetPolicyBaseAsset
	AssetPolicyStatsQuoteAsset
	AssetPolicyWithdrawable
	AssetPolicyIssuanceManualReviewRequired
	AssetPolicyCanBeBaseInAtomicSwap
	AssetPolicyCanBeQuoteInAtomicSwap
)

// Asset ledger asset metadata.
type Asset struct {
	Code           string
	Name           string
	OwnerAccountID string
	// LogoKey opaque storage key of the asset logo, resolved to a URL by a LogoResolver.
	LogoKey        string
	TrailingDigits int32
	Policies       AssetPolicy
}

// Has reports whether all bits of p are set on the asset.
func (a Asset) Has(p AssetPolicy) bool {
	return a.Policies&p == p
}

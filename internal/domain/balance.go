// Package domain defines core data structures shared by the wallet repositories,
// the fee engine and the transaction builders.
package domain

import "github.com/shopspring/decimal"

// Balance account balance in a single asset as reported by the ledger API.
type Balance struct {
	// ID checksum-encoded balance identifier.
	ID string
	// AccountID checksum-encoded owner account identifier.
	AccountID string
	// AssetCode code of the asset held on the balance.
	AssetCode string
	// Available amount that can be spent.
	Available decimal.Decimal
	// Locked amount reserved by pending requests.
	Locked decimal.Decimal
}

// Total returns available plus locked amount.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// BalanceDetails balance joined with its asset metadata.
type BalanceDetails struct {
	Balance Balance
	Asset   Asset
	LogoURL string
}

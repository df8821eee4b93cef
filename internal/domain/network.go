package domain

// NetworkInfo ledger-wide parameters.
type NetworkInfo struct {
	// Precision number of decimal places of on-chain amounts.
	Precision         int32
	NetworkPassphrase string
	MasterAccountID   string
	LatestLedger      uint64
}

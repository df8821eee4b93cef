package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind type of balance change caused by a participant effect.
type MovementKind int

const (
	MovementFunded MovementKind = iota
	MovementIssued
	MovementCharged
	MovementWithdrawn
	MovementLocked
	MovementUnlocked
	MovementChargedFromLocked
	MovementMatched
)

const (
	movementStringFunded            = "funded"
	movementStringIssued            = "issued"
	movementStringCharged           = "charged"
	movementStringWithdrawn         = "withdrawn"
	movementStringLocked            = "locked"
	movementStringUnlocked          = "unlocked"
	movementStringChargedFromLocked = "charged_from_locked"
	movementStringMatched           = "matched"
)

// String returns the string representation of the movement kind.
func (k MovementKind) String() string {
	switch k {
	case MovementFunded:
		return movementStringFunded
	case MovementIssued:
		return movementStringIssued
	case MovementCharged:
		return movementStringCharged
	case MovementWithdrawn:
		return movementStringWithdrawn
	case MovementLocked:
		return movementStringLocked
	case MovementUnlocked:
		return movementStringUnlocked
	case MovementChargedFromLocked:
		return movementStringChargedFromLocked
	case MovementMatched:
		return movementStringMatched
	default:
		return "unknown"
	}
}

// ParseMovementKind converts API effect type into MovementKind.
func ParseMovementKind(s string) (MovementKind, bool) {
	switch s {
	case movementStringFunded:
		return MovementFunded, true
	case movementStringIssued:
		return MovementIssued, true
	case movementStringCharged:
		return MovementCharged, true
	case movementStringWithdrawn:
		return MovementWithdrawn, true
	case movementStringLocked:
		return MovementLocked, true
	case movementStringUnlocked:
		return MovementUnlocked, true
	case movementStringChargedFromLocked:
		return MovementChargedFromLocked, true
	case movementStringMatched:
		return MovementMatched, true
	}
	return 0, false
}

// Movement participant effect on one of the account balances.
type Movement struct {
	ID        string
	BalanceID string
	AssetCode string
	Kind      MovementKind
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Time      time.Time
}

package domain

import "time"

// SubmissionKind type of transaction submitted by the wallet.
type SubmissionKind string

const (
	SubmissionPayment         SubmissionKind = "payment"
	SubmissionBalanceCreation SubmissionKind = "balance_creation"
	SubmissionKYCRecovery     SubmissionKind = "kyc_recovery"
)

// SubmissionRecord journal entry describing a submission attempt.
type SubmissionRecord struct {
	ID                string         `json:"id"`
	Kind              SubmissionKind `json:"kind"`
	State             string         `json:"state"`
	Hash              string         `json:"hash,omitempty"`
	CreatedBalanceIDs []string       `json:"created_balance_ids,omitempty"`
	Error             string         `json:"error,omitempty"`
	Time              time.Time      `json:"ts"`
}

// SubmissionEntry bundles a record with its journal index.
type SubmissionEntry struct {
	Index  uint64
	Record SubmissionRecord
}

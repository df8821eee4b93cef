package txbuilder

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
)

// State step of a single submission. States only move forward.
type State string

const (
	StateIdle              State = "idle"
	StatePrecisionFetching State = "precision_fetching"
	StateBuilding          State = "building"
	StateSubmitting        State = "submitting"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

var stateOrder = map[State]int{
	StateIdle:              0,
	StatePrecisionFetching: 1,
	StateBuilding:          2,
	StateSubmitting:        3,
	StateSucceeded:         4,
	StateFailed:            4,
}

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StateObserver is notified of every transition of every submission.
type StateObserver func(id string, kind domain.SubmissionKind, state State)

// SubmissionJournal persists finished submissions.
type SubmissionJournal interface {
	Append(rec domain.SubmissionRecord) error
}

// submission one run of a builder operation. It is never reused.
type submission struct {
	id       string
	kind     domain.SubmissionKind
	state    State
	observer StateObserver
	journal  SubmissionJournal
	now      func() time.Time
	l        *zap.Logger
}

func (b *Builder) newSubmission(kind domain.SubmissionKind) *submission {
	id := uuid.NewString()
	return &submission{
		id:       id,
		kind:     kind,
		state:    StateIdle,
		observer: b.observer,
		journal:  b.journal,
		now:      b.now,
		l:        b.l.With(zap.String("submission", id), zap.String("kind", string(kind))),
	}
}

func (s *submission) enter(state State) {
	if s.state.Terminal() || stateOrder[state] <= stateOrder[s.state] {
		s.l.DPanic("invalid submission transition", zap.String("from", string(s.state)), zap.String("to", string(state)))
		return
	}

	s.l.Debug("submission state", zap.String("from", string(s.state)), zap.String("to", string(state)))
	s.state = state
	if s.observer != nil {
		s.observer(s.id, s.kind, state)
	}
}

func (s *submission) succeed(hash string, balanceIDs []string) {
	s.enter(StateSucceeded)
	s.l.Info("submission succeeded", zap.String("hash", hash))
	s.record(domain.SubmissionRecord{Hash: hash, CreatedBalanceIDs: balanceIDs})
}

// fail moves the submission to failed and returns err unchanged.
func (s *submission) fail(err error, hash string) error {
	s.enter(StateFailed)
	s.l.Warn("submission failed", zap.String("hash", hash), zap.Error(err))
	s.record(domain.SubmissionRecord{Hash: hash, Error: err.Error()})
	return err
}

func (s *submission) record(rec domain.SubmissionRecord) {
	if s.journal == nil {
		return
	}

	rec.ID = s.id
	rec.Kind = s.kind
	rec.State = string(s.state)
	rec.Time = s.now()
	if err := s.journal.Append(rec); err != nil {
		s.l.Error("failed to journal submission", zap.Error(err))
	}
}

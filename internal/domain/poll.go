package domain

import "time"

// PollChoice single answer option of a poll.
type PollChoice struct {
	Number      int
	Description string
}

// Poll voting campaign visible to the account.
type Poll struct {
	ID       string
	Subject  string
	Choices  []PollChoice
	StartsAt time.Time
	EndsAt   time.Time
}

// IsOpen reports whether the poll accepts votes at the given moment.
func (p Poll) IsOpen(at time.Time) bool {
	return !at.Before(p.StartsAt) && at.Before(p.EndsAt)
}

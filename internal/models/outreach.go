package models

import (
	"time"
)

// OutreachRecord tracks DM engagement attempts for a member.
// Blocked and OptedOut only ever go from false to true.
type OutreachRecord struct {
	MemberID      string     `json:"member_id"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
	Blocked       bool       `json:"blocked"`
	OptedOut      bool       `json:"opted_out"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

package outreach

import (
	"time"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
)

// Policy bounds how often a member may be prompted.
type Policy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Reason explains an eligibility decision. ReasonEligible is the only passing value.
type Reason string

const (
	ReasonEligible    Reason = "eligible"
	ReasonRegistered  Reason = "registered"
	ReasonOptedOut    Reason = "opted_out"
	ReasonBlocked     Reason = "blocked"
	ReasonExhausted   Reason = "exhausted"
	ReasonCoolingDown Reason = "cooling_down"
	ReasonInFlight    Reason = "in_flight"
)

// Eligible reports whether r allows a prompt.
func (r Reason) Eligible() bool { return r == ReasonEligible }

// Evaluate is the single eligibility predicate shared by the join trigger, the sweep
// and the tracker's transactional claim. rec may be nil when no tracking row exists.
func Evaluate(registered bool, rec *models.OutreachRecord, now time.Time, p Policy) Reason {
	if registered {
		return ReasonRegistered
	}
	if rec == nil {
		return ReasonEligible
	}
	switch {
	case rec.OptedOut:
		return ReasonOptedOut
	case rec.Blocked:
		return ReasonBlocked
	case rec.AttemptCount >= p.MaxAttempts:
		return ReasonExhausted
	}
	if rec.LastAttemptAt != nil && now.Sub(*rec.LastAttemptAt) < p.Cooldown {
		return ReasonCoolingDown
	}
	return ReasonEligible
}

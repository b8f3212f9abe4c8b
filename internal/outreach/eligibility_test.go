package outreach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}
	tests := []struct {
		name       string
		registered bool
		rec        *models.OutreachRecord
		want       Reason
	}{
		{"new member", false, nil, ReasonEligible},
		{"registered wins over everything", true, &models.OutreachRecord{OptedOut: true}, ReasonRegistered},
		{"registered without tracking", true, nil, ReasonRegistered},
		{"opted out", false, &models.OutreachRecord{OptedOut: true}, ReasonOptedOut},
		{"blocked", false, &models.OutreachRecord{Blocked: true, AttemptCount: 1}, ReasonBlocked},
		{"exhausted", false, &models.OutreachRecord{AttemptCount: 3, LastAttemptAt: at(365 * 24 * time.Hour)}, ReasonExhausted},
		{"inside cooldown", false, &models.OutreachRecord{AttemptCount: 1, LastAttemptAt: at(time.Hour)}, ReasonCoolingDown},
		{"cooldown exactly elapsed", false, &models.OutreachRecord{AttemptCount: 1, LastAttemptAt: at(24 * time.Hour)}, ReasonEligible},
		{"row without attempt", false, &models.OutreachRecord{}, ReasonEligible},
		{"reserved but not counted", false, &models.OutreachRecord{LastAttemptAt: at(time.Minute)}, ReasonCoolingDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.registered, tt.rec, now, testPolicy))
		})
	}
}

func TestReasonEligible(t *testing.T) {
	assert.True(t, ReasonEligible.Eligible())
	for _, r := range []Reason{ReasonRegistered, ReasonOptedOut, ReasonBlocked, ReasonExhausted, ReasonCoolingDown, ReasonInFlight} {
		assert.False(t, r.Eligible(), r)
	}
}

package outreach

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// JoinTrigger starts an engagement session as soon as a member joins.
type JoinTrigger struct {
	engager     *Engager
	communityID string
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewJoinTrigger creates a join trigger for communityID.
func NewJoinTrigger(engager *Engager, communityID string, logger *zap.Logger) *JoinTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JoinTrigger{engager: engager, communityID: communityID, logger: logger}
}

// HandleJoin reacts to a MemberJoined event. Bots and other communities are ignored.
// It reports whether a session was started.
func (j *JoinTrigger) HandleJoin(ctx context.Context, evt MemberJoined) bool {
	if evt.IsBot || evt.CommunityID != j.communityID {
		return false
	}
	j.Start(ctx, Member{ID: evt.MemberID, DisplayName: evt.DisplayName})
	return true
}

// Start runs one session for m in the background. The session observes ctx, not the
// caller's lifetime, so handlers can return while the reply wait continues.
func (j *JoinTrigger) Start(ctx context.Context, m Member) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		if _, err := j.engager.Engage(ctx, m); err != nil {
			j.logger.Error("join session failed", zap.String("member_id", m.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until every started session has returned.
func (j *JoinTrigger) Wait() { j.wg.Wait() }

package outreach

import (
	"context"
	"errors"
	"time"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/queue"
)

var (
	// ErrDeliveryForbidden is returned by a Gateway when the member cannot be messaged (DMs disabled, left, etc.).
	ErrDeliveryForbidden = errors.New("direct message forbidden")
	// ErrDeliveryRejected is returned by a Gateway when the platform refused the message for
	// another reason it reported. Local transport failures must not wrap it.
	ErrDeliveryRejected = errors.New("direct message rejected")
	// ErrReplyTimeout is returned by Gateway.AwaitReply when no reply arrived in time.
	ErrReplyTimeout = errors.New("reply timed out")
)

// Member is an account in the target community.
type Member struct {
	ID          string
	DisplayName string
	IsBot       bool
}

// MemberJoined is emitted by the gateway when someone joins a community.
type MemberJoined struct {
	MemberID    string
	DisplayName string
	IsBot       bool
	CommunityID string
}

// Gateway is the messaging platform seen from the outreach core.
type Gateway interface {
	// SendDirect delivers a private message. A successful send arms the reply mailbox
	// for memberID so AwaitReply cannot miss a fast answer.
	SendDirect(ctx context.Context, memberID, text string) error
	// AwaitReply blocks until the member replies by DM or the timeout elapses (ErrReplyTimeout).
	AwaitReply(ctx context.Context, memberID string, timeout time.Duration) (string, error)
	PostToChannel(ctx context.Context, channelID, text string) error
}

// Roster enumerates the member population of a community.
type Roster interface {
	ListMembers(ctx context.Context, communityID string) ([]Member, error)
}

// Registrations is the durable registration store.
type Registrations interface {
	Exists(ctx context.Context, memberID string) (bool, error)
	// Upsert writes reg, replacing any prior record; created is true only for a new row.
	Upsert(ctx context.Context, reg *models.Registration) (created bool, err error)
}

// Tracker is the durable outreach tracking store.
type Tracker interface {
	// Get returns nil, nil when the member has no tracking row.
	Get(ctx context.Context, memberID string) (*models.OutreachRecord, error)
	// Claim re-evaluates eligibility and, when eligible, reserves the attempt by setting
	// last_attempt_at = now, all in one transaction.
	Claim(ctx context.Context, memberID string, now time.Time, p Policy) (Reason, error)
	// RecordAttempt increments attempt_count and sets last_attempt_at; blocked latches the flag.
	RecordAttempt(ctx context.Context, memberID string, at time.Time, blocked bool) error
	MarkOptedOut(ctx context.Context, memberID string, at time.Time) error
}

// NoticeQueue defers admin notices that could not be posted.
type NoticeQueue interface {
	EnqueueAdminNotice(ctx context.Context, payload queue.AdminNoticePayload) error
}

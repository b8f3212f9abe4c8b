package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/queue"
)

// Outcome is how an engagement session ended.
type Outcome string

const (
	OutcomeIneligible Outcome = "ineligible"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeTimedOut   Outcome = "timed_out"
	OutcomeOptedOut   Outcome = "opted_out"
	OutcomeRejected   Outcome = "rejected"
	OutcomeRegistered Outcome = "registered"
)

// Result describes a finished session. Reason is set when Outcome is OutcomeIneligible.
type Result struct {
	Outcome Outcome
	Reason  Reason
}

// SessionConfig tunes engagement sessions.
type SessionConfig struct {
	Policy         Policy
	ReplyTimeout   time.Duration
	AdminChannelID string
	StrictNames    bool
}

// Deps are the collaborators of an Engager. Notices and Metrics are optional.
type Deps struct {
	Registrations Registrations
	Tracker       Tracker
	Gateway       Gateway
	Locker        Locker
	Notices       NoticeQueue
	Metrics       *Metrics
}

// Engager runs engagement sessions: one prompt-and-response cycle per member.
type Engager struct {
	regs    Registrations
	tracker Tracker
	gw      Gateway
	locker  Locker
	notices NoticeQueue
	metrics *Metrics
	cfg     SessionConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngager creates an Engager. A nil Locker falls back to a process-local one.
func NewEngager(deps Deps, cfg SessionConfig, logger *zap.Logger) *Engager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = NewMemLocker()
	}
	return &Engager{
		regs:    deps.Registrations,
		tracker: deps.Tracker,
		gw:      deps.Gateway,
		locker:  deps.Locker,
		notices: deps.Notices,
		metrics: deps.Metrics,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Policy returns the eligibility policy in force.
func (e *Engager) Policy() Policy { return e.cfg.Policy }

// Check evaluates eligibility from durable state without reserving anything.
func (e *Engager) Check(ctx context.Context, memberID string) (Reason, error) {
	registered, err := e.regs.Exists(ctx, memberID)
	if err != nil {
		return "", fmt.Errorf("registration lookup: %w", err)
	}
	rec, err := e.tracker.Get(ctx, memberID)
	if err != nil {
		return "", fmt.Errorf("tracking lookup: %w", err)
	}
	return Evaluate(registered, rec, e.now(), e.cfg.Policy), nil
}

// Engage drives one member through at most one prompt. An error means a store or lock
// failure; no prompt is sent when the failure happens before the claim commits.
func (e *Engager) Engage(ctx context.Context, m Member) (Result, error) {
	log := e.logger.With(zap.String("member_id", m.ID), zap.String("session_id", uuid.New().String()))

	unlock, ok, err := e.locker.TryLock(ctx, m.ID)
	if err != nil {
		return Result{}, fmt.Errorf("lock member: %w", err)
	}
	if !ok {
		return e.finish(log, Result{Outcome: OutcomeIneligible, Reason: ReasonInFlight}), nil
	}
	defer unlock()

	reason, err := e.tracker.Claim(ctx, m.ID, e.now(), e.cfg.Policy)
	if err != nil {
		return Result{}, fmt.Errorf("claim attempt: %w", err)
	}
	if !reason.Eligible() {
		return e.finish(log, Result{Outcome: OutcomeIneligible, Reason: reason}), nil
	}

	// Past this point a message may have gone out; commits must land even if ctx is cancelled.
	wctx := context.WithoutCancel(ctx)

	if err := e.gw.SendDirect(ctx, m.ID, PromptText(m.DisplayName)); err != nil {
		if !errors.Is(err, ErrDeliveryForbidden) && !errors.Is(err, ErrDeliveryRejected) {
			// Nothing reached the platform. The claim's last_attempt_at still defers a retry.
			log.Warn("prompt not sent", zap.Error(err))
			return Result{}, fmt.Errorf("send prompt: %w", err)
		}
		log.Info("prompt refused by platform", zap.Error(err))
		if err := e.tracker.RecordAttempt(wctx, m.ID, e.now(), true); err != nil {
			return Result{}, fmt.Errorf("record blocked: %w", err)
		}
		return e.finish(log, Result{Outcome: OutcomeBlocked}), nil
	}
	log.Info("prompt sent")

	text, err := e.gw.AwaitReply(ctx, m.ID, e.cfg.ReplyTimeout)
	if err != nil {
		if !errors.Is(err, ErrReplyTimeout) {
			log.Warn("reply wait aborted", zap.Error(err))
		}
		if err := e.tracker.RecordAttempt(wctx, m.ID, e.now(), false); err != nil {
			return Result{}, fmt.Errorf("record timeout: %w", err)
		}
		return e.finish(log, Result{Outcome: OutcomeTimedOut}), nil
	}

	reply := Parse(text, e.cfg.StrictNames)
	switch reply.Kind {
	case ReplyOptOut:
		if err := e.tracker.MarkOptedOut(wctx, m.ID, e.now()); err != nil {
			return Result{}, fmt.Errorf("record opt-out: %w", err)
		}
		e.reply(wctx, log, m.ID, optOutAckText)
		return e.finish(log, Result{Outcome: OutcomeOptedOut}), nil

	case ReplyUnparseable:
		if err := e.tracker.RecordAttempt(wctx, m.ID, e.now(), false); err != nil {
			return Result{}, fmt.Errorf("record rejected reply: %w", err)
		}
		e.reply(wctx, log, m.ID, CorrectionText(e.cfg.StrictNames))
		return e.finish(log, Result{Outcome: OutcomeRejected}), nil
	}

	reg := &models.Registration{
		MemberID:    m.ID,
		DisplayName: m.DisplayName,
		FullName:    reply.FullName,
		Handle:      reply.Handle,
	}
	created, err := e.regs.Upsert(wctx, reg)
	if err != nil {
		return Result{}, fmt.Errorf("save registration: %w", err)
	}
	e.reply(wctx, log, m.ID, RegisteredAckText(reg.FullName, reg.Handle))
	if created {
		e.announce(wctx, log, reg)
	}
	return e.finish(log, Result{Outcome: OutcomeRegistered}), nil
}

// reply sends a follow-up DM. Failure is logged only: the outcome is already committed.
func (e *Engager) reply(ctx context.Context, log *zap.Logger, memberID, text string) {
	if err := e.gw.SendDirect(ctx, memberID, text); err != nil {
		log.Warn("follow-up message failed", zap.Error(err))
	}
}

// announce posts the admin summary, deferring to the notice queue on failure.
// The registration is never rolled back here.
func (e *Engager) announce(ctx context.Context, log *zap.Logger, reg *models.Registration) {
	if e.cfg.AdminChannelID == "" {
		return
	}
	text := AdminSummaryText(reg.MemberID, reg.DisplayName, reg.FullName, reg.Handle)
	err := e.gw.PostToChannel(ctx, e.cfg.AdminChannelID, text)
	if err == nil {
		return
	}
	log.Warn("admin summary post failed", zap.Error(err))
	if e.notices != nil {
		qerr := e.notices.EnqueueAdminNotice(ctx, queue.AdminNoticePayload{
			ChannelID: e.cfg.AdminChannelID,
			MemberID:  reg.MemberID,
			Text:      text,
		})
		if qerr == nil {
			return
		}
		err = qerr
	}
	log.Error("admin summary lost, manual follow-up required", zap.String("summary", text), zap.Error(err))
}

func (e *Engager) finish(log *zap.Logger, res Result) Result {
	e.metrics.observeResult(res)
	if res.Outcome == OutcomeIneligible {
		log.Debug("session skipped", zap.String("reason", string(res.Reason)))
	} else {
		log.Info("session finished", zap.String("outcome", string(res.Outcome)))
	}
	return res
}

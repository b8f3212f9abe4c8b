package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/queue"
)

// ChannelPoster delivers text to a community channel.
type ChannelPoster interface {
	PostToChannel(ctx context.Context, channelID, text string) error
}

// JobSource is the queue side the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// AdminNoticeProcessor re-posts admin summaries that could not be delivered inline.
type AdminNoticeProcessor struct {
	poster  ChannelPoster
	queue   JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewAdminNoticeProcessor creates an admin notice processor.
func NewAdminNoticeProcessor(poster ChannelPoster, q JobSource, logger *zap.Logger) *AdminNoticeProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminNoticeProcessor{poster: poster, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one admin notice job.
func (p *AdminNoticeProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAdminNotice {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AdminNoticePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.poster.PostToChannel(ctx, payload.ChannelID, payload.Text); err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	p.logger.Info("admin notice delivered", zap.String("job_id", job.ID), zap.String("member_id", payload.MemberID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AdminNoticeProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("admin notice worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				var payload queue.AdminNoticePayload
				_ = json.Unmarshal(job.Payload, &payload)
				p.logger.Error("admin summary lost, manual follow-up required",
					zap.String("member_id", payload.MemberID), zap.String("summary", payload.Text), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *AdminNoticeProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

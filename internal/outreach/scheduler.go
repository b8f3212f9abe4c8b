package outreach

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SweepConfig controls the periodic re-engagement sweep.
type SweepConfig struct {
	CommunityID   string
	Interval      time.Duration
	BatchSize     int
	DispatchDelay time.Duration
}

// SweepReport summarises one sweep tick.
type SweepReport struct {
	Scanned  int
	Selected int
	Outcomes map[Outcome]int
	Errors   int
}

// Scheduler periodically re-engages members who have not registered.
type Scheduler struct {
	roster  Roster
	engager *Engager
	cfg     SweepConfig
	metrics *Metrics
	logger  *zap.Logger
}

// NewScheduler creates a sweep scheduler.
func NewScheduler(roster Roster, engager *Engager, cfg SweepConfig, metrics *Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 240 * time.Minute
	}
	return &Scheduler{roster: roster, engager: engager, cfg: cfg, metrics: metrics, logger: logger}
}

// Run sweeps once immediately and then on every interval until ctx is done.
// Ticks run on this goroutine, so they never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("sweep scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Int("batch_size", s.cfg.BatchSize))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	report, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Warn("sweep failed", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.sweepRuns.Inc()
		s.metrics.sweepSelected.Add(float64(report.Selected))
		s.metrics.sweepDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("selected", report.Selected),
		zap.Int("errors", report.Errors),
		zap.Duration("took", time.Since(start)),
	)
}

// Sweep runs a single pass: select up to BatchSize eligible members in roster order and
// engage them one after another, pausing DispatchDelay between sessions.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Outcomes: make(map[Outcome]int)}
	members, err := s.roster.ListMembers(ctx, s.cfg.CommunityID)
	if err != nil {
		return report, fmt.Errorf("list members: %w", err)
	}

	var batch []Member
	for _, m := range members {
		if len(batch) >= s.cfg.BatchSize {
			break
		}
		report.Scanned++
		if m.IsBot {
			continue
		}
		reason, err := s.engager.Check(ctx, m.ID)
		if err != nil {
			report.Errors++
			s.logger.Warn("eligibility check failed", zap.String("member_id", m.ID), zap.Error(err))
			continue
		}
		if reason.Eligible() {
			batch = append(batch, m)
		}
	}
	report.Selected = len(batch)

	for i, m := range batch {
		if i > 0 && !sleepCtx(ctx, s.cfg.DispatchDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		res, err := s.engager.Engage(ctx, m)
		if err != nil {
			report.Errors++
			s.logger.Error("engagement session failed", zap.String("member_id", m.ID), zap.Error(err))
			continue
		}
		report.Outcomes[res.Outcome]++
	}
	return report, nil
}

// sleepCtx waits for d or until ctx is done; it reports whether the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

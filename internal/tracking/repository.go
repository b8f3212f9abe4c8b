package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/outreach"
)

// Repository handles outreach_tracking persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an outreach tracking repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `member_id, last_attempt_at, attempt_count, blocked, opted_out, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.OutreachRecord, error) {
	var rec models.OutreachRecord
	if err := row.Scan(&rec.MemberID, &rec.LastAttemptAt, &rec.AttemptCount, &rec.Blocked, &rec.OptedOut, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the tracking row for a member, or nil if none.
func (r *Repository) Get(ctx context.Context, memberID string) (*models.OutreachRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM outreach_tracking WHERE member_id = $1`, memberID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Claim locks the member's tracking row, evaluates eligibility and, when eligible,
// reserves the attempt by setting last_attempt_at. It all commits or none of it does.
func (r *Repository) Claim(ctx context.Context, memberID string, now time.Time, p outreach.Policy) (outreach.Reason, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO outreach_tracking (member_id) VALUES ($1) ON CONFLICT (member_id) DO NOTHING`, memberID); err != nil {
		return "", fmt.Errorf("ensure row: %w", err)
	}
	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM outreach_tracking WHERE member_id = $1 FOR UPDATE`, memberID))
	if err != nil {
		return "", fmt.Errorf("lock row: %w", err)
	}
	var registered bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM registrations WHERE member_id = $1)`, memberID).Scan(&registered); err != nil {
		return "", fmt.Errorf("registration lookup: %w", err)
	}

	reason := outreach.Evaluate(registered, rec, now, p)
	if reason.Eligible() {
		const q = `UPDATE outreach_tracking SET last_attempt_at = $2, updated_at = NOW() WHERE member_id = $1`
		if _, err := tx.Exec(ctx, q, memberID, now); err != nil {
			return "", fmt.Errorf("reserve attempt: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return reason, nil
}

// RecordAttempt counts one dispatched prompt. blocked latches; it is never cleared here.
func (r *Repository) RecordAttempt(ctx context.Context, memberID string, at time.Time, blocked bool) error {
	const q = `INSERT INTO outreach_tracking (member_id, last_attempt_at, attempt_count, blocked)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (member_id) DO UPDATE SET
			last_attempt_at = EXCLUDED.last_attempt_at,
			attempt_count = outreach_tracking.attempt_count + 1,
			blocked = outreach_tracking.blocked OR EXCLUDED.blocked,
			updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, memberID, at, blocked)
	return err
}

// MarkOptedOut latches opted_out for a member.
func (r *Repository) MarkOptedOut(ctx context.Context, memberID string, at time.Time) error {
	const q = `INSERT INTO outreach_tracking (member_id, opted_out, updated_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (member_id) DO UPDATE SET opted_out = TRUE, updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, q, memberID, at)
	return err
}

// Stats aggregates tracking rows for the admin API.
type Stats struct {
	Tracked  int `json:"tracked"`
	Blocked  int `json:"blocked"`
	OptedOut int `json:"opted_out"`
	Attempts int `json:"attempts"`
}

// Stats returns totals over all tracking rows.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked), COUNT(*) FILTER (WHERE opted_out), COALESCE(SUM(attempt_count), 0)
		FROM outreach_tracking`
	var s Stats
	err := r.pool.QueryRow(ctx, q).Scan(&s.Tracked, &s.Blocked, &s.OptedOut, &s.Attempts)
	return s, err
}

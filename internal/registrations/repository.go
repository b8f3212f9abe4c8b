package registrations

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/models"
)

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `member_id, display_name, full_name, handle, created_at, updated_at`

// Upsert inserts or replaces the registration for reg.MemberID (one row per member).
// created reports whether the row did not exist before.
func (r *Repository) Upsert(ctx context.Context, reg *models.Registration) (bool, error) {
	const q = `INSERT INTO registrations (member_id, display_name, full_name, handle)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			full_name = EXCLUDED.full_name,
			handle = EXCLUDED.handle,
			updated_at = NOW()
		RETURNING created_at, updated_at, (xmax = 0) AS inserted`
	var inserted bool
	err := r.pool.QueryRow(ctx, q, reg.MemberID, reg.DisplayName, reg.FullName, reg.Handle).
		Scan(&reg.CreatedAt, &reg.UpdatedAt, &inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Exists reports whether the member has completed registration.
func (r *Repository) Exists(ctx context.Context, memberID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM registrations WHERE member_id = $1)`, memberID).Scan(&ok)
	return ok, err
}

// GetByMemberID returns the registration for a member, or nil if none.
func (r *Repository) GetByMemberID(ctx context.Context, memberID string) (*models.Registration, error) {
	q := `SELECT ` + selectColumns + ` FROM registrations WHERE member_id = $1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, memberID).Scan(&reg.MemberID, &reg.DisplayName, &reg.FullName, &reg.Handle, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// List returns registrations newest first. limit <= 0 returns all.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Registration, error) {
	q := `SELECT ` + selectColumns + ` FROM registrations ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.MemberID, &reg.DisplayName, &reg.FullName, &reg.Handle, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// Count returns the number of registrations.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n)
	return n, err
}

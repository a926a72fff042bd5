/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the necessary SQL queries to interact with the
 * database tables for promotion definitions, enrollments, and poller cursors.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/promotion-service/internal/domain"
)

var (
	ErrPromotionNotFound  = errors.New("promotion not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePromotion inserts a new promotion definition.
func (r *PostgresRepository) CreatePromotion(ctx context.Context, promo *domain.PromotionDefinition) error {
	query := `
		INSERT INTO promotions (
			id, name, criterion_kind, threshold_amount, min_count,
			reward_amount, window_seconds, active_from, active_until, active, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		promo.ID,
		promo.Name,
		promo.Criterion.Kind,
		promo.Criterion.ThresholdAmount,
		promo.Criterion.MinCount,
		promo.RewardAmount,
		int64(promo.WindowDuration.Seconds()),
		promo.ActiveFrom,
		promo.ActiveUntil,
		promo.Active,
	).Scan(&promo.CreatedAt)
}

func scanPromotion(row pgx.Row) (*domain.PromotionDefinition, error) {
	var promo domain.PromotionDefinition
	var windowSeconds int64
	err := row.Scan(
		&promo.ID,
		&promo.Name,
		&promo.Criterion.Kind,
		&promo.Criterion.ThresholdAmount,
		&promo.Criterion.MinCount,
		&promo.RewardAmount,
		&windowSeconds,
		&promo.ActiveFrom,
		&promo.ActiveUntil,
		&promo.Active,
		&promo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	promo.WindowDuration = time.Duration(windowSeconds) * time.Second
	return &promo, nil
}

const promotionColumns = `
	id, name, criterion_kind, threshold_amount, min_count,
	reward_amount, window_seconds, active_from, active_until, active, created_at
`

// FindPromotionByID retrieves one promotion definition.
func (r *PostgresRepository) FindPromotionByID(ctx context.Context, promotionID uuid.UUID) (*domain.PromotionDefinition, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`
	promo, err := scanPromotion(r.db.QueryRow(ctx, query, promotionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPromotionNotFound
		}
		return nil, err
	}
	return promo, nil
}

// ListPromotions returns every promotion definition, newest first.
func (r *PostgresRepository) ListPromotions(ctx context.Context) ([]domain.PromotionDefinition, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPromotions(rows)
}

// ListActivePromotions returns promotions accepting qualifying activity at the
// given instant. The evaluator loads its snapshot from this query.
func (r *PostgresRepository) ListActivePromotions(ctx context.Context, at time.Time) ([]domain.PromotionDefinition, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE active = TRUE
		  AND active_from <= $1
		  AND (active_until IS NULL OR active_until >= $1)
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPromotions(rows)
}

func collectPromotions(rows pgx.Rows) ([]domain.PromotionDefinition, error) {
	var promos []domain.PromotionDefinition
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, *promo)
	}
	return promos, rows.Err()
}

// DeactivatePromotion marks a promotion inactive. Deactivation is the only
// mutation allowed on a definition after activation.
func (r *PostgresRepository) DeactivatePromotion(ctx context.Context, promotionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE promotions SET active = FALSE WHERE id = $1`, promotionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromotionNotFound
	}
	return nil
}

const enrollmentColumns = `
	promotion_id, account_id, status, aggregate_progress, created_at, qualified_at, rewarded_at
`

func scanEnrollment(row pgx.Row) (*domain.Enrollment, error) {
	var enr domain.Enrollment
	err := row.Scan(
		&enr.PromotionID,
		&enr.AccountID,
		&enr.Status,
		&enr.AggregateProgress,
		&enr.CreatedAt,
		&enr.QualifiedAt,
		&enr.RewardedAt,
	)
	if err != nil {
		return nil, err
	}
	return &enr, nil
}

// GetEnrollment retrieves the enrollment row for (promotion_id, account_id).
func (r *PostgresRepository) GetEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE promotion_id = $1 AND account_id = $2`
	enr, err := scanEnrollment(r.db.QueryRow(ctx, query, promotionID, accountID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	return enr, nil
}

// GetOrCreateEnrollment inserts a PENDING enrollment if none exists and returns
// the current row. The ON CONFLICT DO NOTHING makes concurrent creators
// converge on the single row guaranteed by the primary key.
func (r *PostgresRepository) GetOrCreateEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error) {
	insert := `
		INSERT INTO enrollments (promotion_id, account_id, status, aggregate_progress, created_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (promotion_id, account_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, promotionID, accountID, domain.EnrollmentPending); err != nil {
		return nil, err
	}
	return r.GetEnrollment(ctx, promotionID, accountID)
}

// UpdateEnrollmentProgress stores the recomputed rolling aggregate. Terminal
// rows are left untouched so a late duplicate cannot disturb a settled state.
func (r *PostgresRepository) UpdateEnrollmentProgress(ctx context.Context, promotionID uuid.UUID, accountID string, progress int64) error {
	query := `
		UPDATE enrollments
		SET aggregate_progress = $3
		WHERE promotion_id = $1 AND account_id = $2 AND status IN ($4, $5)
	`
	_, err := r.db.Exec(ctx, query, promotionID, accountID, progress, domain.EnrollmentPending, domain.EnrollmentQualified)
	return err
}

// TransitionEnrollmentStatus atomically moves an enrollment from one status to
// another. It returns false when the row was not in fromStatus, which callers
// treat as losing a benign race (e.g. a concurrent issuer already rewarded).
func (r *PostgresRepository) TransitionEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string, fromStatus, toStatus string) (bool, error) {
	query := `
		UPDATE enrollments
		SET status = $4,
		    qualified_at = CASE WHEN $4 = 'QUALIFIED' THEN NOW() ELSE qualified_at END,
		    rewarded_at = CASE WHEN $4 = 'REWARDED' THEN NOW() ELSE rewarded_at END
		WHERE promotion_id = $1 AND account_id = $2 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, promotionID, accountID, fromStatus, toStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListEnrollmentsByAccount returns every enrollment for an account, newest
// first. This backs the conversational-agent status queries.
func (r *PostgresRepository) ListEnrollmentsByAccount(ctx context.Context, accountID string) ([]domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE account_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

// ListExpiryCandidates returns PENDING enrollments whose promotion no longer
// accepts qualifying activity: either the definition was deactivated or its
// active_until has passed.
func (r *PostgresRepository) ListExpiryCandidates(ctx context.Context, now time.Time) ([]domain.Enrollment, error) {
	query := `
		SELECT e.promotion_id, e.account_id, e.status, e.aggregate_progress, e.created_at, e.qualified_at, e.rewarded_at
		FROM enrollments e
		JOIN promotions p ON p.id = e.promotion_id
		WHERE e.status = $1
		  AND (p.active = FALSE OR (p.active_until IS NOT NULL AND p.active_until < $2))
	`
	rows, err := r.db.Query(ctx, query, domain.EnrollmentPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

// ListQualifiedBefore returns QUALIFIED enrollments that qualified before the
// cutoff. These are reconciliation-sweep candidates: a reward should have
// settled by now, so the issuer is re-run for each.
func (r *PostgresRepository) ListQualifiedBefore(ctx context.Context, cutoff time.Time) ([]domain.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE status = $1 AND qualified_at IS NOT NULL AND qualified_at < $2
	`
	rows, err := r.db.Query(ctx, query, domain.EnrollmentQualified, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

func collectEnrollments(rows pgx.Rows) ([]domain.Enrollment, error) {
	var enrollments []domain.Enrollment
	for rows.Next() {
		enr, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *enr)
	}
	return enrollments, rows.Err()
}

// GetCursor returns the poller watermark for a source. A source that has never
// been polled yields a zero cursor rather than an error.
func (r *PostgresRepository) GetCursor(ctx context.Context, sourceName string) (*domain.Cursor, error) {
	var cursor domain.Cursor
	query := `SELECT source_name, last_processed_id, updated_at FROM poller_cursors WHERE source_name = $1`
	err := r.db.QueryRow(ctx, query, sourceName).Scan(&cursor.SourceName, &cursor.LastProcessedID, &cursor.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &domain.Cursor{SourceName: sourceName}, nil
		}
		return nil, err
	}
	return &cursor, nil
}

// SaveCursor upserts the watermark. GREATEST guards monotonicity: a stale
// writer can never move the cursor backwards.
func (r *PostgresRepository) SaveCursor(ctx context.Context, sourceName string, lastProcessedID int64) error {
	query := `
		INSERT INTO poller_cursors (source_name, last_processed_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source_name) DO UPDATE
		SET last_processed_id = GREATEST(poller_cursors.last_processed_id, EXCLUDED.last_processed_id),
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, sourceName, lastProcessedID)
	return err
}

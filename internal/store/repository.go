/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the promotion-service. By defining an
 * interface, we decouple the application's business logic from the specific
 * database implementation (e.g., PostgreSQL), making the code more modular and
 * easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/domain"
)

// Repository defines the set of methods for interacting with the promotion
// database.
type Repository interface {
	// Promotion definition methods
	CreatePromotion(ctx context.Context, promo *domain.PromotionDefinition) error
	FindPromotionByID(ctx context.Context, promotionID uuid.UUID) (*domain.PromotionDefinition, error)
	ListPromotions(ctx context.Context) ([]domain.PromotionDefinition, error)
	ListActivePromotions(ctx context.Context, at time.Time) ([]domain.PromotionDefinition, error)
	DeactivatePromotion(ctx context.Context, promotionID uuid.UUID) error

	// Enrollment methods. GetOrCreateEnrollment relies on the uniqueness
	// constraint on (promotion_id, account_id): concurrent callers converge on
	// the same row. TransitionEnrollmentStatus is an atomic compare-and-set;
	// it reports false when the row was not in the expected source status.
	GetEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error)
	GetOrCreateEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error)
	UpdateEnrollmentProgress(ctx context.Context, promotionID uuid.UUID, accountID string, progress int64) error
	TransitionEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string, fromStatus, toStatus string) (bool, error)
	ListEnrollmentsByAccount(ctx context.Context, accountID string) ([]domain.Enrollment, error)
	ListExpiryCandidates(ctx context.Context, now time.Time) ([]domain.Enrollment, error)
	ListQualifiedBefore(ctx context.Context, cutoff time.Time) ([]domain.Enrollment, error)

	// Poller cursor methods. GetCursor returns a zero-valued cursor when the
	// source has never been polled. SaveCursor never moves the watermark
	// backwards.
	GetCursor(ctx context.Context, sourceName string) (*domain.Cursor, error)
	SaveCursor(ctx context.Context, sourceName string, lastProcessedID int64) error
}

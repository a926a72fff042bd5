/**
 * @description
 * This file defines the core domain models for the promotion-service: promotion
 * definitions with their qualification criteria, per-account enrollments, and
 * the poller cursor.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents).
 * - Enrollment rows are unique per (promotion_id, account_id) and are never
 *   deleted; they only transition between statuses. REWARDED is terminal.
 */

package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enrollment statuses. REWARDED and EXPIRED are terminal.
const (
	EnrollmentPending   = "PENDING"
	EnrollmentQualified = "QUALIFIED"
	EnrollmentRewarded  = "REWARDED"
	EnrollmentExpired   = "EXPIRED"
)

// Criterion kinds supported by the evaluator.
const (
	CriterionCumulativeDeposit  = "cumulative_deposit"
	CriterionCumulativeTransfer = "cumulative_transfer"
	CriterionTransactionCount   = "transaction_count"
)

// ErrInvalidCriterion indicates a promotion definition whose criterion the
// evaluator cannot interpret. Promotions carrying one are deactivated rather
// than silently skipped.
var ErrInvalidCriterion = errors.New("invalid promotion criterion")

// Criterion describes the condition an account's activity must satisfy within
// the promotion window. Threshold amounts apply to the amount-based kinds,
// MinCount to transaction_count.
type Criterion struct {
	Kind            string `json:"kind"`
	ThresholdAmount int64  `json:"threshold_amount,omitempty"` // in cents
	MinCount        int    `json:"min_count,omitempty"`
}

// Validate checks that the criterion is interpretable by the evaluator.
func (c Criterion) Validate() error {
	switch c.Kind {
	case CriterionCumulativeDeposit, CriterionCumulativeTransfer:
		if c.ThresholdAmount <= 0 {
			return fmt.Errorf("%w: kind %s requires a positive threshold_amount", ErrInvalidCriterion, c.Kind)
		}
	case CriterionTransactionCount:
		if c.MinCount <= 0 {
			return fmt.Errorf("%w: kind %s requires a positive min_count", ErrInvalidCriterion, c.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCriterion, c.Kind)
	}
	return nil
}

// PromotionDefinition is a reward rule. Definitions are immutable after
// activation except for deactivation.
type PromotionDefinition struct {
	ID             uuid.UUID     `json:"id"`
	Name           string        `json:"name"`
	Criterion      Criterion     `json:"criterion"`
	RewardAmount   int64         `json:"reward_amount"` // in cents
	WindowDuration time.Duration `json:"window_duration"`
	ActiveFrom     time.Time     `json:"active_from"`
	ActiveUntil    *time.Time    `json:"active_until,omitempty"`
	Active         bool          `json:"active"`
	CreatedAt      time.Time     `json:"created_at"`
}

// IsActiveAt reports whether the promotion accepts qualifying activity at t.
func (p PromotionDefinition) IsActiveAt(t time.Time) bool {
	if !p.Active {
		return false
	}
	if t.Before(p.ActiveFrom) {
		return false
	}
	if p.ActiveUntil != nil && t.After(*p.ActiveUntil) {
		return false
	}
	return true
}

// WindowStart returns the earliest transaction timestamp that still counts
// toward the rolling aggregate as of now.
func (p PromotionDefinition) WindowStart(now time.Time) time.Time {
	return now.Add(-p.WindowDuration)
}

// Enrollment tracks one account's progress toward one promotion.
type Enrollment struct {
	PromotionID       uuid.UUID  `json:"promotion_id"`
	AccountID         string     `json:"account_id"`
	Status            string     `json:"status"`
	AggregateProgress int64      `json:"aggregate_progress"`
	CreatedAt         time.Time  `json:"created_at"`
	QualifiedAt       *time.Time `json:"qualified_at,omitempty"`
	RewardedAt        *time.Time `json:"rewarded_at,omitempty"`
}

// IsTerminal reports whether no further evaluation should touch the enrollment.
func (e Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentRewarded || e.Status == EnrollmentExpired
}

// Cursor is the poller watermark: the highest ledger transaction id whose
// event has been confirmed published.
type Cursor struct {
	SourceName      string    `json:"source_name"`
	LastProcessedID int64     `json:"last_processed_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RewardIdempotencyKey derives the stable key used to tag the ledger credit
// for a qualified enrollment. Repeated credit requests with the same key must
// not move money twice.
func RewardIdempotencyKey(promotionID uuid.UUID, accountID string) string {
	return fmt.Sprintf("promo-%s-%s", promotionID, accountID)
}

// CreatePromotionPayload is the DTO for the promotion management endpoint.
type CreatePromotionPayload struct {
	Name            string     `json:"name"`
	CriterionKind   string     `json:"criterion_kind"`
	ThresholdAmount int64      `json:"threshold_amount,omitempty"`
	MinCount        int        `json:"min_count,omitempty"`
	RewardAmount    int64      `json:"reward_amount"`
	WindowDays      int        `json:"window_days"`
	ActiveFrom      *time.Time `json:"active_from,omitempty"`
	ActiveUntil     *time.Time `json:"active_until,omitempty"`
}

// AccountPromotionStatus pairs a promotion with the account's enrollment, if
// any. It is the response shape for the conversational-agent boundary.
type AccountPromotionStatus struct {
	Promotion  PromotionDefinition `json:"promotion"`
	Enrollment *Enrollment         `json:"enrollment,omitempty"`
}

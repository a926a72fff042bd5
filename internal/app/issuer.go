/**
 * @description
 * The reward issuer settles qualified enrollments: it credits the account on
 * the ledger and transitions the enrollment QUALIFIED -> REWARDED as one
 * logical unit, idempotently. The ledger credit is tagged with a stable
 * idempotency key derived from (promotion_id, account_id), and the issuer
 * reconciles against that key before crediting, so a crash between a confirmed
 * credit and the status write is repaired on retry without moving money twice.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/domain"
	"github.com/transfa/promotion-service/internal/store"
	"github.com/transfa/promotion-service/pkg/ledgerclient"
)

// IssuerStore is the slice of the repository the issuer needs.
type IssuerStore interface {
	GetEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error)
	FindPromotionByID(ctx context.Context, promotionID uuid.UUID) (*domain.PromotionDefinition, error)
	TransitionEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string, fromStatus, toStatus string) (bool, error)
}

// LedgerCreditor issues idempotent credits and looks them up by key.
type LedgerCreditor interface {
	CreditAccount(ctx context.Context, accountID string, amount int64, idempotencyKey string) (ledgerclient.CreditOutcome, error)
	FindCreditByIdempotencyKey(ctx context.Context, idempotencyKey string) (*ledgerclient.Credit, error)
}

// RewardIssuer credits rewards for qualified enrollments.
type RewardIssuer struct {
	store  IssuerStore
	ledger LedgerCreditor
}

// NewRewardIssuer creates a reward issuer.
func NewRewardIssuer(issuerStore IssuerStore, ledger LedgerCreditor) *RewardIssuer {
	return &RewardIssuer{store: issuerStore, ledger: ledger}
}

// IssueReward settles the reward for (promotionID, accountID). It is safe to
// call any number of times and from any number of concurrent instances: the
// enrollment status CAS and the ledger idempotency key together guarantee at
// most one REWARDED transition and exactly one credit.
func (i *RewardIssuer) IssueReward(ctx context.Context, promotionID uuid.UUID, accountID string) error {
	enrollment, err := i.store.GetEnrollment(ctx, promotionID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrEnrollmentNotFound) {
			return nil
		}
		return fmt.Errorf("load enrollment: %w", err)
	}

	switch enrollment.Status {
	case domain.EnrollmentRewarded:
		// Already settled; idempotent success.
		return nil
	case domain.EnrollmentQualified:
		// Fall through to settlement.
	default:
		return nil
	}

	promo, err := i.store.FindPromotionByID(ctx, promotionID)
	if err != nil {
		return fmt.Errorf("load promotion: %w", err)
	}

	key := domain.RewardIdempotencyKey(promotionID, accountID)

	// Reconcile first: if the ledger already holds a credit for this key, a
	// previous attempt moved the money but died before the status write. Skip
	// straight to the transition.
	credited, err := i.creditExists(ctx, key)
	if err != nil {
		return err
	}

	if !credited {
		outcome, err := i.ledger.CreditAccount(ctx, accountID, promo.RewardAmount, key)
		if err != nil {
			// Timeout or failure: the enrollment stays QUALIFIED and the next
			// retry re-runs reconciliation. Never assume silent success.
			return fmt.Errorf("credit account: %w", err)
		}
		if outcome == ledgerclient.CreditAlreadyApplied {
			log.Printf("level=info component=reward_issuer msg=\"credit already applied on ledger\" promotion_id=%s account_id=%s", promotionID, accountID)
		}
	}

	moved, err := i.store.TransitionEnrollmentStatus(ctx, promotionID, accountID, domain.EnrollmentQualified, domain.EnrollmentRewarded)
	if err != nil {
		return fmt.Errorf("mark rewarded: %w", err)
	}
	if !moved {
		// A concurrent issuer won the CAS. The credit side is protected by the
		// idempotency key, so losing here is a benign already-rewarded case.
		log.Printf("level=info component=reward_issuer msg=\"enrollment already settled by concurrent issuer\" promotion_id=%s account_id=%s", promotionID, accountID)
		return nil
	}

	log.Printf("level=info component=reward_issuer msg=\"reward credited\" promotion_id=%s account_id=%s amount=%d", promotionID, accountID, promo.RewardAmount)
	return nil
}

func (i *RewardIssuer) creditExists(ctx context.Context, idempotencyKey string) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := i.ledger.FindCreditByIdempotencyKey(lookupCtx, idempotencyKey)
	if err != nil {
		if errors.Is(err, ledgerclient.ErrCreditNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reconcile credit lookup: %w", err)
	}
	return true, nil
}

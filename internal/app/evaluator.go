/**
 * @description
 * The promotion evaluator decides, for every incoming transaction event, which
 * active promotions the account newly satisfies. It reads promotion
 * definitions from an immutable snapshot refreshed on a cadence, recomputes
 * each rolling aggregate from the ledger's full window, and hands qualified
 * enrollments to the reward issuer.
 *
 * Every step is idempotent: re-evaluating the same transaction any number of
 * times leaves the enrollment in the same state and issues at most one reward.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/domain"
)

// EvaluatorStore is the slice of the repository the evaluator needs.
type EvaluatorStore interface {
	ListActivePromotions(ctx context.Context, at time.Time) ([]domain.PromotionDefinition, error)
	GetOrCreateEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error)
	UpdateEnrollmentProgress(ctx context.Context, promotionID uuid.UUID, accountID string, progress int64) error
	TransitionEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string, fromStatus, toStatus string) (bool, error)
	DeactivatePromotion(ctx context.Context, promotionID uuid.UUID) error
}

// LedgerHistory fetches one account's transaction window for aggregate
// recomputation.
type LedgerHistory interface {
	ListAccountTransactions(ctx context.Context, accountID string, since time.Time) ([]domain.TransactionEvent, error)
}

// RewardHandler settles a qualified enrollment.
type RewardHandler interface {
	IssueReward(ctx context.Context, promotionID uuid.UUID, accountID string) error
}

type promotionSnapshot struct {
	promotions []domain.PromotionDefinition
	loadedAt   time.Time
}

// Evaluator evaluates transaction events against the active promotion set.
type Evaluator struct {
	store    EvaluatorStore
	ledger   LedgerHistory
	issuer   RewardHandler
	snapshot atomic.Pointer[promotionSnapshot]
	nowFn    func() time.Time
}

// NewEvaluator creates an evaluator. RefreshSnapshot must be called before the
// first event (the bootstrap does this); HandleTransaction falls back to an
// inline refresh if it ever runs ahead of the first load.
func NewEvaluator(store EvaluatorStore, ledger LedgerHistory, issuer RewardHandler) *Evaluator {
	return &Evaluator{
		store:  store,
		ledger: ledger,
		issuer: issuer,
		nowFn:  time.Now,
	}
}

// RefreshSnapshot reloads the active promotion set and swaps it in atomically.
// The evaluator only ever reads snapshots; definitions are never mutated in
// place.
func (e *Evaluator) RefreshSnapshot(ctx context.Context) error {
	now := e.nowFn()
	promotions, err := e.store.ListActivePromotions(ctx, now)
	if err != nil {
		return fmt.Errorf("load active promotions: %w", err)
	}
	e.snapshot.Store(&promotionSnapshot{promotions: promotions, loadedAt: now})
	log.Printf("level=info component=evaluator msg=\"promotion snapshot refreshed\" count=%d", len(promotions))
	return nil
}

func (e *Evaluator) activePromotions(ctx context.Context) ([]domain.PromotionDefinition, error) {
	if snap := e.snapshot.Load(); snap != nil {
		return snap.promotions, nil
	}
	if err := e.RefreshSnapshot(ctx); err != nil {
		return nil, err
	}
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, nil
	}
	return snap.promotions, nil
}

// HandleTransaction evaluates one transaction event against every active
// promotion. A returned error means a transient failure; the caller nacks the
// event and the whole evaluation is retried, which is safe because every
// mutation below is idempotent or CAS-guarded.
func (e *Evaluator) HandleTransaction(ctx context.Context, event domain.TransactionEvent) error {
	promotions, err := e.activePromotions(ctx)
	if err != nil {
		return err
	}

	now := e.nowFn()
	var firstErr error
	for _, promo := range promotions {
		if !promo.IsActiveAt(now) {
			// Snapshot staleness: the definition lapsed since the last
			// refresh. The expiry sweep owns the PENDING -> EXPIRED move.
			continue
		}
		if err := e.evaluatePromotion(ctx, promo, event, now); err != nil {
			if errors.Is(err, domain.ErrInvalidCriterion) {
				e.quarantinePromotion(ctx, promo, err)
				continue
			}
			log.Printf("level=warn component=evaluator msg=\"promotion evaluation failed\" promotion_id=%s account_id=%s err=%v", promo.ID, event.AccountID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// evaluatePromotion runs the full qualify-or-progress cycle for one
// (promotion, account) pair.
func (e *Evaluator) evaluatePromotion(ctx context.Context, promo domain.PromotionDefinition, event domain.TransactionEvent, now time.Time) error {
	enrollment, err := e.store.GetOrCreateEnrollment(ctx, promo.ID, event.AccountID)
	if err != nil {
		return fmt.Errorf("get or create enrollment: %w", err)
	}
	if enrollment.IsTerminal() {
		return nil
	}

	windowStart := promo.WindowStart(now)
	history, err := e.ledger.ListAccountTransactions(ctx, event.AccountID, windowStart)
	if err != nil {
		return fmt.Errorf("load account window: %w", err)
	}

	aggregate, err := ComputeAggregate(promo.Criterion, history, windowStart, now)
	if err != nil {
		return err
	}
	if err := e.store.UpdateEnrollmentProgress(ctx, promo.ID, event.AccountID, aggregate); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	satisfied, err := CriterionSatisfied(promo.Criterion, aggregate)
	if err != nil {
		return err
	}
	if !satisfied {
		return nil
	}

	if enrollment.Status == domain.EnrollmentPending {
		moved, err := e.store.TransitionEnrollmentStatus(ctx, promo.ID, event.AccountID, domain.EnrollmentPending, domain.EnrollmentQualified)
		if err != nil {
			return fmt.Errorf("qualify enrollment: %w", err)
		}
		if moved {
			log.Printf("level=info component=evaluator msg=\"enrollment qualified\" promotion_id=%s account_id=%s aggregate=%d", promo.ID, event.AccountID, aggregate)
		}
		// A lost CAS means another evaluator qualified (or an issuer already
		// rewarded); either way the issuer call below is a safe no-op.
	}

	if err := e.issuer.IssueReward(ctx, promo.ID, event.AccountID); err != nil {
		return fmt.Errorf("issue reward: %w", err)
	}
	return nil
}

// quarantinePromotion deactivates a promotion whose criterion cannot be
// interpreted. This is the operator-facing escalation path for malformed
// definitions; they must never be skipped silently.
func (e *Evaluator) quarantinePromotion(ctx context.Context, promo domain.PromotionDefinition, cause error) {
	log.Printf("level=error component=evaluator msg=\"malformed promotion criterion; deactivating\" promotion_id=%s name=%q err=%v", promo.ID, promo.Name, cause)
	if err := e.store.DeactivatePromotion(ctx, promo.ID); err != nil {
		log.Printf("level=error component=evaluator msg=\"failed to deactivate malformed promotion\" promotion_id=%s err=%v", promo.ID, err)
		return
	}
	// Drop it from the live snapshot so the remaining events in this batch do
	// not retrip the same failure before the next scheduled refresh.
	if refreshErr := e.RefreshSnapshot(ctx); refreshErr != nil {
		log.Printf("level=warn component=evaluator msg=\"snapshot refresh after quarantine failed\" err=%v", refreshErr)
	}
}

/**
 * @description
 * Scheduled job implementations for the promotion-service: expiring stale
 * enrollments, re-driving reward issuance for enrollments stuck in QUALIFIED,
 * and refreshing the evaluator's promotion snapshot.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/domain"
)

// JobsStore defines database operations needed by the jobs.
type JobsStore interface {
	ListExpiryCandidates(ctx context.Context, now time.Time) ([]domain.Enrollment, error)
	ListQualifiedBefore(ctx context.Context, cutoff time.Time) ([]domain.Enrollment, error)
	TransitionEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string, fromStatus, toStatus string) (bool, error)
}

// SnapshotRefresher reloads the active promotion set.
type SnapshotRefresher interface {
	RefreshSnapshot(ctx context.Context) error
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	store          JobsStore
	issuer         RewardHandler
	refresher      SnapshotRefresher
	reconcileGrace time.Duration
	nowFn          func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(jobsStore JobsStore, issuer RewardHandler, refresher SnapshotRefresher, reconcileGrace time.Duration) *Jobs {
	if reconcileGrace <= 0 {
		reconcileGrace = 5 * time.Minute
	}
	return &Jobs{
		store:          jobsStore,
		issuer:         issuer,
		refresher:      refresher,
		reconcileGrace: reconcileGrace,
		nowFn:          time.Now,
	}
}

// ExpireLapsedEnrollments moves PENDING enrollments whose promotion window has
// lapsed without qualification to EXPIRED. The CAS transition makes the sweep
// safe to run concurrently with live evaluation: an enrollment that qualified
// in the meantime is simply skipped.
func (j *Jobs) ExpireLapsedEnrollments() {
	log.Println("level=info component=jobs msg=\"expiry sweep started\"")
	ctx := context.Background()
	now := j.nowFn()

	candidates, err := j.store.ListExpiryCandidates(ctx, now)
	if err != nil {
		log.Printf("level=error component=jobs msg=\"expiry candidate query failed\" err=%v", err)
		return
	}

	expired := 0
	for _, enrollment := range candidates {
		moved, err := j.store.TransitionEnrollmentStatus(ctx, enrollment.PromotionID, enrollment.AccountID, domain.EnrollmentPending, domain.EnrollmentExpired)
		if err != nil {
			log.Printf("level=warn component=jobs msg=\"expiry transition failed\" promotion_id=%s account_id=%s err=%v", enrollment.PromotionID, enrollment.AccountID, err)
			continue
		}
		if moved {
			expired++
		}
	}
	log.Printf("level=info component=jobs msg=\"expiry sweep finished\" candidates=%d expired=%d", len(candidates), expired)
}

// ReconcileQualifiedEnrollments re-runs the issuer for enrollments that have
// sat in QUALIFIED past the grace period. This covers the crash window between
// a confirmed ledger credit and the REWARDED status write: the issuer detects
// the existing credit via its idempotency key and finishes the transition
// without re-crediting.
func (j *Jobs) ReconcileQualifiedEnrollments() {
	log.Println("level=info component=jobs msg=\"reconciliation sweep started\"")
	ctx := context.Background()
	cutoff := j.nowFn().Add(-j.reconcileGrace)

	stuck, err := j.store.ListQualifiedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("level=error component=jobs msg=\"reconciliation candidate query failed\" err=%v", err)
		return
	}

	for _, enrollment := range stuck {
		if err := j.issuer.IssueReward(ctx, enrollment.PromotionID, enrollment.AccountID); err != nil {
			log.Printf("level=warn component=jobs msg=\"reconciliation issuance failed\" promotion_id=%s account_id=%s err=%v", enrollment.PromotionID, enrollment.AccountID, err)
		}
	}
	log.Printf("level=info component=jobs msg=\"reconciliation sweep finished\" candidates=%d", len(stuck))
}

// RefreshPromotionSnapshot reloads the evaluator's active promotion set.
func (j *Jobs) RefreshPromotionSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := j.refresher.RefreshSnapshot(ctx); err != nil {
		log.Printf("level=warn component=jobs msg=\"snapshot refresh failed\" err=%v", err)
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/domain"
)

// The event helpers in criterion_test.go stamp timestamps relative to
// criterionTestNow, so the evaluator clock is pinned to the same instant.
var evaluatorTestNow = criterionTestNow

type evaluatorStoreStub struct {
	promotions       []domain.PromotionDefinition
	enrollments      map[string]*domain.Enrollment
	progressUpdates  map[string]int64
	transitionCalls  int
	transitionDenied bool
	deactivated      []uuid.UUID
	listCalls        int
	listErr          error
}

func enrollmentKey(promotionID uuid.UUID, accountID string) string {
	return fmt.Sprintf("%s|%s", promotionID, accountID)
}

func newEvaluatorStoreStub(promotions ...domain.PromotionDefinition) *evaluatorStoreStub {
	return &evaluatorStoreStub{
		promotions:      promotions,
		enrollments:     make(map[string]*domain.Enrollment),
		progressUpdates: make(map[string]int64),
	}
}

func (s *evaluatorStoreStub) ListActivePromotions(ctx context.Context, at time.Time) ([]domain.PromotionDefinition, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	active := make([]domain.PromotionDefinition, 0, len(s.promotions))
	for _, promo := range s.promotions {
		if promo.IsActiveAt(at) {
			active = append(active, promo)
		}
	}
	return active, nil
}

func (s *evaluatorStoreStub) GetOrCreateEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error) {
	key := enrollmentKey(promotionID, accountID)
	if existing, ok := s.enrollments[key]; ok {
		copied := *existing
		return &copied, nil
	}
	created := &domain.Enrollment{
		PromotionID: promotionID,
		AccountID:   accountID,
		Status:      domain.EnrollmentPending,
		CreatedAt:   evaluatorTestNow,
	}
	s.enrollments[key] = created
	copied := *created
	return &copied, nil
}

func (s *evaluatorStoreStub) UpdateEnrollmentProgress(ctx context.Context, promotionID uuid.UUID, accountID string, progress int64) error {
	s.progressUpdates[enrollmentKey(promotionID, accountID)] = progress
	return nil
}

func (s *evaluatorStoreStub) TransitionEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string, fromStatus, toStatus string) (bool, error) {
	s.transitionCalls++
	if s.transitionDenied {
		return false, nil
	}
	enrollment, ok := s.enrollments[enrollmentKey(promotionID, accountID)]
	if !ok || enrollment.Status != fromStatus {
		return false, nil
	}
	enrollment.Status = toStatus
	return true, nil
}

func (s *evaluatorStoreStub) DeactivatePromotion(ctx context.Context, promotionID uuid.UUID) error {
	s.deactivated = append(s.deactivated, promotionID)
	for i := range s.promotions {
		if s.promotions[i].ID == promotionID {
			s.promotions[i].Active = false
		}
	}
	return nil
}

type ledgerHistoryStub struct {
	history []domain.TransactionEvent
	err     error
	calls   int
}

func (l *ledgerHistoryStub) ListAccountTransactions(ctx context.Context, accountID string, since time.Time) ([]domain.TransactionEvent, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.history, nil
}

type rewardHandlerStub struct {
	calls []string
	err   error
}

func (r *rewardHandlerStub) IssueReward(ctx context.Context, promotionID uuid.UUID, accountID string) error {
	r.calls = append(r.calls, enrollmentKey(promotionID, accountID))
	return r.err
}

func depositPromotion(threshold int64) domain.PromotionDefinition {
	return domain.PromotionDefinition{
		ID:             uuid.New(),
		Name:           "welcome savings boost",
		Criterion:      domain.Criterion{Kind: domain.CriterionCumulativeDeposit, ThresholdAmount: threshold},
		RewardAmount:   5000,
		WindowDuration: 30 * 24 * time.Hour,
		ActiveFrom:     evaluatorTestNow.Add(-10 * 24 * time.Hour),
		Active:         true,
	}
}

func newTestEvaluator(storeStub *evaluatorStoreStub, ledger *ledgerHistoryStub, issuer *rewardHandlerStub) *Evaluator {
	evaluator := NewEvaluator(storeStub, ledger, issuer)
	evaluator.nowFn = func() time.Time { return evaluatorTestNow }
	return evaluator
}

func TestHandleTransaction_QualifiesAndIssuesReward(t *testing.T) {
	promo := depositPromotion(100000)
	storeStub := newEvaluatorStoreStub(promo)
	ledger := &ledgerHistoryStub{history: []domain.TransactionEvent{
		depositEvent(1, 60000, 48*time.Hour),
		depositEvent(2, 50000, time.Hour),
	}}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	event := depositEvent(2, 50000, time.Hour)
	if err := evaluator.HandleTransaction(context.Background(), event); err != nil {
		t.Fatalf("HandleTransaction returned error: %v", err)
	}

	key := enrollmentKey(promo.ID, event.AccountID)
	if storeStub.enrollments[key].Status != domain.EnrollmentQualified {
		t.Fatalf("expected enrollment QUALIFIED, got %s", storeStub.enrollments[key].Status)
	}
	if storeStub.progressUpdates[key] != 110000 {
		t.Fatalf("expected recorded progress 110000, got %d", storeStub.progressUpdates[key])
	}
	if len(issuer.calls) != 1 {
		t.Fatalf("expected exactly one reward issuance, got %d", len(issuer.calls))
	}
}

func TestHandleTransaction_BelowThresholdOnlyRecordsProgress(t *testing.T) {
	promo := depositPromotion(100000)
	storeStub := newEvaluatorStoreStub(promo)
	ledger := &ledgerHistoryStub{history: []domain.TransactionEvent{
		depositEvent(1, 40000, time.Hour),
	}}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	event := depositEvent(1, 40000, time.Hour)
	if err := evaluator.HandleTransaction(context.Background(), event); err != nil {
		t.Fatalf("HandleTransaction returned error: %v", err)
	}

	key := enrollmentKey(promo.ID, event.AccountID)
	if storeStub.enrollments[key].Status != domain.EnrollmentPending {
		t.Fatalf("expected enrollment to stay PENDING, got %s", storeStub.enrollments[key].Status)
	}
	if storeStub.progressUpdates[key] != 40000 {
		t.Fatalf("expected recorded progress 40000, got %d", storeStub.progressUpdates[key])
	}
	if len(issuer.calls) != 0 {
		t.Fatalf("expected no reward issuance, got %d", len(issuer.calls))
	}
}

func TestHandleTransaction_DuplicateDeliveryIsIdempotent(t *testing.T) {
	promo := depositPromotion(100000)
	storeStub := newEvaluatorStoreStub(promo)
	ledger := &ledgerHistoryStub{history: []domain.TransactionEvent{
		depositEvent(1, 120000, time.Hour),
	}}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	event := depositEvent(1, 120000, time.Hour)
	if err := evaluator.HandleTransaction(context.Background(), event); err != nil {
		t.Fatalf("first delivery returned error: %v", err)
	}

	// Simulate the issuer completing settlement before the redelivery arrives.
	key := enrollmentKey(promo.ID, event.AccountID)
	storeStub.enrollments[key].Status = domain.EnrollmentRewarded

	if err := evaluator.HandleTransaction(context.Background(), event); err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}

	if len(issuer.calls) != 1 {
		t.Fatalf("expected a single reward issuance across deliveries, got %d", len(issuer.calls))
	}
	if storeStub.enrollments[key].Status != domain.EnrollmentRewarded {
		t.Fatalf("expected enrollment to remain REWARDED, got %s", storeStub.enrollments[key].Status)
	}
}

func TestHandleTransaction_LedgerFailureIsRetryable(t *testing.T) {
	promo := depositPromotion(100000)
	storeStub := newEvaluatorStoreStub(promo)
	ledger := &ledgerHistoryStub{err: errors.New("ledger unavailable")}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	err := evaluator.HandleTransaction(context.Background(), depositEvent(1, 120000, time.Hour))
	if err == nil {
		t.Fatal("expected error when the ledger window query fails")
	}
	if len(issuer.calls) != 0 {
		t.Fatalf("expected no reward issuance on failure, got %d", len(issuer.calls))
	}
}

func TestHandleTransaction_QuarantinesMalformedPromotion(t *testing.T) {
	malformed := depositPromotion(100000)
	malformed.Criterion = domain.Criterion{Kind: "unknown_kind"}
	storeStub := newEvaluatorStoreStub(malformed)
	ledger := &ledgerHistoryStub{history: []domain.TransactionEvent{
		depositEvent(1, 120000, time.Hour),
	}}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	// Malformed criteria are quarantined, not surfaced as retryable failures.
	if err := evaluator.HandleTransaction(context.Background(), depositEvent(1, 120000, time.Hour)); err != nil {
		t.Fatalf("HandleTransaction returned error: %v", err)
	}

	if len(storeStub.deactivated) != 1 || storeStub.deactivated[0] != malformed.ID {
		t.Fatalf("expected malformed promotion to be deactivated, got %v", storeStub.deactivated)
	}
	if len(issuer.calls) != 0 {
		t.Fatalf("expected no reward issuance for a malformed promotion, got %d", len(issuer.calls))
	}

	// The quarantine refreshes the snapshot, so the next event no longer sees it.
	if err := evaluator.HandleTransaction(context.Background(), depositEvent(2, 120000, time.Hour)); err != nil {
		t.Fatalf("HandleTransaction after quarantine returned error: %v", err)
	}
	if len(storeStub.deactivated) != 1 {
		t.Fatalf("expected no further deactivations, got %d", len(storeStub.deactivated))
	}
}

func TestHandleTransaction_SkipsTerminalEnrollmentWithoutLedgerCall(t *testing.T) {
	promo := depositPromotion(100000)
	storeStub := newEvaluatorStoreStub(promo)
	event := depositEvent(1, 120000, time.Hour)
	storeStub.enrollments[enrollmentKey(promo.ID, event.AccountID)] = &domain.Enrollment{
		PromotionID: promo.ID,
		AccountID:   event.AccountID,
		Status:      domain.EnrollmentExpired,
	}
	ledger := &ledgerHistoryStub{}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	if err := evaluator.HandleTransaction(context.Background(), event); err != nil {
		t.Fatalf("HandleTransaction returned error: %v", err)
	}
	if ledger.calls != 0 {
		t.Fatalf("expected no ledger window query for a terminal enrollment, got %d", ledger.calls)
	}
	if len(issuer.calls) != 0 {
		t.Fatalf("expected no reward issuance for a terminal enrollment, got %d", len(issuer.calls))
	}
}

func TestHandleTransaction_LostQualifyCASStillDelegatesToIssuer(t *testing.T) {
	promo := depositPromotion(100000)
	storeStub := newEvaluatorStoreStub(promo)
	storeStub.transitionDenied = true
	ledger := &ledgerHistoryStub{history: []domain.TransactionEvent{
		depositEvent(1, 120000, time.Hour),
	}}
	issuer := &rewardHandlerStub{}
	evaluator := newTestEvaluator(storeStub, ledger, issuer)

	if err := evaluator.HandleTransaction(context.Background(), depositEvent(1, 120000, time.Hour)); err != nil {
		t.Fatalf("HandleTransaction returned error: %v", err)
	}
	// The issuer is still invoked; it is a no-op unless the row is QUALIFIED.
	if len(issuer.calls) != 1 {
		t.Fatalf("expected the issuer to be consulted once, got %d", len(issuer.calls))
	}
}

func TestRefreshSnapshot_PropagatesStoreErrors(t *testing.T) {
	storeStub := newEvaluatorStoreStub()
	storeStub.listErr = errors.New("db down")
	evaluator := newTestEvaluator(storeStub, &ledgerHistoryStub{}, &rewardHandlerStub{})

	if err := evaluator.RefreshSnapshot(context.Background()); err == nil {
		t.Fatal("expected error when the promotion query fails")
	}
}

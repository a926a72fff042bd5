/**
 * @description
 * This file contains the core application service for the promotion-service's
 * HTTP surface: the promotion management interface and the query boundary the
 * conversational agent calls to answer user questions about promotions and
 * enrollment status. The pipeline (poller, subscriber, evaluator, issuer) never
 * depends on this layer.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/domain"
	"github.com/transfa/promotion-service/internal/store"
)

// ErrInvalidPromotionPayload indicates a management request that cannot become
// a valid promotion definition.
var ErrInvalidPromotionPayload = errors.New("invalid promotion payload")

// ServiceStore is the slice of the repository the service needs.
type ServiceStore interface {
	CreatePromotion(ctx context.Context, promo *domain.PromotionDefinition) error
	FindPromotionByID(ctx context.Context, promotionID uuid.UUID) (*domain.PromotionDefinition, error)
	ListPromotions(ctx context.Context) ([]domain.PromotionDefinition, error)
	ListActivePromotions(ctx context.Context, at time.Time) ([]domain.PromotionDefinition, error)
	DeactivatePromotion(ctx context.Context, promotionID uuid.UUID) error
	GetEnrollment(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error)
	ListEnrollmentsByAccount(ctx context.Context, accountID string) ([]domain.Enrollment, error)
}

// Service exposes promotion management and account status queries.
type Service struct {
	repo      ServiceStore
	refresher SnapshotRefresher
	nowFn     func() time.Time
}

// NewService creates the application service. The refresher may be nil in
// tests; when present, definition changes propagate to the evaluator snapshot
// immediately instead of waiting for the scheduled refresh.
func NewService(repo ServiceStore, refresher SnapshotRefresher) *Service {
	return &Service{
		repo:      repo,
		refresher: refresher,
		nowFn:     time.Now,
	}
}

// CreatePromotion validates and persists a new promotion definition.
func (s *Service) CreatePromotion(ctx context.Context, payload domain.CreatePromotionPayload) (*domain.PromotionDefinition, error) {
	if payload.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPromotionPayload)
	}
	if payload.RewardAmount <= 0 {
		return nil, fmt.Errorf("%w: reward_amount must be positive", ErrInvalidPromotionPayload)
	}
	if payload.WindowDays <= 0 {
		return nil, fmt.Errorf("%w: window_days must be positive", ErrInvalidPromotionPayload)
	}

	criterion := domain.Criterion{
		Kind:            payload.CriterionKind,
		ThresholdAmount: payload.ThresholdAmount,
		MinCount:        payload.MinCount,
	}
	if err := criterion.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPromotionPayload, err)
	}

	now := s.nowFn()
	activeFrom := now
	if payload.ActiveFrom != nil {
		activeFrom = *payload.ActiveFrom
	}
	if payload.ActiveUntil != nil && payload.ActiveUntil.Before(activeFrom) {
		return nil, fmt.Errorf("%w: active_until precedes active_from", ErrInvalidPromotionPayload)
	}

	promo := &domain.PromotionDefinition{
		ID:             uuid.New(),
		Name:           payload.Name,
		Criterion:      criterion,
		RewardAmount:   payload.RewardAmount,
		WindowDuration: time.Duration(payload.WindowDays) * 24 * time.Hour,
		ActiveFrom:     activeFrom,
		ActiveUntil:    payload.ActiveUntil,
		Active:         true,
	}
	if err := s.repo.CreatePromotion(ctx, promo); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	s.refreshSnapshot(ctx)
	return promo, nil
}

// ListPromotions returns every promotion definition.
func (s *Service) ListPromotions(ctx context.Context) ([]domain.PromotionDefinition, error) {
	return s.repo.ListPromotions(ctx)
}

// DeactivatePromotion deactivates a definition and propagates the change to
// the evaluator snapshot.
func (s *Service) DeactivatePromotion(ctx context.Context, promotionID uuid.UUID) error {
	if err := s.repo.DeactivatePromotion(ctx, promotionID); err != nil {
		return err
	}
	s.refreshSnapshot(ctx)
	return nil
}

// ListActivePromotionsForAccount returns the currently active promotions
// paired with the account's enrollment, if one exists. This is the primary
// conversational-agent query.
func (s *Service) ListActivePromotionsForAccount(ctx context.Context, accountID string) ([]domain.AccountPromotionStatus, error) {
	promotions, err := s.repo.ListActivePromotions(ctx, s.nowFn())
	if err != nil {
		return nil, fmt.Errorf("list active promotions: %w", err)
	}

	statuses := make([]domain.AccountPromotionStatus, 0, len(promotions))
	for _, promo := range promotions {
		status := domain.AccountPromotionStatus{Promotion: promo}
		if accountID != "" {
			enrollment, err := s.repo.GetEnrollment(ctx, promo.ID, accountID)
			if err != nil && !errors.Is(err, store.ErrEnrollmentNotFound) {
				return nil, fmt.Errorf("load enrollment: %w", err)
			}
			status.Enrollment = enrollment
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// ListAccountEnrollments returns every enrollment for an account.
func (s *Service) ListAccountEnrollments(ctx context.Context, accountID string) ([]domain.Enrollment, error) {
	return s.repo.ListEnrollmentsByAccount(ctx, accountID)
}

// GetEnrollmentStatus returns the enrollment row for one promotion and account.
func (s *Service) GetEnrollmentStatus(ctx context.Context, promotionID uuid.UUID, accountID string) (*domain.Enrollment, error) {
	return s.repo.GetEnrollment(ctx, promotionID, accountID)
}

func (s *Service) refreshSnapshot(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.RefreshSnapshot(ctx); err != nil {
		// The scheduled refresh will catch up; definition changes are not
		// latency-critical.
		return
	}
}

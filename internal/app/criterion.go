/**
 * @description
 * Criterion aggregation for the promotion evaluator. Aggregates are recomputed
 * from the full transaction window on every evaluation and are therefore
 * order-independent and duplicate-safe: any permutation of deliveries, with
 * any number of redeliveries, converges on the same value.
 */
package app

import (
	"fmt"
	"time"

	"github.com/transfa/promotion-service/internal/domain"
)

// ComputeAggregate folds one account's transaction history into the rolling
// aggregate the criterion is measured against. Only transactions with a
// timestamp inside [windowStart, now] count; transactions sharing an id are
// counted once regardless of how often they appear.
func ComputeAggregate(criterion domain.Criterion, history []domain.TransactionEvent, windowStart, now time.Time) (int64, error) {
	if err := criterion.Validate(); err != nil {
		return 0, err
	}

	seen := make(map[int64]struct{}, len(history))
	var aggregate int64
	for _, tx := range history {
		if _, dup := seen[tx.TransactionID]; dup {
			continue
		}
		seen[tx.TransactionID] = struct{}{}

		if tx.Timestamp.Before(windowStart) || tx.Timestamp.After(now) {
			continue
		}

		switch criterion.Kind {
		case domain.CriterionCumulativeDeposit:
			if tx.IsCredit() {
				aggregate += tx.Amount
			}
		case domain.CriterionCumulativeTransfer:
			if !tx.IsCredit() {
				aggregate += tx.Amount
			}
		case domain.CriterionTransactionCount:
			aggregate++
		}
	}
	return aggregate, nil
}

// CriterionSatisfied reports whether the aggregate meets the criterion.
func CriterionSatisfied(criterion domain.Criterion, aggregate int64) (bool, error) {
	switch criterion.Kind {
	case domain.CriterionCumulativeDeposit, domain.CriterionCumulativeTransfer:
		return aggregate >= criterion.ThresholdAmount, nil
	case domain.CriterionTransactionCount:
		return aggregate >= int64(criterion.MinCount), nil
	default:
		return false, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidCriterion, criterion.Kind)
	}
}

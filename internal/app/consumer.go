package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/transfa/promotion-service/internal/domain"
)

// TransactionEvaluator is the downstream the subscriber forwards into.
type TransactionEvaluator interface {
	HandleTransaction(ctx context.Context, event domain.TransactionEvent) error
}

// TransactionEventConsumer consumes TransactionEvents from the bus,
// deduplicates by transaction id, and forwards unseen events to the evaluator.
// The event is acknowledged, and its id marked in the dedup window, only after
// a successful forward, so bus-level redelivery (never loss) is the failure
// mode; the dedup window absorbs the replays and the evaluator absorbs
// whatever slips past it.
type TransactionEventConsumer struct {
	dedup         DedupWindow
	evaluator     TransactionEvaluator
	handleTimeout time.Duration
}

// NewTransactionEventConsumer creates a consumer over the given dedup window
// and evaluator.
func NewTransactionEventConsumer(dedup DedupWindow, evaluator TransactionEvaluator, handleTimeout time.Duration) *TransactionEventConsumer {
	if handleTimeout <= 0 {
		handleTimeout = 30 * time.Second
	}
	return &TransactionEventConsumer{
		dedup:         dedup,
		evaluator:     evaluator,
		handleTimeout: handleTimeout,
	}
}

// HandleMessage processes one delivery. Returning true acknowledges the
// message; false re-queues it for redelivery.
func (c *TransactionEventConsumer) HandleMessage(body []byte) bool {
	var event domain.TransactionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("transaction-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.TransactionID <= 0 {
		log.Printf("transaction-consumer: missing transaction id in event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.handleTimeout)
	defer cancel()

	seen, err := c.dedup.Check(ctx, event.TransactionID)
	if err != nil {
		// Fail open: forwarding a possible duplicate is safe, the evaluator
		// is idempotent.
		log.Printf("transaction-consumer: dedup check failed for transaction %d; forwarding anyway: %v", event.TransactionID, err)
	} else if seen {
		log.Printf("transaction-consumer: duplicate transaction %d dropped", event.TransactionID)
		return true
	}

	if err := c.evaluator.HandleTransaction(ctx, event); err != nil {
		// The id stays unmarked so the broker's redelivery is evaluated
		// again instead of being dropped as a duplicate of itself.
		log.Printf("transaction-consumer: processing error for transaction %d: %v", event.TransactionID, err)
		return false
	}

	if err := c.dedup.Mark(ctx, event.TransactionID); err != nil {
		// A missed mark only risks a redundant evaluation later.
		log.Printf("transaction-consumer: dedup mark failed for transaction %d: %v", event.TransactionID, err)
	}

	return true
}

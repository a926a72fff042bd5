/**
 * @description
 * This file defines the event payloads exchanged over RabbitMQ. The central
 * type is TransactionEvent, published by the ledger poller once per newly
 * committed ledger transaction and consumed by the promotion evaluator.
 *
 * @notes
 * - TransactionEvent is immutable once published; consumers must treat a
 *   redelivered event with the same TransactionID as the same event.
 * - Amounts are in the smallest currency unit (cents) to avoid floating-point
 *   inaccuracies with financial data.
 */

package domain

import (
	"encoding/json"
	"time"
)

// Transaction direction constants. The ledger stores transfers as
// (from_account, to_account) pairs; direction is relative to the account the
// event is attributed to.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// TransactionEvent is the message payload published to RabbitMQ for every
// ledger transaction observed by the poller.
type TransactionEvent struct {
	TransactionID int64           `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        int64           `json:"amount"` // in cents
	Direction     string          `json:"direction"`
	Timestamp     time.Time       `json:"timestamp"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
}

// IsCredit reports whether the event represents money arriving at the account.
func (e TransactionEvent) IsCredit() bool {
	return e.Direction == DirectionCredit
}

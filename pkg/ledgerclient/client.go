/**
 * @description
 * This package provides a client for interacting with the bank ledger API. It
 * encapsulates the logic for making authenticated HTTP requests to the ledger's
 * endpoints: listing newly committed transactions past a cursor, fetching one
 * account's transaction history, and issuing idempotent reward credits.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/transfa/promotion-service/internal/domain"
)

// CreditOutcome is the result of a credit instruction.
type CreditOutcome string

const (
	// CreditApplied means the ledger accepted and posted the credit.
	CreditApplied CreditOutcome = "applied"
	// CreditAlreadyApplied means the ledger had already posted a credit with
	// the same idempotency key; no additional money moved.
	CreditAlreadyApplied CreditOutcome = "already_applied"
)

// ErrCreditNotFound indicates no posted credit carries the idempotency key.
var ErrCreditNotFound = errors.New("credit not found for idempotency key")

// Client is a client for the ledger API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new ledger API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreditRequest is the payload for an idempotent reward credit.
type CreditRequest struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"` // in cents
	IdempotencyKey string `json:"idempotency_key"`
	Memo           string `json:"memo,omitempty"`
}

// Credit is a posted reward credit as reported by the ledger.
type Credit struct {
	TransactionID  int64     `json:"transaction_id"`
	AccountID      string    `json:"account_id"`
	Amount         int64     `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
}

type creditResponse struct {
	Status string `json:"status"`
	Credit Credit `json:"credit"`
}

type transactionListResponse struct {
	Transactions []domain.TransactionEvent `json:"transactions"`
}

// ErrorResponse represents an error returned by the ledger API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ledger api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ledger api error (%d)", e.StatusCode)
}

// ListTransactions fetches transactions with id > sinceID in ascending id
// order, capped at limit. The poller drives its cursor off this call.
func (c *Client) ListTransactions(ctx context.Context, sinceID int64, limit int) ([]domain.TransactionEvent, error) {
	endpoint := fmt.Sprintf("%s/transactions?since_id=%d&limit=%d", c.BaseURL, sinceID, limit)
	var out transactionListResponse
	if err := c.doGet(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// ListAccountTransactions fetches one account's transactions (both directions)
// with timestamps at or after since. The evaluator recomputes rolling
// aggregates from this full window on every evaluation, which keeps
// reprocessing of a duplicate event from ever double-counting.
func (c *Client) ListAccountTransactions(ctx context.Context, accountID string, since time.Time) ([]domain.TransactionEvent, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions?since=%s",
		c.BaseURL, url.PathEscape(accountID), url.QueryEscape(since.UTC().Format(time.RFC3339)))
	var out transactionListResponse
	if err := c.doGet(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// CreditAccount issues a reward credit tagged with an idempotency key. The
// ledger recognizes a retried key and reports already_applied instead of
// moving money twice.
func (c *Client) CreditAccount(ctx context.Context, accountID string, amount int64, idempotencyKey string) (CreditOutcome, error) {
	payload := CreditRequest{
		AccountID:      accountID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Memo:           "promotion reward",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/credits", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return CreditApplied, nil
	case http.StatusConflict:
		// The ledger already holds a credit for this key.
		return CreditAlreadyApplied, nil
	default:
		return "", decodeError(resp)
	}
}

// FindCreditByIdempotencyKey looks up a posted credit by its idempotency key.
// The issuer calls this before crediting so a crash between a confirmed credit
// and the status write is repaired without re-crediting.
func (c *Client) FindCreditByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Credit, error) {
	endpoint := c.BaseURL + "/credits/" + url.PathEscape(idempotencyKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrCreditNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var out creditResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode credit response: %w", err)
	}
	return &out.Credit, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil {
			apiErr.Message = strconv.Quote(string(raw))
		}
	}
	return apiErr
}

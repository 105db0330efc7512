// Package queue submits and processes asynchronous jobs over a redis-backed
// task queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/silsilat/tokenization-backend/services"
)

// Task types and their queues. Purchases outrank issuance so buyers are not
// stuck behind long mint jobs.
const (
	TypeSagIssuance   = "sag:issuance"
	TypeTokenPurchase = "token:purchase"
	TypeSagRepayment  = "sag:repayment"

	QueueIssuance  = "issuance"
	QueuePurchase  = "purchase"
	QueueRepayment = "repayment"
)

// IssuancePayload is the job body of one SAG creation.
type IssuancePayload struct {
	Input  services.IssuanceInput `json:"input"`
	UserID string                 `json:"userId"`
}

// PurchasePayload is the job body of one token purchase.
type PurchasePayload struct {
	Input  services.PurchaseInput `json:"input"`
	UserID string                 `json:"userId"`
}

// RepaymentPayload is the job body of one SAG repayment. UserID is the
// operator or pledger watching the progress channel.
type RepaymentPayload struct {
	Input  services.RepaymentInput `json:"input"`
	UserID string                  `json:"userId"`
}

// Client enqueues jobs.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisAddr string) *Client {
	return &Client{inner: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// SubmitIssuance enqueues a SAG creation job and returns its id. The task id
// doubles as a dedupe key: resubmitting the same SAG name in the same second
// is rejected by the queue.
func (c *Client) SubmitIssuance(ctx context.Context, payload IssuancePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal issuance payload: %w", err)
	}

	info, err := c.inner.EnqueueContext(ctx, asynq.NewTask(TypeSagIssuance, body),
		asynq.Queue(QueueIssuance),
		asynq.TaskID(fmt.Sprintf("sag-%s-%d", payload.Input.SagName, time.Now().Unix())),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue issuance job: %w", err)
	}
	return info.ID, nil
}

// SubmitPurchase enqueues a token purchase job and returns its id.
func (c *Client) SubmitPurchase(ctx context.Context, payload PurchasePayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal purchase payload: %w", err)
	}

	info, err := c.inner.EnqueueContext(ctx, asynq.NewTask(TypeTokenPurchase, body),
		asynq.Queue(QueuePurchase),
		asynq.TaskID(fmt.Sprintf("purchase-%s-%s-%d", payload.Input.TokenID, payload.UserID, time.Now().Unix())),
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue purchase job: %w", err)
	}
	return info.ID, nil
}

// SubmitRepayment enqueues a SAG repayment job. A non-zero at schedules the
// job for the token's expiry instead of running it immediately; the task id
// then dedupes repeated scheduling of the same maturity.
func (c *Client) SubmitRepayment(ctx context.Context, payload RepaymentPayload, at time.Time) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal repayment payload: %w", err)
	}

	ref := time.Now()
	opts := []asynq.Option{
		asynq.Queue(QueueRepayment),
		asynq.MaxRetry(2),
		asynq.Timeout(30 * time.Minute),
		asynq.Retention(24 * time.Hour),
	}
	if !at.IsZero() {
		ref = at
		opts = append(opts, asynq.ProcessAt(at))
	}
	opts = append(opts, asynq.TaskID(fmt.Sprintf("repayment-%s-%d", payload.Input.TokenID, ref.Unix())))

	info, err := c.inner.EnqueueContext(ctx, asynq.NewTask(TypeSagRepayment, body), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue repayment job: %w", err)
	}
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}

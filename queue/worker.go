package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/jobctx"
	"github.com/silsilat/tokenization-backend/services"
)

// Worker consumes the issuance and purchase queues. Each job runs as one
// sequential unit of work; concurrency exists only across jobs.
type Worker struct {
	srv       *asynq.Server
	mux       *asynq.ServeMux
	issuance  *services.IssuanceService
	purchase  *services.PurchaseService
	repayment *services.RepaymentService
	emitter   jobctx.Emitter
	log       *zap.Logger
}

func NewWorker(
	redisAddr string,
	issuance *services.IssuanceService,
	purchase *services.PurchaseService,
	repayment *services.RepaymentService,
	emitter jobctx.Emitter,
	log *zap.Logger,
) *Worker {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				QueuePurchase:  5,
				QueueIssuance:  3,
				QueueRepayment: 2,
			},
		},
	)

	w := &Worker{
		srv:       srv,
		mux:       asynq.NewServeMux(),
		issuance:  issuance,
		purchase:  purchase,
		repayment: repayment,
		emitter:   emitter,
		log:       log,
	}
	w.mux.HandleFunc(TypeSagIssuance, w.handleIssuance)
	w.mux.HandleFunc(TypeTokenPurchase, w.handlePurchase)
	w.mux.HandleFunc(TypeSagRepayment, w.handleRepayment)
	return w
}

// Run blocks consuming jobs until Shutdown.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

// handleIssuance returns nil even when the orchestration fails: the failure
// is already part of the structured result and the progress channel, and the
// valuation compensation must not be replayed by a queue retry.
func (w *Worker) handleIssuance(ctx context.Context, t *asynq.Task) error {
	var payload IssuancePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed issuance payload: %w", err)
	}

	jc := w.newJobContext(ctx, t, jobctx.FlowSagCreation, payload.Input.SagName, payload.UserID)
	result, err := w.issuance.Process(ctx, jc, payload.Input, payload.UserID)
	if err != nil {
		w.log.Warn("issuance job completed with failure",
			zap.String("jobId", jc.JobID),
			zap.Error(err))
		return nil
	}

	w.log.Info("issuance job completed",
		zap.String("jobId", jc.JobID),
		zap.String("sagId", result.SagID),
		zap.String("tokenId", result.TokenID),
		zap.Int("minted", result.TotalMinted))
	return nil
}

func (w *Worker) handlePurchase(ctx context.Context, t *asynq.Task) error {
	var payload PurchasePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed purchase payload: %w", err)
	}

	jc := w.newJobContext(ctx, t, jobctx.FlowTokenPurchase, payload.Input.TokenID, payload.UserID)
	result, err := w.purchase.Process(ctx, jc, payload.Input, payload.UserID)
	if err != nil {
		w.log.Warn("purchase job completed with failure",
			zap.String("jobId", jc.JobID),
			zap.Error(err))
		return nil
	}

	w.log.Info("purchase job completed",
		zap.String("jobId", jc.JobID),
		zap.String("tokenId", result.TokenID),
		zap.Int("delivered", len(result.SerialNumbers)),
		zap.Bool("success", result.Success))
	return nil
}

// handleRepayment returns the error to the queue, unlike the other flows:
// a run that fails its validation or balance pre-check made no transfer, and
// a later retry re-discovers holders from the ledger rather than replaying a
// recorded plan.
func (w *Worker) handleRepayment(ctx context.Context, t *asynq.Task) error {
	var payload RepaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed repayment payload: %w", err)
	}

	jc := w.newJobContext(ctx, t, jobctx.FlowRepayment, payload.Input.TokenID, payload.UserID)
	result, err := w.repayment.Process(ctx, jc, payload.Input)
	if err != nil {
		return err
	}

	w.log.Info("repayment job completed",
		zap.String("jobId", jc.JobID),
		zap.String("tokenId", result.TokenID),
		zap.Int("holders", len(result.Holders)),
		zap.Int("burned", result.UnitsBurned),
		zap.Bool("success", result.Success))
	return nil
}

func (w *Worker) newJobContext(ctx context.Context, t *asynq.Task, flow, refID, userID string) jobctx.Context {
	jobID, _ := asynq.GetTaskID(ctx)
	return jobctx.Context{
		JobID:       jobID,
		UserID:      userID,
		Flow:        flow,
		RefID:       refID,
		Emitter:     w.emitter,
		SetProgress: progressRecorder(t.ResultWriter()),
	}
}

// progressRecorder mirrors each progress percent into the task's result
// payload, so queue inspection sees the latest stage without a socket
// subscription. The writer is nil outside handler execution.
func progressRecorder(rw *asynq.ResultWriter) func(int) {
	if rw == nil {
		return nil
	}
	return func(percent int) {
		recordProgress(rw, percent)
	}
}

// recordProgress writes the percent as the task result. Progress is advisory;
// a failed write never fails the job.
func recordProgress(w io.Writer, percent int) {
	body, err := json.Marshal(map[string]int{"progress": percent})
	if err != nil {
		return
	}
	_, _ = w.Write(body)
}

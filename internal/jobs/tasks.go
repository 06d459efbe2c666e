package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/service"
)

const (
	// QueueDefault is the only queue the ledger worker consumes.
	QueueDefault = "default"
	// TaskReconcileBalances rebuilds every customer balance from unpaid sales.
	TaskReconcileBalances = "ledger:reconcile_balances"
)

// ReconcileBalancesPayload records who asked for the run.
type ReconcileBalancesPayload struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewReconcileBalancesTask(payload ReconcileBalancesPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileBalances, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewScheduledReconcileTask builds the payload-less task registered with the
// scheduler; the handler attributes it to "scheduler".
func NewScheduledReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskReconcileBalances, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// BalanceReconciler is satisfied by *service.Service.
type BalanceReconciler interface {
	ResetAllBalances(ctx context.Context) (domain.ReconcileResult, error)
}

type ReconcileBalancesJob struct {
	Reconciler BalanceReconciler
	Logger     *slog.Logger
}

func NewReconcileBalancesJob(reconciler BalanceReconciler, logger *slog.Logger) *ReconcileBalancesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileBalancesJob{Reconciler: reconciler, Logger: logger}
}

// Handle runs one reconciliation. Malformed payloads are not retried.
func (j *ReconcileBalancesJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile balances: handler not configured")
	}
	var payload ReconcileBalancesPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
		}
	}

	requestedBy := payload.RequestedBy
	if requestedBy == "" {
		requestedBy = "scheduler"
	}
	ctx = service.WithActor(ctx, domain.Actor{Username: requestedBy, Role: "system"})

	logger := j.Logger.With(slog.String("task", TaskReconcileBalances), slog.String("requested_by", requestedBy))
	result, err := j.Reconciler.ResetAllBalances(ctx)
	if err != nil {
		logger.Error("reconciliation failed", slog.Any("error", err))
		return err
	}
	logger.Info("reconciliation finished",
		slog.Int("customers_updated", result.CustomersUpdated),
		slog.Int("skipped_sales", result.SkippedSales))
	return nil
}

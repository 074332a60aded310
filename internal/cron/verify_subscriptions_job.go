package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

// VerifySubscriptionsJobName labels the daily reconciliation in logs and metrics.
const VerifySubscriptionsJobName = "verify-subscriptions"

type subscriptionReconciler interface {
	Run(ctx context.Context) (subscriptions.Summary, error)
}

type VerifySubscriptionsJobParams struct {
	Logger     *logger.Logger
	Reconciler subscriptionReconciler
}

// NewVerifySubscriptionsJob wraps one reconciliation pass as a cron job.
func NewVerifySubscriptionsJob(params VerifySubscriptionsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &verifySubscriptionsJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
	}, nil
}

type verifySubscriptionsJob struct {
	logg       *logger.Logger
	reconciler subscriptionReconciler
	last       subscriptions.Summary
}

func (j *verifySubscriptionsJob) Name() string { return VerifySubscriptionsJobName }

func (j *verifySubscriptionsJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("verify subscriptions: %w", err)
	}
	j.last = summary
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"vendors_processed": summary.Processed,
		"vendors_failed":    summary.Failed,
	})
	if summary.Failed > 0 {
		j.logg.Warn(logCtx, "subscriptions verified with vendor failures")
		return nil
	}
	j.logg.Info(logCtx, "subscriptions verified")
	return nil
}

package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/usecase"
)

// ReconcileWorker periodically runs the reconcile pass in-process. The cron
// HTTP endpoint triggers the same use case; deployments pick one or both.
type ReconcileWorker struct {
	interval    time.Duration
	reconcileUC usecase.ReconcileUseCase
	log         *zerolog.Logger
}

func NewReconcileWorker(interval time.Duration, reconcileUC usecase.ReconcileUseCase, logger *zerolog.Logger) *ReconcileWorker {
	l := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{
		interval:    interval,
		reconcileUC: reconcileUC,
		log:         &l,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reconcile worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.reconcileUC.Run(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("reconcile worker error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("subscriptions terminated")
			}
		}
	}
}

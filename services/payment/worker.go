package payment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"reviewhub/pkg/db/option"
	"reviewhub/pkg/errutil"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	sweepBatch       = 100
	sweepConcurrency = 4
)

// HandleReconcile processes one payment:reconcile task.
func (s *Service) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	p, err := reconcilePayload(t)
	if err != nil {
		return err
	}

	if _, err := s.Reconcile(ctx, p.UnmatchedID); err != nil {
		if errutil.Is(err, errutil.StatusNotFound) {
			return fmt.Errorf("unmatched payment %s: %w", p.UnmatchedID, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// HandleSweep retries every open unmatched payment, oldest first. Payers that
// are still unknown are left open for the next sweep.
func (s *Service) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	rows, err := s.unmatched.Find(ctx, &UnmatchedPayment{Status: UnmatchedOpen}, withOldestFirst(sweepBatch))
	if err != nil {
		return err
	}

	var resolved, pending atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, row := range rows {
		g.Go(func() error {
			_, err := s.Reconcile(gctx, row.ID)
			switch {
			case err == nil:
				resolved.Add(1)
				return nil
			case errors.Is(err, ErrPayerUnknown):
				pending.Add(1)
				return nil
			default:
				return fmt.Errorf("reconcile %s: %w", row.ID, err)
			}
		})
	}
	err = g.Wait()

	zap.L().Info("unmatched payment sweep finished",
		zap.Int("scanned", len(rows)),
		zap.Int64("resolved", resolved.Load()),
		zap.Int64("still_unknown", pending.Load()),
		zap.Error(err),
	)
	return err
}

func withOldestFirst(limit int) option.QueryOption {
	sort := option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "ASC"})
	return func(db *gorm.DB) *gorm.DB {
		return sort(db).Limit(limit)
	}
}

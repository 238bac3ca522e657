package payment

import (
	"context"
	"errors"
	"time"

	"reviewhub/pkg/task"
	"reviewhub/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepInterval = time.Hour

// Scheduler enqueues a payment:sweep task every sweepInterval so unmatched
// payments whose tasks ran out of retries are still picked up.
type Scheduler struct {
	enqueuer task.Enqueuer
	interval time.Duration
}

func NewScheduler(enqueuer task.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, interval: sweepInterval}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started unmatched payment sweep", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.enqueueSweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueueSweep(ctx context.Context) {
	// Unique keeps overlapping workers from queueing the same sweep twice.
	_, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.PaymentSweep, nil),
		asynq.Queue(task.QueueLow),
		asynq.Unique(s.interval),
	)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		zap.L().Error("[Scheduler] failed to enqueue sweep", zap.Error(err))
	}
}

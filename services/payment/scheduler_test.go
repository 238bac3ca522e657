package payment

import (
	"context"
	"testing"

	"reviewhub/pkg/task"
	"reviewhub/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSchedulerEnqueuesSweep(t *testing.T) {
	enq := task.NewMockEnqueuer(gomock.NewController(t))
	s := NewScheduler(enq)

	enq.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tk *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
			require.Equal(t, taskname.PaymentSweep, tk.Type())
			require.Len(t, opts, 2)
			return &asynq.TaskInfo{}, nil
		})
	s.enqueueSweep(context.Background())

	// A sweep already queued in this window is not an error.
	enq.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, asynq.ErrDuplicateTask)
	s.enqueueSweep(context.Background())
}

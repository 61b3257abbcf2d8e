package queue

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// HandlersRegistry collects task handlers and the periodic tasks that feed
// them.
type HandlersRegistry struct {
	mux      *asynq.ServeMux
	periodic []periodicTask
}

type periodicTask struct {
	spec string
	task *asynq.Task
	opts []asynq.Option
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

// RegisterPeriodic enqueues taskType on a cron spec once the scheduler
// starts.
func (r *HandlersRegistry) RegisterPeriodic(spec, taskType string, opts ...asynq.Option) {
	r.periodic = append(r.periodic, periodicTask{spec: spec, task: asynq.NewTask(taskType, nil), opts: opts})
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

// Scheduler returns an asynq scheduler with every periodic task registered.
func (r *HandlersRegistry) Scheduler(opt asynq.RedisClientOpt) (*asynq.Scheduler, error) {
	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		LogLevel: asynq.WarnLevel,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				slog.Error("periodic enqueue failed", "error", err)
			}
		},
	})
	for _, p := range r.periodic {
		if _, err := s.Register(p.spec, p.task, p.opts...); err != nil {
			return nil, fmt.Errorf("register periodic %s: %w", p.task.Type(), err)
		}
	}
	return s, nil
}

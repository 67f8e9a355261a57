package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/infra/redis"
	"storybook-pipeline/internal/usecase"
)

// Dispatcher hands accepted generation runs to the pool. The per-task redis
// lock guarantees a task is never run twice concurrently, even when two API
// instances accept the same request.
type Dispatcher struct {
	pipeline usecase.StoryPipelineUseCase
	pool     *Pool
	locker   redis.RunLocker
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewDispatcher(
	pipeline usecase.StoryPipelineUseCase,
	pool *Pool,
	locker redis.RunLocker,
	lockTTL time.Duration,
	log *zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		pipeline: pipeline,
		pool:     pool,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      log,
	}
}

// Dispatch enqueues one run. It returns domain.ErrRunInProgress when the task
// already holds the run lock, and an error when the queue is saturated; in
// both cases nothing was started.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID, storyID, userID string, req model.StoryRequest) error {
	key := redis.RunLockKey(taskID)
	token, err := d.locker.TryLock(ctx, key, d.lockTTL)
	if err != nil {
		return err
	}

	err = d.pool.Submit(func(runCtx context.Context) error {
		defer func() {
			if uerr := d.locker.Unlock(context.Background(), key, token); uerr != nil {
				d.log.Warn().Err(uerr).Str("task_id", taskID).Msg("run lock unlock failed")
			}
		}()
		return d.pipeline.Run(runCtx, taskID, storyID, userID, req)
	})
	if err != nil {
		// The run never started; free the lock so a retry can get in.
		if uerr := d.locker.Unlock(ctx, key, token); uerr != nil {
			d.log.Warn().Err(uerr).Str("task_id", taskID).Msg("run lock unlock failed")
		}
		return fmt.Errorf("dispatch task %s: %w", taskID, err)
	}
	return nil
}

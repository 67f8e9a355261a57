package usecase

import (
	"context"
	"errors"
	"time"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/repository"
	"storybook-pipeline/internal/infra/logging"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ TaskTrackerUseCase = (*trackerUC)(nil)

// TaskUpdate carries the fields one tracker call may change. Nil means
// "leave as is".
type TaskUpdate struct {
	Status       *model.TaskStatus
	Progress     *int
	CurrentStep  *model.GenerationStep
	ErrorMessage *string
}

// TaskTrackerUseCase owns the lifecycle semantics of a generation task
// record. Update is the single mutation entry point; the pipeline is the
// only writer for a given task id.
type TaskTrackerUseCase interface {
	Create(ctx context.Context, storyID, userID string) (*model.GenerationTask, error)
	Get(ctx context.Context, taskID string) (*model.GenerationTask, error)

	// Update applies upd to the task. It returns found=false (and no error)
	// when the task id does not exist; callers must check.
	Update(ctx context.Context, taskID string, upd TaskUpdate) (found bool, err error)
}

type trackerUC struct {
	tasks repository.TaskRepository
	log   *zerolog.Logger
	now   func() time.Time
}

func NewTaskTrackerUseCase(tasks repository.TaskRepository, logger *zerolog.Logger) *trackerUC {
	return &trackerUC{tasks: tasks, log: logger, now: time.Now}
}

func (t *trackerUC) Create(ctx context.Context, storyID, userID string) (*model.GenerationTask, error) {
	task := model.NewGenerationTask(ulid.Make().String(), storyID, userID)
	if err := t.tasks.Create(ctx, repository.NoTX, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (t *trackerUC) Get(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	return t.tasks.FindByID(ctx, repository.NoTX, taskID)
}

func (t *trackerUC) Update(ctx context.Context, taskID string, upd TaskUpdate) (bool, error) {
	defer logging.TraceDuration(t.log, "TrackerUC.Update")()

	task, err := t.tasks.FindByID(ctx, repository.NoTX, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		t.log.Warn().Str("task_id", taskID).Msg("tracker update for unknown task")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if upd.Status != nil {
		t.applyStatus(task, *upd.Status)
	}
	if upd.Progress != nil {
		task.Progress = clampProgress(*upd.Progress)
	}
	if upd.CurrentStep != nil {
		task.CurrentStep = *upd.CurrentStep
	}
	if upd.ErrorMessage != nil {
		task.ErrorMessage = *upd.ErrorMessage
		if upd.Status != nil && *upd.Status == model.TaskStatusFailed {
			task.LastError = *upd.ErrorMessage
		}
	}
	task.UpdatedAt = t.now()

	if err := t.tasks.Save(ctx, repository.NoTX, task); err != nil {
		return false, err
	}
	return true, nil
}

func (t *trackerUC) applyStatus(task *model.GenerationTask, next model.TaskStatus) {
	if next == task.Status {
		return
	}
	if next == model.TaskStatusInProgress {
		// A restart of a previously failed task is the only transition that
		// counts as a new attempt.
		if task.Status == model.TaskStatusFailed {
			task.Attempts++
		}
		if task.StartedAt == nil {
			now := t.now()
			task.StartedAt = &now
		}
	}
	if next.Terminal() && task.CompletedAt == nil {
		now := t.now()
		task.CompletedAt = &now
		if task.StartedAt != nil {
			ms := durationMs(*task.StartedAt, now)
			task.DurationMs = &ms
		}
	}
	task.Status = next
}

// durationMs subtracts in a single time reference: both stamps are collapsed
// to UTC wall-clock first, so a store-loaded timestamp and an in-process one
// subtract consistently regardless of location or monotonic readings.
func durationMs(start, end time.Time) int64 {
	return end.Round(0).UTC().Sub(start.Round(0).UTC()).Milliseconds()
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

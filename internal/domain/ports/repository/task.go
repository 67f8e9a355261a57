package repository

import (
	"context"

	"storybook-pipeline/internal/domain/model"
)

// -----------------------------
// Generation tasks
// -----------------------------

// TaskRepository stores the task records callers poll. All pipeline-side
// mutations go through the tracker use case, which is the single writer for
// a given task id.
type TaskRepository interface {
	Create(ctx context.Context, tx Tx, t *model.GenerationTask) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.GenerationTask, error)
	Save(ctx context.Context, tx Tx, t *model.GenerationTask) error
}

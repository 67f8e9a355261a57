package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *taskRepo {
	return &taskRepo{pool: pool}
}

func (r *taskRepo) Create(ctx context.Context, tx repository.Tx, t *model.GenerationTask) error {
	const q = `
INSERT INTO generation_tasks (
  id, story_id, user_id, status, progress, current_step,
  started_at, completed_at, duration_ms, attempts,
  error_message, last_error, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.StoryID, t.UserID, t.Status, t.Progress, t.CurrentStep,
		t.StartedAt, t.CompletedAt, t.DurationMs, t.Attempts,
		t.ErrorMessage, t.LastError, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *taskRepo) Save(ctx context.Context, tx repository.Tx, t *model.GenerationTask) error {
	t.UpdatedAt = time.Now()

	const q = `
UPDATE generation_tasks SET
  status=$2, progress=$3, current_step=$4,
  started_at=$5, completed_at=$6, duration_ms=$7, attempts=$8,
  error_message=$9, last_error=$10, updated_at=$11
WHERE id=$1;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.Status, t.Progress, t.CurrentStep,
		t.StartedAt, t.CompletedAt, t.DurationMs, t.Attempts,
		t.ErrorMessage, t.LastError, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationTask, error) {
	const q = `
SELECT id, story_id, user_id, status, progress, current_step,
       started_at, completed_at, duration_ms, attempts,
       error_message, last_error, created_at, updated_at
  FROM generation_tasks WHERE id=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var t model.GenerationTask
	var status, step string
	err = row.Scan(
		&t.ID, &t.StoryID, &t.UserID, &status, &t.Progress, &step,
		&t.StartedAt, &t.CompletedAt, &t.DurationMs, &t.Attempts,
		&t.ErrorMessage, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.CurrentStep = model.GenerationStep(step)
	return &t, nil
}

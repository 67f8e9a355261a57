package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/repository"
)

var _ repository.StoryRepository = (*storyRepo)(nil)

type storyRepo struct {
	pool *pgxpool.Pool
	txm  *TxManager
}

func NewStoryRepo(pool *pgxpool.Pool, txm *TxManager) *storyRepo {
	return &storyRepo{pool: pool, txm: txm}
}

func (r *storyRepo) Create(ctx context.Context, tx repository.Tx, s *model.Story) error {
	reqJSON, err := json.Marshal(s.Request)
	if err != nil {
		return fmt.Errorf("marshal story request: %w", err)
	}

	const q = `
INSERT INTO stories (id, user_id, title, request, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6);`

	_, err = execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.Title, reqJSON, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *storyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Story, error) {
	const q = `
SELECT id, user_id, title, request, created_at, updated_at
  FROM stories WHERE id=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var s model.Story
	var reqJSON []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &reqJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(reqJSON, &s.Request); err != nil {
		return nil, fmt.Errorf("unmarshal story request: %w", err)
	}
	return &s, nil
}

// ReplacePages swaps the full page set of a story in one transaction. Pages
// are never written incrementally; a run either lands all of them or none.
func (r *storyRepo) ReplacePages(ctx context.Context, storyID, title string, pages []model.GeneratedPage) error {
	return r.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		tag, err := execSQL(ctx, r.pool, tx,
			`UPDATE stories SET title=$2, updated_at=$3 WHERE id=$1;`,
			storyID, title, time.Now())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		if _, err := execSQL(ctx, r.pool, tx,
			`DELETE FROM story_pages WHERE story_id=$1;`, storyID); err != nil {
			return err
		}

		const ins = `
INSERT INTO story_pages (story_id, position, page_number, text, image_description, characters_in_scene, image_path)
VALUES ($1,$2,$3,$4,$5,$6,$7);`

		for i, p := range pages {
			cast, err := json.Marshal(p.CharactersInScene)
			if err != nil {
				return fmt.Errorf("marshal characters_in_scene: %w", err)
			}
			if _, err := execSQL(ctx, r.pool, tx, ins,
				storyID, i, p.PageNumber.String(), p.Text, p.ImageDescription, cast, p.ImagePath); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadPages returns the stored pages of a story in reading order.
func (r *storyRepo) LoadPages(ctx context.Context, tx repository.Tx, storyID string) ([]model.GeneratedPage, error) {
	const q = `
SELECT page_number, text, image_description, characters_in_scene, image_path
  FROM story_pages WHERE story_id=$1 ORDER BY position;`

	rows, err := pickRows(ctx, r.pool, tx, q, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []model.GeneratedPage
	for rows.Next() {
		var p model.GeneratedPage
		var num string
		var cast []byte
		if err := rows.Scan(&num, &p.Text, &p.ImageDescription, &cast, &p.ImagePath); err != nil {
			return nil, err
		}
		if err := p.PageNumber.UnmarshalJSON([]byte(`"` + num + `"`)); err != nil {
			return nil, fmt.Errorf("stored page number %q: %w", num, err)
		}
		if len(cast) > 0 {
			if err := json.Unmarshal(cast, &p.CharactersInScene); err != nil {
				return nil, fmt.Errorf("unmarshal characters_in_scene: %w", err)
			}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

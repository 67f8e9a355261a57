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

var _ repository.CharacterRepository = (*characterRepo)(nil)

type characterRepo struct {
	pool *pgxpool.Pool
}

func NewCharacterRepo(pool *pgxpool.Pool) *characterRepo {
	return &characterRepo{pool: pool}
}

func (r *characterRepo) FindByUserAndName(ctx context.Context, tx repository.Tx, userID, name string) (*model.Character, error) {
	const q = `
SELECT id, user_id, name, detail, created_at, updated_at
  FROM characters
 WHERE user_id=$1 AND LOWER(name)=LOWER(TRIM($2));`

	row, err := pickRow(ctx, r.pool, tx, q, userID, name)
	if err != nil {
		return nil, err
	}
	return scanCharacter(row)
}

// Save upserts on (user_id, lower(name)) so the same character written twice
// lands on one row regardless of casing.
func (r *characterRepo) Save(ctx context.Context, tx repository.Tx, c *model.Character) error {
	detail, err := json.Marshal(c.Detail)
	if err != nil {
		return fmt.Errorf("marshal character detail: %w", err)
	}
	c.UpdatedAt = time.Now()

	const q = `
INSERT INTO characters (id, user_id, name, detail, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id, LOWER(name)) DO UPDATE
   SET detail=EXCLUDED.detail, updated_at=EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		c.ID, c.UserID, c.Detail.Name, detail, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *characterRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Character, error) {
	const q = `
SELECT id, user_id, name, detail, created_at, updated_at
  FROM characters WHERE user_id=$1 ORDER BY LOWER(name);`

	rows, err := pickRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCharacter(row pgx.Row) (*model.Character, error) {
	var c model.Character
	var name string
	var detail []byte
	err := row.Scan(&c.ID, &c.UserID, &name, &detail, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(detail, &c.Detail); err != nil {
		return nil, fmt.Errorf("unmarshal character detail: %w", err)
	}
	c.Detail.Name = name
	return &c, nil
}

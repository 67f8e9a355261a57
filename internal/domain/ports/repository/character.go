package repository

import (
	"context"

	"storybook-pipeline/internal/domain/model"
)

// -----------------------------
// Character library
// -----------------------------

// CharacterRepository is the user-scoped library of reusable characters.
// Name lookups are case-insensitive so the library never holds duplicates
// that differ only in casing.
type CharacterRepository interface {
	FindByUserAndName(ctx context.Context, tx Tx, userID, name string) (*model.Character, error)
	Save(ctx context.Context, tx Tx, c *model.Character) error
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Character, error)
}

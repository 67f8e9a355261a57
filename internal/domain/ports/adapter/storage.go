package adapter

import (
	"context"

	"storybook-pipeline/internal/domain/model"
)

// ImageStore resolves stable, collision-free paths for generated images and
// persists the bytes behind them. Paths are deterministic per
// (user, story, page) and (user, story, character) so a rerun overwrites
// rather than accumulates.
type ImageStore interface {
	SavePageImage(ctx context.Context, userID, storyID string, page model.PageNumber, data []byte) (string, error)
	SaveCharacterImage(ctx context.Context, userID, storyID, characterName string, data []byte) (string, error)
	Load(ctx context.Context, path string) ([]byte, error)
}

package repository

import (
	"context"

	"storybook-pipeline/internal/domain/model"
)

// -----------------------------
// Stories and pages
// -----------------------------

type StoryRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Story) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Story, error)

	// ReplacePages atomically swaps the story's title and full page set.
	// Pages are never written incrementally; the pipeline calls this once,
	// after validation succeeded and the image stage finished.
	ReplacePages(ctx context.Context, storyID, title string, pages []model.GeneratedPage) error

	// LoadPages returns the stored pages in reading order. Empty, not an
	// error, when no run has finished yet.
	LoadPages(ctx context.Context, tx Tx, storyID string) ([]model.GeneratedPage, error)
}

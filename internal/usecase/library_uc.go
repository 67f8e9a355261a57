package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/repository"
	"storybook-pipeline/internal/infra/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ CharacterLibraryUseCase = (*libraryUC)(nil)

// CharacterLibraryUseCase reconciles characters touched during a run into
// the user's reusable library.
type CharacterLibraryUseCase interface {
	// Merge upserts each record by case-insensitive name. It is idempotent,
	// prefers supplied non-empty fields over stored ones, and never fails
	// the caller: a record that cannot be upserted is logged and skipped.
	// It returns the number of records successfully merged.
	Merge(ctx context.Context, userID string, discovered []model.CharacterDetail) int

	List(ctx context.Context, userID string) ([]*model.Character, error)
}

type libraryUC struct {
	characters repository.CharacterRepository
	log        *zerolog.Logger
	now        func() time.Time
}

func NewCharacterLibraryUseCase(characters repository.CharacterRepository, logger *zerolog.Logger) *libraryUC {
	return &libraryUC{characters: characters, log: logger, now: time.Now}
}

func (l *libraryUC) Merge(ctx context.Context, userID string, discovered []model.CharacterDetail) int {
	defer logging.TraceDuration(l.log, "LibraryUC.Merge")()

	merged := 0
	for _, d := range discovered {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		if err := l.upsertOne(ctx, userID, name, d); err != nil {
			l.log.Error().Err(err).Str("user_id", userID).Str("character", name).
				Msg("character upsert failed, skipping")
			continue
		}
		merged++
	}
	return merged
}

func (l *libraryUC) upsertOne(ctx context.Context, userID, name string, d model.CharacterDetail) error {
	existing, err := l.characters.FindByUserAndName(ctx, repository.NoTX, userID, name)
	switch {
	case err == nil:
		existing.Detail.MergeFrom(d)
		existing.UpdatedAt = l.now()
		return l.characters.Save(ctx, repository.NoTX, existing)
	case errors.Is(err, domain.ErrNotFound):
		now := l.now()
		return l.characters.Save(ctx, repository.NoTX, &model.Character{
			ID:        uuid.NewString(),
			UserID:    userID,
			Detail:    d,
			CreatedAt: now,
			UpdatedAt: now,
		})
	default:
		return err
	}
}

func (l *libraryUC) List(ctx context.Context, userID string) ([]*model.Character, error) {
	return l.characters.ListByUser(ctx, repository.NoTX, userID)
}

//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
)

func seedStory(t *testing.T, repo *storyRepo, id, userID string) *model.Story {
	t.Helper()
	now := time.Now()
	s := &model.Story{
		ID:     id,
		UserID: userID,
		Request: model.StoryRequest{
			Prompt:   "a bear who learns to fish",
			Style:    "watercolor",
			NumPages: 4,
			Ratio:    model.RatioPerPage,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), nil, s); err != nil {
		t.Fatalf("Failed to create story: %v", err)
	}
	return s
}

func TestTaskRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	stories := NewStoryRepo(testPool, NewTxManager(testPool))
	repo := NewTaskRepo(testPool)
	ctx := context.Background()

	t.Run("should perform full lifecycle", func(t *testing.T) {
		cleanup(t)
		seedStory(t, stories, "story-1", "user-1")

		task := model.NewGenerationTask("task-1", "story-1", "user-1")
		if err := repo.Create(ctx, nil, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}

		found, err := repo.FindByID(ctx, nil, "task-1")
		if err != nil {
			t.Fatalf("Failed to find task: %v", err)
		}
		if found.Status != model.TaskStatusPending {
			t.Errorf("Expected status pending, got %s", found.Status)
		}
		if found.StartedAt != nil {
			t.Error("Expected StartedAt to be nil on a fresh task")
		}

		started := time.Now().UTC().Truncate(time.Millisecond)
		found.Status = model.TaskStatusInProgress
		found.Progress = 30
		found.CurrentStep = model.StepGeneratingText
		found.StartedAt = &started
		found.Attempts = 1
		if err := repo.Save(ctx, nil, found); err != nil {
			t.Fatalf("Failed to save task: %v", err)
		}

		updated, err := repo.FindByID(ctx, nil, "task-1")
		if err != nil {
			t.Fatalf("Failed to re-find task: %v", err)
		}
		if updated.Status != model.TaskStatusInProgress || updated.Progress != 30 {
			t.Errorf("Unexpected state after save: %s/%d", updated.Status, updated.Progress)
		}
		if updated.StartedAt == nil || !updated.StartedAt.Equal(started) {
			t.Errorf("Expected StartedAt %v, got %v", started, updated.StartedAt)
		}
		if updated.Attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", updated.Attempts)
		}
	})

	t.Run("should report not found", func(t *testing.T) {
		cleanup(t)

		if _, err := repo.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		ghost := model.NewGenerationTask("missing", "story-x", "user-x")
		if err := repo.Save(ctx, nil, ghost); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound on save, got %v", err)
		}
	})
}

func TestStoryRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewStoryRepo(testPool, NewTxManager(testPool))
	ctx := context.Background()

	t.Run("should replace pages atomically", func(t *testing.T) {
		cleanup(t)
		seedStory(t, repo, "story-1", "user-1")

		desc := "a bear at the riverbank"
		first := []model.GeneratedPage{
			{PageNumber: model.TitlePageNumber(), Text: "Bruno Learns to Fish", ImageDescription: &desc},
			{PageNumber: model.ContentPageNumber(1), Text: "Bruno woke up hungry.", CharactersInScene: []string{"Bruno"}},
		}
		if err := repo.ReplacePages(ctx, "story-1", "Bruno Learns to Fish", first); err != nil {
			t.Fatalf("Failed to replace pages: %v", err)
		}

		second := []model.GeneratedPage{
			{PageNumber: model.TitlePageNumber(), Text: "Bruno's Big Catch", ImageDescription: &desc},
		}
		if err := repo.ReplacePages(ctx, "story-1", "Bruno's Big Catch", second); err != nil {
			t.Fatalf("Failed to replace pages a second time: %v", err)
		}

		pages, err := repo.LoadPages(ctx, nil, "story-1")
		if err != nil {
			t.Fatalf("Failed to load pages: %v", err)
		}
		if len(pages) != 1 {
			t.Fatalf("Expected the old pages to be gone, got %d pages", len(pages))
		}
		if !pages[0].PageNumber.IsTitle {
			t.Error("Expected the remaining page to be the title page")
		}

		s, err := repo.FindByID(ctx, nil, "story-1")
		if err != nil {
			t.Fatalf("Failed to find story: %v", err)
		}
		if s.Title != "Bruno's Big Catch" {
			t.Errorf("Expected updated title, got %q", s.Title)
		}
	})

	t.Run("should fail page replacement for an unknown story", func(t *testing.T) {
		cleanup(t)

		err := repo.ReplacePages(ctx, "missing", "Nope", nil)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestCharacterRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewCharacterRepo(testPool)
	ctx := context.Background()

	t.Run("should upsert case-insensitively", func(t *testing.T) {
		cleanup(t)

		now := time.Now()
		c := &model.Character{
			ID:        "char-1",
			UserID:    "user-1",
			Detail:    model.CharacterDetail{Name: "Bruno", Age: "5"},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Save(ctx, nil, c); err != nil {
			t.Fatalf("Failed to save character: %v", err)
		}

		// Same name in a different casing must land on the same row.
		c2 := &model.Character{
			ID:        "char-2",
			UserID:    "user-1",
			Detail:    model.CharacterDetail{Name: "bruno", Clothing: "red scarf"},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Save(ctx, nil, c2); err != nil {
			t.Fatalf("Failed to upsert character: %v", err)
		}

		all, err := repo.ListByUser(ctx, nil, "user-1")
		if err != nil {
			t.Fatalf("Failed to list characters: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("Expected a single deduplicated character, got %d", len(all))
		}

		found, err := repo.FindByUserAndName(ctx, nil, "user-1", "BRUNO")
		if err != nil {
			t.Fatalf("Failed to find character by name: %v", err)
		}
		if found.Detail.Clothing != "red scarf" {
			t.Errorf("Expected upserted detail, got %+v", found.Detail)
		}
	})

	t.Run("should scope the library per user", func(t *testing.T) {
		cleanup(t)

		now := time.Now()
		for _, c := range []*model.Character{
			{ID: "a", UserID: "user-1", Detail: model.CharacterDetail{Name: "Bruno"}, CreatedAt: now, UpdatedAt: now},
			{ID: "b", UserID: "user-2", Detail: model.CharacterDetail{Name: "Bruno"}, CreatedAt: now, UpdatedAt: now},
		} {
			if err := repo.Save(ctx, nil, c); err != nil {
				t.Fatalf("Failed to save character: %v", err)
			}
		}

		if _, err := repo.FindByUserAndName(ctx, nil, "user-3", "Bruno"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for a foreign user, got %v", err)
		}
	})
}

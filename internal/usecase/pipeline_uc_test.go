package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/adapter"
	"storybook-pipeline/internal/infra/retry"
)

type pipelineHarness struct {
	tasks    *memTaskRepo
	stories  *memStoryRepo
	chars    *memCharacterRepo
	tracker  *trackerUC
	textGen  *fakeTextGen
	imageGen *fakeImageGen
	store    *fakeStore
	uc       StoryPipelineUseCase
}

func newPipelineHarness(raw []byte) *pipelineHarness {
	h := &pipelineHarness{
		tasks:    newMemTaskRepo(),
		stories:  newMemStoryRepo(),
		chars:    newMemCharacterRepo(),
		textGen:  &fakeTextGen{raw: raw},
		imageGen: &fakeImageGen{},
		store:    newFakeStore(),
	}
	h.tracker = NewTaskTrackerUseCase(h.tasks, newLogger())
	library := NewCharacterLibraryUseCase(h.chars, newLogger())
	h.uc = NewStoryPipelineUseCase(
		h.tracker, h.stories, library, h.textGen, h.imageGen, h.store,
		retry.Policy{MaxAttempts: 2, BaseDelay: 0}, newLogger(),
	)
	return h
}

func (h *pipelineHarness) newTask(t *testing.T) *model.GenerationTask {
	t.Helper()
	task, err := h.tracker.Create(context.Background(), "story-1", "user-1")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return task
}

// storyJSON builds a document in the shape the text service emits: a cover
// page plus n content pages, every content page illustrated.
func storyJSON(t *testing.T, title string, n int, extraCast ...string) []byte {
	t.Helper()
	type page map[string]interface{}
	pages := []page{{
		"Page_number":         "Title",
		"Text":                title,
		"Image_description":   "the cover",
		"Characters_in_scene": []string{"Bruno"},
	}}
	for i := 1; i <= n; i++ {
		cast := []string{"Bruno"}
		if i == n {
			cast = append(cast, extraCast...)
		}
		pages = append(pages, page{
			"Page_number":         i,
			"Text":                "Something happens.",
			"Image_description":   "a scene",
			"Characters_in_scene": cast,
		})
	}
	raw, err := json.Marshal(map[string]interface{}{"Title": title, "Pages": pages})
	if err != nil {
		t.Fatalf("marshal story: %v", err)
	}
	return raw
}

func baseRequest() model.StoryRequest {
	return model.StoryRequest{
		Prompt:     "a bear who learns to fish",
		Style:      "watercolor",
		NumPages:   2,
		Ratio:      model.RatioPerPage,
		Characters: []model.CharacterDetail{{Name: "Bruno", Age: "5"}},
	}
}

func TestPipeline_HappyPath(t *testing.T) {
	h := newPipelineHarness(storyJSON(t, "Bruno Learns to Fish", 2, "Luna"))
	task := h.newTask(t)
	ctx := context.Background()

	if err := h.uc.Run(ctx, task.ID, "story-1", "user-1", baseRequest()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	got, _ := h.tracker.Get(ctx, task.ID)
	if got.Status != model.TaskStatusCompleted || got.Progress != 100 {
		t.Errorf("want completed/100, got %s/%d", got.Status, got.Progress)
	}
	if got.CurrentStep != model.StepFinalizing {
		t.Errorf("want finalizing step, got %s", got.CurrentStep)
	}
	if got.StartedAt == nil || got.CompletedAt == nil || got.DurationMs == nil {
		t.Error("run timestamps should be set on completion")
	}
	if got.ErrorMessage != "" {
		t.Errorf("clean run should carry no error message, got %q", got.ErrorMessage)
	}

	pages, _ := h.stories.LoadPages(ctx, nil, "story-1")
	if len(pages) != 3 {
		t.Fatalf("want cover + 2 pages persisted, got %d", len(pages))
	}
	for _, p := range pages {
		if p.ImagePath == nil {
			t.Errorf("page %s should have an image path", p.PageNumber)
		}
	}
	s, _ := h.stories.FindByID(ctx, nil, "story-1")
	if s.Title != "Bruno Learns to Fish" {
		t.Errorf("title not persisted, got %q", s.Title)
	}

	// Library holds the request character (with its reference image) and the
	// one the story introduced.
	all, _ := h.chars.ListByUser(ctx, nil, "user-1")
	if len(all) != 2 {
		t.Fatalf("want 2 library entries, got %d", len(all))
	}
	byName := map[string]model.CharacterDetail{}
	for _, c := range all {
		byName[strings.ToLower(c.Detail.Name)] = c.Detail
	}
	if byName["bruno"].ReferenceImagePath == "" {
		t.Error("request character should carry its reference image path")
	}
	if _, ok := byName["luna"]; !ok {
		t.Error("story-discovered character should land in the library")
	}
}

func TestPipeline_ContractViolationFailsRun(t *testing.T) {
	// Page 2 has an empty Text, which the contract rejects.
	raw := []byte(`{
		"Title": "Broken",
		"Pages": [
			{"Page_number": "Title", "Text": "Broken", "Image_description": "cover", "Characters_in_scene": []},
			{"Page_number": 1, "Text": "ok", "Image_description": "scene", "Characters_in_scene": []},
			{"Page_number": 2, "Text": "", "Image_description": "scene", "Characters_in_scene": []}
		]
	}`)
	h := newPipelineHarness(raw)
	task := h.newTask(t)
	ctx := context.Background()

	err := h.uc.Run(ctx, task.ID, "story-1", "user-1", baseRequest())
	if err == nil {
		t.Fatal("Run() should fail on a contract violation")
	}
	if !strings.Contains(err.Error(), "content contract violation") {
		t.Errorf("error should name the contract, got %v", err)
	}

	got, _ := h.tracker.Get(ctx, task.ID)
	if got.Status != model.TaskStatusFailed {
		t.Errorf("want failed, got %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "content contract violation") {
		t.Errorf("task should carry the violation, got %q", got.ErrorMessage)
	}
	if got.LastError != got.ErrorMessage {
		t.Errorf("LastError should mirror the failure, got %q", got.LastError)
	}
	if h.stories.replaced != 0 {
		t.Error("nothing may be persisted when validation fails")
	}
}

func TestPipeline_TextGenerationErrorFailsRun(t *testing.T) {
	h := newPipelineHarness(nil)
	h.textGen.err = errors.New("provider down")
	task := h.newTask(t)
	ctx := context.Background()

	err := h.uc.Run(ctx, task.ID, "story-1", "user-1", baseRequest())
	if err == nil || !strings.Contains(err.Error(), "text generation") {
		t.Fatalf("want text generation failure, got %v", err)
	}

	got, _ := h.tracker.Get(ctx, task.ID)
	if got.Status != model.TaskStatusFailed {
		t.Errorf("want failed, got %s", got.Status)
	}
	if h.stories.replaced != 0 {
		t.Error("nothing may be persisted when text generation fails")
	}
}

func TestPipeline_ExhaustedPageImagesDegrade(t *testing.T) {
	h := newPipelineHarness(storyJSON(t, "No Pictures", 2))
	// Provider answers but never yields an image: the soft failure that is
	// retried and then degraded, never fatal.
	h.imageGen.GenerateFunc = func(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
		return nil, nil
	}
	task := h.newTask(t)
	ctx := context.Background()

	if err := h.uc.Run(ctx, task.ID, "story-1", "user-1", baseRequest()); err != nil {
		t.Fatalf("degraded run must still complete, got %v", err)
	}

	got, _ := h.tracker.Get(ctx, task.ID)
	if got.Status != model.TaskStatusCompleted || got.Progress != 100 {
		t.Errorf("want completed/100, got %s/%d", got.Status, got.Progress)
	}
	want := "Completed with 3 page image(s) missing due to generation failures"
	if got.ErrorMessage != want {
		t.Errorf("want %q, got %q", want, got.ErrorMessage)
	}
	if got.LastError != "" {
		t.Errorf("degradation is not a failure, LastError should be empty, got %q", got.LastError)
	}

	pages, _ := h.stories.LoadPages(ctx, nil, "story-1")
	if len(pages) != 3 {
		t.Fatalf("want all pages persisted, got %d", len(pages))
	}
	for _, p := range pages {
		if p.ImagePath != nil {
			t.Errorf("page %s should have no image path", p.PageNumber)
		}
	}

	// One reference-image shot for the request character, then two attempts
	// per illustrated page (cover + 2 content pages).
	if calls := h.imageGen.callCount(); calls != 1+3*2 {
		t.Errorf("want 7 generator calls, got %d", calls)
	}
}

func TestPipeline_ImageProviderErrorIsFatal(t *testing.T) {
	h := newPipelineHarness(storyJSON(t, "Crash", 1))
	h.imageGen.GenerateFunc = func(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
		return nil, errors.New("provider 500")
	}
	task := h.newTask(t)
	ctx := context.Background()

	err := h.uc.Run(ctx, task.ID, "story-1", "user-1", baseRequest())
	if err == nil || !strings.Contains(err.Error(), "page Title image") {
		t.Fatalf("want fatal page image error, got %v", err)
	}

	got, _ := h.tracker.Get(ctx, task.ID)
	if got.Status != model.TaskStatusFailed {
		t.Errorf("want failed, got %s", got.Status)
	}
	if h.stories.replaced != 0 {
		t.Error("nothing may be persisted after a fatal image error")
	}
}

func TestPipeline_MissingTaskAborts(t *testing.T) {
	h := newPipelineHarness(storyJSON(t, "Ghost", 1))

	err := h.uc.Run(context.Background(), "no-such-task", "story-1", "user-1", baseRequest())
	if err == nil {
		t.Fatal("Run() should fail when the task record is gone")
	}
}

func TestPipeline_PerTwoPagesRespectsNullImages(t *testing.T) {
	raw := []byte(`{
		"Title": "Alternating",
		"Pages": [
			{"Page_number": "Title", "Text": "Alternating", "Image_description": "cover", "Characters_in_scene": []},
			{"Page_number": 1, "Text": "quiet page", "Image_description": null, "Characters_in_scene": []},
			{"Page_number": 2, "Text": "picture page", "Image_description": "a scene", "Characters_in_scene": []}
		]
	}`)
	h := newPipelineHarness(raw)
	task := h.newTask(t)
	ctx := context.Background()

	req := baseRequest()
	req.Ratio = model.RatioPerTwoPages
	req.Characters = nil

	if err := h.uc.Run(ctx, task.ID, "story-1", "user-1", req); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	pages, _ := h.stories.LoadPages(ctx, nil, "story-1")
	if len(pages) != 3 {
		t.Fatalf("want 3 pages, got %d", len(pages))
	}
	if pages[1].ImagePath != nil {
		t.Error("odd page must stay without an image")
	}
	if pages[0].ImagePath == nil || pages[2].ImagePath == nil {
		t.Error("cover and even page should get images")
	}
}

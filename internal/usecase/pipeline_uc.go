package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/contract"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/adapter"
	"storybook-pipeline/internal/domain/ports/repository"
	"storybook-pipeline/internal/infra/logging"
	"storybook-pipeline/internal/infra/metrics"
	"storybook-pipeline/internal/infra/retry"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StoryPipelineUseCase = (*pipelineUC)(nil)

// StoryPipelineUseCase drives one story-generation run end to end:
// character reference images, story text, per-page illustrations, and the
// final atomic persistence of the result. Task state is updated at every
// stage so callers can poll.
type StoryPipelineUseCase interface {
	// Run executes the full pipeline for the task. It never leaves the task
	// in a non-terminal state: any failure marks it failed with the error
	// message. The returned error reports what the run was marked failed
	// with, for the dispatcher's log.
	Run(ctx context.Context, taskID, storyID, userID string, req model.StoryRequest) error
}

type pipelineUC struct {
	tracker  TaskTrackerUseCase
	stories  repository.StoryRepository
	library  CharacterLibraryUseCase
	textGen  adapter.TextGenerator
	imageGen adapter.ImageGenerator
	store    adapter.ImageStore
	policy   retry.Policy
	log      *zerolog.Logger
}

func NewStoryPipelineUseCase(
	tracker TaskTrackerUseCase,
	stories repository.StoryRepository,
	library CharacterLibraryUseCase,
	textGen adapter.TextGenerator,
	imageGen adapter.ImageGenerator,
	store adapter.ImageStore,
	policy retry.Policy,
	logger *zerolog.Logger,
) *pipelineUC {
	return &pipelineUC{
		tracker:  tracker,
		stories:  stories,
		library:  library,
		textGen:  textGen,
		imageGen: imageGen,
		store:    store,
		policy:   policy,
		log:      logger,
	}
}

func (p *pipelineUC) Run(ctx context.Context, taskID, storyID, userID string, req model.StoryRequest) (err error) {
	start := time.Now()
	ctx = logging.WithTaskID(ctx, taskID)
	ctx = logging.WithStoryID(ctx, storyID)
	ctx = logging.WithUserID(ctx, userID)
	log := logging.With(ctx, p.log)

	// Exactly one completion metric per run, whatever happens above.
	defer func() {
		status := "completed"
		if err != nil {
			status = "failed"
		}
		elapsed := time.Since(start)
		metrics.ObserveRunFinished(status, elapsed.Milliseconds())
		log.Info().Str("status", status).Dur("duration", elapsed).Msg("generation run finished")
	}()

	// Single outer failure boundary: anything that escapes a stage marks
	// the task failed once, with the cause.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err != nil {
			log.Error().Err(err).Msg("generation run failed")
			p.markFailed(ctx, taskID, err)
		}
	}()

	return p.runStages(ctx, log, taskID, storyID, userID, req)
}

func (p *pipelineUC) runStages(ctx context.Context, log *zerolog.Logger, taskID, storyID, userID string, req model.StoryRequest) error {
	// Stage 1: Initializing.
	if err := p.checkpoint(ctx, taskID, TaskUpdate{
		Status:      ptr(model.TaskStatusInProgress),
		CurrentStep: ptr(model.StepInitializing),
		Progress:    ptr(0),
	}); err != nil {
		return err
	}
	if err := p.checkpoint(ctx, taskID, TaskUpdate{Progress: ptr(10)}); err != nil {
		return err
	}

	// Stage 2: character reference images, best effort.
	log.Info().Int("characters", len(req.Characters)).Msg("generating character reference images")
	characters, err := p.generateCharacterImages(ctx, log, taskID, storyID, userID, req)
	if err != nil {
		return err
	}

	// Stage 3: story text. Any failure here is fatal: nothing is persisted.
	if err := p.checkpoint(ctx, taskID, TaskUpdate{
		CurrentStep: ptr(model.StepGeneratingText),
		Progress:    ptr(30),
	}); err != nil {
		return err
	}
	log.Info().Msg("generating story text")
	raw, usage, err := p.textGen.GenerateStory(ctx, req, characters)
	if err != nil {
		return fmt.Errorf("text generation: %w", err)
	}
	log.Debug().Int("bytes", len(raw)).Int("tokens", usage.TotalTokens).Msg("story text received")
	content, err := contract.Validate(raw, req.Ratio)
	if err != nil {
		return err
	}
	if err := p.checkpoint(ctx, taskID, TaskUpdate{Progress: ptr(60)}); err != nil {
		return err
	}

	// Stage 4: page illustrations, degrading per page on exhausted retries.
	if err := p.checkpoint(ctx, taskID, TaskUpdate{
		CurrentStep: ptr(model.StepGeneratingPageImages),
	}); err != nil {
		return err
	}
	failedPages, err := p.generatePageImages(ctx, log, taskID, userID, storyID, req.Style, characters, content)
	if err != nil {
		return err
	}

	// Stage 5: finalize. One atomic write of the whole page set.
	if err := p.checkpoint(ctx, taskID, TaskUpdate{
		CurrentStep: ptr(model.StepFinalizing),
		Progress:    ptr(95),
	}); err != nil {
		return err
	}
	if err := p.stories.ReplacePages(ctx, storyID, content.Title, content.Pages); err != nil {
		return fmt.Errorf("persist story pages: %w", err)
	}
	merged := p.library.Merge(ctx, userID, discoveredCharacters(characters, content))
	log.Info().Int("merged", merged).Msg("character library reconciled")

	final := TaskUpdate{
		Status:   ptr(model.TaskStatusCompleted),
		Progress: ptr(100),
	}
	if failedPages > 0 {
		final.ErrorMessage = ptr(fmt.Sprintf(
			"Completed with %d page image(s) missing due to generation failures", failedPages))
	}
	return p.checkpoint(ctx, taskID, final)
}

func (p *pipelineUC) generateCharacterImages(ctx context.Context, log *zerolog.Logger, taskID, storyID, userID string, req model.StoryRequest) (map[string]model.CharacterDetail, error) {
	if err := p.checkpoint(ctx, taskID, TaskUpdate{
		CurrentStep: ptr(model.StepGeneratingCharacterImages),
	}); err != nil {
		return nil, err
	}

	characters := make(map[string]model.CharacterDetail, len(req.Characters))
	total := len(req.Characters)
	for i, c := range req.Characters {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}

		// One shot per character: a character without a usable reference
		// image is still carried forward.
		res, err := p.imageGen.Generate(ctx, adapter.ImageRequest{
			Prompt: characterPrompt(c),
			Style:  req.Style,
		})
		switch {
		case err != nil:
			log.Warn().Err(err).Str("character", c.Name).Msg("reference image generation failed, carrying on without it")
		case res == nil || len(res.Data) == 0:
			log.Warn().Str("character", c.Name).Msg("provider returned no reference image")
		default:
			path, serr := p.store.SaveCharacterImage(ctx, userID, storyID, c.Name, res.Data)
			if serr != nil {
				log.Warn().Err(serr).Str("character", c.Name).Msg("could not store reference image")
			} else {
				c.ReferenceImagePath = path
				c.RevisedPrompt = res.RevisedPrompt
				c.GenerationID = res.GenerationID
			}
		}
		characters[key] = c

		if err := p.checkpoint(ctx, taskID, TaskUpdate{
			Progress: ptr(10 + (i+1)*20/total),
		}); err != nil {
			return nil, err
		}
	}
	return characters, nil
}

func (p *pipelineUC) generatePageImages(ctx context.Context, log *zerolog.Logger, taskID, userID, storyID, style string, characters map[string]model.CharacterDetail, content *model.StoryContent) (int, error) {
	failed := 0
	total := len(content.Pages)
	for i := range content.Pages {
		pg := &content.Pages[i]
		if pg.ImageDescription != nil {
			refs := p.referenceImages(ctx, log, characters, pg.CharactersInScene)

			result, ok, err := retry.Do(ctx, p.policy, metrics.IncPageImageRetry,
				func(ctx context.Context) (*adapter.ImageResult, bool, error) {
					res, err := p.imageGen.Generate(ctx, adapter.ImageRequest{
						Prompt:          *pg.ImageDescription,
						Style:           style,
						ReferenceImages: refs,
					})
					if err != nil {
						return nil, false, err
					}
					if res == nil || len(res.Data) == 0 {
						return nil, false, nil
					}
					return res, true, nil
				})
			if err != nil {
				return failed, fmt.Errorf("page %s image: %w", pg.PageNumber, err)
			}
			if !ok {
				failed++
				log.Warn().Str("page", pg.PageNumber.String()).
					Int("attempts", p.policy.MaxAttempts).
					Msg("image attempts exhausted, keeping page without image")
			} else {
				path, serr := p.store.SavePageImage(ctx, userID, storyID, pg.PageNumber, result.Data)
				if serr != nil {
					return failed, fmt.Errorf("store page %s image: %w", pg.PageNumber, serr)
				}
				pg.ImagePath = &path
			}
		}

		if err := p.checkpoint(ctx, taskID, TaskUpdate{
			Progress: ptr(60 + (i+1)*35/total),
		}); err != nil {
			return failed, err
		}
	}
	metrics.AddPagesDegraded(failed)
	return failed, nil
}

// referenceImages loads the stored reference images of the characters that
// appear in the scene. Load failures degrade to fewer references.
func (p *pipelineUC) referenceImages(ctx context.Context, log *zerolog.Logger, characters map[string]model.CharacterDetail, cast []string) [][]byte {
	var refs [][]byte
	for _, name := range cast {
		c, ok := characters[strings.ToLower(strings.TrimSpace(name))]
		if !ok || c.ReferenceImagePath == "" {
			continue
		}
		data, err := p.store.Load(ctx, c.ReferenceImagePath)
		if err != nil {
			log.Warn().Err(err).Str("character", c.Name).Msg("could not load reference image")
			continue
		}
		refs = append(refs, data)
	}
	return refs
}

func (p *pipelineUC) checkpoint(ctx context.Context, taskID string, upd TaskUpdate) error {
	found, err := p.tracker.Update(ctx, taskID, upd)
	if err != nil {
		return fmt.Errorf("task update: %w", err)
	}
	if !found {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return nil
}

func (p *pipelineUC) markFailed(ctx context.Context, taskID string, cause error) {
	found, err := p.tracker.Update(ctx, taskID, TaskUpdate{
		Status:       ptr(model.TaskStatusFailed),
		ErrorMessage: ptr(cause.Error()),
	})
	if err != nil || !found {
		p.log.Error().Err(err).Bool("found", found).Str("task_id", taskID).
			Msg("could not mark task failed")
	}
}

// characterPrompt builds the reference-sheet prompt for one character.
func characterPrompt(c model.CharacterDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Character reference sheet for %q.", c.Name)
	if c.Age != "" {
		fmt.Fprintf(&b, " Age: %s.", c.Age)
	}
	if c.Gender != "" {
		fmt.Fprintf(&b, " Gender: %s.", c.Gender)
	}
	if c.PhysicalDescription != "" {
		fmt.Fprintf(&b, " Appearance: %s.", c.PhysicalDescription)
	}
	if c.Clothing != "" {
		fmt.Fprintf(&b, " Clothing: %s.", c.Clothing)
	}
	if c.KeyTraits != "" {
		fmt.Fprintf(&b, " Traits: %s.", c.KeyTraits)
	}
	if c.Background != "" {
		fmt.Fprintf(&b, " Background: %s.", c.Background)
	}
	return b.String()
}

// discoveredCharacters collects everything worth merging into the library:
// the request characters (now possibly holding reference images) plus any
// name the story introduced on its own.
func discoveredCharacters(characters map[string]model.CharacterDetail, content *model.StoryContent) []model.CharacterDetail {
	out := make([]model.CharacterDetail, 0, len(characters))
	seen := make(map[string]bool, len(characters))
	for key, c := range characters {
		out = append(out, c)
		seen[key] = true
	}
	for _, pg := range content.Pages {
		for _, name := range pg.CharactersInScene {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, model.CharacterDetail{Name: strings.TrimSpace(name)})
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

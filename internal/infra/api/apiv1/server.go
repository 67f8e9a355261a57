package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/repository"
	"storybook-pipeline/internal/usecase"
)

// Dispatcher is the slice of the worker layer the API needs: accept a run or
// refuse it.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID, storyID, userID string, req model.StoryRequest) error
}

// Server exposes the story-generation API: submit a story, poll its task,
// read the finished pages, browse the character library.
type Server struct {
	tracker    usecase.TaskTrackerUseCase
	library    usecase.CharacterLibraryUseCase
	stories    repository.StoryRepository
	dispatcher Dispatcher
}

func NewServer(
	tracker usecase.TaskTrackerUseCase,
	library usecase.CharacterLibraryUseCase,
	stories repository.StoryRepository,
	dispatcher Dispatcher,
) *Server {
	return &Server{
		tracker:    tracker,
		library:    library,
		stories:    stories,
		dispatcher: dispatcher,
	}
}

// RegisterAPIV1 attaches all v1 routes to the router.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/stories", s.createStory)
		r.Get("/stories/{storyID}", s.getStory)
		r.Get("/tasks/{taskID}", s.getTask)
		r.Post("/tasks/{taskID}/retry", s.retryTask)
		r.Get("/characters", s.listCharacters)
	})
}

// ---- request/response shapes ----

type CreateStoryRequest struct {
	UserID     string                   `json:"user_id"`
	Prompt     string                   `json:"prompt"`
	Style      string                   `json:"style,omitempty"`
	Language   string                   `json:"language,omitempty"`
	NumPages   int                      `json:"num_pages"`
	Ratio      model.WordToPictureRatio `json:"word_to_picture_ratio"`
	Characters []model.CharacterDetail  `json:"characters,omitempty"`
}

type CreateStoryResponse struct {
	TaskID  string `json:"task_id"`
	StoryID string `json:"story_id"`
}

type TaskResponse struct {
	ID           string     `json:"id"`
	StoryID      string     `json:"story_id"`
	UserID       string     `json:"user_id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"current_step"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type StoryResponse struct {
	ID     string                `json:"id"`
	UserID string                `json:"user_id"`
	Title  string                `json:"title"`
	Pages  []model.GeneratedPage `json:"pages"`
}

type CharacterResponse struct {
	ID     string                `json:"id"`
	Detail model.CharacterDetail `json:"detail"`
}

// ---- handlers ----

func (s *Server) createStory(w http.ResponseWriter, r *http.Request) {
	var in CreateStoryRequest
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "missing body")
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "user_id is required")
		return
	}

	req := model.StoryRequest{
		Prompt:     in.Prompt,
		Style:      in.Style,
		Language:   in.Language,
		NumPages:   in.NumPages,
		Ratio:      in.Ratio,
		Characters: in.Characters,
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	now := time.Now()
	story := &model.Story{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stories.Create(r.Context(), nil, story); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.tracker.Create(r.Context(), story.ID, in.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), task.ID, story.ID, in.UserID, req); err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "a run for this task is already in flight")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, CreateStoryResponse{TaskID: task.ID, StoryID: story.ID})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.tracker.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

// retryTask restarts a failed task. Anything still running answers 409, a
// completed task 422; the run itself is the same pipeline as the first pass.
func (s *Server) retryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.tracker.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch task.Status {
	case model.TaskStatusFailed:
	case model.TaskStatusCompleted:
		writeError(w, http.StatusUnprocessableEntity, "task already completed")
		return
	default:
		writeError(w, http.StatusConflict, "a run for this task is already in flight")
		return
	}

	story, err := s.stories.FindByID(r.Context(), nil, task.StoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), task.ID, story.ID, task.UserID, story.Request); err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "a run for this task is already in flight")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, taskToResponse(task))
}

func (s *Server) getStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	story, err := s.stories.FindByID(r.Context(), nil, storyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := s.stories.LoadPages(r.Context(), nil, storyID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if pages == nil {
		pages = []model.GeneratedPage{}
	}
	writeJSON(w, http.StatusOK, StoryResponse{
		ID:     story.ID,
		UserID: story.UserID,
		Title:  story.Title,
		Pages:  pages,
	})
}

func (s *Server) listCharacters(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "user_id is required")
		return
	}
	chars, err := s.library.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items := make([]CharacterResponse, 0, len(chars))
	for _, c := range chars {
		items = append(items, CharacterResponse{ID: c.ID, Detail: c.Detail})
	}
	writeJSON(w, http.StatusOK, struct {
		Items []CharacterResponse `json:"items"`
	}{Items: items})
}

// ---- helpers ----

func taskToResponse(t *model.GenerationTask) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		StoryID:      t.StoryID,
		UserID:       t.UserID,
		Status:       string(t.Status),
		Progress:     t.Progress,
		CurrentStep:  string(t.CurrentStep),
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		DurationMs:   t.DurationMs,
		Attempts:     t.Attempts,
		ErrorMessage: t.ErrorMessage,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: msg})
}

package model

import "time"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is an end state of a run.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type GenerationStep string

const (
	StepInitializing              GenerationStep = "initializing"
	StepGeneratingCharacterImages GenerationStep = "generating_character_images"
	StepGeneratingText            GenerationStep = "generating_text"
	StepGeneratingPageImages      GenerationStep = "generating_page_images"
	StepFinalizing                GenerationStep = "finalizing"
)

// GenerationTask tracks one story-generation run. It is the record callers
// poll while the pipeline works in the background.
//
// Field semantics:
//   - StartedAt is set exactly once, on the first transition into in_progress.
//   - CompletedAt and DurationMs are set exactly once, on the first transition
//     into completed or failed.
//   - Attempts counts failed->in_progress restarts only.
//   - ErrorMessage survives a completed run (degradation summary); LastError
//     mirrors it on transitions to failed.
type GenerationTask struct {
	ID           string
	StoryID      string
	UserID       string
	Status       TaskStatus
	Progress     int // 0..100
	CurrentStep  GenerationStep
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMs   *int64
	Attempts     int
	ErrorMessage string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewGenerationTask(id, storyID, userID string) *GenerationTask {
	now := time.Now()
	return &GenerationTask{
		ID:          id,
		StoryID:     storyID,
		UserID:      userID,
		Status:      TaskStatusPending,
		Progress:    0,
		CurrentStep: StepInitializing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/adapter"
	"storybook-pipeline/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// memTaskRepo is a small in-memory implementation used by unit tests.
type memTaskRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.GenerationTask
	saveErr error
	findErr error
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{store: make(map[string]*model.GenerationTask)}
}

func (m *memTaskRepo) Create(ctx context.Context, tx repository.Tx, t *model.GenerationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *memTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationTask, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) Save(ctx context.Context, tx repository.Tx, t *model.GenerationTask) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[t.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

// memStoryRepo records what the pipeline persists.
type memStoryRepo struct {
	mu         sync.RWMutex
	stories    map[string]*model.Story
	pages      map[string][]model.GeneratedPage
	replaceErr error
	replaced   int // ReplacePages call count
}

func newMemStoryRepo() *memStoryRepo {
	return &memStoryRepo{
		stories: make(map[string]*model.Story),
		pages:   make(map[string][]model.GeneratedPage),
	}
}

func (m *memStoryRepo) Create(ctx context.Context, tx repository.Tx, s *model.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stories[s.ID] = &cp
	return nil
}

func (m *memStoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStoryRepo) ReplacePages(ctx context.Context, storyID, title string, pages []model.GeneratedPage) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced++
	if s, ok := m.stories[storyID]; ok {
		s.Title = title
	} else {
		m.stories[storyID] = &model.Story{ID: storyID, Title: title}
	}
	m.pages[storyID] = append([]model.GeneratedPage(nil), pages...)
	return nil
}

func (m *memStoryRepo) LoadPages(ctx context.Context, tx repository.Tx, storyID string) ([]model.GeneratedPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.GeneratedPage(nil), m.pages[storyID]...), nil
}

// memCharacterRepo keys entries by lowered name per user, the way the real
// repo's unique index does.
type memCharacterRepo struct {
	mu      sync.RWMutex
	store   map[string]map[string]*model.Character // userID -> lower(name) -> char
	saveErr error
}

func newMemCharacterRepo() *memCharacterRepo {
	return &memCharacterRepo{store: make(map[string]map[string]*model.Character)}
}

func (m *memCharacterRepo) FindByUserAndName(ctx context.Context, tx repository.Tx, userID, name string) (*model.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[userID][strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCharacterRepo) Save(ctx context.Context, tx repository.Tx, c *model.Character) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store[c.UserID] == nil {
		m.store[c.UserID] = make(map[string]*model.Character)
	}
	cp := *c
	m.store[c.UserID][strings.ToLower(strings.TrimSpace(c.Detail.Name))] = &cp
	return nil
}

func (m *memCharacterRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Character, 0, len(m.store[userID]))
	for _, c := range m.store[userID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// fakeTextGen returns a canned document.
type fakeTextGen struct {
	raw   []byte
	usage adapter.Usage
	err   error
	calls int
}

func (f *fakeTextGen) GenerateStory(ctx context.Context, req model.StoryRequest, characters map[string]model.CharacterDetail) ([]byte, adapter.Usage, error) {
	f.calls++
	return f.raw, f.usage, f.err
}

// fakeImageGen delegates to GenerateFunc and counts calls.
type fakeImageGen struct {
	mu           sync.Mutex
	calls        int
	GenerateFunc func(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error)
}

func (f *fakeImageGen) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, req)
	}
	return &adapter.ImageResult{Data: []byte("img"), GenerationID: "fake"}, nil
}

func (f *fakeImageGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore keeps bytes in memory under deterministic mem:// paths.
type fakeStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
}

func newFakeStore() *fakeStore { return &fakeStore{files: make(map[string][]byte)} }

func (s *fakeStore) SavePageImage(ctx context.Context, userID, storyID string, page model.PageNumber, data []byte) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	path := fmt.Sprintf("mem://%s/%s/pages/page_%s.png", userID, storyID, strings.ToLower(page.String()))
	s.mu.Lock()
	s.files[path] = data
	s.mu.Unlock()
	return path, nil
}

func (s *fakeStore) SaveCharacterImage(ctx context.Context, userID, storyID, characterName string, data []byte) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	path := fmt.Sprintf("mem://%s/%s/characters/%s.png", userID, storyID, strings.ToLower(characterName))
	s.mu.Lock()
	s.files[path] = data
	s.mu.Unlock()
	return path, nil
}

func (s *fakeStore) Load(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

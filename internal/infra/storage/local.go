package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storybook-pipeline/internal/domain"
	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/adapter"
)

var _ adapter.ImageStore = (*LocalImageStore)(nil)

// LocalImageStore keeps generated images on the local filesystem under a
// single root. Paths are deterministic per user/story/page so a rerun of the
// same story overwrites its old images instead of accumulating copies.
type LocalImageStore struct {
	root string
}

func NewLocalImageStore(root string) (*LocalImageStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is empty: %w", domain.ErrInvalidArgument)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalImageStore{root: abs}, nil
}

func (s *LocalImageStore) SavePageImage(ctx context.Context, userID, storyID string, page model.PageNumber, data []byte) (string, error) {
	name := "page_" + strings.ToLower(page.String()) + ".png"
	rel := filepath.Join(slug(userID), slug(storyID), "pages", name)
	return s.write(rel, data)
}

func (s *LocalImageStore) SaveCharacterImage(ctx context.Context, userID, storyID, characterName string, data []byte) (string, error) {
	rel := filepath.Join(slug(userID), slug(storyID), "characters", slug(characterName)+".png")
	return s.write(rel, data)
}

// Load reads image bytes back by the path a Save call returned. Paths outside
// the store root are rejected.
func (s *LocalImageStore) Load(ctx context.Context, path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("path %q outside storage root: %w", path, domain.ErrInvalidArgument)
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *LocalImageStore) write(rel string, data []byte) (string, error) {
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return full, nil
}

// slug flattens an identifier into a single safe path segment.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}

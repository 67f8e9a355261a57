package model

import (
	"strings"
	"time"
)

// CharacterDetail describes one story character. All fields except Name are
// optional; empty means unset. ReferenceImagePath points at the generated
// reference image once one exists, RevisedPrompt and GenerationID record the
// image provider's provenance.
type CharacterDetail struct {
	Name                string `json:"name"`
	Age                 string `json:"age,omitempty"`
	Gender              string `json:"gender,omitempty"`
	PhysicalDescription string `json:"physical_description,omitempty"`
	Clothing            string `json:"clothing,omitempty"`
	KeyTraits           string `json:"key_traits,omitempty"`
	Background          string `json:"background,omitempty"`
	ReferenceImagePath  string `json:"reference_image_path,omitempty"`
	RevisedPrompt       string `json:"revised_prompt,omitempty"`
	GenerationID        string `json:"generation_id,omitempty"`
}

// SameName matches character names case-insensitively, the way the library
// deduplicates entries.
func (c CharacterDetail) SameName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name))
}

// MergeFrom overlays incoming non-empty fields onto c, keeping whatever the
// incoming record leaves unset. Name is identity and never overwritten.
func (c *CharacterDetail) MergeFrom(in CharacterDetail) {
	if in.Age != "" {
		c.Age = in.Age
	}
	if in.Gender != "" {
		c.Gender = in.Gender
	}
	if in.PhysicalDescription != "" {
		c.PhysicalDescription = in.PhysicalDescription
	}
	if in.Clothing != "" {
		c.Clothing = in.Clothing
	}
	if in.KeyTraits != "" {
		c.KeyTraits = in.KeyTraits
	}
	if in.Background != "" {
		c.Background = in.Background
	}
	if in.ReferenceImagePath != "" {
		c.ReferenceImagePath = in.ReferenceImagePath
	}
	if in.RevisedPrompt != "" {
		c.RevisedPrompt = in.RevisedPrompt
	}
	if in.GenerationID != "" {
		c.GenerationID = in.GenerationID
	}
}

// Character is a library entry: a reusable, user-scoped character.
type Character struct {
	ID        string
	UserID    string
	Detail    CharacterDetail
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Package contract validates the text service's story JSON before anything
// downstream trusts it. Validation is pure: the only mutation is normalizing
// the title page text to the top-level title.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"storybook-pipeline/internal/domain/model"
)

// Rule identifiers carried by a Violation. Each names the exact contract
// clause that was broken.
const (
	RuleDocument         = "document"
	RuleTopLevelTitle    = "top_level_title"
	RuleTopLevelPages    = "top_level_pages"
	RulePageObject       = "page_object"
	RuleTitlePageNumber  = "title_page_number"
	RuleTitlePageText    = "title_page_text"
	RuleTitlePageImage   = "title_page_image_description"
	RuleTitlePageCast    = "title_page_characters"
	RulePageNumber       = "content_page_number"
	RulePageText         = "content_page_text"
	RulePageCast         = "content_page_characters"
	RulePageImage        = "content_page_image_description"
	RuleImageRatio       = "image_description_ratio"
)

// Violation is the typed rejection for untrusted generation output.
// PageIndex is the position in the Pages array, -1 for top-level rules.
type Violation struct {
	Rule      string
	PageIndex int
	Detail    string
}

func (v *Violation) Error() string {
	if v.PageIndex < 0 {
		return fmt.Sprintf("content contract violation [%s]: %s", v.Rule, v.Detail)
	}
	return fmt.Sprintf("content contract violation [%s] at pages[%d]: %s", v.Rule, v.PageIndex, v.Detail)
}

func violate(rule string, pageIndex int, format string, args ...any) *Violation {
	return &Violation{Rule: rule, PageIndex: pageIndex, Detail: fmt.Sprintf(format, args...)}
}

// rawPage defers field decoding so a bad field is reported against its page
// instead of failing the whole document anonymously.
type rawPage struct {
	PageNumber        json.RawMessage `json:"Page_number"`
	Text              json.RawMessage `json:"Text"`
	ImageDescription  json.RawMessage `json:"Image_description"`
	CharactersInScene json.RawMessage `json:"Characters_in_scene"`
}

// Validate checks raw against the structural contract for the given ratio and
// returns the normalized story. The returned error, when non-nil, is always a
// *Violation.
func Validate(raw []byte, ratio model.WordToPictureRatio) (*model.StoryContent, error) {
	var doc struct {
		Title json.RawMessage   `json:"Title"`
		Pages []json.RawMessage `json:"Pages"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, violate(RuleDocument, -1, "not a JSON object: %v", err)
	}

	title, ok := decodeString(doc.Title)
	if !ok || strings.TrimSpace(title) == "" {
		return nil, violate(RuleTopLevelTitle, -1, "Title must be a non-empty string")
	}
	if len(doc.Pages) == 0 {
		return nil, violate(RuleTopLevelPages, -1, "Pages must be a non-empty list")
	}

	pages := make([]model.GeneratedPage, 0, len(doc.Pages))
	for i, rawPg := range doc.Pages {
		var pg rawPage
		if err := json.Unmarshal(rawPg, &pg); err != nil {
			return nil, violate(RulePageObject, i, "page is not an object: %v", err)
		}
		if i == 0 {
			titlePage, verr := validateTitlePage(pg, title)
			if verr != nil {
				return nil, verr
			}
			pages = append(pages, *titlePage)
			continue
		}
		contentPage, verr := validateContentPage(pg, i, ratio)
		if verr != nil {
			return nil, verr
		}
		pages = append(pages, *contentPage)
	}

	return &model.StoryContent{Title: title, Pages: pages}, nil
}

func validateTitlePage(pg rawPage, title string) (*model.GeneratedPage, *Violation) {
	num, ok := decodePageNumber(pg.PageNumber)
	if !ok || !num.IsTitle {
		return nil, violate(RuleTitlePageNumber, 0, `first page must carry Page_number "Title"`)
	}
	text, ok := decodeString(pg.Text)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, violate(RuleTitlePageText, 0, "title page Text must be a non-empty string")
	}
	desc, ok := decodeString(pg.ImageDescription)
	if !ok || strings.TrimSpace(desc) == "" {
		return nil, violate(RuleTitlePageImage, 0, "title page Image_description (cover prompt) must be a non-empty string")
	}
	cast, ok := decodeStringList(pg.CharactersInScene)
	if !ok {
		return nil, violate(RuleTitlePageCast, 0, "title page Characters_in_scene must be a list of strings")
	}
	// Documented leniency: a title page whose Text drifts from the top-level
	// Title is normalized, not rejected.
	return &model.GeneratedPage{
		PageNumber:        model.TitlePageNumber(),
		Text:              title,
		ImageDescription:  &desc,
		CharactersInScene: cast,
	}, nil
}

func validateContentPage(pg rawPage, index int, ratio model.WordToPictureRatio) (*model.GeneratedPage, *Violation) {
	num, ok := decodePageNumber(pg.PageNumber)
	if !ok || num.IsTitle || num.N < 1 {
		return nil, violate(RulePageNumber, index, "Page_number must be an integer >= 1 or a numeric string")
	}
	text, ok := decodeString(pg.Text)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, violate(RulePageText, index, "page %d Text must be a non-empty string", num.N)
	}
	cast, ok := decodeStringList(pg.CharactersInScene)
	if !ok {
		return nil, violate(RulePageCast, index, "page %d Characters_in_scene must be a list of strings", num.N)
	}
	if pg.ImageDescription == nil {
		return nil, violate(RulePageImage, index, "page %d must include Image_description (string or null)", num.N)
	}

	var desc *string
	if !isJSONNull(pg.ImageDescription) {
		s, ok := decodeString(pg.ImageDescription)
		if !ok {
			return nil, violate(RulePageImage, index, "page %d Image_description must be a string or null", num.N)
		}
		desc = &s
	}

	if ratio.WantsImage(num.N) {
		if desc == nil || strings.TrimSpace(*desc) == "" {
			return nil, violate(RuleImageRatio, index,
				"page %d must have a non-empty Image_description under ratio %s", num.N, ratio)
		}
	} else if desc != nil {
		return nil, violate(RuleImageRatio, index,
			"page %d must have a null Image_description under ratio %s", num.N, ratio)
	}

	return &model.GeneratedPage{
		PageNumber:        num,
		Text:              text,
		ImageDescription:  desc,
		CharactersInScene: cast,
	}, nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	if raw == nil || isJSONNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeStringList(raw json.RawMessage) ([]string, bool) {
	if raw == nil || isJSONNull(raw) {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	if out == nil {
		out = []string{}
	}
	return out, true
}

func decodePageNumber(raw json.RawMessage) (model.PageNumber, bool) {
	if raw == nil || isJSONNull(raw) {
		return model.PageNumber{}, false
	}
	var n model.PageNumber
	if err := json.Unmarshal(raw, &n); err != nil {
		return model.PageNumber{}, false
	}
	return n, true
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

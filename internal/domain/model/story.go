package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WordToPictureRatio controls which content pages carry an illustration.
type WordToPictureRatio string

const (
	RatioPerPage      WordToPictureRatio = "PER_PAGE"
	RatioPerParagraph WordToPictureRatio = "PER_PARAGRAPH"
	RatioPerTwoPages  WordToPictureRatio = "PER_TWO_PAGES"
)

func (r WordToPictureRatio) Valid() bool {
	switch r {
	case RatioPerPage, RatioPerParagraph, RatioPerTwoPages:
		return true
	}
	return false
}

// WantsImage reports whether a content page with the given number must carry
// an image description under this ratio.
func (r WordToPictureRatio) WantsImage(pageNumber int) bool {
	if r == RatioPerTwoPages {
		return pageNumber%2 == 0
	}
	return true
}

// PageNumber is either the cover sentinel "Title" or a positive content page
// index. The text service emits it as the string "Title", an integer, or an
// integer-valued string; all three forms decode.
type PageNumber struct {
	IsTitle bool
	N       int
}

func TitlePageNumber() PageNumber        { return PageNumber{IsTitle: true} }
func ContentPageNumber(n int) PageNumber { return PageNumber{N: n} }

func (p PageNumber) String() string {
	if p.IsTitle {
		return "Title"
	}
	return strconv.Itoa(p.N)
}

func (p PageNumber) MarshalJSON() ([]byte, error) {
	if p.IsTitle {
		return json.Marshal("Title")
	}
	return json.Marshal(p.N)
}

func (p *PageNumber) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n < 1 {
			return fmt.Errorf("page number must be >= 1, got %d", n)
		}
		*p = PageNumber{N: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("page number must be \"Title\", an integer or a numeric string")
	}
	if strings.EqualFold(strings.TrimSpace(s), "Title") {
		*p = PageNumber{IsTitle: true}
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("page number %q is neither \"Title\" nor a positive integer", s)
	}
	*p = PageNumber{N: n}
	return nil
}

// GeneratedPage is one page of the finished storybook. ImagePath stays nil
// when the page has no image description or every generation attempt failed.
type GeneratedPage struct {
	PageNumber        PageNumber `json:"page_number"`
	Text              string     `json:"text"`
	ImageDescription  *string    `json:"image_description"`
	CharactersInScene []string   `json:"characters_in_scene"`
	ImagePath         *string    `json:"image_path,omitempty"`
}

// StoryContent is the validated, normalized output of the text service:
// a title plus the title page followed by the content pages.
type StoryContent struct {
	Title string          `json:"title"`
	Pages []GeneratedPage `json:"pages"`
}

// StoryRequest is what the user asked for. The character seeds are merged
// into the user's library once the run finishes.
type StoryRequest struct {
	Prompt     string             `json:"prompt"`
	Style      string             `json:"style"`
	Language   string             `json:"language"`
	NumPages   int                `json:"num_pages"`
	Ratio      WordToPictureRatio `json:"word_to_picture_ratio"`
	Characters []CharacterDetail  `json:"characters"`
}

func (r *StoryRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if !r.Ratio.Valid() {
		return fmt.Errorf("unknown word_to_picture_ratio %q", r.Ratio)
	}
	return nil
}

// Story is the persistent record the finished pages attach to.
type Story struct {
	ID        string
	UserID    string
	Title     string
	Request   StoryRequest
	CreatedAt time.Time
	UpdatedAt time.Time
}

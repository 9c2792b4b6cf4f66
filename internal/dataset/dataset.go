package dataset

import "context"

// Question is one graded benchmark item. Immutable once loaded.
type Question struct {
	ID           string   `json:"id"`
	Category     string   `json:"category,omitempty"`
	Prompt       string   `json:"question"`
	Options      []string `json:"options,omitempty"`
	Answer       string   `json:"answer"`
	Rationale    string   `json:"rationale,omitempty"`
	Judged       bool     `json:"judged,omitempty"`
	MaxLatencyMs int64    `json:"max_latency_ms,omitempty"`
}

// Dataset is an ordered, validated question set. Immutable once loaded and
// safely shared across concurrent queries.
type Dataset struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Questions   []Question `json:"data"`
}

// Info is a catalog entry.
type Info struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Categories    []string `json:"categories"`
	QuestionCount int      `json:"question_count"`
}

// Loader resolves benchmark identifiers to datasets.
type Loader interface {
	Load(ctx context.Context, benchmarkID string) (*Dataset, error)
	List(ctx context.Context) ([]Info, error)
}

func (d *Dataset) info() Info {
	return Info{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		Categories:    d.Categories,
		QuestionCount: len(d.Questions),
	}
}

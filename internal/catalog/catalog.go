// Package catalog holds the static question registry and rubric store.
// Both are loaded once from a JSON data file at startup and never mutated.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/soundlab/soundcoach/internal/model"
)

// ErrNotFound is returned when a question id is not in the catalog.
var ErrNotFound = errors.New("question not found")

// CriteriaFallback is used when no rubric entry matches a (dimension, question) pair.
// Scoring degrades gracefully instead of blocking the student.
const CriteriaFallback = "Scoring criteria not found for this question."

// File is the on-disk catalog format.
type File struct {
	Task      model.TaskInfo       `json:"task"`
	Questions []model.QuestionSpec `json:"questions"`
	Rubric    []RubricCriterion    `json:"rubric"`
}

// RubricCriterion binds scoring guidance to a (dimension, question) pair.
type RubricCriterion struct {
	Dimension  string           `json:"dimension"`
	QuestionID model.QuestionID `json:"question_id"`
	Criteria   string           `json:"criteria"`
}

type criteriaKey struct {
	dimension string
	id        model.QuestionID
}

// Catalog is the immutable question registry with its rubric.
type Catalog struct {
	task       model.TaskInfo
	questions  []model.QuestionSpec
	byID       map[model.QuestionID]int
	criteria   map[criteriaKey]string
	dimensions []string
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from raw JSON. Questions are ordered by step
// ascending, then sub-index ascending; navigation uses this order exclusively.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Questions) == 0 {
		return nil, errors.New("catalog has no questions")
	}

	questions := make([]model.QuestionSpec, len(f.Questions))
	copy(questions, f.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Step != questions[j].Step {
			return questions[i].Step < questions[j].Step
		}
		return questions[i].Index < questions[j].Index
	})

	byID := make(map[model.QuestionID]int, len(questions))
	var dimensions []string
	seenDim := make(map[string]bool)
	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question at position %d has empty id", i)
		}
		if q.Dimension == "" {
			return nil, fmt.Errorf("question %s has empty dimension", q.ID)
		}
		if q.MaxScore <= 0 {
			return nil, fmt.Errorf("question %s has non-positive max_score", q.ID)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %s", q.ID)
		}
		byID[q.ID] = i
		if !seenDim[q.Dimension] {
			seenDim[q.Dimension] = true
			dimensions = append(dimensions, q.Dimension)
		}
	}

	criteria := make(map[criteriaKey]string, len(f.Rubric))
	for _, rc := range f.Rubric {
		criteria[criteriaKey{rc.Dimension, rc.QuestionID}] = rc.Criteria
	}

	return &Catalog{
		task:       f.Task,
		questions:  questions,
		byID:       byID,
		criteria:   criteria,
		dimensions: dimensions,
	}, nil
}

// Task returns the task briefing.
func (c *Catalog) Task() model.TaskInfo {
	return c.task
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// Questions returns all questions in catalog order.
func (c *Catalog) Questions() []model.QuestionSpec {
	out := make([]model.QuestionSpec, len(c.questions))
	copy(out, c.questions)
	return out
}

// Get returns the question with the given id, or ErrNotFound.
func (c *Catalog) Get(id model.QuestionID) (model.QuestionSpec, error) {
	i, ok := c.byID[id]
	if !ok {
		return model.QuestionSpec{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.questions[i], nil
}

// At returns the question at the given position in catalog order.
func (c *Catalog) At(i int) model.QuestionSpec {
	return c.questions[i]
}

// IndexOf returns the catalog-order position of a question id.
func (c *Catalog) IndexOf(id model.QuestionID) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// Criteria returns the rubric text for a (dimension, question) pair,
// or CriteriaFallback when no entry exists.
func (c *Catalog) Criteria(dimension string, id model.QuestionID) string {
	if text, ok := c.criteria[criteriaKey{dimension, id}]; ok {
		return text
	}
	return CriteriaFallback
}

// Dimensions returns dimension names in first-occurrence catalog order.
func (c *Catalog) Dimensions() []string {
	out := make([]string, len(c.dimensions))
	copy(out, c.dimensions)
	return out
}

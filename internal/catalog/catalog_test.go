package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/soundlab/soundcoach/internal/model"
)

const testCatalogJSON = `{
	"task": {"title": "Signature Sound", "goal": "Model a sound with a sine function."},
	"questions": [
		{"id": "2-1", "step": 2, "index": 1, "title": "Build", "text": "Write the function.", "dimension": "procedural modeling", "max_score": 2},
		{"id": "1-1", "step": 1, "index": 1, "title": "Listen", "text": "Describe the sound.", "dimension": "representational connection", "max_score": 1},
		{"id": "1-2", "step": 1, "index": 2, "title": "Sketch", "text": "Sketch the wave.", "dimension": "representational connection", "max_score": 1, "allows_attachment": true},
		{"id": "3-1", "step": 3, "index": 1, "title": "Interpret", "text": "Interpret the parameters.", "dimension": "system interpretation", "max_score": 2}
	],
	"rubric": [
		{"dimension": "procedural modeling", "question_id": "2-1", "criteria": "Correct amplitude (1), correct period (1)."},
		{"dimension": "representational connection", "question_id": "1-1", "criteria": "Names pitch and loudness (1)."}
	]
}`

func mustParse(t *testing.T, data string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func TestParseOrdersByStepThenIndex(t *testing.T) {
	c := mustParse(t, testCatalogJSON)

	want := []model.QuestionID{"1-1", "1-2", "2-1", "3-1"}
	if c.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", c.Len(), len(want))
	}
	for i, id := range want {
		if got := c.At(i).ID; got != id {
			t.Errorf("At(%d).ID = %s, want %s", i, got, id)
		}
	}
}

func TestGetAndIndexOf(t *testing.T) {
	c := mustParse(t, testCatalogJSON)

	q, err := c.Get("2-1")
	if err != nil {
		t.Fatalf("Get(2-1): %v", err)
	}
	if q.Dimension != "procedural modeling" || q.MaxScore != 2 {
		t.Errorf("Get(2-1) = %+v", q)
	}

	if _, err := c.Get("9-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(9-9) error = %v, want ErrNotFound", err)
	}

	i, ok := c.IndexOf("1-2")
	if !ok || i != 1 {
		t.Errorf("IndexOf(1-2) = %d, %v; want 1, true", i, ok)
	}
}

func TestCriteriaFallback(t *testing.T) {
	c := mustParse(t, testCatalogJSON)

	if got := c.Criteria("procedural modeling", "2-1"); !strings.Contains(got, "amplitude") {
		t.Errorf("Criteria(2-1) = %q, want rubric text", got)
	}
	// No rubric entry for 3-1: the fallback keeps scoring alive.
	if got := c.Criteria("system interpretation", "3-1"); got != CriteriaFallback {
		t.Errorf("Criteria(3-1) = %q, want fallback", got)
	}
	// A dimension mismatch also falls back.
	if got := c.Criteria("wrong dimension", "2-1"); got != CriteriaFallback {
		t.Errorf("Criteria(wrong dim) = %q, want fallback", got)
	}
}

func TestDimensionsFirstOccurrenceOrder(t *testing.T) {
	c := mustParse(t, testCatalogJSON)

	want := []string{"representational connection", "procedural modeling", "system interpretation"}
	got := c.Dimensions()
	if len(got) != len(want) {
		t.Fatalf("Dimensions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Dimensions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAllowsAttachmentFlag(t *testing.T) {
	c := mustParse(t, testCatalogJSON)

	q, _ := c.Get("1-2")
	if !q.AllowsAttachment {
		t.Error("question 1-2 should allow attachments")
	}
	q, _ = c.Get("1-1")
	if q.AllowsAttachment {
		t.Error("question 1-1 should not allow attachments")
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"empty catalog", `{"questions": []}`},
		{"malformed", `{not json`},
		{"empty id", `{"questions": [{"id": "", "step": 1, "index": 1, "dimension": "d", "max_score": 1}]}`},
		{"empty dimension", `{"questions": [{"id": "1-1", "step": 1, "index": 1, "dimension": "", "max_score": 1}]}`},
		{"zero max score", `{"questions": [{"id": "1-1", "step": 1, "index": 1, "dimension": "d", "max_score": 0}]}`},
		{"duplicate id", `{"questions": [
			{"id": "1-1", "step": 1, "index": 1, "dimension": "d", "max_score": 1},
			{"id": "1-1", "step": 1, "index": 2, "dimension": "d", "max_score": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.json)); err == nil {
				t.Error("Parse succeeded, want error")
			}
		})
	}
}

func TestLoadShippedCatalog(t *testing.T) {
	c, err := Load("../../questions/signature_sound.json")
	if err != nil {
		t.Fatalf("Load shipped catalog: %v", err)
	}
	if c.Len() != 7 {
		t.Errorf("shipped catalog has %d questions, want 7", c.Len())
	}
	if c.Task().Title == "" {
		t.Error("shipped catalog has no task title")
	}
	for _, q := range c.Questions() {
		if got := c.Criteria(q.Dimension, q.ID); got == CriteriaFallback {
			t.Errorf("question %s has no rubric entry", q.ID)
		}
	}
}

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/soundlab/soundcoach/internal/model"
)

var numberRegex = regexp.MustCompile(`-?\d+(\.\d+)?`)

// rawFeedback mirrors the JSON shape the scoring prompt demands. Fields are
// kept raw because the model may return numbers as strings.
type rawFeedback struct {
	Err        *string                    `json:"error"`
	Scores     map[string]json.RawMessage `json:"scores"`
	TotalScore json.RawMessage            `json:"total_score"`
	Analysis   *string                    `json:"analysis"`
	Suggestion *string                    `json:"suggestion"`
}

// ParseFeedback validates raw response text into a FeedbackResult.
//
// A response carrying an "error" key becomes the error variant directly.
// Any schema deviation (malformed JSON, missing required keys, uncoercible
// total_score) is reported as a non-nil error so the caller can surface a
// user-facing service message; it never panics or partially succeeds.
func ParseFeedback(raw string) (model.FeedbackResult, error) {
	var rf rawFeedback
	if err := json.Unmarshal([]byte(raw), &rf); err != nil {
		return model.FeedbackResult{}, fmt.Errorf("malformed feedback JSON: %w", err)
	}

	if rf.Err != nil {
		// An empty error message would read as a successful zero-score
		// result downstream; reject it like any other schema deviation.
		if strings.TrimSpace(*rf.Err) == "" {
			return model.FeedbackResult{}, fmt.Errorf("feedback has an empty error message")
		}
		return model.ErrorFeedback(*rf.Err), nil
	}

	if rf.Scores == nil || rf.TotalScore == nil || rf.Analysis == nil || rf.Suggestion == nil {
		return model.FeedbackResult{}, fmt.Errorf("feedback missing required keys (scores, total_score, analysis, suggestion)")
	}

	total, err := coerceScore(rf.TotalScore)
	if err != nil {
		return model.FeedbackResult{}, fmt.Errorf("total_score: %w", err)
	}

	// Criterion names are free-form; values may be numbers or strings.
	// They are kept as display strings here, coerced only at aggregation
	// time so a single odd key never invalidates the whole result.
	scores := make(map[string]string, len(rf.Scores))
	for name, v := range rf.Scores {
		scores[name] = rawToString(v)
	}

	return model.FeedbackResult{
		Scores:     scores,
		TotalScore: total,
		Analysis:   *rf.Analysis,
		Suggestion: *rf.Suggestion,
	}, nil
}

// coerceScore accepts a JSON number or a string containing one ("2", "2 pts").
func coerceScore(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("neither number nor string: %s", string(raw))
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	if m := numberRegex.FindString(s); m != "" {
		return strconv.ParseFloat(m, 64)
	}
	return 0, fmt.Errorf("no numeric value in %q", s)
}

func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

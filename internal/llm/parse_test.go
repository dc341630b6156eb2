package llm

import (
	"testing"
)

func TestParseFeedbackSuccess(t *testing.T) {
	raw := `{
		"scores": {"Correct amplitude": "1", "Correct period": 1},
		"total_score": 2,
		"analysis": "You matched both parameters to the sound.",
		"suggestion": "Try changing B and predicting the new pitch."
	}`
	fb, err := ParseFeedback(raw)
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if fb.IsError() {
		t.Fatalf("unexpected error variant: %q", fb.Err)
	}
	if fb.TotalScore != 2 {
		t.Errorf("TotalScore = %v, want 2", fb.TotalScore)
	}
	if fb.Scores["Correct amplitude"] != "1" {
		t.Errorf("string score = %q, want \"1\"", fb.Scores["Correct amplitude"])
	}
	if fb.Scores["Correct period"] != "1" {
		t.Errorf("numeric score = %q, want \"1\"", fb.Scores["Correct period"])
	}
	if fb.Analysis == "" || fb.Suggestion == "" {
		t.Error("analysis and suggestion must survive parsing")
	}
}

func TestParseFeedbackErrorKey(t *testing.T) {
	fb, err := ParseFeedback(`{"error": "Could not score this answer."}`)
	if err != nil {
		t.Fatalf("ParseFeedback: %v", err)
	}
	if !fb.IsError() {
		t.Fatal("want the error variant")
	}
	if fb.Err != "Could not score this answer." {
		t.Errorf("Err = %q", fb.Err)
	}
}

func TestParseFeedbackMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I think the answer deserves 2 points."},
		{"empty error message", `{"error": ""}`},
		{"blank error message", `{"error": "   "}`},
		{"truncated", `{"scores": {"a": 1}, "total_sc`},
		{"missing keys", `{"scores": {"a": 1}, "total_score": 1}`},
		{"null scores", `{"scores": null, "total_score": 1, "analysis": "a", "suggestion": "s"}`},
		{"bad total", `{"scores": {"a": 1}, "total_score": "excellent", "analysis": "a", "suggestion": "s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFeedback(tt.raw); err == nil {
				t.Error("ParseFeedback succeeded, want error")
			}
		})
	}
}

func TestParseFeedbackTotalScoreCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"number", `2`, 2},
		{"float", `1.5`, 1.5},
		{"string number", `"2"`, 2},
		{"string with unit", `"2 points"`, 2},
		{"string float", `"1.5"`, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"scores": {"a": 1}, "total_score": ` + tt.raw +
				`, "analysis": "a", "suggestion": "s"}`
			fb, err := ParseFeedback(raw)
			if err != nil {
				t.Fatalf("ParseFeedback: %v", err)
			}
			if fb.TotalScore != tt.want {
				t.Errorf("TotalScore = %v, want %v", fb.TotalScore, tt.want)
			}
		})
	}
}

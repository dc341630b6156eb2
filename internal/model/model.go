package model

import (
	"context"
	"time"
)

// QuestionID identifies a question in the catalog, e.g. "2-1" (step 2, first question).
type QuestionID string

// QuestionSpec describes one catalog question. Immutable after loading.
type QuestionSpec struct {
	ID               QuestionID `json:"id"`
	Step             int        `json:"step"`
	Index            int        `json:"index"`
	Title            string     `json:"title"`
	Text             string     `json:"text"`
	Dimension        string     `json:"dimension"`
	MaxScore         int        `json:"max_score"`
	AllowsAttachment bool       `json:"allows_attachment,omitempty"`
}

// TaskInfo is the briefing shown at the start of the learning task.
type TaskInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Goal        string `json:"goal"`
	ToolLink    string `json:"tool_link,omitempty"`
}

// FeedbackResult is the outcome of one scoring round: either a fully scored
// success or an error message, never partially valid.
type FeedbackResult struct {
	Err        string            `json:"error,omitempty"`
	Scores     map[string]string `json:"scores,omitempty"`
	TotalScore float64           `json:"total_score"`
	Analysis   string            `json:"analysis,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// IsError reports whether the result is the error variant.
func (r FeedbackResult) IsError() bool {
	return r.Err != ""
}

// ErrorFeedback builds an error-variant result.
func ErrorFeedback(msg string) FeedbackResult {
	return FeedbackResult{Err: msg}
}

// QuestionState is the progression state of a single question.
type QuestionState string

const (
	StateUnanswered QuestionState = "unanswered"
	StateAttempted  QuestionState = "attempted"
	StateFinalized  QuestionState = "finalized"
)

// AnswerRecord tracks one question's answer within a student session.
type AnswerRecord struct {
	QuestionID     QuestionID      `json:"question_id"`
	Text           string          `json:"text"`
	Attempts       int             `json:"attempts"`
	Finalized      bool            `json:"finalized"`
	Feedback       *FeedbackResult `json:"feedback,omitempty"`
	AttachmentPath string          `json:"attachment_path,omitempty"`
}

// State derives the progression state from the record.
func (a AnswerRecord) State() QuestionState {
	switch {
	case a.Finalized:
		return StateFinalized
	case a.Attempts > 0:
		return StateAttempted
	default:
		return StateUnanswered
	}
}

// Phase is the overall session phase.
type Phase string

const (
	PhaseLearning  Phase = "learning"
	PhaseCompleted Phase = "completed"
)

// DimensionReport is one row of the completion summary.
type DimensionReport struct {
	Dimension string  `json:"dimension"`
	Achieved  float64 `json:"achieved_points"`
	MaxPoints int     `json:"max_points"`
	Percent   float64 `json:"achievement_pct"`
}

// Submission is one durable row in the persistence sink, keyed by student name.
type Submission struct {
	ID             int64      `json:"id"`
	StudentName    string     `json:"student_name"`
	QuestionID     QuestionID `json:"question_id"`
	Attempt        int        `json:"attempt"`
	IsFinal        bool       `json:"is_final"`
	QuestionText   string     `json:"question_text"`
	Answer         string     `json:"answer"`
	AttachmentPath string     `json:"attachment_path,omitempty"`
	ScoresJSON     string     `json:"scores"`
	TotalScore     float64    `json:"total_score"`
	Analysis       string     `json:"analysis"`
	Suggestion     string     `json:"suggestion"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TeacherSession is a teacher login token with expiry.
type TeacherSession struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Model         string // LLM model name
	MinAnswerLen  int    // minimum answer length in runes
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	UploadsDir    string // local attachment directory when MinIO is not configured
}

type teacherCtxKey struct{}

// ContextWithTeacherSession stores a verified teacher session in the request context.
func ContextWithTeacherSession(ctx context.Context, s *TeacherSession) context.Context {
	return context.WithValue(ctx, teacherCtxKey{}, s)
}

// TeacherSessionFromContext retrieves the teacher session from context, or nil.
func TeacherSessionFromContext(ctx context.Context) *TeacherSession {
	s, _ := ctx.Value(teacherCtxKey{}).(*TeacherSession)
	return s
}

// Package coach implements the question-progression state machine: per-question
// attempts, finalize locks, navigation, and the completion report.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/soundlab/soundcoach/internal/catalog"
	"github.com/soundlab/soundcoach/internal/llm"
	"github.com/soundlab/soundcoach/internal/model"
)

// Transition errors. A disallowed transition leaves the session unchanged;
// these exist so the HTTP layer can say why the operation was not offered.
var (
	ErrBusy         = errors.New("session busy: an action is already in flight")
	ErrFinalized    = errors.New("question already finalized")
	ErrNotReady     = errors.New("question has no successful feedback to finalize")
	ErrAtFirst      = errors.New("already at the first question")
	ErrAtLast       = errors.New("already at the last question")
	ErrNeedFinalize = errors.New("current question must be finalized before moving on")
	ErrNoAttachment = errors.New("question does not accept attachments")
)

// Scorer is the external AI feedback service.
type Scorer interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// Sink receives one durable row per submission. Writes are best-effort:
// failures are logged and never block the student's progress.
type Sink interface {
	AppendSubmission(ctx context.Context, sub model.Submission) error
}

// Localizer resolves a user-facing message ID with template data.
type Localizer func(ctx context.Context, msgID string, data map[string]any) string

// Config holds coach parameters.
type Config struct {
	MinAnswerLen int           // minimum answer length in runes; default 10
	Timeout      time.Duration // bound on one external scoring call; default 30s
	Localize     Localizer     // optional; English defaults when nil
}

// Coach holds the shared collaborators for all student sessions.
type Coach struct {
	catalog  *catalog.Catalog
	scorer   Scorer
	sink     Sink
	localize Localizer
	minLen   int
	timeout  time.Duration
}

// New creates a Coach. Zero config fields get defaults.
func New(cat *catalog.Catalog, scorer Scorer, sink Sink, cfg Config) *Coach {
	if cfg.MinAnswerLen <= 0 {
		cfg.MinAnswerLen = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Localize == nil {
		cfg.Localize = defaultMessages
	}
	return &Coach{
		catalog:  cat,
		scorer:   scorer,
		sink:     sink,
		localize: cfg.Localize,
		minLen:   cfg.MinAnswerLen,
		timeout:  cfg.Timeout,
	}
}

var defaultTexts = map[string]string{
	"AnswerTooShort": "Your answer is a bit short. Explain your thinking in at least %d characters so the coach can help properly.",
	"ServiceError":   "The AI coach ran into a problem. Please try submitting again in a moment.",
}

func defaultMessages(_ context.Context, msgID string, data map[string]any) string {
	text, ok := defaultTexts[msgID]
	if !ok {
		return msgID
	}
	if min, ok := data["Min"]; ok {
		return fmt.Sprintf(text, min)
	}
	return text
}

// Session is one student's in-memory progress. All mutating operations are
// single-flow: while one is in flight (including the external scoring call),
// concurrent mutations are rejected with ErrBusy.
type Session struct {
	coach       *Coach
	studentName string

	inFlight atomic.Bool

	mu      sync.Mutex
	cursor  int
	phase   model.Phase
	answers map[model.QuestionID]*model.AnswerRecord
}

func newSession(c *Coach, studentName string) *Session {
	answers := make(map[model.QuestionID]*model.AnswerRecord, c.catalog.Len())
	for _, q := range c.catalog.Questions() {
		answers[q.ID] = &model.AnswerRecord{QuestionID: q.ID}
	}
	return &Session{
		coach:       c,
		studentName: studentName,
		phase:       model.PhaseLearning,
		answers:     answers,
	}
}

// acquire claims the single-flow gate.
func (s *Session) acquire() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (s *Session) release() {
	s.inFlight.Store(false)
}

// StudentName returns the name entered at login.
func (s *Session) StudentName() string {
	return s.studentName
}

// State is a consistent snapshot of the session for rendering.
type State struct {
	StudentName    string               `json:"student_name"`
	Phase          model.Phase          `json:"phase"`
	Busy           bool                 `json:"busy"`
	Task           model.TaskInfo       `json:"task"`
	Question       model.QuestionSpec   `json:"question"`
	Record         model.AnswerRecord   `json:"record"`
	Position       int                  `json:"position"`
	Total          int                  `json:"total"`
	FinalizedCount int                  `json:"finalized_count"`
	CanPrevious    bool                 `json:"can_previous"`
	CanNext        bool                 `json:"can_next"`
	CanFinalize    bool                 `json:"can_finalize"`
}

// State returns a snapshot of the current question and navigation legality.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.coach.catalog.At(s.cursor)
	rec := *s.answers[q.ID]
	finalized := 0
	for _, r := range s.answers {
		if r.Finalized {
			finalized++
		}
	}
	return State{
		StudentName:    s.studentName,
		Phase:          s.phase,
		Busy:           s.inFlight.Load(),
		Task:           s.coach.catalog.Task(),
		Question:       q,
		Record:         rec,
		Position:       s.cursor + 1,
		Total:          s.coach.catalog.Len(),
		FinalizedCount: finalized,
		CanPrevious:    s.cursor > 0,
		CanNext:        rec.Finalized && s.cursor < s.coach.catalog.Len()-1,
		CanFinalize:    !rec.Finalized && rec.Attempts > 0 && rec.Feedback != nil && !rec.Feedback.IsError(),
	}
}

// Record returns a copy of the answer record for a question id.
func (s *Session) Record(id model.QuestionID) (model.AnswerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.answers[id]
	if !ok {
		return model.AnswerRecord{}, false
	}
	return *rec, true
}

// Submit runs one feedback cycle for the current question: validation gate,
// scoring prompt, external call, parse, attempt bookkeeping, sink write.
//
// The returned FeedbackResult is the error variant for a too-short answer or
// a service failure; in both cases the attempt count is untouched and nothing
// is persisted. Submitting a finalized question returns ErrFinalized.
func (s *Session) Submit(ctx context.Context, answerText string) (model.FeedbackResult, error) {
	if err := s.acquire(); err != nil {
		return model.FeedbackResult{}, err
	}
	defer s.release()

	s.mu.Lock()
	q := s.coach.catalog.At(s.cursor)
	rec := s.answers[q.ID]
	if rec.Finalized {
		s.mu.Unlock()
		return model.FeedbackResult{}, ErrFinalized
	}
	rec.Text = answerText

	// The one validation gate before any external call.
	trimmed := strings.TrimSpace(answerText)
	if utf8.RuneCountInString(trimmed) < s.coach.minLen {
		fb := model.ErrorFeedback(s.coach.localize(ctx, "AnswerTooShort", map[string]any{"Min": s.coach.minLen}))
		rec.Feedback = &fb
		s.mu.Unlock()
		return fb, nil
	}
	s.mu.Unlock()

	criteria := s.coach.catalog.Criteria(q.Dimension, q.ID)
	prompt := llm.BuildScoringPrompt(q, criteria, answerText)

	callCtx, cancel := context.WithTimeout(ctx, s.coach.timeout)
	defer cancel()

	raw, err := s.coach.scorer.Score(callCtx, prompt)
	var fb model.FeedbackResult
	if err != nil {
		slog.Warn("scoring call failed", "student", s.studentName, "question", q.ID, "error", err)
		fb = model.ErrorFeedback(s.coach.localize(ctx, "ServiceError", nil))
	} else {
		fb, err = llm.ParseFeedback(raw)
		if err != nil {
			slog.Warn("unusable feedback response", "student", s.studentName, "question", q.ID, "error", err)
			fb = model.ErrorFeedback(s.coach.localize(ctx, "ServiceError", nil))
		}
	}

	s.mu.Lock()
	rec.Feedback = &fb
	if !fb.IsError() {
		rec.Attempts++
	}
	sub, final := s.submissionLocked(q, rec, false), !fb.IsError()
	s.mu.Unlock()

	if final {
		s.persist(ctx, sub)
	}
	return fb, nil
}

// Finalize locks the current question's answer and feedback as the
// submitted-for-credit version, persists a final row, and advances the
// cursor; when every question is finalized the session enters completion.
func (s *Session) Finalize(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	q := s.coach.catalog.At(s.cursor)
	rec := s.answers[q.ID]
	if rec.Finalized {
		s.mu.Unlock()
		return ErrFinalized
	}
	if rec.Attempts == 0 || rec.Feedback == nil || rec.Feedback.IsError() {
		s.mu.Unlock()
		return ErrNotReady
	}
	rec.Finalized = true

	all := true
	for _, r := range s.answers {
		if !r.Finalized {
			all = false
			break
		}
	}
	if all {
		s.phase = model.PhaseCompleted
	} else if s.cursor < s.coach.catalog.Len()-1 {
		s.cursor++
	}
	sub := s.submissionLocked(q, rec, true)
	s.mu.Unlock()

	s.persist(ctx, sub)
	return nil
}

// NavigatePrevious moves to the previous question and re-opens it:
// revisiting a completed question deliberately un-locks it for edits.
func (s *Session) NavigatePrevious() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == 0 {
		return ErrAtFirst
	}
	s.cursor--
	q := s.coach.catalog.At(s.cursor)
	s.answers[q.ID].Finalized = false
	s.phase = model.PhaseLearning
	return nil
}

// NavigateNext moves forward; allowed only over a finalized question.
func (s *Session) NavigateNext() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.coach.catalog.At(s.cursor)
	if !s.answers[q.ID].Finalized {
		return ErrNeedFinalize
	}
	if s.cursor >= s.coach.catalog.Len()-1 {
		return ErrAtLast
	}
	s.cursor++
	return nil
}

// SetAttachment records a stored attachment path on a question. The target is
// named explicitly so an upload started on one question cannot land on
// another if the session moves on while the file is being stored.
func (s *Session) SetAttachment(id model.QuestionID, path string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.coach.catalog.Get(id)
	if err != nil {
		return err
	}
	if !q.AllowsAttachment {
		return ErrNoAttachment
	}
	rec := s.answers[q.ID]
	if rec.Finalized {
		return ErrFinalized
	}
	rec.AttachmentPath = path
	return nil
}

// Completed reports whether every question is finalized.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == model.PhaseCompleted
}

// Report aggregates finalized feedback into per-dimension achievement.
// Unfinalized questions count toward neither numerator nor denominator, so a
// partially completed session reports achievement over what was finalized.
// Output follows first-occurrence dimension order and is deterministic.
func (s *Session) Report() []model.DimensionReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDim := make(map[string]*model.DimensionReport)
	var reports []model.DimensionReport
	for _, dim := range s.coach.catalog.Dimensions() {
		reports = append(reports, model.DimensionReport{Dimension: dim})
	}
	for i := range reports {
		byDim[reports[i].Dimension] = &reports[i]
	}

	for _, q := range s.coach.catalog.Questions() {
		rec := s.answers[q.ID]
		if !rec.Finalized || rec.Feedback == nil || rec.Feedback.IsError() {
			continue
		}
		r := byDim[q.Dimension]
		r.Achieved += rec.Feedback.TotalScore
		r.MaxPoints += q.MaxScore
	}

	for i := range reports {
		if reports[i].MaxPoints > 0 {
			reports[i].Percent = reports[i].Achieved / float64(reports[i].MaxPoints) * 100
		}
	}
	return reports
}

// JourneyEntry is one finalized question with its final answer and feedback.
type JourneyEntry struct {
	Question model.QuestionSpec `json:"question"`
	Record   model.AnswerRecord `json:"record"`
}

// Journey returns all finalized questions in catalog order, for the
// completion review.
func (s *Session) Journey() []JourneyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []JourneyEntry
	for _, q := range s.coach.catalog.Questions() {
		rec := s.answers[q.ID]
		if rec.Finalized {
			entries = append(entries, JourneyEntry{Question: q, Record: *rec})
		}
	}
	return entries
}

// submissionLocked builds the sink row for the current record. Caller holds s.mu.
func (s *Session) submissionLocked(q model.QuestionSpec, rec *model.AnswerRecord, isFinal bool) model.Submission {
	var scoresJSON string
	var total float64
	var analysis, suggestion string
	if rec.Feedback != nil && !rec.Feedback.IsError() {
		if b, err := json.Marshal(rec.Feedback.Scores); err == nil {
			scoresJSON = string(b)
		}
		total = rec.Feedback.TotalScore
		analysis = rec.Feedback.Analysis
		suggestion = rec.Feedback.Suggestion
	}
	return model.Submission{
		StudentName:    s.studentName,
		QuestionID:     q.ID,
		Attempt:        rec.Attempts,
		IsFinal:        isFinal,
		QuestionText:   q.Text,
		Answer:         rec.Text,
		AttachmentPath: rec.AttachmentPath,
		ScoresJSON:     scoresJSON,
		TotalScore:     total,
		Analysis:       analysis,
		Suggestion:     suggestion,
		CreatedAt:      time.Now(),
	}
}

// persist appends a row to the sink. Failures are warned, never surfaced:
// in-session progress must not depend on durable writes.
func (s *Session) persist(ctx context.Context, sub model.Submission) {
	if s.coach.sink == nil {
		return
	}
	if err := s.coach.sink.AppendSubmission(ctx, sub); err != nil {
		slog.Warn("persistence write failed",
			"student", sub.StudentName, "question", sub.QuestionID, "is_final", sub.IsFinal, "error", err)
	}
}

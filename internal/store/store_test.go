package store

import (
	"context"
	"testing"

	"github.com/soundlab/soundcoach/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSubmission(student string, qid model.QuestionID, attempt int, final bool) model.Submission {
	return model.Submission{
		StudentName:  student,
		QuestionID:   qid,
		Attempt:      attempt,
		IsFinal:      final,
		QuestionText: "Describe the sound.",
		Answer:       "It starts quiet and swells.",
		ScoresJSON:   `{"criterion": "1"}`,
		TotalScore:   1,
		Analysis:     "Good observation.",
		Suggestion:   "Name the pitch too.",
	}
}

func TestAppendAndListSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendSubmission(ctx, testSubmission("mina", "1-1", 1, false)); err != nil {
		t.Fatalf("AppendSubmission: %v", err)
	}
	if err := s.AppendSubmission(ctx, testSubmission("mina", "1-1", 2, true)); err != nil {
		t.Fatalf("AppendSubmission: %v", err)
	}

	subs, err := s.ListSubmissions("mina")
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d submissions, want 2", len(subs))
	}
	// Append order is preserved.
	if subs[0].Attempt != 1 || subs[0].IsFinal {
		t.Errorf("first row = attempt %d, final %v", subs[0].Attempt, subs[0].IsFinal)
	}
	if subs[1].Attempt != 2 || !subs[1].IsFinal {
		t.Errorf("second row = attempt %d, final %v", subs[1].Attempt, subs[1].IsFinal)
	}
	if subs[0].ScoresJSON != `{"criterion": "1"}` || subs[0].TotalScore != 1 {
		t.Errorf("feedback payload lost: %+v", subs[0])
	}
	if subs[0].CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	if subs, err := s.ListSubmissions("nobody"); err != nil || len(subs) != 0 {
		t.Errorf("unknown student = %v, %v; want empty", subs, err)
	}
}

func TestListStudentsDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, row := range []model.Submission{
		testSubmission("yuna", "1-1", 1, false),
		testSubmission("mina", "1-1", 1, false),
		testSubmission("mina", "1-2", 1, false),
	} {
		if err := s.AppendSubmission(ctx, row); err != nil {
			t.Fatalf("AppendSubmission: %v", err)
		}
	}

	names, err := s.ListStudents()
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(names) != 2 || names[0] != "mina" || names[1] != "yuna" {
		t.Errorf("ListStudents = %v, want [mina yuna]", names)
	}

	count, err := s.SubmissionCount()
	if err != nil {
		t.Fatalf("SubmissionCount: %v", err)
	}
	if count != 3 {
		t.Errorf("SubmissionCount = %d, want 3", count)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetMetadata("missing")
	if err != nil || got != "" {
		t.Errorf("GetMetadata(missing) = %q, %v; want empty, nil", got, err)
	}

	if err := s.SetMetadata("teacher_password_hash", "hash-one"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("teacher_password_hash", "hash-two"); err != nil {
		t.Fatalf("SetMetadata upsert: %v", err)
	}
	got, err = s.GetMetadata("teacher_password_hash")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got != "hash-two" {
		t.Errorf("GetMetadata = %q, want the upserted value", got)
	}
}

func TestTeacherSessions(t *testing.T) {
	s := newTestStore(t)

	token, err := s.CreateTeacherSession()
	if err != nil {
		t.Fatalf("CreateTeacherSession: %v", err)
	}
	if token == "" {
		t.Fatal("empty session token")
	}

	sess, err := s.GetTeacherSession(token)
	if err != nil {
		t.Fatalf("GetTeacherSession: %v", err)
	}
	if sess == nil || sess.ID != token {
		t.Fatalf("GetTeacherSession = %+v", sess)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Error("session must expire after creation")
	}

	if sess, err := s.GetTeacherSession("bogus"); err != nil || sess != nil {
		t.Errorf("unknown token = %+v, %v; want nil, nil", sess, err)
	}

	if err := s.DeleteTeacherSession(token); err != nil {
		t.Fatalf("DeleteTeacherSession: %v", err)
	}
	if sess, _ := s.GetTeacherSession(token); sess != nil {
		t.Error("deleted session still readable")
	}

	if err := s.CleanupExpiredTeacherSessions(); err != nil {
		t.Fatalf("CleanupExpiredTeacherSessions: %v", err)
	}
}

func TestExportAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, row := range []model.Submission{
		testSubmission("mina", "1-1", 1, true),
		testSubmission("yuna", "1-1", 1, false),
		testSubmission("yuna", "1-1", 2, true),
	} {
		if err := s.AppendSubmission(ctx, row); err != nil {
			t.Fatalf("AppendSubmission: %v", err)
		}
	}

	export, err := s.ExportAll("Signature Sound")
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if export.TaskTitle != "Signature Sound" {
		t.Errorf("TaskTitle = %q", export.TaskTitle)
	}
	if export.ExportedAt.IsZero() {
		t.Error("ExportedAt not set")
	}
	if len(export.Students) != 2 {
		t.Fatalf("got %d students, want 2", len(export.Students))
	}
	if export.Students[0].Name != "mina" || len(export.Students[0].Submissions) != 1 {
		t.Errorf("mina export = %+v", export.Students[0])
	}
	if export.Students[1].Name != "yuna" || len(export.Students[1].Submissions) != 2 {
		t.Errorf("yuna export = %+v", export.Students[1])
	}
}

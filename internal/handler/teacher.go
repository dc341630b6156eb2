package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soundlab/soundcoach/internal/coach"
	"github.com/soundlab/soundcoach/internal/model"
)

type studentListResponse struct {
	Students         []string `json:"students"`
	TotalSubmissions int      `json:"total_submissions"`
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListStudents()
	if err != nil {
		slog.Error("list students", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	count, err := h.store.SubmissionCount()
	if err != nil {
		slog.Error("count submissions", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, studentListResponse{Students: names, TotalSubmissions: count})
}

type historyResponse struct {
	Student     string             `json:"student"`
	Submissions []model.Submission `json:"submissions"`
}

func (h *Handler) handleStudentHistory(w http.ResponseWriter, r *http.Request) {
	name := coach.SanitizeName(chi.URLParam(r, "name"))
	subs, err := h.store.ListSubmissions(name)
	if err != nil {
		slog.Error("list submissions", "student", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Student: name, Submissions: subs})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soundlab/soundcoach/internal/coach"
	appI18n "github.com/soundlab/soundcoach/internal/i18n"
	"github.com/soundlab/soundcoach/internal/model"
	"github.com/soundlab/soundcoach/internal/storage"
	"github.com/soundlab/soundcoach/internal/store"
)

const maxAttachmentBytes = 10 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	sessions    *coach.Manager
	attachments storage.Provider
	config      model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, sessions *coach.Manager, attachments storage.Provider, cfg model.AppConfig) *Handler {
	return &Handler{store: s, sessions: sessions, attachments: attachments, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/student/login", h.handleStudentLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireStudent)
			r.Get("/session", h.handleSessionState)
			r.Post("/session/answer", h.handleAnswer)
			r.Post("/session/attachment", h.handleUploadAttachment)
			r.Post("/session/finalize", h.handleFinalize)
			r.Post("/session/previous", h.handlePrevious)
			r.Post("/session/next", h.handleNext)
			r.Get("/session/report", h.handleReport)
			r.Post("/session/restart", h.handleRestart)
		})

		r.Post("/teacher/login", h.handleTeacherLogin)
		r.Group(func(r chi.Router) {
			r.Use(h.requireTeacher)
			r.Post("/teacher/logout", h.handleTeacherLogout)
			r.Get("/teacher/students", h.handleListStudents)
			r.Get("/teacher/students/{name}", h.handleStudentHistory)
			r.Get("/teacher/attachments/*", h.handleDownloadAttachment)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID)})
}

// transitionError maps state-machine rejections to 409s: disallowed
// transitions are not offered by the UI, so session state is unchanged and
// the client learns why the request was out of order.
func (h *Handler) transitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coach.ErrBusy):
		h.writeMessage(w, r, http.StatusConflict, "SessionBusy")
	case errors.Is(err, coach.ErrFinalized):
		h.writeMessage(w, r, http.StatusConflict, "AlreadyFinalized")
	case errors.Is(err, coach.ErrNotReady):
		h.writeMessage(w, r, http.StatusConflict, "FinalizeNotReady")
	case errors.Is(err, coach.ErrAtFirst):
		h.writeMessage(w, r, http.StatusConflict, "AtFirstQuestion")
	case errors.Is(err, coach.ErrAtLast):
		h.writeMessage(w, r, http.StatusConflict, "AtLastQuestion")
	case errors.Is(err, coach.ErrNeedFinalize):
		h.writeMessage(w, r, http.StatusConflict, "NeedFinalize")
	case errors.Is(err, coach.ErrNoAttachment):
		h.writeMessage(w, r, http.StatusBadRequest, "NoAttachment")
	default:
		slog.Error("session operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

const studentCookieName = "student_session"

type sessionCtxKey struct{}

func contextWithSession(ctx context.Context, s *coach.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func sessionFromContext(ctx context.Context) *coach.Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*coach.Session)
	return s
}

// requireStudent resolves the student session cookie, rejecting with 401
// when the session is missing or was reset.
func (h *Handler) requireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(studentCookieName)
		if err != nil || cookie.Value == "" {
			h.writeMessage(w, r, http.StatusUnauthorized, "SessionExpired")
			return
		}
		sess := h.sessions.Get(cookie.Value)
		if sess == nil {
			h.writeMessage(w, r, http.StatusUnauthorized, "SessionExpired")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), sess)))
	})
}

type loginRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, sess, err := h.sessions.Login(req.Name)
	if err != nil {
		if errors.Is(err, coach.ErrEmptyName) {
			h.writeMessage(w, r, http.StatusBadRequest, "LoginNameRequired")
			return
		}
		slog.Error("student login failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     studentCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, sess.State())
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFromContext(r.Context()).State())
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type answerResponse struct {
	Feedback model.FeedbackResult `json:"feedback"`
	State    coach.State          `json:"state"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fb, err := sess.Submit(r.Context(), req.Answer)
	if err != nil {
		h.transitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Feedback: fb, State: sess.State()})
}

func (h *Handler) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	// Gate before touching storage: a rejected upload must not leave an
	// object behind.
	state := sess.State()
	switch {
	case !state.Question.AllowsAttachment:
		h.transitionError(w, r, coach.ErrNoAttachment)
		return
	case state.Record.Finalized:
		h.transitionError(w, r, coach.ErrFinalized)
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := storage.AttachmentName(sess.StudentName(), state.Question.ID, time.Now(), filepath.Ext(header.Filename))
	path, err := h.attachments.Save(r.Context(), name, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("store attachment", "student", sess.StudentName(), "error", err)
		http.Error(w, "failed to store attachment", http.StatusInternalServerError)
		return
	}

	// The session may have moved on between the gate check and the write;
	// SetAttachment re-validates the named question, and a loser cleans up
	// its object.
	if err := sess.SetAttachment(state.Question.ID, path); err != nil {
		if rmErr := h.attachments.Remove(r.Context(), path); rmErr != nil {
			slog.Warn("remove rejected attachment", "path", path, "error", rmErr)
		}
		h.transitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"attachment_path": path})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := sess.Finalize(r.Context()); err != nil {
		h.transitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := sess.NavigatePrevious(); err != nil {
		h.transitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := sess.NavigateNext(); err != nil {
		h.transitionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type reportResponse struct {
	Reports []model.DimensionReport `json:"reports"`
	Journey []coach.JourneyEntry    `json:"journey"`
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if !sess.Completed() {
		h.writeMessage(w, r, http.StatusConflict, "NeedFinalize")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{
		Reports: sess.Report(),
		Journey: sess.Journey(),
	})
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(studentCookieName)
	if err == nil && cookie.Value != "" {
		h.sessions.Restart(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     studentCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	rc, err := h.attachments.Open(r.Context(), name)
	if err != nil {
		// A missing file is reported, not fatal.
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "attachment not found: " + name})
		return
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("stream attachment", "name", name, "error", err)
	}
}

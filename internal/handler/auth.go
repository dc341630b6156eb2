package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/soundlab/soundcoach/internal/model"
)

const teacherCookieName = "teacher_session"

// TeacherPasswordKey is the metadata key holding the bcrypt hash of the
// shared teacher password.
const TeacherPasswordKey = "teacher_password_hash"

type teacherLoginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	var req teacherLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	hash, err := h.store.GetMetadata(TeacherPasswordKey)
	if err != nil || hash == "" {
		slog.Error("teacher password not configured", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		h.writeMessage(w, r, http.StatusUnauthorized, "TeacherLoginError")
		return
	}

	token, err := h.store.CreateTeacherSession()
	if err != nil {
		slog.Error("create teacher session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     teacherCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTeacherLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(teacherCookieName)
	if err == nil && cookie.Value != "" {
		_ = h.store.DeleteTeacherSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     teacherCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	w.WriteHeader(http.StatusNoContent)
}

// requireTeacher checks for a valid teacher session cookie.
func (h *Handler) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(teacherCookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sess, err := h.store.GetTeacherSession(cookie.Value)
		if err != nil {
			slog.Error("get teacher session", "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := model.ContextWithTeacherSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

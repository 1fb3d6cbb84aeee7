package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/server/models"
)

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     common.TokenCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearedCookie() *http.Cookie {
	c := sessionCookie("")
	c.MaxAge = -1
	return c
}

func parseUserForm(r *http.Request) (models.UserCreateInfo, error) {
	if err := r.ParseForm(); err != nil {
		return models.UserCreateInfo{}, err
	}
	return models.UserCreateInfo{
		ID:       r.PostForm.Get("id"),
		Name:     r.PostForm.Get("name"),
		Password: r.PostForm.Get("password"),
	}, nil
}

type sessionStatus struct {
	Authenticated bool `json:"authenticated"`
}

// Index handles GET /, the landing page of the signup, signin and signout
// redirects. A signed-in visitor is sent on to /me.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(common.TokenCookieName)
	if err == nil {
		_, err = s.users.Authenticate(r.Context(), cookie.Value)
		switch {
		case err == nil:
			http.Redirect(w, r, "/me", http.StatusSeeOther)
			return
		case !errors.Is(err, common.ErrorUnauthorized):
			s.fail(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, sessionStatus{Authenticated: false})
}

// Signup handles POST /signup.
func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	dto, err := parseUserForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	_, cookie, err := s.users.Signup(r.Context(), dto)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	http.SetCookie(w, sessionCookie(cookie))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Signin handles POST /signin.
func (s *Server) Signin(w http.ResponseWriter, r *http.Request) {
	dto, err := parseUserForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	_, cookie, err := s.users.Signin(r.Context(), dto)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrorNotFound) && s.opts.RevealUnknownUser:
		respondError(w, http.StatusNotFound, "no such user")
		return
	case errors.Is(err, common.ErrorUnauthorized) && s.opts.RevealUnknownUser:
		respondError(w, http.StatusForbidden, "password incorrect")
		return
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorUnauthorized):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	default:
		s.fail(w, r, err)
		return
	}

	http.SetCookie(w, sessionCookie(cookie))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Signout handles POST /signout. It always succeeds.
func (s *Server) Signout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, clearedCookie())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Me handles GET /me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, userFrom(r.Context()).Info())
}

// ChangePassword handles POST /me/password.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}

	user := userFrom(r.Context())
	err := s.users.ChangePassword(r.Context(), user.ID, r.PostForm.Get("old"), r.PostForm.Get("new"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount handles DELETE /me and ends the session.
func (s *Server) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := s.users.DeleteAccount(r.Context(), user.ID); err != nil {
		s.fail(w, r, err)
		return
	}

	http.SetCookie(w, clearedCookie())
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn(r.Context(), "health check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

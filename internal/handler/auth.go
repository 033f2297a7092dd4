package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/snippet-share/internal/auth"
	"github.com/sakif/snippet-share/internal/service"
)

const stateCookie = "oauth_state"

// credentials is the body of register and login requests.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is returned by register and login. The token is also set
// as the session cookie; API clients may send it as a Bearer token instead.
type SessionResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AuthHandler serves /auth/*. github is nil when GitHub sign-in is not configured.
type AuthHandler struct {
	auth   *service.AuthService
	github *auth.GitHubProvider
	ttl    time.Duration
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   svc,
		github: github,
		ttl:    ttl,
		logger: logger,
	}
}

// HandleRegister serves POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Register(r.Context(), c.Username, c.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, SessionResponse{
		User:  UserResponse{ID: res.User.ID, Username: res.User.Username},
		Token: res.Token,
	})
}

// HandleLogin serves POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), c.Username, c.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, SessionResponse{
		User:  UserResponse{ID: res.User.ID, Username: res.User.Username},
		Token: res.Token,
	})
}

// HandleLogout serves POST /auth/logout by expiring the session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleGitHubLogin starts the OAuth flow.
//
// The random state goes into a short-lived HttpOnly cookie and into the
// redirect URL; the callback accepts only a request that carries both, which
// is what stops a forged callback (CSRF).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := auth.NewState()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow and redirects home signed in.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// One-shot: the state cannot be replayed.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: sign-in failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

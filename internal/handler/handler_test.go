package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", apperror.ValidationFailed("code", "required"), http.StatusBadRequest, "validation_error"},
		{"unauthorized", apperror.Unauthorized("no"), http.StatusUnauthorized, "unauthorized"},
		{"forbidden", apperror.Forbidden("no"), http.StatusForbidden, "access_denied"},
		{"not found", apperror.NotFound("snippet", 1), http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("getting: %w", apperror.NotFound("snippet", 1)), http.StatusNotFound, "not_found"},
		{"conflict", apperror.Conflict("user", "alice"), http.StatusConflict, "conflict"},
		{"unavailable", apperror.Unavailable("off"), http.StatusServiceUnavailable, "unavailable"},
		{"plain error", errors.New("sql: connection refused at /var/run"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.kind, resp.Error)
			assert.NotContains(t, resp.Message, "/var/run")
		})
	}
}

func TestWriteError_FieldsOnlyForValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperror.Invalid(map[string]string{"title": "too long", "style": "bad"}))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, map[string]string{"title": "too long", "style": "bad"}, resp.Fields)

	rec = httptest.NewRecorder()
	writeError(rec, apperror.NotFound("snippet", 3))
	assert.NotContains(t, rec.Body.String(), `"fields"`)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"title":"x"}`, false},
		{"empty", ``, true},
		{"malformed", `{"title":`, true},
		{"wrong type", `{"title":5}`, true},
		{"too large", `{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst struct {
				Title string `json:"title"`
			}
			err := decodeJSON(httptest.NewRecorder(), r, &dst)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "x", dst.Title)
				return
			}
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Fields, "body")
		})
	}
}

func TestIDParam(t *testing.T) {
	tests := []struct {
		path    string
		want    int64
		wantErr bool
	}{
		{"/snippets/42", 42, false},
		{"/snippets/0", 0, true},
		{"/snippets/-3", 0, true},
		{"/snippets/abc", 0, true},
		{"/snippets/99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var (
				got int64
				err error
			)
			r := chi.NewRouter()
			r.Get("/snippets/{id}", func(w http.ResponseWriter, req *http.Request) {
				got, err = idParam(req, "snippet")
			})
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageLink(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/api/snippets?page=3&page_size=5&ordering=created", nil)

	next := pageLink(r, 4)
	require.NotNil(t, next)
	u, err := url.Parse(*next)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "example.com", u.Host)
	assert.Equal(t, "/api/snippets", u.Path)
	assert.Equal(t, "4", u.Query().Get("page"))
	assert.Equal(t, "5", u.Query().Get("page_size"))
	assert.Equal(t, "created", u.Query().Get("ordering"))

	first := pageLink(r, 1)
	u, err = url.Parse(*first)
	require.NoError(t, err)
	assert.False(t, u.Query().Has("page"))
	assert.Equal(t, "5", u.Query().Get("page_size"))
}

// ============================================================
// GitHub OAuth flow
// ============================================================

func newGitHubHandler() *AuthHandler {
	provider := auth.NewGitHubProvider("client", "secret", "http://localhost/auth/github/callback")
	return NewAuthHandler(nil, provider, time.Hour, discardLogger())
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGitHubLogin_SetsStateAndRedirects(t *testing.T) {
	h := newGitHubHandler()

	rec := httptest.NewRecorder()
	h.HandleGitHubLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	state := cookieNamed(rec.Result().Cookies(), stateCookie)
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", loc.Host)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func TestGitHubCallback_RejectsBadState(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		cookie string
	}{
		{"no cookie", "?state=abc&code=c", ""},
		{"mismatch", "?state=abc&code=c", "xyz"},
		{"no state", "?code=c", "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newGitHubHandler()

			r := httptest.NewRequest(http.MethodGet, "/auth/github/callback"+tt.query, nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: stateCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.HandleGitHubCallback(rec, r)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, cookieNamed(rec.Result().Cookies(), auth.CookieName))
		})
	}
}

func TestGitHubCallback_Denied(t *testing.T) {
	h := newGitHubHandler()

	r := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s1&error=access_denied", nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	rec := httptest.NewRecorder()
	h.HandleGitHubCallback(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?auth=denied", rec.Header().Get("Location"))

	cleared := cookieNamed(rec.Result().Cookies(), stateCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestGitHubCallback_MissingCode(t *testing.T) {
	h := newGitHubHandler()

	r := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s1", nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	rec := httptest.NewRecorder()
	h.HandleGitHubCallback(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-share/internal/auth"
	"github.com/sakif/snippet-share/internal/service"
)

// UserHandler serves the read-only user endpoints.
type UserHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{auth: svc, logger: logger}
}

// HandleList serves GET /api/users.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet serves GET /api/users/{id}.
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "user")
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleMe serves GET /api/me. It sits behind auth.RequireAuth.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())

	user, err := h.auth.GetUser(r.Context(), actor.UserID)
	if err != nil {
		// A valid token for a deleted account.
		h.logger.Warn("current user not found", slog.Int64("userID", actor.UserID))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

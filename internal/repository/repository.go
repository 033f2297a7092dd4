// Package repository declares the storage contracts the service layer depends on.
// internal/repository/sqlite and internal/repository/postgres implement them.
package repository

import (
	"context"
	"fmt"

	"github.com/sakif/snippet-share/internal/model"
)

// ListOptions selects a window of the snippet table. Limit <= 0 means "all rows".
type ListOptions struct {
	Order  model.Order
	Limit  int
	Offset int
}

// SnippetRepository persists snippets.
//
// Update runs fn inside a single transaction on the freshly loaded row and writes
// the mutated row back; if fn returns an error nothing is written.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id int64) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, id int64, fn func(*model.Snippet) error) (*model.Snippet, error)
	Delete(ctx context.Context, id int64) error
}

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpsertGitHub(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SnippetIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error)
	DeleteUser(ctx context.Context, id int64) error
}

// MaxGitHubUsernameAttempts bounds how many names UpsertGitHub tries for a new
// GitHub account before reporting a conflict.
const MaxGitHubUsernameAttempts = 10

// GitHubUsernameCandidate returns the attempt-th username to try for a new
// GitHub account: the login itself, then "login-<id>", then "login-<id>-2",
// "login-<id>-3" and so on.
func GitHubUsernameCandidate(login string, githubID int64, attempt int) string {
	switch {
	case attempt <= 0:
		return login
	case attempt == 1:
		return fmt.Sprintf("%s-%d", login, githubID)
	default:
		return fmt.Sprintf("%s-%d-%d", login, githubID, attempt)
	}
}

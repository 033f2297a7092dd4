package service

// AuthService is the business logic for accounts and sessions:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never touches cookies or requests; the handler turns an AuthResult into a
// Set-Cookie header.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/auth"
	"github.com/sakif/snippet-share/internal/model"
	"github.com/sakif/snippet-share/internal/repository"
)

const MaxUsernameLength = 150

// usernamePattern allows letters, digits and @ . + - _ in any script.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}@.+\-_]+$`)

// AuthService handles registration, login and user lookups.
//
// tokens may be nil: accounts can still be created (the admin CLI does that)
// but nothing that issues a session works.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued token so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// UserSummary is the public view of a user: id, username and the ids of the
// snippets they own.
type UserSummary struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Snippets []int64 `json:"snippets"`
}

// CreateAccount validates the credentials and stores a new local account.
func (s *AuthService) CreateAccount(ctx context.Context, username, password string) (*model.User, error) {
	problems := make(map[string]string)
	if msg := checkUsername(username); msg != "" {
		problems["username"] = msg
	}
	switch {
	case len(password) < auth.MinPasswordLength:
		problems["password"] = fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength)
	case len(password) > auth.MaxPasswordLength:
		problems["password"] = fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordLength)
	}
	if len(problems) > 0 {
		return nil, apperror.Invalid(problems)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.logger.Info("user created", slog.Int64("userID", user.ID), slog.String("username", username))
	return user, nil
}

// Register creates a local account and signs it in.
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	if s.tokens == nil {
		return nil, apperror.Unavailable("authentication is not configured")
	}
	user, err := s.CreateAccount(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login checks username and password. Unknown users and wrong passwords get the
// same Unauthorized error so the response does not reveal which one it was.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if s.tokens == nil {
		return nil, apperror.Unavailable("authentication is not configured")
	}
	invalid := apperror.Unauthorized("invalid username or password")

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Info("login failed", slog.String("username", username))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.logger.Info("user logged in", slog.Int64("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub links or creates the account of a GitHub user and signs it in.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	if s.tokens == nil {
		return nil, apperror.Unavailable("authentication is not configured")
	}

	user := &model.User{Username: gh.Login, GitHubID: gh.ID}
	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting GitHub user %d: %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUser returns the public view of one user.
func (s *AuthService) GetUser(ctx context.Context, id int64) (*UserSummary, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, user)
}

// ListUsers returns every user, ordered by id, with their snippet ids.
func (s *AuthService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing users: %w", err)
	}

	out := make([]UserSummary, 0, len(users))
	for i := range users {
		summary, err := s.summarize(ctx, &users[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	return out, nil
}

func (s *AuthService) summarize(ctx context.Context, user *model.User) (*UserSummary, error) {
	ids, err := s.users.SnippetIDsByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: snippets of user %d: %w", user.ID, err)
	}
	return &UserSummary{ID: user.ID, Username: user.Username, Snippets: ids}, nil
}

// DeleteUser removes an account together with all of its snippets.
func (s *AuthService) DeleteUser(ctx context.Context, username string) error {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		return fmt.Errorf("service/auth: deleting user %d: %w", user.ID, err)
	}
	s.logger.Info("user deleted", slog.Int64("userID", user.ID), slog.String("username", username))
	return nil
}

func checkUsername(username string) string {
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		return "this field is required"
	case n > MaxUsernameLength:
		return fmt.Sprintf("ensure this field has no more than %d characters", MaxUsernameLength)
	case !usernamePattern.MatchString(username):
		return "enter a valid username: letters, digits and @/./+/-/_ only"
	}
	return ""
}

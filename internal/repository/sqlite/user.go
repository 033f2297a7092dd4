package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/dbx"
	"github.com/sakif/snippet-share/internal/model"
	"github.com/sakif/snippet-share/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const selectUser = `SELECT id, username, password_hash, github_id, created FROM users`

func scanUser(row rowScanner, u *model.User) error {
	var githubID sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &githubID, &u.Created); err != nil {
		return err
	}
	u.GitHubID = githubID.Int64
	return nil
}

// nullableGitHubID stores "not linked" as NULL so the UNIQUE index ignores it.
func nullableGitHubID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// CreateUser inserts a new account. A taken username yields apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	return dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		taken, err := usernameTaken(ctx, tx, user.Username)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Conflict("user", user.Username)
		}
		return insertUser(ctx, tx, user)
	})
}

// UpsertGitHub creates or refreshes the account linked to user.GitHubID.
//
// An existing account keeps its ID and username. A new account takes the GitHub
// login as its username; if a local account already owns that name, the GitHub
// ID is appended ("octocat-583231"), then a counter ("octocat-583231-2") until
// a free name is found.
func (db *DB) UpsertGitHub(ctx context.Context, user *model.User) error {
	return dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		var existing model.User
		err := scanUser(tx.QueryRowContext(ctx, selectUser+` WHERE github_id = ?`, user.GitHubID), &existing)
		if err == nil {
			*user = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
		}

		username, err := freeGitHubUsername(ctx, tx, user.Username, user.GitHubID)
		if err != nil {
			return err
		}
		user.Username = username
		return insertUser(ctx, tx, user)
	})
}

func freeGitHubUsername(ctx context.Context, tx dbx.DBTX, login string, githubID int64) (string, error) {
	for attempt := 0; attempt < repository.MaxGitHubUsernameAttempts; attempt++ {
		candidate := repository.GitHubUsernameCandidate(login, githubID, attempt)
		taken, err := usernameTaken(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperror.Conflict("user", login)
}

func usernameTaken(ctx context.Context, tx dbx.DBTX, username string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return n > 0, nil
}

func insertUser(ctx context.Context, tx dbx.DBTX, user *model.User) error {
	created := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, github_id, created) VALUES (?, ?, ?, ?)`,
		user.Username,
		user.PasswordHash,
		nullableGitHubID(user.GitHubID),
		created,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id
	user.Created = created
	return nil
}

// GetUserByID retrieves a user by ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := scanUser(db.conn.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return &u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := scanUser(db.conn.QueryRowContext(ctx, selectUser+` WHERE username = ?`, username), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return &u, nil
}

// ListUsers returns every user ordered by ID.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, selectUser+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// SnippetIDsByOwner returns the IDs of the user's snippets in creation order.
func (db *DB) SnippetIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM snippets WHERE owner_id = ? ORDER BY created, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippet ids of user %d: %w", ownerID, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippet ids: %w", err)
	}
	return ids, nil
}

// DeleteUser removes a user; ON DELETE CASCADE removes their snippets with them.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

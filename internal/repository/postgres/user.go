package postgres

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

func nullableGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

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

// UpsertGitHub returns the account already linked to user.GitHubID, or creates
// one. A username collision with a local account is resolved by suffixing the
// GitHub ID, and a counter after it if that name is taken too.
func (db *DB) UpsertGitHub(ctx context.Context, user *model.User) error {
	return dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		var existing model.User
		err := scanUser(tx.QueryRowContext(ctx, selectUser+` WHERE github_id = $1`, user.GitHubID), &existing)
		if err == nil {
			*user = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("postgres: looking up user by github_id %d: %w", user.GitHubID, err)
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
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking username %q: %w", username, err)
	}
	return exists, nil
}

// insertUser maps a unique violation that slipped past the pre-check (a
// concurrent registration) to the same conflict error.
func insertUser(ctx context.Context, tx dbx.DBTX, user *model.User) error {
	created := time.Now().UTC().Truncate(time.Microsecond)
	err := tx.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, github_id, created)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		user.Username, user.PasswordHash, nullableGitHubID(user.GitHubID), created,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("postgres: inserting user %q: %w", user.Username, err)
	}
	user.Created = created
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := scanUser(db.conn.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id), &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %d: %w", id, err)
	}
	return &u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := scanUser(db.conn.QueryRowContext(ctx, selectUser+` WHERE username = $1`, username), &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("postgres: getting user %q: %w", username, err)
	}
	return &u, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, selectUser+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}

func (db *DB) SnippetIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM snippets WHERE owner_id = $1 ORDER BY created, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing snippet ids of user %d: %w", ownerID, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scanning snippet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating snippet ids: %w", err)
	}
	return ids, nil
}

// DeleteUser removes a user and, through ON DELETE CASCADE, their snippets.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting user %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

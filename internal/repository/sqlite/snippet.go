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

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops implementing repository.SnippetRepository, this line fails to compile.
var _ repository.SnippetRepository = (*DB)(nil)

// selectSnippet joins the owner so every loaded snippet carries its owner's username.
const selectSnippet = `
	SELECT s.id, s.created, s.title, s.code, s.linenos, s.language, s.style,
	       s.owner_id, u.username, s.highlighted
	FROM snippets s
	JOIN users u ON u.id = s.owner_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row rowScanner, s *model.Snippet) error {
	return row.Scan(
		&s.ID,
		&s.Created,
		&s.Title,
		&s.Code,
		&s.ShowLineNumbers,
		&s.Language,
		&s.Style,
		&s.Owner.ID,
		&s.Owner.Username,
		&s.RenderedHTML,
	)
}

// Create inserts a new snippet.
//
// The owner lookup and the INSERT share one transaction, so a snippet can never
// be written for a user that does not exist. On success the caller's struct
// carries the database-assigned ID, the creation time and the owner's username.
//
// PARAMETERIZED QUERIES (the ? placeholders):
// NEVER build SQL strings with fmt.Sprintf or string concatenation of user input.
// The driver escapes the values, which rules out SQL injection.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	return dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		var username string
		err := tx.QueryRowContext(ctx,
			`SELECT username FROM users WHERE id = ?`, snippet.Owner.ID,
		).Scan(&username)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ValidationFailed("owner", "owner does not exist")
			}
			return fmt.Errorf("sqlite: looking up owner %d: %w", snippet.Owner.ID, err)
		}

		created := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (created, title, code, linenos, language, style, owner_id, highlighted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			created,
			snippet.Title,
			snippet.Code,
			snippet.ShowLineNumbers,
			snippet.Language,
			snippet.Style,
			snippet.Owner.ID,
			snippet.RenderedHTML,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading snippet id: %w", err)
		}

		snippet.ID = id
		snippet.Created = created
		snippet.Owner.Username = username
		return nil
	})
}

// GetByID retrieves a single snippet by its ID.
//
// sql.ErrNoRows is translated into apperror.NotFound so the handler can answer 404.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	return getSnippet(ctx, db.conn, id)
}

func getSnippet(ctx context.Context, q dbx.DBTX, id int64) (*model.Snippet, error) {
	var s model.Snippet
	err := scanSnippet(q.QueryRowContext(ctx, selectSnippet+` WHERE s.id = ?`, id), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %d: %w", id, err)
	}
	return &s, nil
}

// List returns snippets ordered by creation time. The id breaks ties between
// rows created in the same instant, so ascending order is exact insertion order.
//
// Limit <= 0 returns every row; the slice is always fully materialized.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	// The direction comes from a closed enum, never from user input.
	query := selectSnippet + ` ORDER BY s.created ASC, s.id ASC`
	if opts.Order == model.OrderDescending {
		query = selectSnippet + ` ORDER BY s.created DESC, s.id DESC`
	}

	var args []any
	if opts.Limit > 0 {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	// CRITICAL: always close rows when done, or the connection never returns to the pool.
	defer rows.Close()

	snippets := make([]model.Snippet, 0, max(opts.Limit, 0))
	for rows.Next() {
		var s model.Snippet
		if err := scanSnippet(rows, &s); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Count returns the total number of snippets.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting snippets: %w", err)
	}
	return n, nil
}

// Update loads the snippet, lets fn mutate it, and writes it back in one transaction.
//
// Only the client-editable columns and the rendered HTML are written. id, created
// and owner_id are never part of the UPDATE, so they cannot change here.
func (db *DB) Update(ctx context.Context, id int64, fn func(*model.Snippet) error) (*model.Snippet, error) {
	var updated *model.Snippet

	err := dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		s, err := getSnippet(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := fn(s); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE snippets
			 SET title = ?, code = ?, linenos = ?, language = ?, style = ?, highlighted = ?
			 WHERE id = ?`,
			s.Title,
			s.Code,
			s.ShowLineNumbers,
			s.Language,
			s.Style,
			s.RenderedHTML,
			id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating snippet %d: %w", id, err)
		}

		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes a snippet permanently. RowsAffected == 0 means it did not exist.
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", id)
	}

	return nil
}

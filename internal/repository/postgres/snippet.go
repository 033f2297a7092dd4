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

var _ repository.SnippetRepository = (*DB)(nil)

const selectSnippet = `SELECT s.id, s.created, s.title, s.code, s.linenos, s.language, s.style,
       s.owner_id, u.username, s.highlighted
  FROM snippets s
  JOIN users u ON u.id = s.owner_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row rowScanner, s *model.Snippet) error {
	return row.Scan(&s.ID, &s.Created, &s.Title, &s.Code, &s.ShowLineNumbers,
		&s.Language, &s.Style, &s.Owner.ID, &s.Owner.Username, &s.RenderedHTML)
}

func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	return dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		var username string
		err := tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = $1`, snippet.Owner.ID).Scan(&username)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ValidationFailed("owner", "owner does not exist")
			}
			return fmt.Errorf("postgres: looking up owner %d: %w", snippet.Owner.ID, err)
		}

		// timestamptz keeps microseconds; match it so Created survives a re-read.
		created := time.Now().UTC().Truncate(time.Microsecond)
		err = tx.QueryRowContext(ctx,
			`INSERT INTO snippets (created, title, code, linenos, language, style, owner_id, highlighted)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			created, snippet.Title, snippet.Code, snippet.ShowLineNumbers,
			snippet.Language, snippet.Style, snippet.Owner.ID, snippet.RenderedHTML,
		).Scan(&snippet.ID)
		if err != nil {
			return fmt.Errorf("postgres: creating snippet: %w", err)
		}

		snippet.Created = created
		snippet.Owner.Username = username
		return nil
	})
}

func (db *DB) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	return getSnippet(ctx, db.conn, id, false)
}

// getSnippet loads one row; forUpdate locks it until the surrounding transaction ends.
func getSnippet(ctx context.Context, q dbx.DBTX, id int64, forUpdate bool) (*model.Snippet, error) {
	query := selectSnippet + ` WHERE s.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF s`
	}

	var s model.Snippet
	if err := scanSnippet(q.QueryRowContext(ctx, query, id), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("postgres: getting snippet %d: %w", id, err)
	}
	return &s, nil
}

func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	query := selectSnippet + ` ORDER BY s.created ASC, s.id ASC`
	if opts.Order == model.OrderDescending {
		query = selectSnippet + ` ORDER BY s.created DESC, s.id DESC`
	}

	var args []any
	if opts.Limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, opts.Limit, max(opts.Offset, 0))
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := []model.Snippet{}
	for rows.Next() {
		var s model.Snippet
		if err := scanSnippet(rows, &s); err != nil {
			return nil, fmt.Errorf("postgres: scanning snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating snippets: %w", err)
	}
	return snippets, nil
}

func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting snippets: %w", err)
	}
	return n, nil
}

// Update locks the row with SELECT ... FOR UPDATE, hands it to fn and writes it
// back in the same transaction. Concurrent updates of one snippet serialize on
// the lock; the last to commit wins.
func (db *DB) Update(ctx context.Context, id int64, fn func(*model.Snippet) error) (*model.Snippet, error) {
	var updated *model.Snippet

	err := dbx.WithTx(ctx, db.conn, func(ctx context.Context, tx dbx.DBTX) error {
		s, err := getSnippet(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE snippets
			    SET title = $1, code = $2, linenos = $3, language = $4, style = $5, highlighted = $6
			  WHERE id = $7`,
			s.Title, s.Code, s.ShowLineNumbers, s.Language, s.Style, s.RenderedHTML, id,
		)
		if err != nil {
			return fmt.Errorf("postgres: updating snippet %d: %w", id, err)
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting snippet %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

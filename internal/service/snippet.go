// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, checks permissions, writes responses
//	Service (Business layer) → validates, applies defaults, renders, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// SnippetService is the snippet store: it owns the rule that a snippet's
// rendered HTML is always recomputed from its other fields before any write.
// It takes its collaborators as interfaces, so tests inject an in-memory
// repository and a renderer that can be told to fail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/highlight"
	"github.com/sakif/snippet-share/internal/model"
	"github.com/sakif/snippet-share/internal/repository"
)

const (
	MaxTitleLength  = 100
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Catalog answers which languages and styles exist. *highlight.Catalog implements it.
type Catalog interface {
	Languages() []highlight.Choice
	Styles() []highlight.Choice
	SupportsLanguage(key string) bool
	SupportsStyle(key string) bool
}

// Renderer produces the HTML document of a snippet. *highlight.Renderer implements it.
type Renderer interface {
	Render(opts highlight.Options) (string, error)
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo     repository.SnippetRepository
	catalog  Catalog
	renderer Renderer
	logger   *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, catalog Catalog, renderer Renderer, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:     repo,
		catalog:  catalog,
		renderer: renderer,
		logger:   logger,
	}
}

// Page is one window of a listing plus the total number of snippets. Size is
// the page size after clamping.
type Page struct {
	Items   []model.Snippet
	Count   int
	Size    int
	HasNext bool
}

// Languages returns the supported language identifiers, fixed for the process lifetime.
func (s *SnippetService) Languages() []highlight.Choice {
	return s.catalog.Languages()
}

// Styles returns the supported style identifiers, fixed for the process lifetime.
func (s *SnippetService) Styles() []highlight.Choice {
	return s.catalog.Styles()
}

// Create validates fields, applies defaults, renders, and persists a new snippet
// owned by ownerID.
//
// VALIDATION ORDER:
// Every problem in the input is collected into one ValidationError so a client
// sees all of them at once. Language and style are checked against the catalog
// here, before the renderer is ever called.
//
// ownerID <= 0 means "no owner". That is a validation failure of the input,
// distinct from an authorization failure, which is the handler's business.
func (s *SnippetService) Create(ctx context.Context, fields model.SnippetFields, ownerID int64) (*model.Snippet, error) {
	problems := s.check(fields)
	if fields.Code == nil {
		problems["code"] = "this field is required"
	}
	if ownerID <= 0 {
		problems["owner"] = "owner is required"
	}
	if len(problems) > 0 {
		return nil, apperror.Invalid(problems)
	}

	snippet := &model.Snippet{
		Language: model.DefaultLanguage,
		Style:    model.DefaultStyle,
		Owner:    model.UserRef{ID: ownerID},
	}
	apply(snippet, fields)

	if err := s.render(snippet); err != nil {
		s.logger.Error("failed to render snippet", slog.String("error", err.Error()))
		return nil, err
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logFailure("failed to create snippet", err, slog.Int64("owner", ownerID))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.Int64("id", snippet.ID),
		slog.Int64("owner", ownerID),
		slog.String("language", snippet.Language),
	)
	return snippet, nil
}

// Update applies the fields present in the input to snippet id and re-renders
// it from the merged values.
//
// The merge and the render run inside the repository's transaction, on the row
// as it is at that moment. If rendering fails the transaction is rolled back,
// so the stored HTML can never disagree with the stored fields.
func (s *SnippetService) Update(ctx context.Context, id int64, fields model.SnippetFields) (*model.Snippet, error) {
	if problems := s.check(fields); len(problems) > 0 {
		return nil, apperror.Invalid(problems)
	}

	snippet, err := s.repo.Update(ctx, id, func(current *model.Snippet) error {
		apply(current, fields)
		return s.render(current)
	})
	if err != nil {
		s.logFailure("failed to update snippet", err, slog.Int64("id", id))
		return nil, fmt.Errorf("updating snippet %d: %w", id, err)
	}

	s.logger.Info("snippet updated", slog.Int64("id", id))
	return snippet, nil
}

// Replace is Update for full-replacement requests: code must be present.
// Omitted optional fields keep their stored values.
func (s *SnippetService) Replace(ctx context.Context, id int64, fields model.SnippetFields) (*model.Snippet, error) {
	if fields.Code == nil {
		problems := s.check(fields)
		problems["code"] = "this field is required"
		return nil, apperror.Invalid(problems)
	}
	return s.Update(ctx, id, fields)
}

// Delete removes a snippet permanently. Deleting it again yields NotFound.
func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logFailure("failed to delete snippet", err, slog.Int64("id", id))
		return fmt.Errorf("deleting snippet %d: %w", id, err)
	}

	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

func (s *SnippetService) Get(ctx context.Context, id int64) (*model.Snippet, error) {
	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logFailure("failed to get snippet", err, slog.Int64("id", id))
		return nil, err
	}
	return snippet, nil
}

// List returns every snippet in the requested order, fully materialized.
func (s *SnippetService) List(ctx context.Context, order model.Order) ([]model.Snippet, error) {
	snippets, err := s.repo.List(ctx, repository.ListOptions{Order: order})
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Page returns the 1-based page of the listing in the requested order.
//
// size is clamped to [1, MaxPageSize], with 0 meaning DefaultPageSize. A page
// past the end is NotFound, except page 1 of an empty listing.
func (s *SnippetService) Page(ctx context.Context, order model.Order, page, size int) (*Page, error) {
	if page < 1 {
		return nil, apperror.ValidationFailed("page", "page must be a positive integer")
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("counting snippets: %w", err)
	}

	// Compare page numbers, not offsets: (page-1)*size overflows for huge pages.
	if page > 1 && (count == 0 || page-1 > (count-1)/size) {
		return nil, apperror.NotFound("page", page)
	}
	offset := (page - 1) * size

	items, err := s.repo.List(ctx, repository.ListOptions{Order: order, Limit: size, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return &Page{
		Items:   items,
		Count:   count,
		Size:    size,
		HasNext: offset+len(items) < count,
	}, nil
}

// check validates the values of the fields that are present. It returns an
// empty, non-nil map when everything is fine.
func (s *SnippetService) check(fields model.SnippetFields) map[string]string {
	problems := make(map[string]string)

	for _, name := range fields.ReadOnlyPresent() {
		problems[name] = "this field is read-only"
	}
	if fields.Code != nil && strings.TrimSpace(*fields.Code) == "" {
		problems["code"] = "this field may not be blank"
	}
	if fields.Title != nil && utf8.RuneCountInString(*fields.Title) > MaxTitleLength {
		problems["title"] = fmt.Sprintf("ensure this field has no more than %d characters", MaxTitleLength)
	}
	if fields.Language != nil && !s.catalog.SupportsLanguage(*fields.Language) {
		problems["language"] = fmt.Sprintf("%q is not a valid choice", *fields.Language)
	}
	if fields.Style != nil && !s.catalog.SupportsStyle(*fields.Style) {
		problems["style"] = fmt.Sprintf("%q is not a valid choice", *fields.Style)
	}
	return problems
}

// apply copies the present fields onto snippet.
func apply(snippet *model.Snippet, fields model.SnippetFields) {
	if fields.Title != nil {
		snippet.Title = *fields.Title
	}
	if fields.Code != nil {
		snippet.Code = *fields.Code
	}
	if fields.ShowLineNumbers != nil {
		snippet.ShowLineNumbers = *fields.ShowLineNumbers
	}
	if fields.Language != nil {
		snippet.Language = *fields.Language
	}
	if fields.Style != nil {
		snippet.Style = *fields.Style
	}
}

// render recomputes RenderedHTML from all the other fields of snippet. Its
// error is deliberately not an AppError: it surfaces as an internal error.
func (s *SnippetService) render(snippet *model.Snippet) error {
	html, err := s.renderer.Render(highlight.Options{
		Code:        snippet.Code,
		Language:    snippet.Language,
		Style:       snippet.Style,
		LineNumbers: snippet.ShowLineNumbers,
		Title:       snippet.Title,
	})
	if err != nil {
		return fmt.Errorf("rendering snippet: %w", err)
	}
	snippet.RenderedHTML = html
	return nil
}

// logFailure logs err at Error level unless it is an expected outcome
// (not found, validation) that the caller reports to the client.
func (s *SnippetService) logFailure(msg string, err error, attrs ...any) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return
	}
	s.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
}

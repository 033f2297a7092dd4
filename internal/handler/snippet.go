// Package handler contains the HTTP handlers of the JSON API.
//
// Handlers only speak HTTP: they parse requests, resolve the acting user,
// consult auth.MayMutate before any mutation, call the services, and serialize
// the results. Business rules live in internal/service.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/auth"
	"github.com/sakif/snippet-share/internal/model"
	"github.com/sakif/snippet-share/internal/service"
)

// SnippetDetail is the full representation of a snippet, code included.
type SnippetDetail struct {
	ID              int64         `json:"id"`
	URL             string        `json:"url"`
	Highlight       string        `json:"highlight"`
	Created         time.Time     `json:"created"`
	Title           string        `json:"title"`
	Code            string        `json:"code"`
	ShowLineNumbers bool          `json:"showLineNumbers"`
	Language        string        `json:"language"`
	Style           string        `json:"style"`
	Owner           model.UserRef `json:"owner"`
}

// SnippetSummary is the list representation: everything but the code.
type SnippetSummary struct {
	ID              int64         `json:"id"`
	URL             string        `json:"url"`
	Highlight       string        `json:"highlight"`
	Created         time.Time     `json:"created"`
	Title           string        `json:"title"`
	ShowLineNumbers bool          `json:"showLineNumbers"`
	Language        string        `json:"language"`
	Style           string        `json:"style"`
	Owner           model.UserRef `json:"owner"`
}

// PageResponse is one page of a paginated listing. Next and Previous are
// absolute URLs, or null at either end.
type PageResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func snippetURL(id int64) string { return fmt.Sprintf("/api/snippets/%d", id) }

func toDetail(s *model.Snippet) SnippetDetail {
	return SnippetDetail{
		ID:              s.ID,
		URL:             snippetURL(s.ID),
		Highlight:       snippetURL(s.ID) + "/highlight",
		Created:         s.Created,
		Title:           s.Title,
		Code:            s.Code,
		ShowLineNumbers: s.ShowLineNumbers,
		Language:        s.Language,
		Style:           s.Style,
		Owner:           s.Owner,
	}
}

func toSummary(s *model.Snippet) SnippetSummary {
	return SnippetSummary{
		ID:              s.ID,
		URL:             snippetURL(s.ID),
		Highlight:       snippetURL(s.ID) + "/highlight",
		Created:         s.Created,
		Title:           s.Title,
		ShowLineNumbers: s.ShowLineNumbers,
		Language:        s.Language,
		Style:           s.Style,
		Owner:           s.Owner,
	}
}

// SnippetHandler serves /api/snippets and the language/style enumerations.
type SnippetHandler struct {
	snippets *service.SnippetService
	runs     *service.RunService
	logger   *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, runs *service.RunService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{
		snippets: snippets,
		runs:     runs,
		logger:   logger,
	}
}

// HandleList serves GET /api/snippets?page=&page_size=&ordering=
//
// ordering is "created" or "-created" (the default, newest first); any other
// value falls back to the default. A page that is not a positive integer, or
// lies past the last page, is 404.
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	order := model.OrderDescending
	if o, ok := model.ParseOrder(q.Get("ordering")); ok {
		order = o
	}

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, apperror.NotFound("page", raw))
			return
		}
		page = n
	}

	size := 0
	if raw := q.Get("page_size"); raw != "" {
		// An unparsable size falls back to the default, like an absent one.
		size, _ = strconv.Atoi(raw)
	}

	result, err := h.snippets.Page(r.Context(), order, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := PageResponse[SnippetSummary]{
		Count:   result.Count,
		Results: make([]SnippetSummary, 0, len(result.Items)),
	}
	for i := range result.Items {
		resp.Results = append(resp.Results, toSummary(&result.Items[i]))
	}
	if result.HasNext {
		resp.Next = pageLink(r, page+1)
	}
	if page > 1 {
		resp.Previous = pageLink(r, page-1)
	}

	writeJSON(w, http.StatusOK, resp)
}

// pageLink rebuilds the request URL with another page number. Page 1 drops
// the parameter altogether.
func pageLink(r *http.Request, page int) *string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	s := u.String()
	return &s
}

// HandleCreate serves POST /api/snippets. The owner is always the acting user.
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var fields model.SnippetFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}

	actor := auth.ActorFromContext(r.Context())
	snippet, err := h.snippets.Create(r.Context(), fields, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", snippetURL(snippet.ID))
	writeJSON(w, http.StatusCreated, toDetail(snippet))
}

// HandleGet serves GET /api/snippets/{id}.
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "snippet")
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(snippet))
}

// HandleHighlight serves the stored HTML document of a snippet.
func (h *SnippetHandler) HandleHighlight(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "snippet")
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(snippet.RenderedHTML)); err != nil {
		h.logger.Error("failed to write highlighted snippet", slog.String("error", err.Error()))
	}
}

// HandlePatch serves PATCH /api/snippets/{id}: only the fields sent change.
func (h *SnippetHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.snippets.Update)
}

// HandlePut serves PUT /api/snippets/{id}: code must be sent.
func (h *SnippetHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.snippets.Replace)
}

type updateFunc func(ctx context.Context, id int64, fields model.SnippetFields) (*model.Snippet, error)

func (h *SnippetHandler) update(w http.ResponseWriter, r *http.Request, apply updateFunc) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var fields model.SnippetFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := apply(r.Context(), id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(snippet))
}

// HandleDelete serves DELETE /api/snippets/{id}.
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.snippets.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize loads the snippet named in the URL and applies auth.MayMutate.
// On false it has already written the response (404 or 403) and the caller
// must not touch the store.
func (h *SnippetHandler) authorize(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := idParam(r, "snippet")
	if err != nil {
		writeError(w, err)
		return 0, false
	}

	snippet, err := h.snippets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return 0, false
	}

	actor := auth.ActorFromContext(r.Context())
	if !auth.MayMutate(actor, snippet) {
		h.logger.Info("snippet mutation denied",
			slog.Int64("id", id),
			slog.Int64("actor", actor.UserID),
			slog.String("method", r.Method),
		)
		writeError(w, apperror.Forbidden("you do not have permission to perform this action"))
		return 0, false
	}
	return id, true
}

// HandleRun serves POST /api/snippets/{id}/run.
func (h *SnippetHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "snippet")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.runs.Run(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleLanguages serves GET /api/languages.
func (h *SnippetHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snippets.Languages())
}

// HandleStyles serves GET /api/styles.
func (h *SnippetHandler) HandleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snippets.Styles())
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-share/internal/apperror"
	"github.com/sakif/snippet-share/internal/highlight"
	"github.com/sakif/snippet-share/internal/model"
	"github.com/sakif/snippet-share/internal/repository"
)

// =========================================================================
// FAKE REPOSITORY
// =========================================================================
//
// fakeSnippetRepo keeps snippets in memory in insertion order. Update works on
// a copy and stores it only when fn succeeds, like a rolled-back transaction.

type fakeSnippetRepo struct {
	mu       sync.Mutex
	snippets []model.Snippet
	nextID   int64
	clock    time.Time
	failWith error // returned by every call when set
}

func newFakeSnippetRepo() *fakeSnippetRepo {
	return &fakeSnippetRepo{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

var _ repository.SnippetRepository = (*fakeSnippetRepo)(nil)

func (f *fakeSnippetRepo) Create(_ context.Context, s *model.Snippet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	s.ID = f.nextID
	s.Created = f.clock
	s.Owner.Username = "user"
	f.snippets = append(f.snippets, *s)
	return nil
}

func (f *fakeSnippetRepo) index(id int64) int {
	return slices.IndexFunc(f.snippets, func(s model.Snippet) bool { return s.ID == id })
}

func (f *fakeSnippetRepo) GetByID(_ context.Context, id int64) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return nil, apperror.NotFound("snippet", id)
	}
	s := f.snippets[i]
	return &s, nil
}

func (f *fakeSnippetRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := slices.Clone(f.snippets)
	if opts.Order == model.OrderDescending {
		slices.Reverse(out)
	}
	if opts.Limit > 0 {
		start := min(opts.Offset, len(out))
		end := min(start+opts.Limit, len(out))
		out = out[start:end]
	}
	if out == nil {
		out = []model.Snippet{}
	}
	return out, nil
}

func (f *fakeSnippetRepo) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snippets), nil
}

func (f *fakeSnippetRepo) Update(_ context.Context, id int64, fn func(*model.Snippet) error) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return nil, apperror.NotFound("snippet", id)
	}
	working := f.snippets[i]
	if err := fn(&working); err != nil {
		return nil, err
	}
	// Owner and created are never written back.
	working.Owner = f.snippets[i].Owner
	working.Created = f.snippets[i].Created
	f.snippets[i] = working
	return &working, nil
}

func (f *fakeSnippetRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return apperror.NotFound("snippet", id)
	}
	f.snippets = slices.Delete(f.snippets, i, i+1)
	return nil
}

// failingRenderer accepts everything the catalog accepts but fails to render,
// as if the catalog and the highlighter disagreed.
type failingRenderer struct{}

func (failingRenderer) Render(highlight.Options) (string, error) {
	return "", highlight.ErrUnsupportedLanguage
}

// =========================================================================
// TEST HELPERS
// =========================================================================

// lineTable opens chroma's line-number layout in the document body. The
// stylesheet mentions .lntable on every render, so tests match the element.
const lineTable = `<table class="lntable">`

func ptr[T any](v T) *T { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*SnippetService, *fakeSnippetRepo) {
	t.Helper()
	repo := newFakeSnippetRepo()
	catalog := highlight.Default()
	return NewSnippetService(repo, catalog, highlight.NewRenderer(catalog), discardLogger()), repo
}

func mustCreate(t *testing.T, svc *SnippetService, code string, owner int64) *model.Snippet {
	t.Helper()
	s, err := svc.Create(context.Background(), model.SnippetFields{Code: ptr(code)}, owner)
	require.NoError(t, err)
	return s
}

func expectedHTML(t *testing.T, s *model.Snippet) string {
	t.Helper()
	html, err := highlight.NewRenderer(highlight.Default()).Render(highlight.Options{
		Code: s.Code, Language: s.Language, Style: s.Style, LineNumbers: s.ShowLineNumbers, Title: s.Title,
	})
	require.NoError(t, err)
	return html
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Fields
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_Defaults(t *testing.T) {
	svc, _ := newTestService(t)

	s := mustCreate(t, svc, "a = 1", 1)

	assert.Equal(t, "python", s.Language)
	assert.Equal(t, "friendly", s.Style)
	assert.False(t, s.ShowLineNumbers)
	assert.Empty(t, s.Title)
	assert.Equal(t, int64(1), s.Owner.ID)
	assert.NotEmpty(t, s.RenderedHTML)
	assert.Contains(t, s.RenderedHTML, `class="chroma"`)
	assert.NotContains(t, s.RenderedHTML, lineTable)
	assert.Equal(t, expectedHTML(t, s), s.RenderedHTML)
}

func TestCreate_Deterministic(t *testing.T) {
	svc, _ := newTestService(t)

	a := mustCreate(t, svc, "print('x')", 1)
	b := mustCreate(t, svc, "print('x')", 2)

	assert.Equal(t, a.RenderedHTML, b.RenderedHTML)
}

func TestCreate_AllFields(t *testing.T) {
	svc, _ := newTestService(t)

	s, err := svc.Create(context.Background(), model.SnippetFields{
		Title:           ptr("demo"),
		Code:            ptr("int main(void) { return 0; }"),
		ShowLineNumbers: ptr(true),
		Language:        ptr("c"),
		Style:           ptr("monokai"),
	}, 3)
	require.NoError(t, err)

	assert.Equal(t, "c", s.Language)
	assert.Equal(t, "monokai", s.Style)
	assert.Contains(t, s.RenderedHTML, "<h2>demo</h2>")
	assert.Contains(t, s.RenderedHTML, lineTable)
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		fields    model.SnippetFields
		owner     int64
		wantField string
	}{
		{"code missing", model.SnippetFields{}, 1, "code"},
		{"code empty", model.SnippetFields{Code: ptr("")}, 1, "code"},
		{"code blank", model.SnippetFields{Code: ptr("  \n\t")}, 1, "code"},
		{"owner missing", model.SnippetFields{Code: ptr("x")}, 0, "owner"},
		{"bad language", model.SnippetFields{Code: ptr("x"), Language: ptr("klingon")}, 1, "language"},
		{"bad style", model.SnippetFields{Code: ptr("x"), Style: ptr("plaid")}, 1, "style"},
		{"title too long", model.SnippetFields{Code: ptr("x"), Title: ptr(string(make([]byte, 101)))}, 1, "title"},
		{"owner supplied", model.SnippetFields{Code: ptr("x"), Owner: []byte(`{"id":2}`)}, 1, "owner"},
		{"created supplied", model.SnippetFields{Code: ptr("x"), Created: []byte(`"2024-01-01"`)}, 1, "created"},
		{"id supplied", model.SnippetFields{Code: ptr("x"), ID: []byte(`9`)}, 1, "id"},
		{"html supplied", model.SnippetFields{Code: ptr("x"), Highlighted: []byte(`"<b>"`)}, 1, "highlighted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t)

			_, err := svc.Create(context.Background(), tt.fields, tt.owner)

			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Contains(t, fieldsOf(t, err), tt.wantField)
			assert.Empty(t, repo.snippets, "nothing may be persisted")
		})
	}
}

func TestCreate_ReportsAllProblems(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), model.SnippetFields{Language: ptr("nope")}, 0)

	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "code")
	assert.Contains(t, fields, "owner")
	assert.Contains(t, fields, "language")
	assert.Contains(t, fields["language"], `"nope"`)
}

func TestCreate_RendererFailureAbortsWrite(t *testing.T) {
	repo := newFakeSnippetRepo()
	svc := NewSnippetService(repo, highlight.Default(), failingRenderer{}, discardLogger())

	_, err := svc.Create(context.Background(), model.SnippetFields{Code: ptr("x")}, 1)

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrValidation, "renderer failure is internal")
	assert.Empty(t, repo.snippets)
}

func TestCreate_RepositoryError(t *testing.T) {
	svc, repo := newTestService(t)
	repo.failWith = errors.New("disk full")

	_, err := svc.Create(context.Background(), model.SnippetFields{Code: ptr("x")}, 1)

	assert.ErrorContains(t, err, "disk full")
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_TitleRerenders(t *testing.T) {
	svc, _ := newTestService(t)
	original := mustCreate(t, svc, "a = 1", 1)

	updated, err := svc.Update(context.Background(), original.ID, model.SnippetFields{Title: ptr("demo")})
	require.NoError(t, err)

	assert.Equal(t, "demo", updated.Title)
	assert.Equal(t, original.Code, updated.Code)
	assert.Equal(t, original.Language, updated.Language)
	assert.Equal(t, original.Owner, updated.Owner)
	assert.Equal(t, original.Created, updated.Created)
	assert.NotEqual(t, original.RenderedHTML, updated.RenderedHTML)
	assert.Contains(t, updated.RenderedHTML, "<h2>demo</h2>")
	assert.Equal(t, expectedHTML(t, updated), updated.RenderedHTML)
}

func TestUpdate_MergesAllFieldsIntoRender(t *testing.T) {
	svc, _ := newTestService(t)
	s, err := svc.Create(context.Background(), model.SnippetFields{
		Code: ptr("x = 1"), Title: ptr("keep"), ShowLineNumbers: ptr(true),
	}, 1)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), s.ID, model.SnippetFields{Style: ptr("monokai")})
	require.NoError(t, err)

	// The new style is rendered together with the untouched title and line numbers.
	assert.Contains(t, updated.RenderedHTML, "<h2>keep</h2>")
	assert.Contains(t, updated.RenderedHTML, lineTable)
	assert.Equal(t, expectedHTML(t, updated), updated.RenderedHTML)

	got, err := svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.RenderedHTML, got.RenderedHTML, "stored HTML must not be stale")

	plain, err := svc.Update(context.Background(), s.ID, model.SnippetFields{ShowLineNumbers: ptr(false)})
	require.NoError(t, err)
	assert.NotContains(t, plain.RenderedHTML, lineTable)
	assert.Contains(t, plain.RenderedHTML, "<h2>keep</h2>")
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), 99, model.SnippetFields{Title: ptr("x")})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdate_ReadOnlyFieldsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	s := mustCreate(t, svc, "a", 1)

	for name, fields := range map[string]model.SnippetFields{
		"owner":   {Owner: []byte(`{"id":2}`)},
		"created": {Created: []byte(`"2020-01-01T00:00:00Z"`)},
	} {
		_, err := svc.Update(context.Background(), s.ID, fields)
		require.ErrorIs(t, err, apperror.ErrValidation, name)
		assert.Contains(t, fieldsOf(t, err), name)
	}

	got, _ := svc.Get(context.Background(), s.ID)
	assert.Equal(t, int64(1), got.Owner.ID)
}

func TestUpdate_InvalidLanguageLeavesSnippetUntouched(t *testing.T) {
	svc, _ := newTestService(t)
	s := mustCreate(t, svc, "a", 1)

	_, err := svc.Update(context.Background(), s.ID, model.SnippetFields{Code: ptr("b"), Language: ptr("nope")})
	require.ErrorIs(t, err, apperror.ErrValidation)

	got, _ := svc.Get(context.Background(), s.ID)
	assert.Equal(t, "a", got.Code)
}

func TestUpdate_RendererFailureAbortsWrite(t *testing.T) {
	repo := newFakeSnippetRepo()
	catalog := highlight.Default()
	good := NewSnippetService(repo, catalog, highlight.NewRenderer(catalog), discardLogger())
	s := mustCreate(t, good, "a", 1)

	bad := NewSnippetService(repo, catalog, failingRenderer{}, discardLogger())
	_, err := bad.Update(context.Background(), s.ID, model.SnippetFields{Code: ptr("b")})
	require.Error(t, err)

	got, _ := good.Get(context.Background(), s.ID)
	assert.Equal(t, "a", got.Code)
	assert.Equal(t, s.RenderedHTML, got.RenderedHTML)
}

func TestReplace_RequiresCode(t *testing.T) {
	svc, _ := newTestService(t)
	s := mustCreate(t, svc, "a", 1)

	_, err := svc.Replace(context.Background(), s.ID, model.SnippetFields{Title: ptr("t")})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, fieldsOf(t, err), "code")

	updated, err := svc.Replace(context.Background(), s.ID, model.SnippetFields{Code: ptr("b")})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Code)
}

// =========================================================================
// DELETE / GET TESTS
// =========================================================================

func TestDelete_ThenGetAndDeleteAgain(t *testing.T) {
	svc, _ := newTestService(t)
	s := mustCreate(t, svc, "a", 1)

	require.NoError(t, svc.Delete(context.Background(), s.ID))

	_, err := svc.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), s.ID), apperror.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), s.ID), apperror.ErrNotFound)
}

// =========================================================================
// LIST / PAGE TESTS
// =========================================================================

func TestList_Order(t *testing.T) {
	svc, _ := newTestService(t)
	var ids []int64
	for _, code := range []string{"a", "b", "c"} {
		ids = append(ids, mustCreate(t, svc, code, 1).ID)
	}

	asc, err := svc.List(context.Background(), model.OrderAscending)
	require.NoError(t, err)
	desc, err := svc.List(context.Background(), model.OrderDescending)
	require.NoError(t, err)

	idsOf := func(ss []model.Snippet) []int64 {
		out := make([]int64, len(ss))
		for i, s := range ss {
			out[i] = s.ID
		}
		return out
	}
	assert.Equal(t, ids, idsOf(asc))
	slices.Reverse(ids)
	assert.Equal(t, ids, idsOf(desc))
}

func TestPage(t *testing.T) {
	svc, _ := newTestService(t)
	for range 12 {
		mustCreate(t, svc, "x", 1)
	}

	first, err := svc.Page(context.Background(), model.OrderAscending, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, first.Count)
	assert.Len(t, first.Items, DefaultPageSize)
	assert.True(t, first.HasNext)

	second, err := svc.Page(context.Background(), model.OrderAscending, 2, 0)
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.False(t, second.HasNext)

	_, err = svc.Page(context.Background(), model.OrderAscending, 3, 0)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Page(context.Background(), model.OrderAscending, 0, 10)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	all, err := svc.Page(context.Background(), model.OrderAscending, 1, 1000)
	require.NoError(t, err)
	assert.Len(t, all.Items, 12)
}

func TestPage_EmptyFirstPage(t *testing.T) {
	svc, _ := newTestService(t)

	p, err := svc.Page(context.Background(), model.OrderDescending, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, p.Count)
	assert.Empty(t, p.Items)
	assert.False(t, p.HasNext)

	_, err = svc.Page(context.Background(), model.OrderDescending, 2, 10)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPage_HugePageNumber(t *testing.T) {
	svc, _ := newTestService(t)
	for range 3 {
		mustCreate(t, svc, "x", 1)
	}

	for _, page := range []int{math.MaxInt / 2, math.MaxInt/10 + 2, math.MaxInt} {
		_, err := svc.Page(context.Background(), model.OrderDescending, page, 10)
		assert.ErrorIs(t, err, apperror.ErrNotFound, "page %d", page)
	}
	_, err := svc.Page(context.Background(), model.OrderDescending, math.MaxInt, MaxPageSize)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCatalogAccessors(t *testing.T) {
	svc, _ := newTestService(t)

	assert.Contains(t, svc.Languages(), highlight.Choice{Key: "python", Label: "Python"})
	assert.NotEmpty(t, svc.Styles())
}

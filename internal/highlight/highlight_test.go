package highlight

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_ContainsDefaults(t *testing.T) {
	c := Default()

	assert.True(t, c.SupportsLanguage("python"))
	assert.True(t, c.SupportsLanguage("c"))
	assert.True(t, c.SupportsStyle("friendly"))
	assert.True(t, c.SupportsStyle("monokai"))

	assert.False(t, c.SupportsLanguage("not-a-language"))
	assert.False(t, c.SupportsStyle("not-a-style"))
}

func TestDefaultCatalog_IsBuiltOnce(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestCatalog_ChoicesAreSortedCopies(t *testing.T) {
	c := Default()

	langs := c.Languages()
	require.NotEmpty(t, langs)
	for i := 1; i < len(langs); i++ {
		assert.Less(t, langs[i-1].Key, langs[i].Key, "languages must be sorted and unique")
	}

	langs[0].Key = "mutated"
	assert.NotEqual(t, "mutated", c.Languages()[0].Key, "Languages() must return a copy")

	styles := c.Styles()
	require.NotEmpty(t, styles)
	for i := 1; i < len(styles); i++ {
		assert.Less(t, styles[i-1].Key, styles[i].Key)
	}
}

// lineTable opens the line-number layout in the document body.
const lineTable = `<table class="lntable">`

func TestRender_ProducesFullDocument(t *testing.T) {
	r := NewRenderer(Default())

	out, err := r.Render(Options{Code: "a = 1", Language: "python", Style: "friendly"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<style")
	assert.Contains(t, out, `class="chroma"`)
	assert.Contains(t, out, ">a</span>")
	assert.Contains(t, out, ">1</span>")
	assert.NotContains(t, out, "<h2>")
	assert.NotContains(t, out, lineTable)
	// The stylesheet always carries the table rules; only the body may not.
	assert.Contains(t, out, ".lntable")
}

func TestRender_IsDeterministic(t *testing.T) {
	r := NewRenderer(Default())
	opts := Options{Code: "def f(x):\n    return x * 2\n", Language: "python", Style: "monokai", LineNumbers: true, Title: "double"}

	first, err := r.Render(opts)
	require.NoError(t, err)
	second, err := r.Render(opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRender_Title(t *testing.T) {
	r := NewRenderer(Default())

	out, err := r.Render(Options{Code: "a = 1", Language: "python", Style: "friendly", Title: "demo"})
	require.NoError(t, err)

	assert.Contains(t, out, "<title>demo</title>")
	assert.Contains(t, out, "<h2>demo</h2>")
}

func TestRender_TitleIsEscaped(t *testing.T) {
	r := NewRenderer(Default())

	out, err := r.Render(Options{Code: "x", Language: "python", Style: "friendly", Title: "<b>x</b>"})
	require.NoError(t, err)

	assert.NotContains(t, out, "<h2><b>x</b></h2>")
	assert.Contains(t, out, "&lt;b&gt;x&lt;/b&gt;")
}

func TestRender_LineNumbersUseTable(t *testing.T) {
	r := NewRenderer(Default())

	out, err := r.Render(Options{Code: "a = 1\nb = 2\n", Language: "python", Style: "friendly", LineNumbers: true})
	require.NoError(t, err)

	assert.Contains(t, out, lineTable)
	assert.Contains(t, codeBlock(t, out), `<td class="lntd">`)
}

func TestRender_OptionsAreIndependent(t *testing.T) {
	r := NewRenderer(Default())
	base := Options{Code: "a = 1", Language: "python", Style: "friendly"}

	withTitle := base
	withTitle.Title = "demo"
	withLines := base
	withLines.LineNumbers = true
	withBoth := withLines
	withBoth.Title = "demo"

	plain, _ := r.Render(base)
	titled, _ := r.Render(withTitle)
	numbered, _ := r.Render(withLines)
	both, _ := r.Render(withBoth)

	// Adding a title must not change the code block, and vice versa.
	assert.Equal(t, codeBlock(t, plain), codeBlock(t, titled))
	assert.Equal(t, codeBlock(t, numbered), codeBlock(t, both))
	assert.NotEqual(t, codeBlock(t, plain), codeBlock(t, numbered))
	assert.NotContains(t, codeBlock(t, titled), lineTable)
	assert.Contains(t, codeBlock(t, both), lineTable)
}

func TestRender_UnsupportedIdentifiers(t *testing.T) {
	r := NewRenderer(Default())

	_, err := r.Render(Options{Code: "x", Language: "nope", Style: "friendly"})
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))

	_, err = r.Render(Options{Code: "x", Language: "python", Style: "nope"})
	assert.True(t, errors.Is(err, ErrUnsupportedStyle))
}

// codeBlock returns the part of the document after the optional heading.
func codeBlock(t *testing.T, doc string) string {
	t.Helper()
	start := strings.Index(doc, `<body class="bg">`)
	require.GreaterOrEqual(t, start, 0)
	body := doc[start:]
	if i := strings.Index(body, "</h2>"); i >= 0 {
		body = body[i+len("</h2>"):]
	} else {
		body = body[len(`<body class="bg">`):]
	}
	return strings.TrimSpace(body)
}

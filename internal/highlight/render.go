package highlight

import (
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
)

var (
	ErrUnsupportedLanguage = errors.New("highlight: unsupported language")
	ErrUnsupportedStyle    = errors.New("highlight: unsupported style")
)

// Options are the inputs of a single rendering.
type Options struct {
	Code        string
	Language    string
	Style       string
	LineNumbers bool
	Title       string
}

var documentTmpl = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style type="text/css">
{{.CSS}}
</style>
</head>
<body class="bg">
{{if .Title}}<h2>{{.Title}}</h2>
{{end}}{{.Body}}
</body>
</html>
`))

// Renderer turns Options into a full HTML document. The output is a pure
// function of the options: same input, byte-identical output.
type Renderer struct {
	catalog *Catalog
}

func NewRenderer(catalog *Catalog) *Renderer {
	return &Renderer{catalog: catalog}
}

// Render highlights opts.Code. Line numbers, when requested, use chroma's table
// layout. A non-empty title becomes the document title and an <h2> heading.
func (r *Renderer) Render(opts Options) (string, error) {
	lexer, ok := r.catalog.lexers[opts.Language]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, opts.Language)
	}
	style, ok := r.catalog.themes[opts.Style]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedStyle, opts.Style)
	}

	it, err := chroma.Coalesce(lexer).Tokenise(nil, opts.Code)
	if err != nil {
		return "", fmt.Errorf("highlight: tokenising %s: %w", opts.Language, err)
	}

	fmtOpts := []html.Option{html.WithClasses(true)}
	if opts.LineNumbers {
		fmtOpts = append(fmtOpts, html.WithLineNumbers(true), html.LineNumbersInTable(true))
	}
	formatter := html.New(fmtOpts...)

	var css, body strings.Builder
	if err := formatter.WriteCSS(&css, style); err != nil {
		return "", fmt.Errorf("highlight: writing css: %w", err)
	}
	if err := formatter.Format(&body, style, it); err != nil {
		return "", fmt.Errorf("highlight: formatting: %w", err)
	}

	var doc strings.Builder
	err = documentTmpl.Execute(&doc, struct {
		Title string
		CSS   template.CSS
		Body  template.HTML
	}{
		Title: opts.Title,
		CSS:   template.CSS(css.String()),
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("highlight: building document: %w", err)
	}
	return doc.String(), nil
}

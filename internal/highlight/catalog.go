// Package highlight renders source code as a standalone, syntax-highlighted
// HTML document.
//
// The supported languages and styles are fixed tables built once from chroma's
// registries. Callers validate identifiers against a Catalog before rendering;
// the Renderer still rejects unknown identifiers so that nothing unexpected is
// ever rendered with a fallback lexer or style.
package highlight

import (
	"sort"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Choice is one entry of a supported enumeration: the identifier clients send
// and a human-readable label.
type Choice struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Catalog holds the supported languages and styles. It is immutable after
// construction and safe for concurrent use.
type Catalog struct {
	languages []Choice
	styles    []Choice
	lexers    map[string]chroma.Lexer
	themes    map[string]*chroma.Style
}

// Default returns the process-wide catalog, built on first use.
var Default = sync.OnceValue(func() *Catalog {
	return NewCatalog(lexers.GlobalLexerRegistry.Lexers, styles.Names())
})

// NewCatalog builds a catalog from a lexer list and style names.
//
// Each lexer is keyed by its first alias; lexers without aliases are skipped and
// the first lexer claiming a key wins. Unknown style names are skipped.
func NewCatalog(all chroma.Lexers, styleNames []string) *Catalog {
	c := &Catalog{
		lexers: make(map[string]chroma.Lexer),
		themes: make(map[string]*chroma.Style),
	}

	for _, l := range all {
		cfg := l.Config()
		if cfg == nil || len(cfg.Aliases) == 0 {
			continue
		}
		key := cfg.Aliases[0]
		if _, dup := c.lexers[key]; dup {
			continue
		}
		c.lexers[key] = l
		c.languages = append(c.languages, Choice{Key: key, Label: cfg.Name})
	}

	for _, name := range styleNames {
		st, ok := styles.Registry[name]
		if !ok {
			continue
		}
		c.themes[name] = st
		c.styles = append(c.styles, Choice{Key: name, Label: name})
	}

	sort.Slice(c.languages, func(i, j int) bool { return c.languages[i].Key < c.languages[j].Key })
	sort.Slice(c.styles, func(i, j int) bool { return c.styles[i].Key < c.styles[j].Key })
	return c
}

// Languages returns a copy of the supported languages, sorted by key.
func (c *Catalog) Languages() []Choice {
	return append([]Choice(nil), c.languages...)
}

// Styles returns a copy of the supported styles, sorted by key.
func (c *Catalog) Styles() []Choice {
	return append([]Choice(nil), c.styles...)
}

func (c *Catalog) SupportsLanguage(key string) bool {
	_, ok := c.lexers[key]
	return ok
}

func (c *Catalog) SupportsStyle(key string) bool {
	_, ok := c.themes[key]
	return ok
}

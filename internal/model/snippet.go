// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: similar to classes in other languages,
// but without inheritance.
package model

import (
	"encoding/json"
	"time"
)

// Default values applied when a snippet is created without them.
const (
	DefaultLanguage = "python"
	DefaultStyle    = "friendly"
)

// Snippet represents a saved, syntax-highlighted code snippet.
//
// RenderedHTML is derived: the service recomputes it from Code, Language, Style,
// ShowLineNumbers and Title on every create and update. It is never serialized
// directly; the /highlight endpoint serves it as text/html.
type Snippet struct {
	ID              int64     `json:"id"`
	Created         time.Time `json:"created"`
	Title           string    `json:"title"`
	Code            string    `json:"code"`
	ShowLineNumbers bool      `json:"showLineNumbers"`
	Language        string    `json:"language"`
	Style           string    `json:"style"`
	Owner           UserRef   `json:"owner"`
	RenderedHTML    string    `json:"-"`
}

// SnippetFields is the client-suppliable input for create and update.
//
// WHY POINTERS?
// A nil pointer means "not present in the payload", which is different from an
// empty string or false. Update applies only the fields that are present.
//
// The json.RawMessage fields exist only so that their presence can be detected:
// they name fields a client must never set.
type SnippetFields struct {
	Title           *string `json:"title"`
	Code            *string `json:"code"`
	ShowLineNumbers *bool   `json:"showLineNumbers"`
	Language        *string `json:"language"`
	Style           *string `json:"style"`

	ID          json.RawMessage `json:"id,omitempty"`
	Owner       json.RawMessage `json:"owner,omitempty"`
	Created     json.RawMessage `json:"created,omitempty"`
	Highlighted json.RawMessage `json:"highlighted,omitempty"`
}

// ReadOnlyPresent returns the JSON names of read-only fields present in the input.
func (f SnippetFields) ReadOnlyPresent() []string {
	var names []string
	if len(f.ID) > 0 {
		names = append(names, "id")
	}
	if len(f.Owner) > 0 {
		names = append(names, "owner")
	}
	if len(f.Created) > 0 {
		names = append(names, "created")
	}
	if len(f.Highlighted) > 0 {
		names = append(names, "highlighted")
	}
	return names
}

// Order selects the ordering of a snippet listing.
type Order int

const (
	// OrderAscending lists oldest first. It is the zero value and the default.
	OrderAscending Order = iota
	// OrderDescending lists newest first.
	OrderDescending
)

// ParseOrder maps the query-string forms "created" and "-created" to an Order.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "created":
		return OrderAscending, true
	case "-created":
		return OrderDescending, true
	}
	return OrderAscending, false
}

func (o Order) String() string {
	if o == OrderDescending {
		return "-created"
	}
	return "created"
}

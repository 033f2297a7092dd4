package auth

import "github.com/sakif/snippet-share/internal/model"

// Actor is whoever is making a request. The zero value is the anonymous actor.
type Actor struct {
	UserID int64
}

// Anonymous is the actor of a request without a valid session.
var Anonymous = Actor{}

func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

// MayMutate reports whether actor may update or delete snippet: only its
// authenticated owner may. Reads are never gated by this rule.
//
// Every handler that mutates a snippet goes through this function; there is
// no second copy of the rule anywhere.
func MayMutate(actor Actor, snippet *model.Snippet) bool {
	if snippet == nil || !actor.Authenticated() {
		return false
	}
	return actor.UserID == snippet.Owner.ID
}

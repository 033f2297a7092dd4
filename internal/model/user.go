// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// Users sign up either with a username and password (PasswordHash set) or through
// GitHub OAuth (GitHubID set). Only ID and Username are ever exposed by the API.
//
// WHY GitHubID int64?
// GitHub user IDs are integers (e.g. 1234567). Zero means "not linked"; the
// repositories store it as NULL so the UNIQUE constraint ignores local accounts.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"-"`
	Created      time.Time `json:"created"`
}

// UserRef is the compact form of a user embedded in other resources.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Ref returns the compact reference for u.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username}
}

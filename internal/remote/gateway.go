// Package remote talks to the tournament REST API.
//
// Gateway is the capability the reconciliation engine depends on; Client is
// the HTTP implementation. Reachability answers "is the network usable right
// now" so callers can skip round-trips that are bound to fail.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/tourneysync/tourney/internal/tournament"
)

// Gateway is the remote source of truth for tournaments.
type Gateway interface {
	Login(ctx context.Context, email, password string) (Credential, error)
	ListTournaments(ctx context.Context, token string, page, limit int) ([]tournament.Tournament, Pagination, error)
	GetTournament(ctx context.Context, token, id string) (tournament.Tournament, error)
	CreateTournament(ctx context.Context, token string, t tournament.Tournament) (tournament.Tournament, error)
	UpdateTournament(ctx context.Context, token, id string, t tournament.Tournament) (tournament.Tournament, error)
	DeleteTournament(ctx context.Context, token, id string) error
}

// Credential is the result of a successful login.
type Credential struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Pagination describes where a list page sits in the full result.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	HasMore     bool `json:"hasMore"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408
}

// AuthError is a rejected login or an expired token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == 404
}

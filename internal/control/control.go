package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/tiebasign/internal/core/domain"
	redisclient "github.com/vietddude/tiebasign/internal/infra/redis"
	"github.com/vietddude/tiebasign/internal/infra/tieba"
	"github.com/vietddude/tiebasign/internal/notify"
)

// Remote is the forum service a run talks to.
type Remote interface {
	// Authenticate validates the credential and identifies the account
	Authenticate(ctx context.Context, bduss string) (tieba.Identity, error)

	// ListForums returns followed forums in display order
	ListForums(ctx context.Context, bduss string) ([]domain.Item, error)

	// FetchTBS returns the short-lived token required by Sign
	FetchTBS(ctx context.Context, bduss string) (string, error)

	// Sign performs one sign-in and returns the raw response body
	Sign(ctx context.Context, bduss, forumName, tbs string) (json.RawMessage, error)
}

// Notifier delivers a message to whatever channels are configured.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) bool
}

// Archive guards against concurrent runs for one account and keeps
// rendered reports. Backed by Redis when configured.
type Archive interface {
	AcquireLock(ctx context.Context, account, runID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, account, runID string) error
	ArchiveReport(ctx context.Context, account string, r redisclient.Report, keep int, ttl time.Duration) error
}

var (
	// ErrMissingCredential is returned when no BDUSS is configured.
	ErrMissingCredential = errors.New("BDUSS is not set")

	// ErrRunInProgress is returned when another run holds the account lock.
	ErrRunInProgress = errors.New("another run holds the lock for this account")
)

// AuthError means the credential was rejected. It always aborts the run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TokenError means the action token could not be fetched.
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("failed to fetch tbs: %v", e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// IsCredentialError reports whether err points at a bad or missing credential.
func IsCredentialError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || errors.Is(err, ErrMissingCredential)
}

// ExitCode maps a run result to a process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

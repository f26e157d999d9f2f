package types

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// ErrPoolShuttingDown is returned by the page pool once shutdown has begun.
var ErrPoolShuttingDown = eris.New("browser pool is shutting down")

// TransientScrapeError covers navigation timeouts, missing selectors and
// network failures. It is retried without touching the session.
type TransientScrapeError struct {
	Op  string
	Err error
}

func (e *TransientScrapeError) Error() string {
	return fmt.Sprintf("transient scrape error during %s: %v", e.Op, e.Err)
}

func (e *TransientScrapeError) Unwrap() error { return e.Err }

// ChallengeBlockedError means an anti-bot challenge was still showing when
// the wait ran out.
type ChallengeBlockedError struct {
	URL    string
	Waited time.Duration
}

func (e *ChallengeBlockedError) Error() string {
	return fmt.Sprintf("challenge not cleared on %s after %s", e.URL, e.Waited)
}

// PermanentBlockError is raised when the page carries a block marker.
// Retrying does not help.
type PermanentBlockError struct {
	URL    string
	Marker string
}

func (e *PermanentBlockError) Error() string {
	return fmt.Sprintf("permanently blocked on %s (marker %q)", e.URL, e.Marker)
}

// ParseError is raised when a page does not have the expected structure.
// Raw holds the offending fragment.
type ParseError struct {
	Msg string
	Raw string
}

func (e *ParseError) Error() string {
	if e.Raw == "" {
		return "parse error: " + e.Msg
	}
	return fmt.Sprintf("parse error: %s: %q", e.Msg, e.Raw)
}

// RetriesExhaustedError wraps the error of the last attempt.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

func IsPermanentBlock(err error) bool {
	var target *PermanentBlockError
	return errors.As(err, &target)
}

func IsChallenge(err error) bool {
	var target *ChallengeBlockedError
	return errors.As(err, &target)
}

func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsPermanentBlock(err),
		errors.Is(err, ErrPoolShuttingDown),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

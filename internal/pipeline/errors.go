package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a song request failed.
type Kind int

const (
	// KindDownload covers search, download and transcode failures.
	KindDownload Kind = iota
	// KindCredentials means the search backend cookies are missing or invalid.
	KindCredentials
	// KindNotFound means the search returned nothing.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindCredentials:
		return "credentials"
	case KindNotFound:
		return "not_found"
	default:
		return "download"
	}
}

// Error is the failure returned by Pipeline.Run.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err. Errors that did not come from the
// pipeline count as download failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindDownload
}

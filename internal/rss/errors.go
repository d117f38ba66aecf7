package rss

import (
	"errors"
	"fmt"

	"github.com/bryan-buckman/rssagg/internal/model"
)

// ParsingError reports content that is not a valid feed.
type ParsingError struct {
	Reason string
	Err    error
}

func (e *ParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse feed: %s: %v", e.Reason, e.Err)
	}
	return "parse feed: " + e.Reason
}

func (e *ParsingError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure: timeout, connection error,
// non-success status or an unreadable proxy response.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Classify maps an error from fetching or parsing to a user-facing kind.
func Classify(err error) model.ErrorKind {
	if err == nil {
		return model.ErrorNone
	}
	var perr *ParsingError
	if errors.As(err, &perr) {
		return model.ErrorRSS
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return model.ErrorNetwork
	}
	return model.ErrorUnknown
}

package bloodhound

import (
	"fmt"
)

// AuthError reports a failed login or an unusable session. Every
// authenticated operation requires a live session, so this can surface
// from any call, not just Login.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError reports a transport failure on an authenticated call
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// FormatError reports a malformed response body from the server
type FormatError struct {
	Op  string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: malformed response from server: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// RemoteError reports a non-success status for a request that reached the
// server. Body holds an excerpt of the response for the logs.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

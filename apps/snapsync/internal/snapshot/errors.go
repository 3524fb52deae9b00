package snapshot

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoFiles is returned when the walk produced nothing to fetch.
var ErrNoFiles = errors.New("no files found in repository listing")

// NetworkError is returned when a GET fails at the transport level or with a
// non-2xx status. StatusCode is zero for transport failures.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is returned when bytes cannot be decoded under the chosen encoding,
// after the low-confidence fallback has already been applied.
type DecodeError struct {
	URL      string
	Encoding string
	Err      error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s as %s: %v", e.URL, e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError is returned when serialized snapshot JSON does not parse.
// Window holds up to 10 characters of the input around Offset.
type ValidationError struct {
	Line   int
	Column int
	Offset int64
	Window string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid snapshot JSON at line %d column %d (offset %d) near %q: %v",
		e.Line, e.Column, e.Offset, e.Window, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CredentialError is returned when a required secret is not configured.
type CredentialError struct {
	Name string
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s is not set", e.Name)
}

// RemoteAPIError is returned when a collaborator API answers with a non-success status.
type RemoteAPIError struct {
	Op         string
	StatusCode int
	Header     http.Header
	Body       string
}

// Error implements the error interface.
func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a RemoteAPIError carrying a 404.
func IsNotFound(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// RunExistsError is returned by WorkflowEngine.StartRun when a run with the
// same ID was already started.
type RunExistsError struct {
	RunID string
}

// Error implements the error interface.
func (e RunExistsError) Error() string {
	return fmt.Sprintf("run %s already exists", e.RunID)
}

package api

import (
	"fmt"
	"strings"
)

// FileReadError is returned when a file referenced by an upload request cannot be read.
// It is raised while preparing parameters, before any request leaves the process.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("unable to read file '%s': %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// TransportError reports an HTTP-level failure: the connection could not be made
// or the service answered with a non-2xx status.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int    // 0 when no response was received
	Code       string // short machine-readable reason, e.g. "connection" or "http_502"
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Method, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is returned when a response body is not valid JSON or carries a
// service-reported error.
type ProtocolError struct {
	Code    string // value of the "error" field, if any
	Message string
	Body    []byte
}

func (e *ProtocolError) Error() string {
	if e.Code != "" && e.Code != e.Message {
		return fmt.Sprintf("service error %s: %s", e.Code, e.Message)
	}
	return e.Message
}

// RemoteJobError is returned when a polled project finished with a non-zero error id.
type RemoteJobError struct {
	ProjectID string
	ErrorID   string
	Message   string
}

func (e *RemoteJobError) Error() string {
	return fmt.Sprintf("error found.\nID: %s\nMessage: %s", e.ErrorID, e.Message)
}

// UnexpectedResponseError is returned when a response does not have the shape the
// endpoint is documented to return.
type UnexpectedResponseError struct {
	Body []byte
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("something went wrong.\n%s", e.Body)
}

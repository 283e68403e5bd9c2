package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 512

// ErrMissingBody is reported when a successful response carries no body.
var ErrMissingBody = errors.New("response has no body")

// TransportError is reported before any frame is read: the request could
// not be sent, the server answered with a non-success status, or the
// response had no body.
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

// NewTransportError builds a TransportError from a non-success response,
// keeping at most the first 512 bytes of its body.
func NewTransportError(resp *http.Response) *TransportError {
	te := &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.Body != nil {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		te.Body = strings.TrimSpace(string(data))
	}
	return te
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("transport error: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("transport error (status %d): %v", e.StatusCode, e.Err)
	case e.Body != "":
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message returns a short human-readable description of the status.
func (e *TransportError) Message() string {
	switch e.StatusCode {
	case 0:
		return "network connection failed, check the network"
	case http.StatusBadRequest:
		return "invalid request parameters"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusNotFound:
		return "requested resource does not exist"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return "server error"
	}
}

// ReadError is reported when pulling or decoding a chunk fails mid-stream.
// Pending counts the buffered characters that never formed a frame.
type ReadError struct {
	Err     error
	Pending int
}

func (e *ReadError) Error() string {
	if e.Pending > 0 {
		return fmt.Sprintf("stream read error (%d buffered chars dropped): %v", e.Pending, e.Err)
	}
	return fmt.Sprintf("stream read error: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

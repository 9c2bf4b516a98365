package agent

import "fmt"

// RequestError reports a transport-level failure: the endpoint could not be
// reached, the call timed out, or it answered with a non-2xx status.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ResponseFormatError reports a reply body that is not JSON or, in strict
// mode, matches none of the recognized shapes.
type ResponseFormatError struct {
	Reason string
	Body   string
	Err    error
}

func (e *ResponseFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent response: %s: %v", e.Reason, e.Err)
	}
	return "agent response: " + e.Reason
}

func (e *ResponseFormatError) Unwrap() error {
	return e.Err
}

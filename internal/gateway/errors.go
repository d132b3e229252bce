package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Body    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// newAPIError prefers the server's own `error` field over the generic
// status/body message.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{
		Status:  status,
		Body:    string(body),
		Message: fmt.Sprintf("API Error: %d - %s", status, body),
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}
	raw, ok := payload["error"]
	if !ok {
		return e
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		if msg != "" {
			e.Message = msg
		}
		return e
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil && compact.String() != "null" {
		e.Message = compact.String()
	}
	return e
}

// RequestError is a failure to complete the request or read its response.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("Request to %s failed: %s", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

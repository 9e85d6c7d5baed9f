package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the backend, decoded far enough for
// callers to present it: a top-level detail message plus any per-field
// validation errors. The raw body is retained for callers that need fields
// the generic decode does not cover (e.g. the polymorphic login response).
type APIError struct {
	StatusCode int
	Detail     string
	Fields     map[string][]string
	Raw        json.RawMessage
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// newAPIError decodes an error body. The backend reports either
// {"error": "..."} / {"detail": "..."} style messages or DRF-style
// field-to-messages validation maps; both are captured.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Raw:        json.RawMessage(body),
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	for _, key := range []string{"error", "detail", "message"} {
		if msg, ok := payload[key].(string); ok && apiErr.Detail == "" {
			apiErr.Detail = msg
		}
	}

	for field, value := range payload {
		messages, ok := value.([]any)
		if !ok {
			continue
		}
		for _, m := range messages {
			if msg, ok := m.(string); ok {
				if apiErr.Fields == nil {
					apiErr.Fields = make(map[string][]string)
				}
				apiErr.Fields[field] = append(apiErr.Fields[field], msg)
			}
		}
	}

	return apiErr
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == statusCode
}

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned for 401 responses, after the auth context
	// has run its forced logout.
	ErrUnauthorized = errors.New("client: unauthorized")
	// ErrMissingModelID is returned when a call needs a model id and has none.
	ErrMissingModelID = errors.New("client: model id is required")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// unmarshal a json response into v, or turn a non-2xx response into an error.
func unmarshalJSONResponse(resp *http.Response, v any) error {
	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if v == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response (status code = %d): %w", resp.StatusCode, err)
		}
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("cannot read server message: %s", err)}
	}
	return &APIError{Status: resp.StatusCode, Message: parseErrorMessage(body)}
}

func parseErrorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

package httpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// ResponseParser is the envelope returned by APIs that wrap their payload
// as {status, data, error}.
type ResponseParser[T any] struct {
	Status string         `json:"status"`
	Data   T              `json:"data"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error member of the envelope.
type ResponseError struct {
	Code         any    `json:"code"`
	Message      string `json:"message"`
	OptionalData any    `json:"optionalData,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Code == nil {
		return e.Message
	}
	return fmt.Sprintf("%v: %s", e.Code, e.Message)
}

// Err returns the envelope error, if any.
func (r *ResponseParser[T]) Err() error {
	if r.Error != nil {
		return r.Error
	}
	if strings.EqualFold(r.Status, StatusError) {
		return &ResponseError{Message: "request failed"}
	}
	return nil
}

// ParseResponse decodes the body of resp as an envelope. An empty body
// yields an envelope whose status follows the HTTP status code.
func ParseResponse[T any](resp *resty.Response) (*ResponseParser[T], error) {
	if resp == nil {
		return nil, fmt.Errorf("parse response: nil response")
	}
	out := &ResponseParser[T]{}
	body := resp.Body()
	if len(body) == 0 {
		out.Status = StatusSuccess
		if resp.IsError() {
			out.Status = StatusError
			out.Error = &ResponseError{Code: resp.StatusCode(), Message: resp.Status()}
		}
		return out, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return out, nil
}

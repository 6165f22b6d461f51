package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

const (
	headerRequestID = "X-Request-ID"

	ctxKeyRequestID = "quantserve.request_id"
	ctxKeyStatus    = "quantserve.status"
)

func writeJSON(c *echo.Context, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	c.Set(ctxKeyStatus, status)
	return c.Blob(status, echo.MIMEApplicationJSON, body)
}

func writeError(c *echo.Context, status int, msg string) error {
	return writeJSON(c, status, map[string]string{"error": msg})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, msg)
}

func writeServiceError(c *echo.Context, err error) error {
	return writeError(c, statusFor(err), err.Error())
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest(err.Error())
	}
	return out, nil
}

func requestIDOf(c *echo.Context) string {
	id, _ := c.Get(ctxKeyRequestID).(string)
	return id
}

func statusOf(c *echo.Context, err error) int {
	if status, ok := c.Get(ctxKeyStatus).(int); ok {
		return status
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

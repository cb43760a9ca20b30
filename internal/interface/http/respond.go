package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a success envelope.
func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: c.GetString(ctxRequestID),
	})
}

// writeJSONError writes an error envelope.
func writeJSONError(c *gin.Context, status int, code, message string) {
	c.JSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: c.GetString(ctxRequestID),
	})
}

// writeError maps a domain error kind onto a status code. Anything outside the
// taxonomy is logged and reported as 500 without its message.
func (s *Server) writeError(c *gin.Context, operation string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.Operation(operation),
			logger.String("path", c.Request.URL.Path),
			logger.Err(err))
		writeJSONError(c, status, code, "An unexpected error occurred")
		return
	}
	writeJSONError(c, status, code, shared.Message(err))
}

func statusFor(err error) (int, string) {
	switch {
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized, "unauthorized"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

// observe reports an application operation to metrics.
func (s *Server) observe(operation string, started time.Time, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveOperation(operation, started, err)
	}
}

// respond finishes a handler: error envelope on failure, data otherwise.
func (s *Server) respond(c *gin.Context, operation string, started time.Time, status int, data interface{}, err error) {
	s.observe(operation, started, err)
	if err != nil {
		s.writeError(c, operation, err)
		return
	}
	writeJSON(c, status, data)
}

// bind decodes a JSON body, reporting malformed input as a validation error.
func bind(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return shared.WrapError("http", c.FullPath(), shared.ErrInvalidFormat, "malformed request body", err)
	}
	return nil
}

// queryInt reads an integer query parameter.
func queryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewDomainError("http", c.FullPath(), shared.ErrInvalidFormat, key+" must be an integer")
	}
	return n, nil
}

// queryBool reads a boolean query parameter.
func queryBool(c *gin.Context, key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return defaultValue
	}
	return b
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"devfest/internal/camera"
	"devfest/internal/draw"
	"devfest/internal/redemption"
)

var (
	errBadRequest      = errors.New("bad request")
	errUnauthenticated = errors.New("missing bearer token")
	errForbidden       = errors.New("role not allowed")
	errRemoteDisabled  = errors.New("event backend not configured")
	errInternal        = errors.New("internal server error")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// first match wins
var errorMappings = []errorMapping{
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{errUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{errForbidden, http.StatusForbidden, "forbidden"},
	{redemption.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{redemption.ErrRemote, http.StatusBadGateway, "remote_error"},
	{errRemoteDisabled, http.StatusServiceUnavailable, "remote_disabled"},
	{draw.ErrPoolNotFound, http.StatusNotFound, "pool_not_found"},
	{draw.ErrEmptyPool, http.StatusUnprocessableEntity, "empty_pool"},
	{draw.ErrSpinInProgress, http.StatusConflict, "spin_in_progress"},
	{draw.ErrPoolLoading, http.StatusConflict, "pool_loading"},
	{draw.ErrPoolDrawn, http.StatusConflict, "pool_drawn"},
	{camera.ErrSessionNotFound, http.StatusNotFound, "scanner_not_found"},
	{camera.ErrSessionStopped, http.StatusConflict, "scanner_stopped"},
	{camera.ErrCameraAccessDenied, http.StatusForbidden, "camera_access_denied"},
	{camera.ErrCameraUnavailable, http.StatusServiceUnavailable, "camera_unavailable"},
	{camera.ErrDecodeEngineFault, http.StatusInternalServerError, "decode_engine_fault"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError aborts the request with the JSON error body for err.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	requestID := c.GetString(requestIDKey)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("request_id", requestID).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", status).
		Msg("request failed")

	message := err.Error()
	if errors.Is(err, errInternal) {
		message = errInternal.Error()
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/inaturalist"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/reconcile"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// SpeciesResponse is the body of the project species endpoint.
type SpeciesResponse struct {
	ProjectID string `json:"projectId"`
	Username  string `json:"username,omitempty"`
	*reconcile.Result
	// SecondaryError explains a primary-only list
	SecondaryError string `json:"secondaryError,omitempty"`
}

// UserResponse is the body of the user lookup endpoint.
type UserResponse struct {
	Username  string `json:"username"`
	ID        int    `json:"id"`
	AvatarURL string `json:"avatar_url"`
}

func (s *Server) getProjectSpecies(c echo.Context) error {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		return s.handleError(c, nil, "project id is required", http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	username := strings.TrimSpace(c.QueryParam("user"))

	var (
		res *reconcile.Result
		err error
	)
	if username == "" {
		res, err = s.reconciler.Reconcile(ctx, projectID)
	} else {
		if s.users == nil {
			return s.handleError(c, nil, "user filtering is not enabled", http.StatusBadRequest)
		}
		var userID int
		if userID, err = s.users.UserID(ctx, username); err != nil {
			return s.handleError(c, err, "failed to look up user", statusFor(err))
		}
		res, err = s.reconciler.ReconcileUser(ctx, projectID, userID)
	}
	if err != nil {
		return s.handleError(c, err, "failed to build species list", statusFor(err))
	}

	body := SpeciesResponse{ProjectID: projectID, Username: username, Result: res}
	if res.SecondaryErr != nil {
		body.SecondaryError = res.SecondaryErr.Error()
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) getUser(c echo.Context) error {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		return s.handleError(c, nil, "username is required", http.StatusBadRequest)
	}

	id, err := s.users.UserID(c.Request().Context(), username)
	if err != nil {
		return s.handleError(c, err, "failed to look up user", statusFor(err))
	}
	return c.JSON(http.StatusOK, UserResponse{
		Username:  username,
		ID:        id,
		AvatarURL: inaturalist.AvatarURLForID(id),
	})
}

func (s *Server) getCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Stats())
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// statusFor maps an upstream failure to the status returned to clients.
func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.New().String()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	s.log.WithContext(c.Request().Context()).Error("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()),
		logger.Error(err))
	return c.JSON(code, resp)
}

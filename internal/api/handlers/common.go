package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// getTenantID extracts the authenticated tenant ID from context
func getTenantID(c *gin.Context) (int64, error) {
	val, exists := c.Get("tenant_id")
	if !exists {
		return 0, fmt.Errorf("tenant ID not found in context")
	}

	id, ok := val.(int64)
	if !ok {
		return 0, fmt.Errorf("invalid tenant ID type in context")
	}
	return id, nil
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondDomainError maps a domain error to the right HTTP status
func respondDomainError(c *gin.Context, err error) {
	var domainErr *domainerrors.DomainError
	if !errors.As(err, &domainErr) {
		respondInternalError(c, "An unexpected error occurred")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case domainerrors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, domainerrors.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domainerrors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case domainerrors.IsConflict(err):
		status = http.StatusConflict
	case domainerrors.IsServiceUnavailable(err):
		status = http.StatusServiceUnavailable
	}

	respondError(c, status, domainErr.Code, domainErr.Message, domainErr.Details)
}

// respondUnauthorized sends an unauthorized error
func respondUnauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, det)
}

// respondInternalError sends an internal server error
func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// respondNotFound sends a not found error
func respondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/mapping"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/interfaces/http/dto"
	"github.com/pulseboard/backend/internal/interfaces/http/middleware"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// getTenantID extracts the tenant ID resolved by the tenant middleware
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	tenantUUID, err := middleware.GetTenantUUID(c)
	if err != nil {
		return uuid.Nil, err
	}
	if tenantUUID == uuid.Nil {
		return uuid.Nil, errors.New("handler: tenant ID not found in context")
	}
	return tenantUUID, nil
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	statusCode := dto.GetHTTPStatus(code)
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// UnprocessableEntity sends a 422 unprocessable entity response
func (h *BaseHandler) UnprocessableEntity(c *gin.Context, code, message string) {
	h.Error(c, http.StatusUnprocessableEntity, code, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	requestID := getRequestID(c)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	))
}

// domainErrorCode maps a domain sentinel error to an API error code.
// The second return value reports whether the error was recognized.
func domainErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, connector.ErrConnectorNotFound),
		errors.Is(err, connector.ErrSyncLogNotFound),
		errors.Is(err, webhook.ErrDeliveryNotFound),
		errors.Is(err, mapping.ErrMappingNotFound),
		errors.Is(err, mapping.ErrRecordNotFound):
		return dto.ErrCodeNotFound, true
	case errors.Is(err, connector.ErrConnectorExists),
		errors.Is(err, mapping.ErrMappingConflict):
		return dto.ErrCodeAlreadyExists, true
	case errors.Is(err, connector.ErrSyncInProgress):
		return dto.ErrCodeSyncInProgress, true
	case errors.Is(err, connector.ErrConnectorDisabled),
		errors.Is(err, connector.ErrConnectorDeleted),
		errors.Is(err, connector.ErrMissingCredentials),
		errors.Is(err, connector.ErrSyncAlreadyFinalized):
		return dto.ErrCodeInvalidState, true
	case errors.Is(err, connector.ErrInvalidProvider),
		errors.Is(err, connector.ErrUnsupportedProvider),
		errors.Is(err, connector.ErrInvalidSyncType),
		errors.Is(err, webhook.ErrUnsupportedProvider):
		return dto.ErrCodeInvalidInput, true
	case errors.Is(err, connector.ErrProviderAuth):
		return dto.ErrCodeProviderAuth, true
	case errors.Is(err, connector.ErrProviderRateLimited),
		errors.Is(err, connector.ErrProviderUnavailable),
		errors.Is(err, connector.ErrProviderRequestFailed),
		errors.Is(err, connector.ErrProviderInvalidResponse):
		return dto.ErrCodeProviderUnavailable, true
	case errors.Is(err, webhook.ErrVerificationFailed),
		errors.Is(err, webhook.ErrTimestampOutOfRange):
		return dto.ErrCodeSignatureInvalid, true
	case errors.Is(err, webhook.ErrParseFailed):
		return dto.ErrCodeInvalidInput, true
	case errors.Is(err, webhook.ErrProcessingFailed):
		return dto.ErrCodeProcessingFailed, true
	}
	return "", false
}

// HandleError converts domain errors to HTTP responses. Unrecognized
// errors come back as a generic 500 so internals never leak to clients.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	if code, ok := domainErrorCode(err); ok {
		statusCode := dto.GetHTTPStatus(code)
		c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, err.Error(), requestID))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}

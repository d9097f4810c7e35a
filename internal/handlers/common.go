package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/services"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging and error mapping for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"remote_addr", c.ClientIP(),
		"user_id", ActorID(c),
	}
	fields = append(fields, additionalFields...)
	h.logger.Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"user_id", ActorID(c),
	}
	fields = append(fields, additionalFields...)
	h.logger.LogError(err, message, fields...)
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a positive integer",
		})
		return 0
	}
	return uint(id)
}

// handleServiceError maps service errors onto the HTTP error taxonomy.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	// Handle custom error types first
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	if lockErr, ok := services.IsActivityLocked(err); ok {
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Activity is completed and locked",
			Code:    "activity_locked",
			Details: lockErr,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	case services.IsUnauthorized(err):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrSlideOutOfRange), errors.Is(err, services.ErrCheckpointBlocked):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrSessionNotWritable),
		errors.Is(err, services.ErrSessionInvalidTransition),
		errors.Is(err, services.ErrActivityNotLocked):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}

// ===== IDENTITY =====

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	contextUserID   = "user_id"
	contextUserRole = "user_role"
)

// IdentityMiddleware trusts the identity headers stamped by the gateway in front
// of this service. Requests without them never reach a handler.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		role := models.UserRole(c.GetHeader(headerUserRole))
		if userID == "" || (role != models.RoleStudent && role != models.RoleTeacher) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Missing or invalid identity headers",
			})
			return
		}
		c.Set(contextUserID, userID)
		c.Set(contextUserRole, role)
		c.Next()
	}
}

// ActorID returns the authenticated caller's identity, empty when unauthenticated.
func ActorID(c *gin.Context) string {
	return c.GetString(contextUserID)
}

// ActorRole returns the authenticated caller's role.
func ActorRole(c *gin.Context) models.UserRole {
	if role, exists := c.Get(contextUserRole); exists {
		if r, ok := role.(models.UserRole); ok {
			return r
		}
	}
	return ""
}

// RequireTeacher guards teacher-only routes.
func RequireTeacher() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorRole(c) != models.RoleTeacher {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: "Teacher role required",
			})
			return
		}
		c.Next()
	}
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/stockbook/internal/apperror"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError turns an error kind into a status. Internal errors never echo
// their message.
func mapError(err error) (int, errorPayload) {
	kind := apperror.KindOf(err)
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorPayload{Type: string(kind), Message: err.Error()}
	case apperror.KindNotFound:
		return http.StatusNotFound, errorPayload{Type: string(kind), Message: err.Error()}
	case apperror.KindInsufficientStock:
		return http.StatusConflict, errorPayload{Type: string(kind), Message: err.Error()}
	case apperror.KindAuthorization:
		return http.StatusForbidden, errorPayload{Type: string(kind), Message: err.Error()}
	case apperror.KindFxUnavailable, apperror.KindMigration:
		return http.StatusServiceUnavailable, errorPayload{Type: string(kind), Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

package middleware

import (
	"accidentwatch/models"
	"accidentwatch/utils"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string) *ErrorHandler {
	return &ErrorHandler{
		environment: environment,
		logger:      logrus.StandardLogger(),
	}
}

// Handle recovers panics and renders errors attached with c.Error when the
// handler has not written a response itself.
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				eh.logger.WithFields(logrus.Fields{
					"panic":      fmt.Sprintf("%v", r),
					"request_id": c.GetString("request_id"),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"stack":      string(debug.Stack()),
				}).Error("Panic recovered")

				if !c.Writer.Written() {
					utils.InternalServerErrorResponse(c, "An unexpected error occurred")
				}
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		eh.processError(c, c.Errors.Last().Err)
	}
}

func (eh *ErrorHandler) processError(c *gin.Context, err error) {
	eh.logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
	}).Warn("Request failed")

	var validationErrs validator.ValidationErrors
	var serviceErr utils.ServiceError

	switch {
	case errors.As(err, &validationErrs):
		utils.ErrorResponse(c, http.StatusBadRequest, "Validation failed", validationErrs.Error())
	case errors.As(err, &serviceErr):
		utils.ServiceErrorResponse(c, err)
	case errors.Is(err, mongo.ErrNoDocuments):
		utils.NotFoundResponse(c, "Resource")
	case mongo.IsTimeout(err):
		eh.respond(c, http.StatusGatewayTimeout, utils.ErrCodeDatabase, "Database operation timed out", err)
	case mongo.IsNetworkError(err):
		eh.respond(c, http.StatusServiceUnavailable, utils.ErrCodeDatabase, "Database connection error", err)
	default:
		eh.respond(c, http.StatusInternalServerError, models.ErrCodeInternal, "An unexpected error occurred", err)
	}
}

func (eh *ErrorHandler) respond(c *gin.Context, status int, code, message string, err error) {
	apiErr := &models.APIError{Code: code, Message: message}
	if eh.environment == "development" {
		apiErr.Details = err.Error()
	}
	c.JSON(status, models.APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiErr,
		Timestamp: time.Now(),
	})
}

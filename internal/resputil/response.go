package resputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wrenware/showcase/pkg/apperrors"
)

// Response is the JSON envelope every endpoint returns. The type
// parameter only exists for the swagger annotations on handlers.
type Response[T any] struct {
	Code ErrorCode `json:"code"`
	Data T         `json:"data"`
	Msg  string    `json:"msg"`
}

func httpStatus(code ErrorCode) int {
	switch code {
	case OK:
		return http.StatusOK
	case InvalidRequest, ValidationFailed, MigrationCompleted:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AlreadyRunning:
		return http.StatusConflict
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wrapResponse(c *gin.Context, msg string, data any, code ErrorCode) {
	c.JSON(httpStatus(code), gin.H{
		"code": code,
		"data": data,
		"msg":  msg,
	})
}

func Success(c *gin.Context, data any) {
	wrapResponse(c, "", data, OK)
}

func Error(c *gin.Context, msg string, errorCode ErrorCode) {
	wrapResponse(c, msg, nil, errorCode)
}

// WrapError maps the error taxonomy onto codes so handlers do not
// string-match failures.
func WrapError(c *gin.Context, err error) {
	var (
		validation  *apperrors.ValidationError
		notFound    *apperrors.NotFoundError
		ioErr       *apperrors.IOError
		unavailable *apperrors.StoreUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		wrapResponse(c, validation.Error(), validation.Violations, ValidationFailed)
	case errors.As(err, &notFound):
		Error(c, notFound.Error(), NotFound)
	case errors.As(err, &unavailable):
		Error(c, unavailable.Error(), StoreUnavailable)
	case errors.As(err, &ioErr):
		Error(c, ioErr.Error(), NotSpecified)
	default:
		Error(c, err.Error(), NotSpecified)
	}
}

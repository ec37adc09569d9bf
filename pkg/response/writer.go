// Package response renders JSON bodies and Errno failures for gin handlers.
//
// Successful API bodies are written as-is so that existing clients keep
// their payload shape. Failures always use the envelope:
//
//	{"code": 2001001, "message": "Query must not be empty", "request_id": "..."}
package response

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/essay-qa/pkg/infra/middleware"
	"github.com/kart-io/essay-qa/pkg/utils/errors"
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// OK sends data with status 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail sends an error response using Errno. The language of the message
// follows the Accept-Language header.
func Fail(c *gin.Context, e *errors.Errno) {
	body := ErrorBody{
		Code:      e.Code,
		Message:   e.Message(lang(c)),
		RequestID: middleware.GetRequestID(c.Request.Context()),
	}
	if cause := e.Unwrap(); cause != nil {
		body.Detail = cause.Error()
		_ = c.Error(cause)
	}
	c.AbortWithStatusJSON(e.HTTPStatus(), body)
}

// FailWithBind reports a request body that could not be bound.
func FailWithBind(c *gin.Context, err error) {
	Fail(c, errors.ErrInvalidParam.WithMessage("invalid request body: "+err.Error()))
}

func lang(c *gin.Context) string {
	if strings.HasPrefix(strings.ToLower(c.GetHeader("Accept-Language")), "zh") {
		return "zh"
	}
	return "en"
}

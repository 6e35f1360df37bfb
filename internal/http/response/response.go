package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps a service error onto its status and code. Internal failures do
// not leak their message.
func RespondServiceError(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	if kind == apierr.KindInternal {
		_ = c.Error(err)
		RespondError(c, http.StatusInternalServerError, string(apierr.KindInternal), errors.New("internal error"))
		return
	}
	RespondError(c, apierr.StatusOf(err), string(kind), err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

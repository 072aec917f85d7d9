package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/response"
)

// errorCode maps the error taxonomy onto envelope codes.
func errorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, apperr.ErrDuplicateActiveSubscription),
		errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrAlreadyCancelled):
		return response.APIResponseCodeConflict
	case errors.Is(err, apperr.ErrPaymentNotStarted),
		errors.Is(err, apperr.ErrGateway),
		errors.Is(err, apperr.ErrGatewayRejected):
		return response.APIResponseCodeGateway
	default:
		return response.APIResponseCodeError
	}
}

// writeError answers with HTTP 200 and the error envelope, like every other
// JSON endpoint. Unexpected errors are logged and their text is not exposed.
func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := errorCode(err)
	msg := err.Error()
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("request failed", "path", c.FullPath(), "err", err)
		msg = "internal error"
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, msg))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}

// Package handlers implements the HTTP endpoints of the chat access service.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/application/dto"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
)

// linkFailureMessage is what every stale or unknown chat link shows the end
// user. The precise cause stays in logs and metrics, never in the response.
const linkFailureMessage = "chat link is invalid or expired"

// respondError renders an error in the response envelope. Token validation
// failures are collapsed into one undifferentiated client message.
func respondError(c *gin.Context, err error) {
	if errors.IsLinkFailure(err) {
		c.JSON(http.StatusGone, dto.Fail("link_invalid", linkFailureMessage))
		return
	}

	appErr, ok := errors.AsAppError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, dto.Fail("internal", "internal server error"))
		return
	}

	switch appErr.Code() {
	case errors.CodeInternal, errors.CodeInvariantViolation, errors.CodeExhaustedRetries:
		// never leak internals
		c.JSON(appErr.HTTPStatus(), dto.Fail(string(appErr.Code()), "internal server error"))
	default:
		c.JSON(appErr.HTTPStatus(), dto.Fail(string(appErr.Code()), appErr.Error()))
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
)

// RespondError translates a service error into its HTTP shape. The code
// field carries the error taxonomy so clients can branch without parsing
// messages.
func RespondError(c *gin.Context, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	body := gin.H{"error": msg}
	if code := apierr.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.JSON(apierr.StatusOf(err), body)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

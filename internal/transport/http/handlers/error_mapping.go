package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// ErrorCase pairs a sentinel error with the transport answer it maps to.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError answers with the first case matching err, or the
// fallback when none does.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	status, message := fallbackStatus, fallbackMessage
	for _, mapping := range cases {
		if mapping.Err != nil && errors.Is(err, mapping.Err) {
			status, message = mapping.Status, mapping.Message
			break
		}
	}

	c.JSON(status, NewErrorResponse(c, message))
}

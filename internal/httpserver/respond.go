package httpserver

import (
	"net/http"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// writeError maps the error taxonomy onto HTTP statuses. Anything unmapped
// is a 500 with a generic body; the detail goes to the log, not the client.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidState),
		errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrAlreadyDeleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

package transport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var denied *entity.AccessDeniedError
	switch {
	case errors.As(err, &denied):
		if denied.Challenge != "" {
			c.Header("WWW-Authenticate", denied.Challenge)
		}
		if denied.Location != "" {
			c.Redirect(denied.Status, denied.Location)
			return
		}
		c.JSON(denied.Status, ErrorResponse{Error: "access denied"})
	case errors.Is(err, errBadRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrUpstreamIO):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

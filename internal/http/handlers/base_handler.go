// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voltmate/internal/modules/engineer"
	"voltmate/internal/modules/recommend"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeSchedulingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recommend.ErrNoLocation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, engineer.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

package handlers

import (
	"errors"
	"net/http"

	"mission-control/board/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// handleError maps store errors onto HTTP statuses. what names the resource
// for the not-found message.
func handleError(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	case errors.Is(err, store.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": what + " already exists"})
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrBackendUnavailable):
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("storage unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"actpath-backend/internal/service"
	"actpath-backend/utilities"
)

// respondError writes err as {"error": message} with the status for its kind.
// Storage failures are logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	switch service.KindOf(err) {
	case service.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case service.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case service.KindUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
}

// currentUserID reads the id set by the auth middleware, aborting with 401
// when it is missing.
func currentUserID(c *gin.Context) (uint, bool) {
	id, _, ok := utilities.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	}
	return id, ok
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// errorWriter maps service error kinds to HTTP responses.
type errorWriter struct {
	log zerolog.Logger
}

func (w errorWriter) respond(c *gin.Context, err error) {
	var (
		capErr      *service.CapacityError
		groveErr    *service.GroveCapacityError
		conflictErr *service.ConflictError
		validErr    *service.ValidationError
		expiredErr  *service.ExpiredError
	)

	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        err.Error(),
			"code":         "memory_limit_reached",
			"currentCount": capErr.CurrentCount,
			"limit":        capErr.Limit,
		})

	case errors.As(err, &groveErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        err.Error(),
			"code":         "grove_full",
			"currentCount": groveErr.TreeCount,
			"limit":        groveErr.TreeLimit,
		})

	case errors.As(err, &conflictErr):
		body := gin.H{"error": conflictErr.Reason}
		if conflictErr.TransferID != "" {
			body["transferId"] = conflictErr.TransferID
			body["transferStatus"] = conflictErr.TransferStatus
		}
		if conflictErr.ExpiresAt != nil {
			body["expiresAt"] = conflictErr.ExpiresAt
		}
		if conflictErr.RootID != "" {
			body["rootId"] = conflictErr.RootID
		}
		c.JSON(http.StatusConflict, body)

	case errors.As(err, &validErr):
		body := gin.H{"error": validErr.Error()}
		if validErr.Field != "" {
			body["field"] = validErr.Field
		}
		c.JSON(http.StatusBadRequest, body)

	case errors.As(err, &expiredErr):
		c.JSON(http.StatusGone, gin.H{"error": expiredErr.Error()})

	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCapacityExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrDeliveryFailed):
		w.log.Warn().Err(err).Str("path", c.FullPath()).Msg("notification delivery failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not deliver the invitation, please try again"})

	default:
		_ = c.Error(err)
		w.log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled service error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bindJSON writes 400 and reports false when the body does not bind.
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

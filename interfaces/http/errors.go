package http

import (
	"errors"
	"net/http"

	"reelpipe/domain/model"
	"reelpipe/infrastructure/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest), errors.Is(err, model.ErrEmptyVideoList), errors.Is(err, model.ErrNoProxy):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrTaskNotFound), errors.Is(err, model.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateTask), errors.Is(err, model.ErrAccountBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.GetLogger().WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

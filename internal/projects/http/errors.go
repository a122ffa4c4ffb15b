package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/repository"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProjectDoesNotExist),
		errors.Is(err, domain.ErrStorageEntityNotFound),
		errors.Is(err, domain.ErrWavItemDoesNotExist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProjectAlreadyExists),
		errors.Is(err, domain.ErrProjectDirectoryAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidServiceParameters),
		errors.Is(err, domain.ErrInvalidProjectName),
		errors.Is(err, domain.ErrInvalidWavName),
		errors.Is(err, repository.ErrMalformedArchive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response for err. Validation failures are reported
// with 200 and status INVALID so the designer can show them inline.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusOK, gin.H{"ok": false, "status": "INVALID", "errors": verr.Items})
		return
	}

	var ierr *domain.IncompatibleVersionError
	if errors.As(err, &ierr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":              false,
			"error":           ierr.Error(),
			"className":       "IncompatibleProjectVersion",
			"projectVersion":  ierr.Stored,
			"expectedVersion": ierr.Expected,
		})
		return
	}

	var uerr *domain.UpgradeError
	if errors.As(err, &uerr) {
		h.log.Error("upgrade failed", zap.String("project", uerr.Project), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":             false,
			"error":          uerr.Error(),
			"className":      "UpgradeFailed",
			"fromVersion":    uerr.From,
			"targetVersion":  uerr.To,
			"reachedVersion": uerr.Reached,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"ok": false, "error": err.Error()})
}

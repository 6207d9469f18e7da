package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"alcyxob/coaching-platform/internal/domain"
)

// statusForCode maps engine error codes to HTTP statuses.
func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeInvalidDiff:
		return http.StatusBadRequest
	case domain.CodeHardSafetyBlocked:
		return http.StatusUnprocessableEntity
	case domain.CodeWeekLocked, domain.CodeSessionLocked, domain.CodeProposalConflict,
		domain.CodeInvalidStatus, domain.CodeUndoNotAvailable:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondWithError aborts with the status for err. Coded errors are returned
// as-is; anything else is logged and hidden behind a generic message.
func respondWithError(c *gin.Context, logger *slog.Logger, err error) {
	var e *domain.Error
	if !errors.As(err, &e) {
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		abortWithError(c, http.StatusInternalServerError, "Internal server error.")
		return
	}
	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Reasons) > 0 {
		body["reasons"] = e.Reasons
	}
	c.AbortWithStatusJSON(statusForCode(e.Code), body)
}

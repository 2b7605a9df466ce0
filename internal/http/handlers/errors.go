package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/questweaver/internal/data/repos/quests"
	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/http/response"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
	"github.com/yungbote/questweaver/internal/platform/apierr"
	"github.com/yungbote/questweaver/internal/services"
)

// toAPIError maps service errors onto HTTP statuses.
func toAPIError(err error) *apierr.Error {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, quest.ErrInvalidRequest):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, quests.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrTooManyRuns):
		return apierr.New(http.StatusTooManyRequests, "too_many_runs", err)
	case errors.Is(err, pipeline.ErrMissingCredential):
		return apierr.New(http.StatusServiceUnavailable, "backend_unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	default:
		return apierr.New(http.StatusInternalServerError, "generation_failed", err)
	}
}

func writeError(c *gin.Context, err error) {
	response.RespondAPIError(c, toAPIError(err))
}

package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/platform/apierr"
	pkgerr "github.com/mizukilab/kaiseki-backend/internal/pkg/errors"
)

// RespondServiceError maps a service-layer error onto the wire.
// Engine rejections are client errors: validation and reference
// failures are bad requests, computation failures report the step that
// broke.
func RespondServiceError(c *gin.Context, err error) {
	if ae := apierr.From(err); ae != nil {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		RespondError(c, status, ae.Code, err)
		return
	}
	switch {
	case engine.IsValidation(err):
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case engine.IsReference(err):
		RespondError(c, http.StatusBadRequest, "reference_error", err)
	case engine.IsComputation(err):
		RespondError(c, http.StatusUnprocessableEntity, "computation_error", err)
	case errors.Is(err, pkgerr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerr.ErrForbidden):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, pkgerr.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, pkgerr.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, pkgerr.ErrConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/response"
)

type availabilityUpdater interface {
	Update(ctx context.Context, req dto.AvailabilityUpdateRequest) (*dto.AvailabilityUpdateResult, error)
}

// AvailabilityHandler exposes teacher availability maintenance. Updates feed
// the change feed the repair engine later consumes.
type AvailabilityHandler struct {
	availability availabilityUpdater
	logger       *zap.Logger
}

func NewAvailabilityHandler(availability availabilityUpdater, logger *zap.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityHandler{availability: availability, logger: logger}
}

// Update applies availability statements for the teacher in the path.
func (h *AvailabilityHandler) Update(c *gin.Context) {
	var req dto.AvailabilityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	req.TeacherID = c.Param("id")

	result, err := h.availability.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

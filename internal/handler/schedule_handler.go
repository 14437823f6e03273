package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/models"
	appErrors "github.com/noah-isme/uni-timetable-api/pkg/errors"
	"github.com/noah-isme/uni-timetable-api/pkg/jobs"
	"github.com/noah-isme/uni-timetable-api/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResult, error)
}

type timetableRepairer interface {
	Repair(ctx context.Context, req dto.RepairRequest) (*dto.RepairResult, error)
	Restore(ctx context.Context, req dto.RestoreRequest) (*dto.RestoreResult, error)
}

type scheduleLister interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.AcademicSchedule, error)
}

// ScheduleHandler exposes the timetable engine over HTTP: generation,
// repair, restore and read access to committed assignments.
type ScheduleHandler struct {
	generator   timetableGenerator
	repairer    timetableRepairer
	schedules   scheduleLister
	repairQueue *jobs.Queue
	logger      *zap.Logger
}

func NewScheduleHandler(generator timetableGenerator, repairer timetableRepairer, schedules scheduleLister, repairQueue *jobs.Queue, logger *zap.Logger) *ScheduleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleHandler{
		generator:   generator,
		repairer:    repairer,
		schedules:   schedules,
		repairQueue: repairQueue,
		logger:      logger,
	}
}

// Generate runs one synchronous generation pass. Partial failure in
// sequential mode still returns 200 with per-unit outcomes.
func (h *ScheduleHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Repair runs a repair pass for one teacher. With async=true the pass is
// queued on the single-worker repair queue and 202 is returned immediately.
func (h *ScheduleHandler) Repair(c *gin.Context) {
	var req dto.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid repair payload"))
		return
	}

	if req.Async && h.repairQueue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: "schedule.repair", Payload: req}
		if err := h.repairQueue.Enqueue(job); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "repair queue unavailable"))
			return
		}
		response.Accepted(c, gin.H{"jobId": job.ID})
		return
	}

	result, err := h.repairer.Repair(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Restore replays a schedule backup.
func (h *ScheduleHandler) Restore(c *gin.Context) {
	var req dto.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid restore payload"))
		return
	}
	result, err := h.repairer.Restore(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// List returns committed assignments filtered by period, group or teacher.
func (h *ScheduleHandler) List(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule query"))
		return
	}
	rows, err := h.schedules.List(c.Request.Context(), models.ScheduleFilter{
		Period:     query.Period,
		GroupCode:  query.GroupCode,
		TeacherID:  query.TeacherID,
		OnlyActive: true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, map[string]interface{}{"count": len(rows)})
}

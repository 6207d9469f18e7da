package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/service"
)

// PlanHandler serves the draft-level reads and signal detection.
type PlanHandler struct {
	triggerService     service.TriggerService
	performanceService service.PerformanceService
	logger             *slog.Logger
}

func NewPlanHandler(triggerService service.TriggerService, performanceService service.PerformanceService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{
		triggerService:     triggerService,
		performanceService: performanceService,
		logger:             logger,
	}
}

type DetectTriggersRequest struct {
	LookbackDays int `json:"lookbackDays" binding:"gte=0"`
}

type TriggerResponse struct {
	ID           string             `json:"id"`
	TriggerType  domain.TriggerType `json:"triggerType"`
	WindowStart  time.Time          `json:"windowStart"`
	WindowEnd    time.Time          `json:"windowEnd"`
	EvidenceJSON string             `json:"evidenceJson"`
	CreatedAt    time.Time          `json:"createdAt"`
}

type DetectTriggersResponse struct {
	WindowStart time.Time         `json:"windowStart"`
	WindowEnd   time.Time         `json:"windowEnd"`
	Triggers    []TriggerResponse `json:"triggers"`
	Created     int               `json:"created"`
}

func MapTriggerToResponse(t *domain.AdaptationTrigger) TriggerResponse {
	return TriggerResponse{
		ID:           t.ID,
		TriggerType:  t.TriggerType,
		WindowStart:  t.WindowStart,
		WindowEnd:    t.WindowEnd,
		EvidenceJSON: t.EvidenceJSON(),
		CreatedAt:    t.CreatedAt,
	}
}

// DetectTriggers godoc
// @Summary Run adaptation trigger detection for a draft
// @Description Idempotent per detection window. lookbackDays is clamped to [10,60]; 0 uses the configured default.
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param draftId path string true "Draft plan ID"
// @Param request body DetectTriggersRequest false "Lookback"
// @Success 200 {object} DetectTriggersResponse
// @Failure 403 {object} gin.H "Draft belongs to another coach"
// @Failure 404 {object} gin.H "Draft not found"
// @Router /drafts/{draftId}/triggers/detect [post]
func (h *PlanHandler) DetectTriggers(c *gin.Context) {
	var req DetectTriggersRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}

	res, err := h.triggerService.Detect(c.Request.Context(), coachID, c.Param("draftId"), req.LookbackDays)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}

	out := DetectTriggersResponse{
		WindowStart: res.Window.Start,
		WindowEnd:   res.Window.End,
		Triggers:    make([]TriggerResponse, len(res.Triggers)),
		Created:     res.Created,
	}
	for i := range res.Triggers {
		out.Triggers[i] = MapTriggerToResponse(&res.Triggers[i])
	}
	c.JSON(http.StatusOK, out)
}

// GetPerformance returns the CTL/ATL/TSB forecast for a draft.
func (h *PlanHandler) GetPerformance(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	model, err := h.performanceService.Forecast(c.Request.Context(), coachID, c.Param("draftId"))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

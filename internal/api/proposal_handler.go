package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
	"alcyxob/coaching-platform/internal/service"
)

type ProposalHandler struct {
	proposalService service.ProposalService
	logger          *slog.Logger
}

func NewProposalHandler(proposalService service.ProposalService, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService, logger: logger}
}

// --- DTOs ---

type GenerateProposalRequest struct {
	TriggerIDs []string `json:"triggerIds" binding:"omitempty,dive,required"`
}

type EditDiffRequest struct {
	Diff json.RawMessage `json:"diff" binding:"required"`
}

type RejectProposalRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type BatchApproveRequest struct {
	MaxHours    float64  `json:"maxHours" binding:"gte=0"`
	ProposalIDs []string `json:"proposalIds" binding:"omitempty,dive,required"`
}

// ProposalResponse is the API view of a proposal. The diff is embedded as JSON.
type ProposalResponse struct {
	ID            string                  `json:"id"`
	DraftID       string                  `json:"draftId"`
	AthleteID     string                  `json:"athleteId"`
	Status        domain.ProposalStatus   `json:"status"`
	Diff          json.RawMessage         `json:"diff"`
	RationaleText string                  `json:"rationaleText"`
	RespectsLocks bool                    `json:"respectsLocks"`
	TriggerIDs    []string                `json:"triggerIds"`
	Metadata      domain.ProposalMetadata `json:"metadata"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
	ApprovedAt    *time.Time              `json:"approvedAt,omitempty"`
	AppliedAt     *time.Time              `json:"appliedAt,omitempty"`
	RejectedAt    *time.Time              `json:"rejectedAt,omitempty"`
}

type ApprovalResponse struct {
	Proposal       ProposalResponse `json:"proposal"`
	AuditID        string           `json:"auditId"`
	AlreadyApplied bool             `json:"alreadyApplied"`
	SnapshotKey    string           `json:"snapshotKey,omitempty"`
	SnapshotURL    string           `json:"snapshotUrl,omitempty"`
	ArchiveError   string           `json:"archiveError,omitempty"`
}

func MapProposalToResponse(p *domain.Proposal) ProposalResponse {
	diff := json.RawMessage(p.DiffJSON)
	if !json.Valid(diff) {
		diff = json.RawMessage("[]")
	}
	triggerIDs := p.TriggerIDs
	if triggerIDs == nil {
		triggerIDs = []string{}
	}
	return ProposalResponse{
		ID:            p.ID,
		DraftID:       p.DraftID,
		AthleteID:     p.AthleteID,
		Status:        p.Status,
		Diff:          diff,
		RationaleText: p.RationaleText,
		RespectsLocks: p.RespectsLocks,
		TriggerIDs:    triggerIDs,
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		ApprovedAt:    p.ApprovedAt,
		AppliedAt:     p.AppliedAt,
		RejectedAt:    p.RejectedAt,
	}
}

func MapProposalsToResponse(ps []domain.Proposal) []ProposalResponse {
	out := make([]ProposalResponse, len(ps))
	for i := range ps {
		out[i] = MapProposalToResponse(&ps[i])
	}
	return out
}

func MapApprovalToResponse(r *service.ApprovalResult) ApprovalResponse {
	return ApprovalResponse{
		Proposal:       MapProposalToResponse(r.Proposal),
		AuditID:        r.AuditID,
		AlreadyApplied: r.AlreadyApplied,
		SnapshotKey:    r.SnapshotKey,
		SnapshotURL:    r.SnapshotURL,
		ArchiveError:   r.ArchiveError,
	}
}

// --- Handlers ---

// GenerateProposal godoc
// @Summary Generate a plan change proposal for a draft
// @Description Uses the given triggers, or the latest detection window's when none are given.
// @Tags Proposals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param draftId path string true "Draft plan ID"
// @Param request body GenerateProposalRequest false "Trigger IDs"
// @Success 201 {object} ProposalResponse
// @Failure 400 {object} gin.H "Invalid input or invalid diff"
// @Failure 403 {object} gin.H "Draft belongs to another coach"
// @Failure 404 {object} gin.H "Draft or triggers not found"
// @Router /drafts/{draftId}/proposals [post]
func (h *ProposalHandler) GenerateProposal(c *gin.Context) {
	var req GenerateProposalRequest
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

	p, err := h.proposalService.Generate(c.Request.Context(), coachID, c.Param("draftId"), req.TriggerIDs)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, MapProposalToResponse(p))
}

// ListProposals godoc
// @Summary List a draft's proposals
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Param draftId path string true "Draft plan ID"
// @Param status query string false "Comma separated statuses"
// @Success 200 {array} ProposalResponse
// @Router /drafts/{draftId}/proposals [get]
func (h *ProposalHandler) ListProposals(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	ps, err := h.proposalService.List(c.Request.Context(), coachID, c.Param("draftId"), statuses)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapProposalsToResponse(ps))
}

func (h *ProposalHandler) GetProposal(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	p, err := h.proposalService.Get(c.Request.Context(), coachID, c.Param("id"))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapProposalToResponse(p))
}

func (h *ProposalHandler) PreviewProposal(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	vm, err := h.proposalService.Preview(c.Request.Context(), coachID, c.Param("id"))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, vm)
}

// EditDiff godoc
// @Summary Replace the diff of a DRAFT proposal
// @Description Promotes the proposal to PROPOSED when the new diff is lock-clean and passes hard safety.
// @Tags Proposals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Param request body EditDiffRequest true "New diff"
// @Success 200 {object} ProposalResponse
// @Failure 400 {object} gin.H "Invalid diff"
// @Failure 409 {object} gin.H "Proposal is not a DRAFT"
// @Router /proposals/{id}/diff [put]
func (h *ProposalHandler) EditDiff(c *gin.Context) {
	var req EditDiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	diff, err := plandiff.Parse(req.Diff)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}

	p, err := h.proposalService.EditDraft(c.Request.Context(), coachID, c.Param("id"), diff)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapProposalToResponse(p))
}

// ApproveProposal godoc
// @Summary Approve and apply a proposal
// @Tags Proposals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} ApprovalResponse
// @Failure 409 {object} gin.H "Locked, conflicting or wrong status"
// @Failure 422 {object} gin.H "Hard safety blocked"
// @Router /proposals/{id}/approve [post]
func (h *ProposalHandler) ApproveProposal(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	res, err := h.proposalService.Approve(c.Request.Context(), coachID, c.Param("id"))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapApprovalToResponse(res))
}

func (h *ProposalHandler) RejectProposal(c *gin.Context) {
	var req RejectProposalRequest
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
	p, err := h.proposalService.Reject(c.Request.Context(), coachID, c.Param("id"), req.Reason)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapProposalToResponse(p))
}

func (h *ProposalHandler) ReopenProposal(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	p, err := h.proposalService.Reopen(c.Request.Context(), coachID, c.Param("id"))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, MapProposalToResponse(p))
}

func (h *ProposalHandler) UndoProposal(c *gin.Context) {
	coachID, ok := coachFromContext(c)
	if !ok {
		return
	}
	p, err := h.proposalService.Undo(c.Request.Context(), coachID, c.Param("id"))
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, MapProposalToResponse(p))
}

// BatchApprove godoc
// @Summary Approve every lock-respecting PROPOSED proposal of a draft
// @Description Failures are reported per proposal and do not stop the batch.
// @Tags Proposals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param draftId path string true "Draft plan ID"
// @Param request body BatchApproveRequest false "Filters"
// @Success 200 {object} service.BatchResult
// @Router /drafts/{draftId}/proposals/batch-approve [post]
func (h *ProposalHandler) BatchApprove(c *gin.Context) {
	var req BatchApproveRequest
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
	res, err := h.proposalService.BatchApprove(c.Request.Context(), coachID, c.Param("draftId"), service.BatchOptions{
		MaxHours:    req.MaxHours,
		ProposalIDs: req.ProposalIDs,
	})
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// coachFromContext reads the caller id set by AuthMiddleware, aborting with
// 401 when it is missing.
func coachFromContext(c *gin.Context) (string, bool) {
	coachID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify coach from token.")
		return "", false
	}
	return coachID, true
}

func parseStatuses(raw string) ([]domain.ProposalStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []domain.ProposalStatus
	for _, part := range strings.Split(raw, ",") {
		s := domain.ProposalStatus(strings.ToUpper(strings.TrimSpace(part)))
		switch s {
		case domain.ProposalDraft, domain.ProposalProposed, domain.ProposalApproved,
			domain.ProposalApplied, domain.ProposalRejected:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown proposal status: %s", part)
		}
	}
	return out, nil
}

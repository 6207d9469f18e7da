package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/policy"
	"alcyxob/coaching-platform/internal/service"
)

// Services bundles what the router dispatches to.
type Services struct {
	Proposals   service.ProposalService
	Triggers    service.TriggerService
	Performance service.PerformanceService
	Policies    *policy.Registry
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

func SetupRoutes(router *gin.Engine, jwtSecret string, svc Services) {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	proposalHandler := NewProposalHandler(svc.Proposals, logger)
	planHandler := NewPlanHandler(svc.Triggers, svc.Performance, logger)
	policyHandler := NewPolicyHandler(svc.Policies, logger)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if svc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// Everything below is coach-only; ownership of the draft is checked by the services.
		coach := protected.Group("")
		coach.Use(RoleMiddleware(domain.RoleCoach))

		drafts := coach.Group("/drafts/:draftId")
		{
			drafts.POST("/triggers/detect", planHandler.DetectTriggers)
			drafts.GET("/performance", planHandler.GetPerformance)
			drafts.POST("/proposals", proposalHandler.GenerateProposal)
			drafts.GET("/proposals", proposalHandler.ListProposals)
			drafts.POST("/proposals/batch-approve", proposalHandler.BatchApprove)
		}

		proposals := coach.Group("/proposals/:id")
		{
			proposals.GET("", proposalHandler.GetProposal)
			proposals.GET("/preview", proposalHandler.PreviewProposal)
			proposals.PUT("/diff", proposalHandler.EditDiff)
			proposals.POST("/approve", proposalHandler.ApproveProposal)
			proposals.POST("/reject", proposalHandler.RejectProposal)
			proposals.POST("/reopen", proposalHandler.ReopenProposal)
			proposals.POST("/undo", proposalHandler.UndoProposal)
		}

		policies := coach.Group("/policies")
		{
			policies.GET("", policyHandler.ListPolicies)
			policies.GET("/:name", policyHandler.GetPolicy)
			policies.POST("/refresh", policyHandler.RefreshPolicies)
		}
	}
}

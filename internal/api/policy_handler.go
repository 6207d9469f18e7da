package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"alcyxob/coaching-platform/internal/policy"
)

type PolicyHandler struct {
	registry *policy.Registry
	logger   *slog.Logger
}

func NewPolicyHandler(registry *policy.Registry, logger *slog.Logger) *PolicyHandler {
	return &PolicyHandler{registry: registry, logger: logger}
}

type PolicyListResponse struct {
	Default  string           `json:"default"`
	Profiles []policy.Profile `json:"profiles"`
}

func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	names := h.registry.Names()
	out := PolicyListResponse{Default: h.registry.Default().Name, Profiles: make([]policy.Profile, 0, len(names))}
	for _, n := range names {
		p, err := h.registry.Resolve(n)
		if err != nil {
			continue // dropped by a concurrent refresh
		}
		out.Profiles = append(out.Profiles, p)
	}
	c.JSON(http.StatusOK, out)
}

func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	p, err := h.registry.Resolve(c.Param("name"))
	if err != nil {
		if errors.Is(err, policy.ErrUnknownProfile) {
			abortWithError(c, http.StatusNotFound, err.Error())
			return
		}
		respondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RefreshPolicies re-reads the override source. The previous profiles stay
// active when the refresh fails.
func (h *PolicyHandler) RefreshPolicies(c *gin.Context) {
	if err := h.registry.Refresh(c.Request.Context()); err != nil {
		h.logger.WarnContext(c.Request.Context(), "policy refresh failed", "error", err)
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.logger.InfoContext(c.Request.Context(), "policy profiles refreshed", "profiles", h.registry.Names())
	h.ListPolicies(c)
}

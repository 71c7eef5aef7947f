package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"auctionbot/internal/repository"
)

type OpportunityHandler struct {
	Repo repository.Repository
}

func (h *OpportunityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/opportunities")
	group.GET("", h.listOpportunities)
	group.GET("/:id", h.getOpportunity)
}

func (h *OpportunityHandler) listOpportunities(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListOpportunities(c.Request.Context(), repository.ListOpportunitiesParams{
		Recommendation: stringQueryPtr(c, "recommendation"),
		RiskLevel:      stringQueryPtr(c, "risk_level"),
		MinScore:       floatQueryPtr(c, "min_score"),
		Limit:          intQuery(c, "limit", 50),
		Offset:         intQuery(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *OpportunityHandler) getOpportunity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	itemID := strings.TrimSpace(c.Param("id"))
	op, err := h.Repo.GetOpportunityByItemID(c.Request.Context(), itemID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if op == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}
	Ok(c, op, nil)
}

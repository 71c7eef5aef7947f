package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"auctionbot/internal/repository"
)

type ItemHandler struct {
	Repo repository.Repository
}

func (h *ItemHandler) Register(r *gin.Engine) {
	group := r.Group("/api/items")
	group.GET("", h.listItems)
	group.GET("/:id", h.getItem)
	group.GET("/:id/observations", h.listObservations)
}

func (h *ItemHandler) listItems(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListReconciledItems(c.Request.Context(), repository.ListItemsParams{
		State:    stringQueryPtr(c, "state"),
		Category: stringQueryPtr(c, "category"),
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *ItemHandler) getItem(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	itemID := strings.TrimSpace(c.Param("id"))
	item, err := h.Repo.GetReconciledItem(c.Request.Context(), itemID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "item not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *ItemHandler) listObservations(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	itemID := strings.TrimSpace(c.Param("id"))
	observations, err := h.Repo.ListObservationsByItem(c.Request.Context(), itemID, intQuery(c, "limit", 100))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, observations, map[string]any{"count": len(observations)})
}

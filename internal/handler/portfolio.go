package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"auctionbot/internal/portfolio"
	"auctionbot/internal/repository"
)

type PortfolioHandler struct {
	Repo      repository.Repository
	Allocator *portfolio.Allocator
	Ledger    *portfolio.Ledger
}

func (h *PortfolioHandler) Register(r *gin.Engine) {
	group := r.Group("/api/portfolio")
	group.GET("", h.listEntries)
	group.GET("/ledger", h.listLedger)
	group.POST("/:id/cancel", h.cancelEntry)

	r.GET("/api/optimize", h.optimize)
}

func (h *PortfolioHandler) listEntries(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var status []string
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status = strings.Split(raw, ",")
	}
	entries, err := h.Repo.ListEntries(c.Request.Context(), repository.ListEntriesParams{
		Status: status,
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	meta := map[string]any{"count": len(entries)}
	if h.Ledger != nil {
		meta["ledger"] = h.Ledger.Snapshot()
	}
	Ok(c, entries, meta)
}

func (h *PortfolioHandler) listLedger(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	events, err := h.Repo.ListLedgerEvents(c.Request.Context(), intQuery(c, "limit", 100))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := map[string]any{"count": len(events)}
	if h.Ledger != nil {
		meta["ledger"] = h.Ledger.Snapshot()
	}
	Ok(c, events, meta)
}

// cancelEntry abandons tracking for one item and releases its
// reservation. Terminal entries are left as they are.
func (h *PortfolioHandler) cancelEntry(c *gin.Context) {
	if h.Repo == nil || h.Allocator == nil {
		Error(c, http.StatusInternalServerError, "allocator unavailable", nil)
		return
	}
	itemID := strings.TrimSpace(c.Param("id"))
	entry, err := h.Repo.GetEntryByItemID(c.Request.Context(), itemID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if entry == nil {
		Error(c, http.StatusNotFound, "entry not found", nil)
		return
	}
	if entry.Terminal() {
		Error(c, http.StatusConflict, "entry already resolved", nil)
		return
	}
	if err := h.Allocator.ResolveExpired(c.Request.Context(), entry); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, entry, nil)
}

func (h *PortfolioHandler) optimize(c *gin.Context) {
	if h.Allocator == nil {
		Error(c, http.StatusInternalServerError, "allocator unavailable", nil)
		return
	}
	warnings, err := h.Allocator.Optimize(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, warnings, map[string]any{"count": len(warnings)})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auctionbot/internal/repository"
)

type AttemptHandler struct {
	Repo repository.Repository
}

func (h *AttemptHandler) Register(r *gin.Engine) {
	r.GET("/api/attempts", h.listAttempts)
	r.GET("/api/feeds", h.listFeeds)
}

func (h *AttemptHandler) listAttempts(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	attempts, err := h.Repo.ListBidAttempts(c.Request.Context(), repository.ListAttemptsParams{
		ItemID: stringQueryPtr(c, "item_id"),
		Result: stringQueryPtr(c, "result"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, attempts, map[string]any{"count": len(attempts)})
}

func (h *AttemptHandler) listFeeds(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	sources, err := h.Repo.ListFeedSources(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sources, map[string]any{"count": len(sources)})
}

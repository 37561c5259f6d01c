package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/backfill"
	"github.com/psds-microservice/ticket-bridge/internal/cache"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

type Syncer interface {
	Run(ctx context.Context, limit int) (backfill.Report, error)
	RunChannel(ctx context.Context, channelID string, limit int) (backfill.Report, error)
}

type AdminHandler struct {
	store        *service.Store
	syncer       Syncer
	cache        *cache.ChannelCache
	categoryID   string
	defaultLimit int
}

func NewAdminHandler(store *service.Store, syncer Syncer, c *cache.ChannelCache, categoryID string, defaultLimit int) *AdminHandler {
	return &AdminHandler{store: store, syncer: syncer, cache: c, categoryID: categoryID, defaultLimit: defaultLimit}
}

// Sync runs a history backfill, for one channel when channel_id is given.
func (h *AdminHandler) Sync(c *gin.Context) {
	limit := h.defaultLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}
	var (
		rep backfill.Report
		err error
	)
	if ch := c.Query("channel_id"); ch != "" {
		rep, err = h.syncer.RunChannel(c.Request.Context(), ch, limit)
	} else {
		rep, err = h.syncer.Run(c.Request.Context(), limit)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Reset удаляет все тикеты и сообщения. Требует confirm=yes.
func (h *AdminHandler) Reset(c *gin.Context) {
	if c.Query("confirm") != "yes" {
		badRequest(c, "reset deletes all tickets and messages; pass confirm=yes")
		return
	}
	tickets, messages, err := h.store.Purge(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.cache.Invalidate(c.Request.Context(), h.categoryID); err != nil {
		log.Printf("admin: cache: %v", err)
	}
	log.Printf("admin: reset removed %d ticket(s), %d message(s)", tickets, messages)
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "messages": messages})
}

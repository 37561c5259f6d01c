package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/cache"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/platform"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

type ChannelLister interface {
	CategoryChannels(ctx context.Context, categoryID string) ([]platform.Channel, error)
}

type ChannelHandler struct {
	lister     ChannelLister
	cache      *cache.ChannelCache
	store      *service.Store
	categoryID string
}

func NewChannelHandler(lister ChannelLister, c *cache.ChannelCache, store *service.Store, categoryID string) *ChannelHandler {
	return &ChannelHandler{lister: lister, cache: c, store: store, categoryID: categoryID}
}

// List returns the category's channels. When the platform cannot be reached it
// answers from the cache, then from stored tickets; "source" tells which.
func (h *ChannelHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	channels, err := h.lister.CategoryChannels(ctx, h.categoryID)
	if err == nil {
		if cerr := h.cache.Set(ctx, h.categoryID, channels); cerr != nil {
			log.Printf("channels: cache: %v", cerr)
		}
		respondChannels(c, "live", channels, nil)
		return
	}
	live := err

	cached, ok, err := h.cache.Get(ctx, h.categoryID)
	if err != nil {
		log.Printf("channels: cache: %v", err)
	}
	if ok {
		respondChannels(c, "cache", cached, live)
		return
	}

	tickets, err := h.store.ListOpenTickets(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	stored := make([]platform.Channel, 0, len(tickets))
	for _, t := range tickets {
		stored = append(stored, platform.Channel{ID: t.ID, Name: t.Name, CategoryID: h.categoryID})
	}
	respondChannels(c, "store", stored, live)
}

func respondChannels(c *gin.Context, source string, channels []platform.Channel, live error) {
	if channels == nil {
		channels = []platform.Channel{}
	}
	body := gin.H{"source": source, "channels": channels}
	if live != nil {
		body["reason"] = errs.Reason(live)
	}
	c.JSON(http.StatusOK, body)
}

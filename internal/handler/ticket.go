package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

type TicketHandler struct {
	store  *service.Store
	events kafka.EventPublisher
}

func NewTicketHandler(store *service.Store, events kafka.EventPublisher) *TicketHandler {
	if events == nil {
		events = kafka.Nop{}
	}
	return &TicketHandler{store: store, events: events}
}

// List возвращает тикеты с числом непрочитанных. По умолчанию status=open, "all"
// отдаёт все.
func (h *TicketHandler) List(c *gin.Context) {
	filter := service.TicketFilter{Status: model.TicketStatusOpen}
	switch v := c.Query("status"); v {
	case "", string(model.TicketStatusOpen):
	case string(model.TicketStatusCompleted):
		filter.Status = model.TicketStatusCompleted
	case "all":
		filter.Status = ""
	default:
		badRequest(c, "invalid status")
		return
	}
	if v := c.Query("region"); v != "" {
		r, ok := model.ParseRegion(v)
		if !ok {
			badRequest(c, "unknown region")
			return
		}
		filter.Region = r
	}

	limit := 0
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if offset > 0 && limit == 0 {
		limit = 100
	}

	items, total, err := h.store.ListTickets(c.Request.Context(), filter, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []model.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

type createTicketRequest struct {
	ID     string `json:"id" binding:"required"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	region := model.RegionUnknown
	if req.Region != "" {
		r, ok := model.ParseRegion(req.Region)
		if !ok {
			badRequest(c, "unknown region")
			return
		}
		region = r
	}
	t, created, err := h.store.UpsertTicket(c.Request.Context(), req.ID, req.Name, region, model.TicketStatusOpen)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.events.Publish(c.Request.Context(), kafka.EventTicketCreated, map[string]interface{}{
			"ticket_id": t.ID,
			"name":      t.Name,
			"region":    string(t.Region),
		})
	}
	c.JSON(status, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	t, err := h.store.GetTicket(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Complete closes the ticket. Completing a completed ticket returns it unchanged.
func (h *TicketHandler) Complete(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	before, err := h.store.GetTicket(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	t, err := h.store.CompleteTicket(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if before.Status == model.TicketStatusOpen {
		h.events.Publish(c.Request.Context(), kafka.EventTicketCompleted, map[string]interface{}{
			"ticket_id": t.ID,
		})
	}
	c.JSON(http.StatusOK, t)
}

type setRegionRequest struct {
	Region string `json:"region" binding:"required"`
}

func (h *TicketHandler) SetRegion(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}
	var req setRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.store.SetRegion(c.Request.Context(), id, model.Region(req.Region))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func ticketID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !model.ValidTicketID(id) {
		badRequest(c, "invalid id")
		return "", false
	}
	return id, true
}

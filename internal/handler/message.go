package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

const maxMessagesPage = 500

// Deliverer sends one pending reply right away. The outbox scanner implements it.
type Deliverer interface {
	DeliverOne(ctx context.Context, id uint64) (bool, error)
}

type MessageHandler struct {
	store     *service.Store
	deliverer Deliverer
}

func NewMessageHandler(store *service.Store, deliverer Deliverer) *MessageHandler {
	return &MessageHandler{store: store, deliverer: deliverer}
}

// List marks the ticket's platform messages as seen and returns its messages in
// display order. since_id returns only newer rows, for polling.
func (h *MessageHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Query("ticket_id")
	if !model.ValidTicketID(id) {
		badRequest(c, "ticket_id is required")
		return
	}
	var sinceID uint64
	if v := c.Query("since_id"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(c, "invalid since_id")
			return
		}
		sinceID = parsed
	}
	limit := maxMessagesPage
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			badRequest(c, "invalid limit")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	if _, err := h.store.GetTicket(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.store.MarkSeenByWeb(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	items, err := h.store.ListMessages(ctx, id, sinceID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	lastID := sinceID
	for _, m := range items {
		if m.ID > lastID {
			lastID = m.ID
		}
	}
	if items == nil {
		items = []model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket_id": id,
		"messages":  items,
		"last_id":   lastID,
	})
}

type createMessageRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Author   string `json:"author"`
	SendNow  bool   `json:"send_now"`
}

// Create сохраняет ответ из панели для outbox. С send_now отправляет сразу; при
// ошибке сообщение остаётся pending, причина в ответе.
func (h *MessageHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	m, err := h.store.CreateWebMessage(ctx, req.TicketID, req.Author, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	if !req.SendNow || h.deliverer == nil {
		c.JSON(http.StatusAccepted, gin.H{"message": m, "delivery": "pending"})
		return
	}
	if _, err := h.deliverer.DeliverOne(ctx, m.ID); err != nil {
		c.JSON(http.StatusAccepted, gin.H{
			"message":  m,
			"delivery": "pending",
			"reason":   errs.Reason(err),
			"error":    err.Error(),
		})
		return
	}
	if fresh, err := h.store.GetMessage(ctx, m.ID); err == nil {
		m = fresh
	}
	c.JSON(http.StatusCreated, gin.H{"message": m, "delivery": "delivered"})
}

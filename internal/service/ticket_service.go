package service

import (
	"context"

	"github.com/psds-microservice/ticket-bridge/internal/model"
)

// TicketFilter narrows ListTickets. Zero fields match everything.
type TicketFilter struct {
	Status model.TicketStatus
	Region model.Region
}

// ListTickets возвращает тикеты (новые первыми) с числом непрочитанных и общее
// количество подходящих под filter до пагинации.
func (s *Store) ListTickets(ctx context.Context, filter TicketFilter, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Region != "" {
		tx = tx.Where("region = ?", filter.Region)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("created_at DESC").Order("id").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	if err := s.attachUnread(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListOpenTickets returns every open ticket, newest first, with unread counts.
func (s *Store) ListOpenTickets(ctx context.Context) ([]model.Ticket, error) {
	items, _, err := s.ListTickets(ctx, TicketFilter{Status: model.TicketStatusOpen}, 0, 0)
	return items, err
}

func (s *Store) attachUnread(ctx context.Context, items []model.Ticket) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	var counts []struct {
		TicketID string
		N        int64
	}
	if err := s.db.WithContext(ctx).Model(&model.Message{}).
		Select("ticket_id, COUNT(*) AS n").
		Where("ticket_id IN ? AND seen_by_web = ? AND origin <> ?", ids, false, model.OriginWeb).
		Group("ticket_id").
		Scan(&counts).Error; err != nil {
		return err
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.TicketID] = c.N
	}
	for i := range items {
		items[i].Unread = byID[items[i].ID]
	}
	return nil
}

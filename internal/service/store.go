package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewMessage is the input of InsertMessageIfAbsent.
type NewMessage struct {
	TicketID          string
	PlatformMessageID string // empty when the message has not reached the platform yet
	Origin            model.Origin
	AuthorID          string
	AuthorName        string
	Content           string
	Timestamp         time.Time // zero means arrival time
	Delivered         bool
	Seen              bool
}

// Store общее состояние веб-API и воркеров моста. Идемпотентность обеспечивает
// уникальный индекс platform_message_id, а не блокировки в приложении.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *gorm.DB { return s.db }

// UpsertTicket создаёт тикет, если его нет. У существующего заполняет пустое имя,
// заменяет регион unknown и меняет статус только в сторону completed.
func (s *Store) UpsertTicket(ctx context.Context, id, name string, region model.Region, status model.TicketStatus) (*model.Ticket, bool, error) {
	if !model.ValidTicketID(id) {
		return nil, false, fmt.Errorf("%w: ticket id %q", errs.ErrInvalidInput, id)
	}
	if region == "" {
		region = model.RegionUnknown
	}
	if _, ok := model.ParseRegion(string(region)); !ok {
		return nil, false, fmt.Errorf("%w: region %q", errs.ErrInvalidInput, region)
	}
	if status == "" {
		status = model.TicketStatusOpen
	}
	if status != model.TicketStatusOpen && status != model.TicketStatusCompleted {
		return nil, false, fmt.Errorf("%w: status %q", errs.ErrInvalidInput, status)
	}
	name = truncate(strings.TrimSpace(name), 100)

	var (
		out     model.Ticket
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t := model.Ticket{ID: id, Name: name, Region: region, Status: status}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&t)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			return err
		}
		if created {
			return nil
		}
		changes := map[string]interface{}{}
		if out.Name == "" && name != "" {
			changes["name"] = name
		}
		if out.Region == model.RegionUnknown && region != model.RegionUnknown {
			changes["region"] = region
		}
		if out.Status == model.TicketStatusOpen && status == model.TicketStatusCompleted {
			changes["status"] = status
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&out).Updates(changes).Error; err != nil {
			return err
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert ticket %s: %w", id, err)
	}
	return &out, created, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	n, err := s.UnreadCount(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Unread = n
	return &t, nil
}

func (s *Store) UnreadCount(ctx context.Context, ticketID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("ticket_id = ? AND seen_by_web = ? AND origin <> ?", ticketID, false, model.OriginWeb).
		Count(&n).Error
	return n, err
}

// CompleteTicket закрывает тикет. Повторный вызов ничего не меняет.
func (s *Store) CompleteTicket(ctx context.Context, id string) (*model.Ticket, error) {
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("id = ? AND status = ?", id, model.TicketStatusOpen).
		Update("status", model.TicketStatusCompleted)
	if res.Error != nil {
		return nil, res.Error
	}
	return s.GetTicket(ctx, id)
}

func (s *Store) SetRegion(ctx context.Context, id string, region model.Region) (*model.Ticket, error) {
	r, ok := model.ParseRegion(string(region))
	if !ok {
		return nil, fmt.Errorf("%w: region %q", errs.ErrInvalidInput, region)
	}
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Update("region", r)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrTicketNotFound
	}
	return s.GetTicket(ctx, id)
}

// InsertMessageIfAbsent stores m unless a row with the same platform message id
// exists. It reports whether a row was written.
func (s *Store) InsertMessageIfAbsent(ctx context.Context, m NewMessage) (bool, error) {
	if !model.ValidTicketID(m.TicketID) {
		return false, fmt.Errorf("%w: ticket id %q", errs.ErrInvalidInput, m.TicketID)
	}
	if !m.Origin.Valid() {
		return false, fmt.Errorf("%w: origin %q", errs.ErrInvalidInput, m.Origin)
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	row := model.Message{
		TicketID:            m.TicketID,
		Origin:              m.Origin,
		AuthorID:            m.AuthorID,
		AuthorName:          truncate(m.AuthorName, 100),
		Content:             m.Content,
		Timestamp:           ts.UTC(),
		DeliveredToPlatform: m.Delivered,
		SeenByWeb:           m.Seen,
	}
	if m.PlatformMessageID != "" {
		id := m.PlatformMessageID
		row.PlatformMessageID = &id
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert message into %s: %w", m.TicketID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CreateWebMessage сохраняет ответ из панели как ожидающий доставки.
func (s *Store) CreateWebMessage(ctx context.Context, ticketID, author, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > model.MaxContentLength {
		return nil, fmt.Errorf("%w: content must be 1..%d characters", errs.ErrInvalidInput, model.MaxContentLength)
	}
	if !model.ValidTicketID(ticketID) {
		return nil, fmt.Errorf("%w: ticket id %q", errs.ErrInvalidInput, ticketID)
	}
	if author == "" {
		author = "WebAgent"
	}
	t, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TicketStatusOpen {
		return nil, errs.ErrTicketCompleted
	}
	m := model.Message{
		TicketID:   ticketID,
		Origin:     model.OriginWeb,
		AuthorName: truncate(author, 100),
		Content:    content,
		Timestamp:  s.now().UTC(),
		SeenByWeb:  true,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create web message: %w", err)
	}
	return &m, nil
}

func (s *Store) GetMessage(ctx context.Context, id uint64) (*model.Message, error) {
	var m model.Message
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a ticket's messages in display order (timestamp, then id).
// With sinceID it returns the next limit rows by id after sinceID, so the
// largest id in the page is a safe cursor even when backfilled rows carry old
// timestamps. Without sinceID it returns the latest limit rows. limit <= 0 means
// no limit.
func (s *Store) ListMessages(ctx context.Context, ticketID string, sinceID uint64, limit int) ([]model.Message, error) {
	var items []model.Message
	tx := s.db.WithContext(ctx).Where("ticket_id = ?", ticketID)
	switch {
	case sinceID > 0:
		tx = tx.Where("id > ?", sinceID).Order("id ASC")
		if limit > 0 {
			tx = tx.Limit(limit)
		}
		if err := tx.Find(&items).Error; err != nil {
			return nil, err
		}
		sort.SliceStable(items, func(i, j int) bool {
			if !items[i].Timestamp.Equal(items[j].Timestamp) {
				return items[i].Timestamp.Before(items[j].Timestamp)
			}
			return items[i].ID < items[j].ID
		})
		return items, nil
	case limit > 0:
		if err := tx.Order("sent_at DESC").Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return items, nil
	}
	if err := tx.Order("sent_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkSeenByWeb flags every unseen platform-origin message of the ticket as seen.
func (s *Store) MarkSeenByWeb(ctx context.Context, ticketID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("ticket_id = ? AND seen_by_web = ? AND origin <> ?", ticketID, false, model.OriginWeb).
		Update("seen_by_web", true)
	return res.RowsAffected, res.Error
}

// MarkDelivered flips delivered_to_platform to true. The guard on the current
// value keeps the flag monotonic and makes a second call report false.
func (s *Store) MarkDelivered(ctx context.Context, id uint64, platformMessageID string) (bool, error) {
	changes := map[string]interface{}{
		"delivered_to_platform": true,
		"delivered_at":          s.now().UTC(),
	}
	if platformMessageID != "" {
		changes["platform_message_id"] = gorm.Expr("COALESCE(platform_message_id, ?)", platformMessageID)
	}
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND delivered_to_platform = ?", id, false).
		Updates(changes)
	if res.Error != nil {
		return false, fmt.Errorf("mark delivered %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListUndelivered returns pending rows of the given origin in insertion order.
func (s *Store) ListUndelivered(ctx context.Context, origin model.Origin) ([]model.Message, error) {
	var items []model.Message
	if err := s.db.WithContext(ctx).
		Where("origin = ? AND delivered_to_platform = ?", origin, false).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list undelivered: %w", err)
	}
	return items, nil
}

// Purge удаляет все сообщения и тикеты. Только для admin reset.
func (s *Store) Purge(ctx context.Context) (tickets, messages int64, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		messages = res.RowsAffected
		res = tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Ticket{})
		if res.Error != nil {
			return res.Error
		}
		tickets = res.RowsAffected
		return nil
	})
	return tickets, messages, err
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

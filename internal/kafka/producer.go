package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventTicketCreated    = "ticket.created"
	EventTicketCompleted  = "ticket.completed"
	EventMessageIngested  = "message.ingested"
	EventMessageDelivered = "message.delivered"
)

// EventPublisher интерфейс для отправки событий моста (для подмены в тестах).
// Реализация не должна блокировать вызывающего на I/O брокера.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{})
}

// Producer пишет события в топик Kafka (best-effort). Без брокеров или топика
// все методы no-op.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Printf("kafka: write %d event(s) to %s: %v", len(messages), topic, err)
				}
			},
		},
	}
}

// Enabled reports whether events actually leave the process.
func (p *Producer) Enabled() bool { return p.writer != nil }

// Publish отправляет событие с ключом ticket_id, чтобы события одного тикета
// шли по порядку внутри партиции.
func (p *Producer) Publish(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event, "at": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("kafka: marshal %s event: %v", event, err)
		return
	}
	var key []byte
	if id, ok := payload["ticket_id"].(string); ok {
		key = []byte(id)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		log.Printf("kafka: write %s event: %v", event, err)
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]interface{}) {}

var (
	_ EventPublisher = (*Producer)(nil)
	_ EventPublisher = Nop{}
)

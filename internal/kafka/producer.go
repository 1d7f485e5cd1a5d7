package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-purchase/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes engine events. All publishes are fire-and-forget from
// the caller's point of view: the engine never blocks a purchase or a
// check-in on notification delivery.
type Producer struct {
	writer *kafka.Writer
	topics Topics
}

type Topics struct {
	OrderCreated    string
	TicketExpired   string
	TicketCheckedIn string
	PaymentSettled  string
}

func NewProducer(brokers []string, topics Topics) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
	}
	return &Producer{writer: writer, topics: topics}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) PublishOrderCreated(order models.Order) error {
	return p.publish(p.topics.OrderCreated, order.OrderID, order)
}

func (p *Producer) PublishTicketExpired(ticket models.Ticket) error {
	return p.publish(p.topics.TicketExpired, ticket.TicketID, ticket)
}

func (p *Producer) PublishTicketCheckedIn(ticket models.Ticket) error {
	return p.publish(p.topics.TicketCheckedIn, ticket.TicketID, ticket)
}

func (p *Producer) PublishPaymentSettled(payment models.Payment) error {
	return p.publish(p.topics.PaymentSettled, payment.PaymentID, payment)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-competitions/internal/config"
	"ms-competitions/internal/models"
)

// EntryEvent is the payload published when a user enters a competition.
type EntryEvent struct {
	UserID        string `json:"userId"`
	CompetitionID int64  `json:"competitionId"`
	TicketCount   int    `json:"ticketCount"`
	Paid          bool   `json:"paid"`
}

// PaymentEvent is the payload published when a purchase is finalized.
type PaymentEvent struct {
	PurchaseID    string `json:"purchaseId"`
	UserID        string `json:"userId"`
	CompetitionID int64  `json:"competitionId"`
	TicketCount   int    `json:"ticketCount"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

type Producer struct {
	writer *kafka.Writer
	topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer, topics: topics}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

// PublishEntryCreated streams a new entry to downstream draw services.
func (p *Producer) PublishEntryCreated(ev EntryEvent) error {
	return p.publish(p.topics.EntryCreated, fmt.Sprintf("%d", ev.CompetitionID), ev)
}

// PublishPaymentSucceeded streams a confirmed purchase.
func (p *Producer) PublishPaymentSucceeded(ev PaymentEvent) error {
	return p.publish(p.topics.PaymentSucceeded, ev.PurchaseID, ev)
}

// PublishPaymentFailed streams a failed purchase.
func (p *Producer) PublishPaymentFailed(ev PaymentEvent) error {
	return p.publish(p.topics.PaymentFailed, ev.PurchaseID, ev)
}

// PublishCompetitionUpdated streams admin edits so caches and feeds refresh.
func (p *Producer) PublishCompetitionUpdated(comp *models.Competition) error {
	return p.publish(p.topics.CompetitionUpdated, fmt.Sprintf("%d", comp.ID), comp)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

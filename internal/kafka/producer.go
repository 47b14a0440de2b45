package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

// EventSaleRecorded is the type of the event published after each insert.
const EventSaleRecorded = "sale.recorded"

// SaleRecorded is the message value published for a stored sale
type SaleRecorded struct {
	Type       string            `json:"type"`
	Table      string            `json:"table"`
	RecordedAt time.Time         `json:"recorded_at"`
	Sale       models.SaleRecord `json:"sale"`
}

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
	Table  string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic, table string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, Table: table, Logger: log}
}

// PublishSale streams a stored sale to Kafka, keyed by transaction id so
// events of one transaction stay on one partition.
func (p *Producer) PublishSale(ctx context.Context, sale models.SaleRecord) error {
	event := SaleRecorded{
		Type:       EventSaleRecorded,
		Table:      p.Table,
		RecordedAt: time.Now().UTC(),
		Sale:       sale,
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("sale %s (id %d)", sale.TransID, sale.ID))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(sale.TransID),
			Value: msgBytes,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(EventSaleRecorded)},
			},
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

package margin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

// CalculationEvent is published when a calculation reaches a terminal state.
type CalculationEvent struct {
	CalculationID string                  `json:"calculation_id"`
	PortfolioID   string                  `json:"portfolio_id"`
	Status        model.CalculationStatus `json:"status"`
	TotalIM       string                  `json:"total_im,omitempty"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// EventPublisher emits calculation lifecycle events.
type EventPublisher interface {
	PublishCalculation(ctx context.Context, event CalculationEvent)
	Close() error
}

// kafkaPublisher writes events to a kafka topic. Publish failures are logged
// and dropped; the calculation result is already durable in the database.
type kafkaPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
}

// NewKafkaPublisher creates a kafka-backed event publisher.
func NewKafkaPublisher(logger *zap.Logger, brokers []string, topic string) EventPublisher {
	return &kafkaPublisher{
		logger: logger,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *kafkaPublisher) PublishCalculation(ctx context.Context, event CalculationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal calculation event", zap.Error(err))
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CalculationID),
		Value: payload,
	})
	if err != nil {
		p.logger.Warn("failed to publish calculation event",
			zap.String("calculation_id", event.CalculationID), zap.Error(err))
	}
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishCalculation(context.Context, CalculationEvent) {}
func (NopPublisher) Close() error                                         { return nil }

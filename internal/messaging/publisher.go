// Package messaging publishes engine events to Kafka: run completions and
// VaR limit breaches. Publishing is fire-and-forget; failures are logged and
// counted, never propagated into the simulation path.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/pkg/metrics"
)

// RunCompletedEvent is published when a simulation run reaches a terminal
// state.
type RunCompletedEvent struct {
	RunID      uuid.UUID `json:"run_id"`
	ScenarioID uuid.UUID `json:"scenario_id"`
	Hash       string    `json:"hash"`
	Status     string    `json:"status"`
	Paths      int       `json:"paths"`
	Mean       float64   `json:"mean"`
	StdErr     float64   `json:"std_err"`
	Elapsed    string    `json:"elapsed"`
	Timestamp  time.Time `json:"timestamp"`
}

// VaRBreachEvent is published when a portfolio VaR calculation exceeds the
// configured limit.
type VaRBreachEvent struct {
	Method     string    `json:"method"`
	Confidence float64   `json:"confidence"`
	VaR        float64   `json:"var"`
	Limit      float64   `json:"limit"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher writes engine events to Kafka topics.
type Publisher struct {
	runWriter    *kafka.Writer
	breachWriter *kafka.Writer
	logger       *zap.Logger
}

// NewPublisher creates a publisher for the configured brokers and topics.
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("messaging: no kafka brokers configured")
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		}
	}

	logger.Info("Kafka publisher ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("run_topic", cfg.RunCompleteTopic),
		zap.String("breach_topic", cfg.BreachTopic))

	return &Publisher{
		runWriter:    newWriter(cfg.RunCompleteTopic),
		breachWriter: newWriter(cfg.BreachTopic),
		logger:       logger,
	}, nil
}

// PublishRunCompleted emits a run completion event keyed by run id.
func (p *Publisher) PublishRunCompleted(ctx context.Context, ev RunCompletedEvent) {
	if p == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	p.publish(ctx, p.runWriter, ev.RunID.String(), ev)
}

// PublishVaRBreach emits a breach event keyed by method.
func (p *Publisher) PublishVaRBreach(ctx context.Context, ev VaRBreachEvent) {
	if p == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	p.publish(ctx, p.breachWriter, ev.Method, ev)
}

func (p *Publisher) publish(ctx context.Context, w *kafka.Writer, key string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("topic", w.Topic), zap.Error(err))
		metrics.EventsPublished.WithLabelValues(w.Topic, "error").Inc()
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = w.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", w.Topic),
			zap.String("key", key),
			zap.Error(err))
		metrics.EventsPublished.WithLabelValues(w.Topic, "error").Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(w.Topic, "ok").Inc()
}

// Close flushes and closes the underlying writers.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.runWriter.Close(); err != nil {
		return err
	}
	return p.breachWriter.Close()
}

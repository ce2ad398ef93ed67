// Package events publishes payment outcome events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/logging"
)

// Outcome is the final state of one submission.
type Outcome string

const (
	// OutcomeSubmitted is published when the submission service accepted the transaction.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeFailed is published for every other result.
	OutcomeFailed Outcome = "failed"
)

// flushTimeoutMs bounds how long Close waits for queued messages.
const flushTimeoutMs = 15 * 1000

// PaymentEvent describes the result of one submission attempt.
type PaymentEvent struct {
	ID           string    `json:"id"`
	TxHash       string    `json:"tx_hash"`
	Outcome      Outcome   `json:"outcome"`
	Stage        string    `json:"stage,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	WitnessCount int       `json:"witness_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewPaymentEvent stamps an event with a fresh id and the current time.
func NewPaymentEvent(txHash string, outcome Outcome) PaymentEvent {
	return PaymentEvent{
		ID:         uuid.NewString(),
		TxHash:     txHash,
		Outcome:    outcome,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher publishes payment events.
type Publisher interface {
	Publish(ctx context.Context, event PaymentEvent) error
}

// NopPublisher drops every event. It is used when Kafka is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, PaymentEvent) error { return nil }

// producer is the part of *kafka.Producer the publisher uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	Close()
}

// KafkaPublisher writes events to the submitted or failed topic, keyed by
// transaction hash so all events for one transaction land on one partition.
type KafkaPublisher struct {
	producer       producer
	submittedTopic string
	failedTopic    string
	logger         *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewKafkaPublisher creates a producer for the configured brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.Logger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         "merchantpay",
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newKafkaPublisher(p, cfg, logger), nil
}

func newKafkaPublisher(p producer, cfg config.KafkaConfig, logger *logging.Logger) *KafkaPublisher {
	kp := &KafkaPublisher{
		producer:       p,
		submittedTopic: cfg.SubmittedTopic,
		failedTopic:    cfg.FailedTopic,
		logger:         logger.WithField("service", ServiceName),
		done:           make(chan struct{}),
	}
	go kp.watchDeliveries()
	return kp
}

// Topic returns the topic an outcome is written to.
func (kp *KafkaPublisher) Topic(outcome Outcome) string {
	if outcome == OutcomeSubmitted {
		return kp.submittedTopic
	}
	return kp.failedTopic
}

// Publish enqueues the event. Delivery is asynchronous; failures are logged
// by the delivery watcher.
func (kp *KafkaPublisher) Publish(ctx context.Context, event PaymentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error serializing payment event: %w", err)
	}

	topic := kp.Topic(event.Outcome)
	err = kp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.TxHash),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("error publishing payment event: %w", err)
	}
	return nil
}

// Ping asks the brokers for metadata of the submitted topic.
func (kp *KafkaPublisher) Ping(ctx context.Context) error {
	timeout := 2000
	if deadline, ok := ctx.Deadline(); ok {
		if ms := int(time.Until(deadline).Milliseconds()); ms > 0 && ms < timeout {
			timeout = ms
		}
	}
	topic := kp.submittedTopic
	_, err := kp.producer.GetMetadata(&topic, false, timeout)
	return err
}

func (kp *KafkaPublisher) watchDeliveries() {
	for {
		select {
		case <-kp.done:
			return
		case ev, ok := <-kp.producer.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					kp.logger.Error("Payment event delivery failed",
						"topic", topicName(e.TopicPartition.Topic),
						"key", string(e.Key),
						"error", e.TopicPartition.Error)
				}
			case kafka.Error:
				kp.logger.Warn("Kafka producer error", "error", e)
			}
		}
	}
}

// Close flushes queued messages and closes the producer.
func (kp *KafkaPublisher) Close() {
	kp.closeOnce.Do(func() {
		if remaining := kp.producer.Flush(flushTimeoutMs); remaining > 0 {
			kp.logger.Warn("Payment events not flushed before close", "remaining", remaining)
		}
		close(kp.done)
		kp.producer.Close()
	})
}

func topicName(topic *string) string {
	if topic == nil {
		return ""
	}
	return *topic
}

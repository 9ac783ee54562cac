package events

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/IBM/sarama"
)

// Publisher sends domain events to Kafka
type Publisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
}

// NewPublisher connects a synchronous producer to the brokers
func NewPublisher(brokers []string, topicPrefix string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start kafka producer: %w", err)
	}

	log.Printf("Kafka producer initialized (%d brokers)", len(brokers))
	return NewPublisherWithProducer(producer, topicPrefix), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topicPrefix string) *Publisher {
	return &Publisher{producer: producer, topicPrefix: topicPrefix}
}

// Topic returns the prefixed topic for an event name
func (p *Publisher) Topic(event string) string {
	return p.topicPrefix + event
}

// Publish marshals event as JSON and sends it keyed by userID, so one user's events stay ordered
func (p *Publisher) Publish(name string, userID uint, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", name, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.Topic(name),
		Key:   sarama.StringEncoder(strconv.FormatUint(uint64(userID), 10)),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send %s message: %w", name, err)
	}

	log.Printf("Published %s event (partition %d, offset %d)", msg.Topic, partition, offset)
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	ProductsTopic = "coastal.products"
	OrdersTopic   = "coastal.orders"
)

// TopicFor maps a resource to its Kafka topic.
func TopicFor(resource string) string {
	if resource == ResourceOrder {
		return OrdersTopic
	}
	return ProductsTopic
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

// Publishing runs on the request path, so a send gives up after roughly
// ProducerTimeout per attempt instead of sarama's 30s network defaults.
const (
	NetworkTimeout  = 2 * time.Second
	ProducerTimeout = 2 * time.Second
)

func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 2
	config.Producer.Retry.Backoff = 100 * time.Millisecond
	config.Producer.Timeout = ProducerTimeout
	config.Producer.Return.Successes = true
	config.Net.DialTimeout = NetworkTimeout
	config.Net.ReadTimeout = NetworkTimeout
	config.Net.WriteTimeout = NetworkTimeout
	config.Metadata.Retry.Max = 1
	config.Metadata.Retry.Backoff = 100 * time.Millisecond
	config.Metadata.Timeout = 2 * NetworkTimeout
	config.Version = sarama.V2_6_0_0
	return config
}

func NewKafkaPublisher(brokers []string, clientID string, logger *logrus.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, logger), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := TopicFor(event.Resource)
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":      topic,
		"partition":  partition,
		"offset":     offset,
		"event_type": event.Type,
		"id":         event.ID,
	}).Info("Event published to Kafka")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

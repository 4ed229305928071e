package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/turbolytics/docket/internal/events"
	"go.uber.org/zap"
)

var _ events.Publisher = (*Publisher)(nil)

type Stats struct {
	Published   int64
	Errors      int64
	LastError   string
	LastPublish time.Time
}

// Publisher sends discovery events to a topic, keyed by dataset so the events
// of one dataset keep their order.
type Publisher struct {
	config   kafka.ConfigMap
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger

	statsMu sync.RWMutex
	stats   Stats
}

// ConfigFromURL reads kafka://broker:9092/topic?key=value. Query parameters
// are passed to the producer as configuration properties.
func ConfigFromURL(uri *url.URL) (kafka.ConfigMap, string, error) {
	topic := strings.TrimPrefix(uri.Path, "/")
	if topic == "" {
		return nil, "", fmt.Errorf("topic must be specified in URL path")
	}
	if uri.Host == "" {
		return nil, "", fmt.Errorf("broker must be specified in URL host")
	}

	config := kafka.ConfigMap{
		"bootstrap.servers":   uri.Host,
		"client.id":           "docket",
		"acks":                "all",
		"retries":             "3",
		"linger.ms":           "5",
		"compression.type":    "snappy",
		"request.timeout.ms":  "5000",
		"delivery.timeout.ms": "10000",
	}

	for key, values := range uri.Query() {
		if len(values) > 0 {
			config[key] = values[0]
		}
	}
	return config, topic, nil
}

func NewPublisher(uri *url.URL, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config, topic, err := ConfigFromURL(uri)
	if err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		config:   config,
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	go p.deliveries()

	logger.Info("Kafka publisher connected",
		zap.String("topic", topic),
		zap.String("brokers", uri.Host),
	)
	return p, nil
}

func (p *Publisher) deliveries() {
	defer p.logger.Debug("Producer event loop closed")

	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.Error("Delivery failed", zap.Error(ev.TopicPartition.Error))
				p.recordError(ev.TopicPartition.Error)
				continue
			}
			p.logger.Debug("Message delivered",
				zap.String("topic", *ev.TopicPartition.Topic),
				zap.Int32("partition", ev.TopicPartition.Partition),
				zap.Int64("offset", int64(ev.TopicPartition.Offset)))
		case kafka.Error:
			p.logger.Error("Producer error", zap.Error(ev))
		}
	}
}

func MessageKey(d events.Discovery) []byte {
	return []byte(fmt.Sprintf("dataset-%d", d.Dataset))
}

func (p *Publisher) Publish(ctx context.Context, d events.Discovery) error {
	value, err := json.Marshal(d)
	if err != nil {
		p.recordError(err)
		return err
	}

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   MessageKey(d),
		Value: value,
	}, nil)
	if err != nil {
		p.recordError(err)
		return err
	}

	p.statsMu.Lock()
	p.stats.Published++
	p.stats.LastPublish = time.Now()
	p.statsMu.Unlock()
	return nil
}

func (p *Publisher) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Errors++
	p.stats.LastError = err.Error()
}

func (p *Publisher) Stats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// Close flushes outstanding messages for up to five seconds.
func (p *Publisher) Close() error {
	if remaining := p.producer.Flush(5000); remaining > 0 {
		p.logger.Warn("Messages not delivered before close", zap.Int("remaining", remaining))
	}
	p.producer.Close()
	return nil
}

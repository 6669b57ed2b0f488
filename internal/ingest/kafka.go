package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"store-sentinel/internal/models"
)

// KafkaSource consumes sensor records from a Kafka topic, one JSON record per
// message.
type KafkaSource struct {
	reader   *kafka.Reader
	counters *Counters
	logger   *logrus.Logger
}

func NewKafkaSource(brokers []string, topic, groupID string, counters *Counters, logger *logrus.Logger) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSource{reader: r, counters: counters, logger: logger}
}

func (s *KafkaSource) Run(ctx context.Context, out chan<- models.SensorRecord) error {
	defer s.reader.Close()
	s.logger.Infof("Kafka consumer started on topic %s", s.reader.Config().Topic)
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read failed: %w", err)
		}
		rec, err := Decode(msg.Value)
		if err != nil {
			s.counters.Malformed.Add(1)
			s.logger.Warnf("Skipping kafka message at offset %d: %v", msg.Offset, err)
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

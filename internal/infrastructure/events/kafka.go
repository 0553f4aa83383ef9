package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// ArticleCreated is the JSON value of one event; the message key is the article id.
type ArticleCreated struct {
	ID              string    `json:"id"`
	Category        string    `json:"category"`
	Title           string    `json:"title"`
	TitleTranslated *string   `json:"titleTranslated,omitempty"`
	Date            string    `json:"date"`
	SourceURL       string    `json:"sourceUrl"`
	ImageRefs       []string  `json:"imageRefs"`
	CreatedAt       time.Time `json:"createdAt"`
}

// KafkaPublisher announces created articles on one topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher dials the brokers with an idempotent, all-acks producer.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewPublisher(producer, cfg.Topic), nil
}

// NewPublisher wraps an existing producer.
func NewPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishCreated(ctx context.Context, article domain.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(ArticleCreated{
		ID:              article.ID,
		Category:        article.Category,
		Title:           article.Title,
		TitleTranslated: article.TitleTranslated,
		Date:            article.Date,
		SourceURL:       article.SourceURL,
		ImageRefs:       article.ImageRefs,
		CreatedAt:       article.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(article.ID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", article.ID, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

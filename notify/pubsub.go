package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/warp/club-dues/dues"
	"google.golang.org/api/option"
)

// Publisher publishes a payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error)
}

// PubSubConfig selects the Pub/Sub project and topic. EmulatorHost, when
// set, points the client at a local emulator without credentials.
type PubSubConfig struct {
	ProjectID    string
	Topic        string
	EmulatorHost string
}

// GooglePublisher is a Publisher backed by Google Cloud Pub/Sub.
type GooglePublisher struct {
	client *pubsub.Client
}

func NewGooglePublisher(ctx context.Context, cfg PubSubConfig) (*GooglePublisher, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is not set")
	}

	var opts []option.ClientOption
	if cfg.EmulatorHost != "" {
		opts = append(opts, option.WithEndpoint(cfg.EmulatorHost), option.WithoutAuthentication())
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &GooglePublisher{client: client}, nil
}

func (p *GooglePublisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

// Close releases the client.
func (p *GooglePublisher) Close() error {
	return p.client.Close()
}

// pushPayload is the message the push delivery service consumes.
type pushPayload struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PubSubSender is a PushSender that hands each push to the delivery
// service through a Pub/Sub topic. Invalid-token pruning happens there.
type PubSubSender struct {
	publisher Publisher
	topic     string
}

func NewPubSubSender(publisher Publisher, topic string) *PubSubSender {
	return &PubSubSender{publisher: publisher, topic: topic}
}

// Send publishes one message. A published message counts as one success.
func (s *PubSubSender) Send(ctx context.Context, msg dues.PushMessage) (dues.SendResult, error) {
	payload, err := json.Marshal(pushPayload{Token: msg.Token, Title: msg.Title, Body: msg.Body, Data: msg.Data})
	if err != nil {
		return dues.SendResult{FailureCount: 1}, fmt.Errorf("failed to encode push: %w", err)
	}

	attrs := map[string]string{"kind": dues.NotificationDuesReminder}
	if _, err := s.publisher.Publish(ctx, s.topic, payload, attrs); err != nil {
		return dues.SendResult{FailureCount: 1}, err
	}
	return dues.SendResult{SuccessCount: 1}, nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/itter-sh/itter/internal/config"
)

// Bridge relays Hub events across server instances through a Cloud
// Pub/Sub topic, so a watcher on one instance sees eets posted through
// another.
type Bridge struct {
	hub        *Hub
	client     *pubsub.Client
	topic      *pubsub.Topic
	sub        *pubsub.Subscription
	instanceID string
	logger     *slog.Logger
}

// NewBridge connects to Pub/Sub. The subscription must already exist;
// provisioning is an operator concern.
func NewBridge(ctx context.Context, cfg config.PubSubConfig, hub *Hub, logger *slog.Logger) (*Bridge, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	b := &Bridge{
		hub:        hub,
		client:     client,
		topic:      client.Topic(cfg.TopicID),
		instanceID: uuid.NewString(),
		logger:     logger,
	}
	if cfg.SubscriptionID != "" {
		b.sub = client.Subscription(cfg.SubscriptionID)
	}
	return b, nil
}

// Forward publishes a locally raised event to the topic. Events that
// arrived from the topic (Origin set) are not re-forwarded.
func (b *Bridge) Forward(ctx context.Context, ev Event) {
	if ev.Origin != "" {
		return
	}
	ev.Origin = b.instanceID
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("pubsub: encode event", "error", err)
		return
	}
	res := b.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"origin": b.instanceID},
	})
	go func() {
		if _, err := res.Get(ctx); err != nil {
			b.logger.Error("pubsub: publish failed", "post_id", ev.PostID, "error", err)
		}
	}()
}

// Run receives remote events and injects them into the local hub until
// ctx is canceled. Returns nil when no subscription is configured.
func (b *Bridge) Run(ctx context.Context) error {
	if b.sub == nil {
		<-ctx.Done()
		return nil
	}
	err := b.sub.Receive(ctx, func(_ context.Context, m *pubsub.Message) {
		defer m.Ack()
		if m.Attributes["origin"] == b.instanceID {
			return
		}
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.logger.Warn("pubsub: bad event payload", "error", err)
			return
		}
		if ev.Origin == "" {
			ev.Origin = "remote"
		}
		b.hub.Publish(ev)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (b *Bridge) Close() error {
	b.topic.Stop()
	return b.client.Close()
}

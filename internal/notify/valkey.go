package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const channelPrefix = "notifications:"

// ValkeyPublisher publishes notification payloads on Valkey pub/sub so every
// portal instance can reach the recipient's open streams.
type ValkeyPublisher struct {
	client valkey.Client
}

// NewValkeyClient connects to Valkey and verifies the connection.
func NewValkeyClient(addr string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	slog.Info("Connected to Valkey", "address", addr)
	return client, nil
}

// NewValkeyPublisher wraps an existing client.
func NewValkeyPublisher(client valkey.Client) *ValkeyPublisher {
	return &ValkeyPublisher{client: client}
}

// Publish implements Publisher.
func (p *ValkeyPublisher) Publish(ctx context.Context, userID uuid.UUID, payload string) error {
	cmd := p.client.B().Publish().Channel(channelPrefix + userID.String()).Message(payload).Build()
	return p.client.Do(ctx, cmd).Error()
}

// Relay subscribes to every recipient channel and hands messages to the
// local broker. It blocks until ctx is cancelled or the subscription fails.
func Relay(ctx context.Context, client valkey.Client, broker *Broker) error {
	slog.Info("Notification relay subscribed", "pattern", channelPrefix+"*")

	cmd := client.B().Psubscribe().Pattern(channelPrefix + "*").Build()
	err := client.Receive(ctx, cmd, func(msg valkey.PubSubMessage) {
		userID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, channelPrefix))
		if err != nil {
			slog.Warn("Ignoring notification on malformed channel", "channel", msg.Channel)
			return
		}
		broker.Deliver(userID, msg.Message)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

package firebase

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/messaging"

	"dentalink/internal/domain/repository"
	"dentalink/pkg/logger"
)

// MessagingClient delivers chat notifications through FCM. An identity with
// no registered device tokens simply receives nothing; that is the
// permission-not-granted case, not an error.
type MessagingClient struct {
	client   *messaging.Client
	userRepo repository.UserRepository
	ttl      time.Duration
}

func NewMessagingClient(client *messaging.Client, userRepo repository.UserRepository, ttl time.Duration) *MessagingClient {
	return &MessagingClient{
		client:   client,
		userRepo: userRepo,
		ttl:      ttl,
	}
}

func (m *MessagingClient) Notify(ctx context.Context, identity, title, body string, data map[string]string) error {
	tokens, err := m.userRepo.ListDeviceTokens(ctx, identity)
	if err != nil {
		return fmt.Errorf("list device tokens for %s: %w", identity, err)
	}
	if len(tokens) == 0 {
		logger.Debug("No device tokens for %s, skipping notification", identity)
		return nil
	}

	ttl := m.ttl
	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Webpush: &messaging.WebpushConfig{
			Headers: map[string]string{
				"TTL": fmt.Sprintf("%d", int(ttl.Seconds())),
			},
		},
	}

	resp, err := m.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("send notification to %s: %w", identity, err)
	}
	if resp.FailureCount > 0 {
		logger.Warn("Notification to %s: %d of %d sends failed", identity, resp.FailureCount, len(tokens))
	}

	return nil
}

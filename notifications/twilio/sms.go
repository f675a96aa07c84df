// Package twilio sends SMS notifications through the Twilio messaging API.
// It is used for operator alerts, such as new payout requests.
package twilio

import (
	"context"
	"fmt"

	"github.com/reevlo/reevlo-backend/notifications"
	t "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// maxBodyLength is the longest text Twilio accepts in a single message.
const maxBodyLength = 1600

// Config holds the Twilio account credentials and the sender number.
type Config struct {
	AccountSid string
	AuthToken  string
	FromNumber string
}

// SMS implements notifications.NotificationService for Twilio.
// Read more here: https://www.twilio.com/docs/messaging/quickstart/go
type SMS struct {
	config *Config
	client *t.RestClient
}

var _ notifications.NotificationService = (*SMS)(nil)

// New validates the configuration and builds the REST client.
func (s *SMS) New(rawConfig any) error {
	config, ok := rawConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid Twilio configuration")
	}
	if config.AccountSid == "" || config.AuthToken == "" || config.FromNumber == "" {
		return fmt.Errorf("missing Twilio account sid, auth token or sender number")
	}
	s.config = config
	s.client = t.NewRestClientWithParams(t.ClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})
	return nil
}

// SendNotification sends the plain text of the notification to its ToNumber.
func (s *SMS) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	if notification.ToNumber == "" {
		return fmt.Errorf("missing recipient number")
	}
	params := &api.CreateMessageParams{}
	params.SetTo(notification.ToNumber)
	params.SetFrom(s.config.FromNumber)
	params.SetBody(truncate(notification.Text(), maxBodyLength))

	errCh := make(chan error, 1)
	go func() {
		_, err := s.client.Api.CreateMessage(params)
		errCh <- err
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

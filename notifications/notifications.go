// Package notifications defines the messages sent to creators and operators
// (purchase receipts, membership changes and payout alerts) and the
// interface every delivery channel implements.
package notifications

import "context"

// Notification is a single message. Email channels use ToAddress, Subject,
// Body (HTML) and PlainBody; SMS channels use ToNumber and PlainBody, falling
// back to Body when there is no plain version.
type Notification struct {
	ToName    string
	ToAddress string
	ToNumber  string
	Subject   string
	Body      string
	PlainBody string
}

// Text returns the plain text content of the notification.
func (n *Notification) Text() string {
	if n.PlainBody != "" {
		return n.PlainBody
	}
	return n.Body
}

// NotificationService is implemented by every delivery channel. New receives
// the channel specific configuration.
type NotificationService interface {
	New(conf any) error
	SendNotification(context.Context, *Notification) error
}

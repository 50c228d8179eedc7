// Package notification delivers audit summaries to chat and mail services
// through shoutrrr.
package notification

import "context"

// Notification is a titled plain-text message.
type Notification struct {
	Title   string
	Message string
}

// Provider is a push delivery backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

package notification

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
)

const (
	componentName = "notification"

	// DefaultTimeout bounds one delivery to one provider.
	DefaultTimeout = 30 * time.Second
)

var urlPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"'<>]+`)

// Scrub replaces URLs in message with their scheme, dropping hosts, tokens
// and paths.
func Scrub(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, func(u string) string {
		scheme, _, _ := strings.Cut(u, "://")
		return scheme + "://[redacted]"
	})
}

// Dispatcher fans a notification out to its providers. A Dispatcher
// without providers accepts and drops everything.
type Dispatcher struct {
	providers []Provider
	prefix    string
	timeout   time.Duration
	log       logger.Logger
}

// NewDispatcher creates a Dispatcher over providers.
func NewDispatcher(providers []Provider, titlePrefix string, timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	return &Dispatcher{providers: providers, prefix: titlePrefix, timeout: timeout, log: log}
}

// FromSettings builds a Dispatcher with one shoutrrr provider for
// settings.URLs, or none when no URLs are configured.
func FromSettings(settings *conf.NotificationSettings, log logger.Logger) (*Dispatcher, error) {
	var providers []Provider
	if len(settings.URLs) > 0 {
		p, err := NewShoutrrrProvider("shoutrrr", settings.URLs, DefaultTimeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewDispatcher(providers, settings.Title, DefaultTimeout, log), nil
}

// Enabled reports whether any provider is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.providers) > 0
}

// Notify sends message to every provider and joins their failures.
func (d *Dispatcher) Notify(ctx context.Context, title, message string) error {
	if !d.Enabled() {
		return nil
	}
	if d.prefix != "" {
		title = d.prefix + ": " + title
	}
	n := &Notification{Title: title, Message: message}

	var errs []error
	for _, p := range d.providers {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := p.Send(sendCtx, n)
		cancel()
		if err != nil {
			d.log.Warn("notification delivery failed",
				logger.String("provider", p.Name()),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		d.log.Debug("notification delivered", logger.String("provider", p.Name()))
	}
	return errors.Join(errs...)
}

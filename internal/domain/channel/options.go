package channel

import "log/slog"

// Option defines a functional configuration type for the Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// WithHandler sets the receiver of new_notification events.
func WithHandler(h Handler) Option {
	return func(c *Channel) {
		c.handler = h
	}
}

// WithMaxRedials bounds how many times a dropped socket is redialed for the
// same user before the channel gives up and reports Disconnected.
func WithMaxRedials(n int) Option {
	return func(c *Channel) {
		c.maxRedials = n
	}
}

package realtime

import (
	"context"
	"errors"
)

// ErrNoClient is returned by FromContext when no Client was attached.
var ErrNoClient = errors.New("realtime: no client in context")

type clientKey struct{}

// NewContext returns a copy of ctx carrying c.
func NewContext(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the Client attached by NewContext.
func FromContext(ctx context.Context) (*Client, error) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	if !ok || c == nil {
		return nil, ErrNoClient
	}
	return c, nil
}

package lyria

import (
	"context"

	"mediastudio/internal/application"
)

// Open は、application.MusicTransportとしてセッションを開きます
func (c *Client) Open(ctx context.Context) (application.MusicStream, error) {
	stream, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

var _ application.MusicTransport = (*Client)(nil)

package bridge

import (
	"context"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/platform"
)

// Client exposes the platform capability set to code outside the loop. Every
// call is submitted to the loop and bounded by the configured timeout.
type Client struct {
	loop    *Loop
	pc      platform.Client
	timeout time.Duration
}

func NewClient(loop *Loop, pc platform.Client, timeout time.Duration) *Client {
	return &Client{loop: loop, pc: pc, timeout: timeout}
}

func (c *Client) Loop() *Loop { return c.loop }

func (c *Client) Send(ctx context.Context, channelID, content string) (platform.Message, error) {
	return Do(ctx, c.loop, c.timeout, func(ctx context.Context) (platform.Message, error) {
		return c.pc.Send(ctx, channelID, content)
	})
}

func (c *Client) Channel(ctx context.Context, channelID string) (platform.Channel, error) {
	return Do(ctx, c.loop, c.timeout, func(ctx context.Context) (platform.Channel, error) {
		return c.pc.Channel(ctx, channelID)
	})
}

func (c *Client) CategoryChannels(ctx context.Context, categoryID string) ([]platform.Channel, error) {
	return Do(ctx, c.loop, c.timeout, func(ctx context.Context) ([]platform.Channel, error) {
		return c.pc.CategoryChannels(ctx, categoryID)
	})
}

func (c *Client) History(ctx context.Context, channelID, beforeID string, limit int) ([]platform.Message, error) {
	return Do(ctx, c.loop, c.timeout, func(ctx context.Context) ([]platform.Message, error) {
		return c.pc.History(ctx, channelID, beforeID, limit)
	})
}

func (c *Client) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	return Do(ctx, c.loop, c.timeout, func(ctx context.Context) (string, error) {
		return c.pc.RoleName(ctx, guildID, roleID)
	})
}

// Exec runs fn on the loop with direct access to the platform client. Work
// executed through Exec never interleaves with other platform calls, which makes
// check-then-send sequences atomic within the process.
func (c *Client) Exec(ctx context.Context, fn func(ctx context.Context, pc platform.Client) error) error {
	_, err := Do(ctx, c.loop, c.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx, c.pc)
	})
	return err
}

var _ platform.Client = (*Client)(nil)

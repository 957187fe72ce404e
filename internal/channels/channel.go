// Package channels connects chat platforms to the triage pipeline.
// Adapters normalize platform events into bus.InboundEvent and deliver
// the pipeline's replies and reactions back to the platform.
package channels

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
)

// Channel is a chat platform adapter.
type Channel interface {
	// Name returns the platform identifier (e.g. "slack", "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter.
	Stop(ctx context.Context) error

	// Post creates a message and returns its platform timestamp/id.
	Post(ctx context.Context, post bus.OutboundPost) (string, error)

	// React attaches an emoji reaction to a message.
	React(ctx context.Context, reaction bus.Reaction) error

	// IsRunning reports whether the adapter is connected.
	IsRunning() bool
}

// BaseChannel provides the shared plumbing adapters embed: the queue
// feeding the pipeline, a running flag, and an inbound flood guard.
type BaseChannel struct {
	name    string
	queue   *bus.Queue
	guard   *FloodGuard
	running bool
}

func NewBaseChannel(name string, queue *bus.Queue) *BaseChannel {
	return &BaseChannel{
		name:  name,
		queue: queue,
		guard: NewFloodGuard(),
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Publish forwards a normalized event to the pipeline queue, dropping
// senders that exceed the flood limit.
func (c *BaseChannel) Publish(ctx context.Context, ev bus.InboundEvent) {
	if !c.guard.Allow(ev.ChannelID + "|" + ev.Author) {
		slog.Warn("channel.flood_dropped",
			"platform", c.name,
			"channel", ev.ChannelID,
			"author", ev.Author)
		return
	}
	if err := c.queue.Publish(ctx, ev); err != nil {
		slog.Warn("channel.publish_failed", "platform", c.name, "error", err)
	}
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

package channels

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
)

type fakeChannel struct {
	name      string
	started   bool
	stopped   bool
	posts     []bus.OutboundPost
	reactions []bus.Reaction
}

func (c *fakeChannel) Name() string                    { return c.name }
func (c *fakeChannel) Start(context.Context) error     { c.started = true; return nil }
func (c *fakeChannel) Stop(context.Context) error      { c.stopped = true; return nil }
func (c *fakeChannel) IsRunning() bool                 { return c.started && !c.stopped }
func (c *fakeChannel) Post(_ context.Context, p bus.OutboundPost) (string, error) {
	c.posts = append(c.posts, p)
	return "ts-1", nil
}
func (c *fakeChannel) React(_ context.Context, r bus.Reaction) error {
	c.reactions = append(c.reactions, r)
	return nil
}

func TestManagerRoutesByPlatform(t *testing.T) {
	slack := &fakeChannel{name: "slack"}
	discord := &fakeChannel{name: "discord"}
	m := NewManager()
	m.Register(slack)
	m.Register(discord)
	ctx := context.Background()

	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	if !slack.started || !discord.started {
		t.Fatal("adapters not started")
	}

	ts, err := m.Post(ctx, bus.OutboundPost{Platform: "slack", ChannelID: "C1", Text: "hi"})
	if err != nil || ts != "ts-1" {
		t.Fatalf("post: ts=%q err=%v", ts, err)
	}
	if len(slack.posts) != 1 || len(discord.posts) != 0 {
		t.Errorf("post routed wrong: slack=%d discord=%d", len(slack.posts), len(discord.posts))
	}

	if err := m.React(ctx, bus.Reaction{Platform: "discord", ChannelID: "C2", TS: "1", Emoji: "bug"}); err != nil {
		t.Fatal(err)
	}
	if len(discord.reactions) != 1 {
		t.Errorf("reaction not routed to discord")
	}

	if _, err := m.Post(ctx, bus.OutboundPost{Platform: "irc"}); err == nil {
		t.Error("expected error for unknown platform")
	}

	if err := m.StopAll(ctx); err != nil {
		t.Fatal(err)
	}
	if !slack.stopped || !discord.stopped {
		t.Error("adapters not stopped")
	}
}

func TestFloodGuard(t *testing.T) {
	g := NewFloodGuard()
	for i := 0; i < floodMaxHits; i++ {
		if !g.Allow("C1|U1") {
			t.Fatalf("request %d rejected inside the window limit", i)
		}
	}
	if g.Allow("C1|U1") {
		t.Error("request over the limit was allowed")
	}
	if !g.Allow("C1|U2") {
		t.Error("other senders must not be affected")
	}
}

// Package discord implements the Discord adapter over the gateway API.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
	"github.com/nextlevelbuilder/triagebot/internal/channels"
	"github.com/nextlevelbuilder/triagebot/internal/config"
)

// reactionEmoji maps the pipeline's Slack-style emoji names to the
// unicode characters Discord reactions use.
var reactionEmoji = map[string]string{
	"question":      "❓",
	"bulb":          "\U0001F4A1",
	"bug":           "\U0001F41B",
	"warning":       "⚠️",
	"grey_question": "❔",
}

// Channel connects to Discord via the gateway.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	cfg       config.DiscordConfig
	botUserID string
	runCtx    context.Context
	cancel    context.CancelFunc
}

// New creates the Discord adapter. It does not connect until Start.
func New(cfg config.DiscordConfig, queue *bus.Queue) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", queue),
		session:     session,
		cfg:         cfg,
	}, nil
}

// Start opens the gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return c.session.Close()
}

// Post sends a message, threaded under ThreadTS when set, and returns
// the new message id.
func (c *Channel) Post(_ context.Context, post bus.OutboundPost) (string, error) {
	if !c.IsRunning() {
		return "", fmt.Errorf("discord adapter not running")
	}

	text := post.Text
	if len(post.TagIdentities) > 0 {
		mentions := make([]string, len(post.TagIdentities))
		for i, id := range post.TagIdentities {
			mentions[i] = fmt.Sprintf("<@%s>", id)
		}
		text = fmt.Sprintf("%s\n\ncc %s", text, strings.Join(mentions, " "))
	}

	send := &discordgo.MessageSend{Content: truncateMessage(text)}
	if post.ThreadTS != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: post.ThreadTS,
			ChannelID: post.ChannelID,
		}
	}

	msg, err := c.session.ChannelMessageSendComplex(post.ChannelID, send)
	if err != nil {
		return "", fmt.Errorf("send discord message: %w", err)
	}
	return msg.ID, nil
}

// React adds a unicode reaction to a message.
func (c *Channel) React(_ context.Context, reaction bus.Reaction) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord adapter not running")
	}
	emoji, ok := reactionEmoji[reaction.Emoji]
	if !ok {
		emoji = reactionEmoji["grey_question"]
	}
	if err := c.session.MessageReactionAdd(reaction.ChannelID, reaction.TS, emoji); err != nil {
		return fmt.Errorf("add discord reaction: %w", err)
	}
	return nil
}

// handleMessage normalizes incoming gateway messages for the pipeline.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	content := strings.TrimSpace(m.Content)
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		return
	}

	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			mentioned = true
			break
		}
	}
	if mentioned {
		content = stripMention(content, c.botUserID)
		if content == "" {
			return
		}
	}

	// A message with a reference is a reply inside an existing
	// conversation; only join when addressed.
	threadTS := ""
	if m.MessageReference != nil {
		threadTS = m.MessageReference.MessageID
	}
	if threadTS != "" && !mentioned {
		return
	}
	if threadTS == "" && !c.cfg.RespondsToTopLevel() && !mentioned {
		return
	}

	slog.Debug("discord message",
		"channel", m.ChannelID,
		"author", m.Author.ID,
		"preview", channels.Truncate(content, 50))

	c.Publish(c.runCtx, bus.InboundEvent{
		Platform:    "discord",
		ChannelID:   m.ChannelID,
		Author:      m.Author.ID,
		Text:        content,
		TS:          m.ID,
		ThreadTS:    threadTS,
		MentionsBot: mentioned,
	})
}

// stripMention removes bot mention tokens from the message text.
func stripMention(text, botUserID string) string {
	text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	text = strings.ReplaceAll(text, "<@!"+botUserID+">", "")
	return strings.TrimSpace(text)
}

// truncateMessage keeps content under Discord's 2000 character limit,
// breaking at a newline when one is close enough.
func truncateMessage(content string) string {
	const maxLen = 2000
	if len(content) <= maxLen {
		return content
	}
	cutAt := maxLen - 3
	if idx := strings.LastIndexByte(content[:cutAt], '\n'); idx > cutAt/2 {
		cutAt = idx
	}
	return content[:cutAt] + "..."
}

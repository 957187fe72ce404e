package slack

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
)

// envelope is the Socket Mode frame wrapping every server message.
type envelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

type eventCallback struct {
	Type  string     `json:"type"`
	Event slackEvent `json:"event"`
}

type slackEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	Channel  string `json:"channel"`
}

// normalizeEvent turns a Slack event into a pipeline event. The second
// return is false when the event should be ignored: bot traffic, edits
// and other subtypes, or messages the bot is not addressed by.
//
// app_mention events duplicate the message event for the same ts, so
// only message events are accepted.
func normalizeEvent(ev slackEvent, botUserID string, respondTopLevel bool) (bus.InboundEvent, bool) {
	if ev.Type != "message" || ev.Subtype != "" {
		return bus.InboundEvent{}, false
	}
	if ev.User == "" || ev.BotID != "" || ev.User == botUserID {
		return bus.InboundEvent{}, false
	}
	if ev.Channel == "" || ev.TS == "" {
		return bus.InboundEvent{}, false
	}

	mention := "<@" + botUserID + ">"
	mentioned := botUserID != "" && strings.Contains(ev.Text, mention)

	inThread := ev.ThreadTS != "" && ev.ThreadTS != ev.TS
	if inThread && !mentioned {
		// Thread chatter is between humans unless the bot is pulled in.
		return bus.InboundEvent{}, false
	}
	if !inThread && !respondTopLevel && !mentioned {
		return bus.InboundEvent{}, false
	}

	text := ev.Text
	if mentioned {
		text = strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
	}
	if text == "" {
		return bus.InboundEvent{}, false
	}

	return bus.InboundEvent{
		Platform:    "slack",
		ChannelID:   ev.Channel,
		Author:      ev.User,
		Text:        text,
		TS:          ev.TS,
		ThreadTS:    ev.ThreadTS,
		MentionsBot: mentioned,
	}, true
}

package bus

// InboundEvent is a chat message normalized by a platform adapter.
// TS is the platform timestamp/ID of the message; ThreadTS is the parent
// message TS when the event arrived inside a thread, empty for top-level.
type InboundEvent struct {
	Platform    string `json:"platform"`
	ChannelID   string `json:"channel_id"`
	Author      string `json:"author"`
	Text        string `json:"text"`
	TS          string `json:"ts"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	MentionsBot bool   `json:"mentions_bot"`
}

// ThreadRoot returns the TS the bot should reply under. Replies always go
// into a thread: the message's own thread when it has one, otherwise a new
// thread rooted at the message itself.
func (e InboundEvent) ThreadRoot() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// TopLevel reports whether the event is a top-level channel message.
func (e InboundEvent) TopLevel() bool {
	return e.ThreadTS == ""
}

// OutboundPost is a reply to be delivered by a platform adapter.
type OutboundPost struct {
	Platform      string   `json:"platform"`
	ChannelID     string   `json:"channel_id"`
	Text          string   `json:"text"`
	ThreadTS      string   `json:"thread_ts,omitempty"`
	TagIdentities []string `json:"tag_identities,omitempty"`
}

// Reaction asks a platform adapter to attach an emoji to a message.
type Reaction struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	TS        string `json:"ts"`
	Emoji     string `json:"emoji"`
}

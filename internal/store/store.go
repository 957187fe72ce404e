package store

import (
	"context"
	"errors"
	"time"
)

// DefaultDirective is applied to channels that have never been
// configured. Deployments may override it at startup, before any store
// is opened.
var DefaultDirective = "Channel directive has not been set yet."

var (
	// ErrAlreadyClassified is returned when a classification is attached to
	// a message that already has one.
	ErrAlreadyClassified = errors.New("message already classified")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// ChannelState is the per-channel configuration the pipeline reads on
// every run.
type ChannelState struct {
	ChannelID string            `json:"channel_id"`
	Platform  string            `json:"platform"`
	Directive string            `json:"directive"`
	Oncall    map[string]string `json:"oncall,omitempty"` // topic -> identity
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ContextFact is an append-only remembered fact about a channel.
type ContextFact struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	Text         string    `json:"text"`
	AddedBy      string    `json:"added_by"`
	SupersedesID string    `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageRecord is a stored channel message, enriched as the pipeline
// processes it.
type MessageRecord struct {
	ChannelID      string    `json:"channel_id"`
	TS             string    `json:"ts"`
	ThreadTS       string    `json:"thread_ts,omitempty"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	Classification string    `json:"classification,omitempty"`
	Urgency        string    `json:"urgency,omitempty"`
	ReplyTS        string    `json:"reply_ts,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PipelineRun is the persisted trace summary of one pipeline execution.
type PipelineRun struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	TS             string    `json:"ts"`
	Status         string    `json:"status"`
	Classification string    `json:"classification,omitempty"`
	ReplyTS        string    `json:"reply_ts,omitempty"`
	ToolCalls      int       `json:"tool_calls"`
	DurationMS     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChannelStore persists per-channel state.
type ChannelStore interface {
	// GetOrCreate returns the channel state, lazily creating it with the
	// default directive on first sight.
	GetOrCreate(ctx context.Context, channelID, platform string) (*ChannelState, error)

	// UpdateDirective replaces the channel directive.
	UpdateDirective(ctx context.Context, channelID, directive string) error

	// SetOncall maps a topic to an identity for tagging.
	SetOncall(ctx context.Context, channelID, topic, identity string) error
}

// FactStore persists remembered channel facts. Facts are append-only: a
// correction supersedes an old fact, it never rewrites it.
type FactStore interface {
	Append(ctx context.Context, fact *ContextFact) error
	ListRecent(ctx context.Context, channelID string, limit int) ([]ContextFact, error)
	Search(ctx context.Context, channelID string, terms []string, limit int) ([]ContextFact, error)
}

// MessageStore persists channel messages for history and search.
type MessageStore interface {
	Append(ctx context.Context, rec *MessageRecord) error

	// AttachClassification sets the classification once; a second attempt
	// returns ErrAlreadyClassified.
	AttachClassification(ctx context.Context, channelID, ts, classification, urgency string) error

	// AttachReply records the TS of the bot's reply to a message.
	AttachReply(ctx context.Context, channelID, ts, replyTS string) error

	Recent(ctx context.Context, channelID string, limit int) ([]MessageRecord, error)
	Search(ctx context.Context, channelID string, terms []string, limit int) ([]MessageRecord, error)
}

// RunStore persists pipeline run traces.
type RunStore interface {
	Record(ctx context.Context, run *PipelineRun) error
}

// Stores bundles the concrete backend behind the four interfaces.
type Stores struct {
	Channels ChannelStore
	Facts    FactStore
	Messages MessageStore
	Runs     RunStore

	closeFn func() error
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

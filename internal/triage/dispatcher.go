package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
	"github.com/nextlevelbuilder/triagebot/internal/store"
)

// failureReply is the only text a failed run may post. Internal error
// strings never reach the channel.
const failureReply = "Sorry, something went wrong while I was handling this message. " +
	"A human will need to take a look."

// Poster is the outbound side of a chat platform adapter. Post returns
// the platform timestamp/id of the created message.
type Poster interface {
	Post(ctx context.Context, post bus.OutboundPost) (string, error)
	React(ctx context.Context, reaction bus.Reaction) error
}

// Dispatcher applies a run's outcome to the world, in a fixed order:
// commit the staged mutations, attach the reaction, post the reply,
// link the reply to the triaged message, record the run trace. A failure
// at one step degrades the run but does not stop the later steps. Failed
// runs never commit; they post a canned apology instead of a reply.
type Dispatcher struct {
	stores *store.Stores
	poster Poster
}

func NewDispatcher(stores *store.Stores, poster Poster) *Dispatcher {
	return &Dispatcher{stores: stores, poster: poster}
}

// Apply executes the outcome's side effects and returns the final status.
func (d *Dispatcher) Apply(ctx context.Context, out *RunOutcome) Status {
	status := out.Status

	if status != StatusFailed {
		if err := d.commit(ctx, out); err != nil {
			slog.Error("dispatch.commit_failed", "run_id", out.RunID, "error", err)
			status = StatusDegraded
			if out.Err == nil {
				out.Err = err
			}
		}
	}

	if out.Classification != nil {
		reaction := bus.Reaction{
			Platform:  out.Event.Platform,
			ChannelID: out.Event.ChannelID,
			TS:        out.Event.TS,
			Emoji:     out.Classification.Kind.Emoji(),
		}
		if err := d.poster.React(ctx, reaction); err != nil {
			slog.Warn("dispatch.react_failed", "run_id", out.RunID, "emoji", reaction.Emoji, "error", err)
		}
	}

	replyText := out.Reply
	tags := tagList(out)
	if status == StatusFailed {
		// Failed runs still get a user-visible apology, never the
		// internal error.
		replyText = failureReply
		tags = nil
	}

	var replyTS string
	if replyText != "" {
		post := bus.OutboundPost{
			Platform:      out.Event.Platform,
			ChannelID:     out.Event.ChannelID,
			Text:          replyText,
			ThreadTS:      out.Event.ThreadRoot(),
			TagIdentities: tags,
		}
		ts, err := d.poster.Post(ctx, post)
		if err != nil {
			slog.Error("dispatch.post_failed", "run_id", out.RunID, "error", err)
			status = StatusDegraded
		} else {
			replyTS = ts
			if err := d.stores.Messages.AttachReply(ctx, out.Event.ChannelID, out.Event.TS, ts); err != nil {
				slog.Warn("dispatch.attach_reply_failed", "run_id", out.RunID, "error", err)
			}
		}
	}

	d.recordRun(ctx, out, status, replyTS)
	return status
}

// commit writes the staged mutations to the store. All writes are
// attempted; the first error is returned as a PersistenceError.
func (d *Dispatcher) commit(ctx context.Context, out *RunOutcome) error {
	m := out.Mutations
	if m == nil || m.Empty() {
		return nil
	}

	var firstErr error
	record := func(op string, err error) {
		if err != nil && firstErr == nil {
			firstErr = &PersistenceError{Op: op, Err: err}
		}
	}

	if directive, ok := m.Directive(); ok {
		record("update directive", d.stores.Channels.UpdateDirective(ctx, out.Event.ChannelID, directive))
	}
	for topic, identity := range m.Oncall() {
		record("set oncall", d.stores.Channels.SetOncall(ctx, out.Event.ChannelID, topic, identity))
	}
	for _, draft := range m.Facts() {
		fact := &store.ContextFact{
			ID:           uuid.NewString(),
			ChannelID:    out.Event.ChannelID,
			Text:         draft.Text,
			AddedBy:      draft.AddedBy,
			SupersedesID: draft.SupersedesID,
		}
		record("append fact", d.stores.Facts.Append(ctx, fact))
	}

	if firstErr == nil {
		m.MarkCommitted()
	}
	return firstErr
}

func (d *Dispatcher) recordRun(ctx context.Context, out *RunOutcome, status Status, replyTS string) {
	run := &store.PipelineRun{
		ID:         out.RunID,
		ChannelID:  out.Event.ChannelID,
		TS:         out.Event.TS,
		Status:     string(status),
		ReplyTS:    replyTS,
		ToolCalls:  len(out.ToolTrace),
		DurationMS: time.Since(out.StartedAt).Milliseconds(),
	}
	if out.Classification != nil {
		run.Classification = string(out.Classification.Kind)
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	if err := d.stores.Runs.Record(ctx, run); err != nil {
		slog.Warn("dispatch.record_run_failed", "run_id", out.RunID, "error", err)
	}
}

// tagList merges identities staged by tools with any the orchestrator
// added directly, deduplicated in order.
func tagList(out *RunOutcome) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		tags = append(tags, id)
	}
	if out.Mutations != nil {
		for _, id := range out.Mutations.Tags() {
			add(id)
		}
	}
	for _, id := range out.TagIdentities {
		add(id)
	}
	return tags
}

// NewRunID returns a fresh pipeline run identifier.
func NewRunID() string {
	return fmt.Sprintf("run_%s", uuid.NewString())
}

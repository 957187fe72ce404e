package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/store"
)

// budgetExceededReply stands in when the run budget expires before the
// assistant produced any text.
const budgetExceededReply = "I ran out of time while working on this. " +
	"A human may need to pick it up."

// Orchestrator runs the triage pipeline: one run per inbound event,
// serialized per channel in arrival order, capped globally. Lane tails
// are created lazily per channel and kept for the process lifetime.
type Orchestrator struct {
	limits     config.LimitsConfig
	stores     *store.Stores
	classifier *Classifier
	assistant  *Assistant
	dispatcher *Dispatcher

	lanes sync.Map // channel key -> chan struct{} (done signal of the lane tail)
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
}

func NewOrchestrator(limits config.LimitsConfig, stores *store.Stores, classifier *Classifier, assistant *Assistant, dispatcher *Dispatcher) *Orchestrator {
	maxRuns := int64(limits.MaxConcurrentRuns)
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &Orchestrator{
		limits:     limits,
		stores:     stores,
		classifier: classifier,
		assistant:  assistant,
		dispatcher: dispatcher,
		sem:        semaphore.NewWeighted(maxRuns),
	}
}

// Serve consumes events from the queue until the context is cancelled,
// then waits for in-flight runs to drain. Cancellation stops only the
// intake: runs already started keep a detached context and get a grace
// window to reach a terminal state before they are cut off.
func (o *Orchestrator) Serve(ctx context.Context, q *bus.Queue) {
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	for {
		ev, ok := q.Consume(ctx)
		if !ok {
			break
		}
		// The lane turn is taken here, on the consume goroutine, so
		// same-channel runs execute in arrival order.
		turn := o.enqueue(ev.Platform, ev.ChannelID)
		o.wg.Add(1)
		go func(ev bus.InboundEvent, turn *laneTurn) {
			defer o.wg.Done()
			o.handle(runCtx, ev, turn)
		}(ev, turn)
	}

	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()
	grace := time.Duration(o.limits.ShutdownGraceSec) * time.Second
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-drained:
	case <-time.After(grace):
		slog.Warn("run.drain_timeout", "grace", grace)
		cancelRuns()
		<-drained
	}
}

// laneTurn is one run's place in its channel's FIFO lane. wait is nil
// for the lane head; done is closed when the run finishes.
type laneTurn struct {
	wait <-chan struct{}
	done chan struct{}
}

// enqueue reserves the next turn in the channel's lane. Callers that
// enqueue in arrival order get strict per-channel FIFO execution.
func (o *Orchestrator) enqueue(platform, channelID string) *laneTurn {
	t := &laneTurn{done: make(chan struct{})}
	if prev, ok := o.lanes.Swap(platform+"/"+channelID, t.done); ok {
		t.wait = prev.(chan struct{})
	}
	return t
}

// Handle runs the full pipeline for one event.
func (o *Orchestrator) Handle(ctx context.Context, ev bus.InboundEvent) Status {
	return o.handle(ctx, ev, o.enqueue(ev.Platform, ev.ChannelID))
}

// handle waits for the event's lane turn and a global slot, applies the
// run budget, then executes the stages. The dispatcher is always
// invoked so every completed run leaves a trace.
func (o *Orchestrator) handle(ctx context.Context, ev bus.InboundEvent, turn *laneTurn) Status {
	defer close(turn.done)

	if ev.ChannelID == "" || ev.Platform == "" {
		slog.Warn("run.rejected", "reason", "missing channel identity", "platform", ev.Platform)
		return StatusFailed
	}

	if turn.wait != nil {
		select {
		case <-turn.wait:
		case <-ctx.Done():
			slog.Warn("run.rejected", "channel", ev.ChannelID, "error", ctx.Err())
			return StatusFailed
		}
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("run.rejected", "channel", ev.ChannelID, "error", err)
		return StatusFailed
	}
	defer o.sem.Release(1)

	tracer := otel.Tracer("triagebot/pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.run")
	span.SetAttributes(
		attribute.String("platform", ev.Platform),
		attribute.String("channel", ev.ChannelID),
	)
	defer span.End()

	runCtx := ctx
	if budget := time.Duration(o.limits.RunBudgetSec) * time.Second; budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	out := o.run(runCtx, ev)
	// Dispatch is not under the run budget: a run degraded by the
	// budget still gets its partial reply posted.
	status := o.dispatcher.Apply(ctx, out)
	span.SetAttributes(attribute.String("status", string(status)))
	slog.Info("run.finished",
		"run_id", out.RunID,
		"channel", ev.ChannelID,
		"status", status,
		"iterations", out.Iterations,
		"tool_calls", len(out.ToolTrace),
		"duration", time.Since(out.StartedAt))
	return status
}

// run executes the stages and produces the outcome; side effects beyond
// message ingestion and eager commands are left to the dispatcher.
func (o *Orchestrator) run(ctx context.Context, ev bus.InboundEvent) *RunOutcome {
	out := &RunOutcome{
		RunID:     NewRunID(),
		Event:     ev,
		Status:    StatusOK,
		StartedAt: time.Now(),
	}

	channel, err := o.stores.Channels.GetOrCreate(ctx, ev.ChannelID, ev.Platform)
	if err != nil {
		out.Status = StatusFailed
		out.Err = &PersistenceError{Op: "load channel", Err: err}
		return out
	}

	rec := &store.MessageRecord{
		ChannelID: ev.ChannelID,
		TS:        ev.TS,
		ThreadTS:  ev.ThreadTS,
		Author:    ev.Author,
		Text:      ev.Text,
	}
	if err := o.stores.Messages.Append(ctx, rec); err != nil {
		out.Status = StatusFailed
		out.Err = &PersistenceError{Op: "ingest message", Err: err}
		return out
	}

	// Explicit commands bypass the model entirely and commit eagerly.
	if cmd, ok := ParseCommand(ev.Text); ok {
		o.runCommand(ctx, cmd, ev, out)
		return out
	}

	history, err := o.stores.Messages.Recent(ctx, ev.ChannelID, o.limits.HistoryWindow)
	if err != nil {
		slog.Warn("run.history_failed", "run_id", out.RunID, "error", err)
	}

	cls := o.classifier.Classify(ctx, channel.Directive, ev.Author, ev.Text, history)
	out.Classification = &cls

	err = o.stores.Messages.AttachClassification(ctx, ev.ChannelID, ev.TS, string(cls.Kind), string(cls.Urgency))
	switch {
	case errors.Is(err, store.ErrAlreadyClassified):
		// Redelivery of an already triaged message. Do not run the
		// assistant or reply again.
		slog.Info("run.duplicate", "run_id", out.RunID, "channel", ev.ChannelID, "ts", ev.TS)
		out.Classification = nil
		return out
	case err != nil:
		slog.Warn("run.attach_classification_failed", "run_id", out.RunID, "error", err)
		out.Status = StatusDegraded
	}

	pc := promptContext{
		Channel:     channel,
		History:     history,
		MentionsBot: ev.MentionsBot,
	}
	if cls.NeedsSearch {
		pc.FactsFound, pc.MessagesHits = o.search(ctx, ev.ChannelID, cls.SearchTerms, out.RunID)
	}
	if facts, err := o.stores.Facts.ListRecent(ctx, ev.ChannelID, 10); err == nil {
		pc.FactsRecent = facts
	} else {
		slog.Warn("run.facts_failed", "run_id", out.RunID, "error", err)
	}

	out.Mutations = NewMutations(ev.Author)
	runCtx := WithMutations(ctx, out.Mutations)
	runCtx = WithOncall(runCtx, channel.Oncall)

	ar := o.assistant.Respond(runCtx, buildSystemPrompt(pc), fmt.Sprintf("%s wrote:\n%s", ev.Author, ev.Text))
	out.Reply = ar.Reply
	out.ToolTrace = ar.Trace
	out.Iterations = ar.Iterations

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		// The wall-clock budget ran out, possibly mid model call. That
		// is a degraded run with a partial answer, not a failure.
		out.Status = StatusDegraded
		out.Err = ErrBudgetExceeded
		if out.Reply == "" {
			out.Reply = budgetExceededReply
		}
	case ar.Terminal == terminalExhausted:
		out.Status = StatusDegraded
	case ar.Terminal == terminalFatal:
		out.Status = StatusFailed
		out.Err = ar.Err
		out.Reply = ""
	}
	return out
}

// runCommand handles the eager fast-paths: the write happens now, and
// the reply is a plain acknowledgement.
func (o *Orchestrator) runCommand(ctx context.Context, cmd Command, ev bus.InboundEvent, out *RunOutcome) {
	var err error
	switch cmd.Kind {
	case CmdRemember:
		fact := &store.ContextFact{
			ID:        uuid.NewString(),
			ChannelID: ev.ChannelID,
			Text:      cmd.Text,
			AddedBy:   ev.Author,
		}
		if err = o.stores.Facts.Append(ctx, fact); err == nil {
			out.Reply = fmt.Sprintf("Got it, I'll remember that: %s", cmd.Text)
		}
	case CmdSetDirective:
		if err = o.stores.Channels.UpdateDirective(ctx, ev.ChannelID, cmd.Text); err == nil {
			out.Reply = "Channel directive updated."
		}
	case CmdResetDirective:
		if err = o.stores.Channels.UpdateDirective(ctx, ev.ChannelID, store.DefaultDirective); err == nil {
			out.Reply = "Channel directive reset to the default."
		}
	}
	if err != nil {
		out.Status = StatusDegraded
		out.Err = &PersistenceError{Op: "eager command", Err: err}
		out.Reply = "Sorry, I could not save that. Please try again."
	}
}

func (o *Orchestrator) search(ctx context.Context, channelID string, terms []string, runID string) ([]store.ContextFact, []store.MessageRecord) {
	facts, err := o.stores.Facts.Search(ctx, channelID, terms, 10)
	if err != nil {
		slog.Warn("run.search_facts_failed", "run_id", runID, "error", err)
	}
	msgs, err := o.stores.Messages.Search(ctx, channelID, terms, 10)
	if err != nil {
		slog.Warn("run.search_messages_failed", "run_id", runID, "error", err)
	}
	return facts, msgs
}

package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/providers"
	"github.com/nextlevelbuilder/triagebot/internal/tools"
)

// terminal is how the assistant loop ended.
type terminal int

const (
	// terminalAnswered: the model produced a final reply.
	terminalAnswered terminal = iota
	// terminalExhausted: the iteration cap was hit before a final reply.
	terminalExhausted
	// terminalFatal: a model call failed after retries.
	terminalFatal
)

// assistantResult is what one assistant stage run produced.
type assistantResult struct {
	Reply      string
	Trace      []ToolInvocation
	Iterations int
	Terminal   terminal
	Err        error
}

// Assistant runs the tool-augmented response stage: a bounded loop of
// model calls where each turn may request tool calls, whose results feed
// the next turn.
type Assistant struct {
	provider providers.Provider
	model    config.StageModel
	registry *tools.Registry

	maxIterations int
	maxConcurrent int64
	toolTimeout   time.Duration
	modelTimeout  time.Duration
}

func NewAssistant(p providers.Provider, model config.StageModel, registry *tools.Registry, limits config.LimitsConfig) *Assistant {
	return &Assistant{
		provider:      p,
		model:         model,
		registry:      registry,
		maxIterations: limits.MaxToolIterations,
		maxConcurrent: int64(limits.MaxConcurrentToolCalls),
		toolTimeout:   time.Duration(limits.ToolCallTimeoutSec) * time.Second,
		modelTimeout:  time.Duration(limits.ModelTimeoutSec) * time.Second,
	}
}

// Respond runs the assistant loop until the model answers without tool
// calls, the iteration cap is reached, or a model call fails. Tool
// failures never end the loop; their error text goes back to the model.
func (a *Assistant) Respond(ctx context.Context, system, user string) assistantResult {
	tracer := otel.Tracer("triagebot/assistant")
	ctx, span := tracer.Start(ctx, "assistant.respond")
	defer span.End()

	temp := a.model.Temperature
	messages := []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	res := assistantResult{}
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		res.Iterations = iteration

		req := providers.Request{
			Model:           a.model.Model,
			Messages:        messages,
			Tools:           a.registry.Definitions(),
			Temperature:     &temp,
			MaxTokens:       a.model.MaxTokens,
			ReasoningEffort: a.model.ReasoningEffort,
		}

		resp, err := a.complete(ctx, tracer, iteration, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "model call failed")
			res.Terminal = terminalFatal
			res.Err = &FatalModelError{Iteration: iteration, Err: err}
			return res
		}

		if len(resp.ToolCalls) == 0 {
			res.Reply = resp.Content
			res.Terminal = terminalAnswered
			span.SetAttributes(attribute.Int("iterations", iteration))
			return res
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		var toolMsgs []providers.Message
		if len(resp.ToolCalls) == 1 {
			tc := resp.ToolCalls[0]
			inv, msg := a.callTool(ctx, tracer, tc)
			res.Trace = append(res.Trace, inv)
			toolMsgs = append(toolMsgs, msg)
		} else {
			invs, msgs := a.callToolsParallel(ctx, tracer, resp.ToolCalls)
			res.Trace = append(res.Trace, invs...)
			toolMsgs = append(toolMsgs, msgs...)
		}
		messages = append(messages, toolMsgs...)
	}

	// Cap reached with tool calls still pending. Degrade with an honest
	// partial answer rather than fabricating completeness.
	res.Terminal = terminalExhausted
	res.Reply = "I could not finish working through this request within my tool budget. " +
		"Here is where I got to; a human may need to pick this up."
	span.SetAttributes(attribute.Int("iterations", res.Iterations), attribute.Bool("exhausted", true))
	return res
}

func (a *Assistant) complete(ctx context.Context, tracer trace.Tracer, iteration int, req providers.Request) (*providers.Response, error) {
	mctx := ctx
	if a.modelTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, a.modelTimeout)
		defer cancel()
	}
	mctx, span := tracer.Start(mctx, "assistant.model")
	span.SetAttributes(
		attribute.String("model", req.Model),
		attribute.Int("iteration", iteration),
	)
	defer span.End()

	resp, err := a.provider.Complete(mctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tool_calls", len(resp.ToolCalls)))
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("tokens.prompt", resp.Usage.PromptTokens),
			attribute.Int("tokens.completion", resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}

// callTool executes one tool call and renders both the trace entry and
// the message fed back to the model.
func (a *Assistant) callTool(ctx context.Context, tracer trace.Tracer, tc providers.ToolCall) (ToolInvocation, providers.Message) {
	argsJSON := marshalArgs(tc.Arguments)

	tctx, span := tracer.Start(ctx, "assistant.tool")
	span.SetAttributes(attribute.String("tool", tc.Name))
	result := a.registry.Execute(tctx, tc.Name, tc.Arguments, a.toolTimeout)
	if result.IsError {
		span.SetStatus(codes.Error, result.ForLLM)
	}
	span.End()

	slog.Debug("tool.executed",
		"tool", tc.Name,
		"error", result.IsError,
		"duration", result.Duration)

	inv := ToolInvocation{
		Name:     tc.Name,
		ArgsJSON: argsJSON,
		IsError:  result.IsError,
		Duration: result.Duration,
	}
	content := result.ForLLM
	if result.IsError {
		content = fmt.Sprintf("Error: %s", result.ForLLM)
	}
	return inv, providers.Message{Role: "tool", Content: content, ToolCallID: tc.ID}
}

// callToolsParallel runs a turn's tool calls concurrently under the
// concurrency cap, then reorders results to the model's request order so
// the transcript stays deterministic.
func (a *Assistant) callToolsParallel(ctx context.Context, tracer trace.Tracer, calls []providers.ToolCall) ([]ToolInvocation, []providers.Message) {
	type indexed struct {
		idx int
		inv ToolInvocation
		msg providers.Message
	}

	sem := semaphore.NewWeighted(a.maxConcurrent)
	resultCh := make(chan indexed, len(calls))
	var wg sync.WaitGroup

	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc providers.ToolCall) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				inv := ToolInvocation{Name: tc.Name, ArgsJSON: marshalArgs(tc.Arguments), IsError: true}
				resultCh <- indexed{
					idx: idx,
					inv: inv,
					msg: providers.Message{
						Role:       "tool",
						Content:    fmt.Sprintf("Error: cancelled before execution: %v", err),
						ToolCallID: tc.ID,
					},
				}
				return
			}
			defer sem.Release(1)
			inv, msg := a.callTool(ctx, tracer, tc)
			resultCh <- indexed{idx: idx, inv: inv, msg: msg}
		}(i, tc)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	collected := make([]indexed, 0, len(calls))
	for r := range resultCh {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	invs := make([]ToolInvocation, 0, len(collected))
	msgs := make([]providers.Message, 0, len(collected))
	for _, r := range collected {
		invs = append(invs, r.inv)
		msgs = append(msgs, r.msg)
	}
	return invs, msgs
}

func marshalArgs(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/providers"
	"github.com/nextlevelbuilder/triagebot/internal/tools"
)

// scriptProvider replays canned responses in order.
type scriptProvider struct {
	mu        sync.Mutex
	responses []*providers.Response
	errs      []error
	requests  []providers.Request
}

func (p *scriptProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		return nil, fmt.Errorf("no scripted response for call %d", i)
	}
	return p.responses[i], nil
}

func (p *scriptProvider) DefaultModel() string { return "test-model" }
func (p *scriptProvider) Name() string         { return "script" }

func (p *scriptProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// echoTool returns its input, optionally after a delay, optionally as
// an error.
type echoTool struct {
	name  string
	delay time.Duration
	fail  bool
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes input" }
func (t *echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (t *echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return tools.ErrorResult("cancelled").WithError(ctx.Err())
		}
	}
	if t.fail {
		return tools.ErrorResult("tool failed on purpose")
	}
	v, _ := args["value"].(string)
	return tools.NewResult("echo: " + v)
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxToolIterations:      3,
		MaxConcurrentToolCalls: 2,
		ToolCallTimeoutSec:     2,
		ModelTimeoutSec:        5,
	}
}

func textResponse(content string) *providers.Response {
	return &providers.Response{Content: content, FinishReason: "stop"}
}

func toolResponse(calls ...providers.ToolCall) *providers.Response {
	return &providers.Response{ToolCalls: calls, FinishReason: "tool_calls"}
}

func TestAssistantAnswersDirectly(t *testing.T) {
	p := &scriptProvider{responses: []*providers.Response{textResponse("All good.")}}
	a := NewAssistant(p, config.StageModel{Model: "m"}, tools.NewRegistry(), testLimits())

	res := a.Respond(context.Background(), "sys", "hello")
	if res.Terminal != terminalAnswered {
		t.Fatalf("terminal = %v, want answered", res.Terminal)
	}
	if res.Reply != "All good." || res.Iterations != 1 || len(res.Trace) != 0 {
		t.Errorf("res = %+v", res)
	}
}

func TestAssistantToleratesResponseWithoutUsage(t *testing.T) {
	// Providers may omit the usage block entirely; the stage must not
	// depend on it.
	tests := []struct {
		name  string
		usage *providers.Usage
	}{
		{name: "no usage"},
		{name: "with usage", usage: &providers.Usage{PromptTokens: 12, CompletionTokens: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := textResponse("All good.")
			resp.Usage = tt.usage
			p := &scriptProvider{responses: []*providers.Response{resp}}
			a := NewAssistant(p, config.StageModel{Model: "m"}, tools.NewRegistry(), testLimits())

			res := a.Respond(context.Background(), "sys", "hello")
			if res.Terminal != terminalAnswered || res.Reply != "All good." {
				t.Errorf("res = %+v", res)
			}
		})
	}
}

func TestAssistantToolLoop(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&echoTool{name: "lookup"})
	p := &scriptProvider{responses: []*providers.Response{
		toolResponse(providers.ToolCall{ID: "c1", Name: "lookup", Arguments: map[string]interface{}{"value": "x"}}),
		textResponse("Found it."),
	}}
	a := NewAssistant(p, config.StageModel{Model: "m"}, reg, testLimits())

	res := a.Respond(context.Background(), "sys", "find x")
	if res.Terminal != terminalAnswered {
		t.Fatalf("terminal = %v, want answered", res.Terminal)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
	if len(res.Trace) != 1 || res.Trace[0].Name != "lookup" || res.Trace[0].IsError {
		t.Errorf("trace = %+v", res.Trace)
	}

	// The second model request must carry the tool result message.
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" || last.Content != "echo: x" {
		t.Errorf("tool message = %+v", last)
	}
}

func TestAssistantParallelToolsKeepRequestOrder(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&echoTool{name: "slow", delay: 50 * time.Millisecond})
	reg.Register(&echoTool{name: "fast"})
	p := &scriptProvider{responses: []*providers.Response{
		toolResponse(
			providers.ToolCall{ID: "c1", Name: "slow", Arguments: map[string]interface{}{"value": "a"}},
			providers.ToolCall{ID: "c2", Name: "fast", Arguments: map[string]interface{}{"value": "b"}},
		),
		textResponse("done"),
	}}
	a := NewAssistant(p, config.StageModel{Model: "m"}, reg, testLimits())

	res := a.Respond(context.Background(), "sys", "go")
	if res.Terminal != terminalAnswered {
		t.Fatalf("terminal = %v, want answered", res.Terminal)
	}
	if len(res.Trace) != 2 || res.Trace[0].Name != "slow" || res.Trace[1].Name != "fast" {
		t.Fatalf("trace order = %+v", res.Trace)
	}

	second := p.requests[1]
	msgs := second.Messages[len(second.Messages)-2:]
	if msgs[0].ToolCallID != "c1" || msgs[1].ToolCallID != "c2" {
		t.Errorf("tool messages out of order: %+v", msgs)
	}
}

func TestAssistantToolErrorIsVisibleToModel(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&echoTool{name: "broken", fail: true})
	p := &scriptProvider{responses: []*providers.Response{
		toolResponse(providers.ToolCall{ID: "c1", Name: "broken", Arguments: map[string]interface{}{}}),
		textResponse("I hit an error, escalating."),
	}}
	a := NewAssistant(p, config.StageModel{Model: "m"}, reg, testLimits())

	res := a.Respond(context.Background(), "sys", "go")
	if res.Terminal != terminalAnswered {
		t.Fatalf("terminal = %v, want answered", res.Terminal)
	}
	if len(res.Trace) != 1 || !res.Trace[0].IsError {
		t.Fatalf("trace = %+v", res.Trace)
	}
	last := p.requests[1].Messages[len(p.requests[1].Messages)-1]
	if last.Role != "tool" || last.Content != "Error: tool failed on purpose" {
		t.Errorf("tool message = %+v", last)
	}
}

func TestAssistantExhaustsIterationCap(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&echoTool{name: "lookup"})
	call := toolResponse(providers.ToolCall{ID: "c", Name: "lookup", Arguments: map[string]interface{}{"value": "x"}})
	p := &scriptProvider{responses: []*providers.Response{call, call, call, call}}
	a := NewAssistant(p, config.StageModel{Model: "m"}, reg, testLimits())

	res := a.Respond(context.Background(), "sys", "go")
	if res.Terminal != terminalExhausted {
		t.Fatalf("terminal = %v, want exhausted", res.Terminal)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}
	if res.Reply == "" {
		t.Error("exhausted runs still need an honest reply")
	}
	if p.calls() != 3 {
		t.Errorf("model calls = %d, want 3", p.calls())
	}
}

func TestAssistantFatalModelError(t *testing.T) {
	p := &scriptProvider{errs: []error{errors.New("boom")}}
	a := NewAssistant(p, config.StageModel{Model: "m"}, tools.NewRegistry(), testLimits())

	res := a.Respond(context.Background(), "sys", "go")
	if res.Terminal != terminalFatal {
		t.Fatalf("terminal = %v, want fatal", res.Terminal)
	}
	var fatal *FatalModelError
	if !errors.As(res.Err, &fatal) || fatal.Iteration != 1 {
		t.Errorf("err = %v", res.Err)
	}
}

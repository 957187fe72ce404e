package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeTool struct {
	name string
	fn   func(ctx context.Context, args map[string]interface{}) *Result
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "fake" }
func (t *fakeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return t.fn(ctx, args)
}

func TestRegistryRegisterGetUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "b"})
	r.Register(&fakeTool{name: "a"})

	if _, ok := r.Get("a"); !ok {
		t.Fatal("tool a not found")
	}
	if got := r.List(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("List() = %v, want sorted [a b]", got)
	}

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Function.Name != "a" {
		t.Errorf("Definitions() = %+v", defs)
	}
	if defs[0].Type != "function" {
		t.Errorf("definition type = %q", defs[0].Type)
	}

	r.Unregister("a")
	if _, ok := r.Get("a"); ok {
		t.Error("tool a still present after unregister")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil, time.Second)
	if !res.IsError || !strings.Contains(res.ForLLM, "unknown tool") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "slow", fn: func(ctx context.Context, _ map[string]interface{}) *Result {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return NewResult("too late")
	}})

	res := r.Execute(context.Background(), "slow", nil, 20*time.Millisecond)
	if !res.IsError || !strings.Contains(res.ForLLM, "timed out") {
		t.Errorf("result = %+v", res)
	}
	if res.Err == nil {
		t.Error("timeout result should carry the context error")
	}
}

func TestExecuteRecoverFromPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "boom", fn: func(context.Context, map[string]interface{}) *Result {
		panic("kaboom")
	}})

	res := r.Execute(context.Background(), "boom", nil, time.Second)
	if !res.IsError || !strings.Contains(res.ForLLM, "panicked") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteRecordsDuration(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "ok", fn: func(context.Context, map[string]interface{}) *Result {
		return NewResult("done")
	}})

	res := r.Execute(context.Background(), "ok", map[string]interface{}{"k": "v"}, time.Second)
	if res.IsError {
		t.Fatalf("unexpected error: %+v", res)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

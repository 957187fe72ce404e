package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/triagebot/internal/providers"
)

// Registry holds the tools currently exposed to the assistant. MCP bridge
// tools come and go with server connections; builtin tools are registered
// once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns provider tool definitions for all registered tools,
// sorted by name so the model sees a stable catalog.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition(t))
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

// Execute runs a tool under a timeout. Unknown tools, timeouts, and panics
// all come back as error Results the model can see; Execute never panics
// and never outlives the deadline.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("tool.panic", "tool", name, "panic", rec)
				done <- ErrorResult(fmt.Sprintf("tool %s panicked: %v", name, rec))
			}
		}()
		done <- tool.Execute(ctx, args)
	}()

	var result *Result
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ErrorResult(fmt.Sprintf("tool %s timed out after %s", name, timeout)).WithError(ctx.Err())
	}
	if result == nil {
		result = ErrorResult(fmt.Sprintf("tool %s returned no result", name))
	}
	result.Duration = time.Since(start)
	return result
}

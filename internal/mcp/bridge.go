package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/triagebot/internal/tools"
)

// BridgeTool adapts a remote MCP tool to the local tools.Tool interface.
// Each invocation runs under the server's per-call timeout; failures and
// timeouts surface as error Results, never as panics or hangs.
type BridgeTool struct {
	serverName string
	tool       mcpgo.Tool
	client     *mcpclient.Client
	prefix     string
	timeout    time.Duration
	connected  *atomic.Bool
}

func NewBridgeTool(serverName string, tool mcpgo.Tool, client *mcpclient.Client, prefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	return &BridgeTool{
		serverName: serverName,
		tool:       tool,
		client:     client,
		prefix:     prefix,
		timeout:    time.Duration(timeoutSec) * time.Second,
		connected:  connected,
	}
}

func (t *BridgeTool) Name() string {
	return t.prefix + t.tool.Name
}

// OriginalName returns the tool name as the server declared it.
func (t *BridgeTool) OriginalName() string {
	return t.tool.Name
}

func (t *BridgeTool) Description() string {
	desc := t.tool.Description
	if desc == "" {
		desc = "MCP tool from server " + t.serverName
	}
	return desc
}

func (t *BridgeTool) Parameters() map[string]interface{} {
	// Round-trip the declared input schema into a plain map.
	data, err := json.Marshal(t.tool.InputSchema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var params map[string]interface{}
	if err := json.Unmarshal(data, &params); err != nil || len(params) == 0 {
		return map[string]interface{}{"type": "object"}
	}
	return params
}

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %s is disconnected", t.serverName))
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.tool.Name
	req.Params.Arguments = args

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return tools.ErrorResult(fmt.Sprintf("mcp tool %s timed out after %s", t.Name(), t.timeout)).WithError(ctx.Err())
		}
		return tools.ErrorResult(fmt.Sprintf("mcp tool %s failed: %v", t.Name(), err)).WithError(err)
	}

	text := flattenContent(res.Content)
	if res.IsError {
		if text == "" {
			text = fmt.Sprintf("mcp tool %s reported an error", t.Name())
		}
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// flattenContent joins text content blocks; non-text blocks are summarized
// by type so the model knows something was returned.
func flattenContent(content []mcpgo.Content) string {
	var out string
	for i, c := range content {
		if i > 0 {
			out += "\n"
		}
		switch block := c.(type) {
		case mcpgo.TextContent:
			out += block.Text
		case *mcpgo.TextContent:
			out += block.Text
		default:
			out += fmt.Sprintf("[%T content omitted]", c)
		}
	}
	return out
}

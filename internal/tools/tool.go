package tools

import (
	"context"

	"github.com/nextlevelbuilder/triagebot/internal/providers"
)

// Tool is a callable capability exposed to the assistant model.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns the JSON-schema object describing the tool's input.
	Parameters() map[string]interface{}

	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Definition converts a tool to the provider wire format.
func Definition(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

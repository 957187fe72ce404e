package triage

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/triagebot/internal/tools"
)

// RegisterBuiltinTools adds the channel mutation tools to the registry.
// They do not touch the store: each records into the run's Mutations
// accumulator, and the dispatcher commits everything at once after the
// assistant stage finishes.
func RegisterBuiltinTools(r *tools.Registry) {
	r.Register(&updateDirectiveTool{})
	r.Register(&addContextTool{})
	r.Register(&setOncallTool{})
	r.Register(&tagOncallTool{})
}

func strArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func recorder(ctx context.Context) (*Mutations, *tools.Result) {
	m := MutationsFrom(ctx)
	if m == nil {
		return nil, tools.ErrorResult("no active run to record into")
	}
	return m, nil
}

type updateDirectiveTool struct{}

func (t *updateDirectiveTool) Name() string { return "update_channel_directive" }
func (t *updateDirectiveTool) Description() string {
	return "Replace the channel directive, the standing instructions the triage assistant follows in this channel. Use when a channel owner asks to change how requests are handled."
}
func (t *updateDirectiveTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"directive": map[string]interface{}{
				"type":        "string",
				"description": "The full new directive text.",
			},
		},
		"required": []string{"directive"},
	}
}
func (t *updateDirectiveTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	m, errRes := recorder(ctx)
	if errRes != nil {
		return errRes
	}
	directive := strArg(args, "directive")
	if directive == "" {
		return tools.ErrorResult("directive must not be empty")
	}
	m.SetDirective(directive)
	return tools.NewResult("Directive staged; it will be saved when this run completes.")
}

type addContextTool struct{}

func (t *addContextTool) Name() string { return "add_channel_context" }
func (t *addContextTool) Description() string {
	return "Remember a fact about this channel for future triage runs. Facts are append-only; to correct one, add the replacement and pass the old fact's id as supersedes_id."
}
func (t *addContextTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fact": map[string]interface{}{
				"type":        "string",
				"description": "The fact to remember, as a single sentence.",
			},
			"supersedes_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional id of a fact this one corrects.",
			},
		},
		"required": []string{"fact"},
	}
}
func (t *addContextTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	m, errRes := recorder(ctx)
	if errRes != nil {
		return errRes
	}
	fact := strArg(args, "fact")
	if fact == "" {
		return tools.ErrorResult("fact must not be empty")
	}
	m.AddFact(fact, strArg(args, "supersedes_id"))
	return tools.NewResult("Fact staged; it will be saved when this run completes.")
}

type setOncallTool struct{}

func (t *setOncallTool) Name() string { return "set_oncall" }
func (t *setOncallTool) Description() string {
	return "Assign the on-call identity for a topic in this channel, e.g. topic \"billing\" to user U123."
}
func (t *setOncallTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "Topic the identity is on call for.",
			},
			"identity": map[string]interface{}{
				"type":        "string",
				"description": "Platform identity (user id) to assign.",
			},
		},
		"required": []string{"topic", "identity"},
	}
}
func (t *setOncallTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	m, errRes := recorder(ctx)
	if errRes != nil {
		return errRes
	}
	topic, identity := strArg(args, "topic"), strArg(args, "identity")
	if topic == "" || identity == "" {
		return tools.ErrorResult("topic and identity must not be empty")
	}
	m.AssignOncall(topic, identity)
	return tools.NewResult(fmt.Sprintf("On-call for %q staged as %s.", topic, identity))
}

// tagOncallTool tags an identity in the reply. The identity comes either
// from the call arguments or from the channel's on-call assignments
// threaded through the context by the orchestrator.
type tagOncallTool struct{}

func (t *tagOncallTool) Name() string { return "tag_oncall" }
func (t *tagOncallTool) Description() string {
	return "Tag the on-call identity for a topic in the reply so they are notified. Use for incidents and requests the channel cannot answer itself."
}
func (t *tagOncallTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "Topic whose on-call identity should be tagged.",
			},
		},
		"required": []string{"topic"},
	}
}
func (t *tagOncallTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	m, errRes := recorder(ctx)
	if errRes != nil {
		return errRes
	}
	topic := strArg(args, "topic")
	if topic == "" {
		return tools.ErrorResult("topic must not be empty")
	}

	oncall := oncallFrom(ctx)
	identity, ok := oncall[topic]
	if !ok {
		// Assignments staged earlier in this same run count too.
		identity, ok = m.Oncall()[topic]
	}
	if !ok {
		return tools.ErrorResult(fmt.Sprintf("no on-call identity configured for topic %q", topic))
	}
	m.Tag(identity)
	return tools.NewResult(fmt.Sprintf("%s will be tagged in the reply.", identity))
}

type oncallKey struct{}

// WithOncall threads the channel's current on-call assignments to tools.
func WithOncall(ctx context.Context, oncall map[string]string) context.Context {
	return context.WithValue(ctx, oncallKey{}, oncall)
}

func oncallFrom(ctx context.Context) map[string]string {
	m, _ := ctx.Value(oncallKey{}).(map[string]string)
	return m
}

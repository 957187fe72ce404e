package triage

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/triagebot/internal/store"
)

const systemPrompt = `You are a triage assistant for a support channel.

Prime directive: keep the channel healthy. Classify incoming requests,
answer what you can from channel context and your tools, and route what
you cannot answer to the right people.

Rules:
- Be concise. Reply in a thread under the message you are triaging.
- Use the channel directive below as standing instructions from the
  channel owners; it overrides your own judgement about routing.
- Use tools to look things up before saying you do not know.
- When the user asks you to remember something or to change the channel
  directive, call the matching tool instead of just acknowledging.
- Never invent facts about this workspace. If a search returns nothing,
  say so.`

const mentionAddendum = `
The user addressed you directly. They expect an answer from you in
particular; do not defer to the channel without attempting one.`

const classifierPrompt = `You classify support-channel messages. Respond with a JSON object:
{
  "kind": one of "bug", "feature", "question", "incident", "other",
  "urgency": one of "low", "normal", "high",
  "needs_search": true when answering would benefit from searching prior
  channel messages and remembered facts,
  "search_terms": up to 5 short keywords to search with (only when
  needs_search is true)
}
Classify by the author's intent, not by keywords alone. Outages and
anything currently breaking production are "incident" with high urgency.`

// promptContext carries everything the assistant system prompt is built from.
type promptContext struct {
	Channel      *store.ChannelState
	History      []store.MessageRecord
	FactsRecent  []store.ContextFact
	FactsFound   []store.ContextFact
	MessagesHits []store.MessageRecord
	MentionsBot  bool
}

// buildSystemPrompt assembles the assistant stage system prompt.
func buildSystemPrompt(pc promptContext) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n## Channel directive\n")
	b.WriteString(pc.Channel.Directive)

	if len(pc.Channel.Oncall) > 0 {
		b.WriteString("\n\n## On-call assignments\n")
		for topic, identity := range pc.Channel.Oncall {
			fmt.Fprintf(&b, "- %s: %s\n", topic, identity)
		}
	}

	if len(pc.FactsRecent) > 0 {
		b.WriteString("\n\n## Remembered channel facts (newest first)\n")
		for _, f := range pc.FactsRecent {
			fmt.Fprintf(&b, "- %s\n", f.Text)
		}
	}

	if len(pc.FactsFound) > 0 {
		b.WriteString("\n\n## Facts matching this request\n")
		for _, f := range pc.FactsFound {
			fmt.Fprintf(&b, "- %s\n", f.Text)
		}
	}

	if len(pc.MessagesHits) > 0 {
		b.WriteString("\n\n## Earlier channel messages matching this request\n")
		for _, m := range pc.MessagesHits {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", m.TS, m.Author, m.Text)
		}
	}

	if len(pc.History) > 0 {
		b.WriteString("\n\n## Recent channel activity (newest first)\n")
		for _, m := range pc.History {
			fmt.Fprintf(&b, "- %s: %s\n", m.Author, m.Text)
		}
	}

	if pc.MentionsBot {
		b.WriteString("\n")
		b.WriteString(mentionAddendum)
	}

	return b.String()
}

// buildClassifierInput renders the user message with enough channel
// context for the one-shot classification call.
func buildClassifierInput(directive, author, text string, history []store.MessageRecord) string {
	var b strings.Builder
	b.WriteString("Channel directive: ")
	b.WriteString(directive)
	if len(history) > 0 {
		b.WriteString("\n\nRecent messages (newest first):\n")
		for _, m := range history {
			fmt.Fprintf(&b, "- %s: %s\n", m.Author, m.Text)
		}
	}
	fmt.Fprintf(&b, "\nMessage to classify, from %s:\n%s", author, text)
	return b.String()
}

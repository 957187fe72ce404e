package triage

import "strings"

// CommandKind identifies a recognized fast-path command.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdRemember
	CmdSetDirective
	CmdResetDirective
)

// Command is an explicit state-change request parsed from a message.
// Commands bypass the model entirely: the write happens eagerly and the
// run ends with an acknowledgement.
type Command struct {
	Kind CommandKind
	Text string // fact text or new directive
}

var directivePrefixes = []string{
	"update the channel directive to",
	"set the channel directive to",
	"update the directive to",
	"set the directive to",
}

var resetPhrases = []string{
	"reset the channel directive",
	"reset the directive",
	"clear the channel directive",
}

var politenessPrefixes = []string{
	"please",
	"pls",
	"kindly",
	"can you",
	"could you",
	"would you",
}

// ParseCommand recognizes the eager command fast-paths. Matching is
// case-insensitive on the prefix; the payload keeps its original casing.
// Leading politeness words ("please remember that ...") are ignored.
func ParseCommand(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	trimmed, lower = stripPoliteness(trimmed, lower)

	if rest, ok := cutPrefixFold(trimmed, lower, "remember that"); ok {
		fact := strings.TrimSpace(rest)
		if fact != "" {
			return Command{Kind: CmdRemember, Text: fact}, true
		}
		return Command{}, false
	}

	for _, p := range directivePrefixes {
		if rest, ok := cutPrefixFold(trimmed, lower, p); ok {
			directive := strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), `"`))
			if directive != "" {
				return Command{Kind: CmdSetDirective, Text: directive}, true
			}
			return Command{}, false
		}
	}

	for _, p := range resetPhrases {
		if lower == p || lower == p+"." {
			return Command{Kind: CmdResetDirective}, true
		}
	}

	return Command{}, false
}

// stripPoliteness drops leading address words so the command prefixes
// still line up. Repeats until nothing matches ("could you please ...").
func stripPoliteness(trimmed, lower string) (string, string) {
	for changed := true; changed; {
		changed = false
		for _, p := range politenessPrefixes {
			if !strings.HasPrefix(lower, p) {
				continue
			}
			rest := trimmed[len(p):]
			if rest == "" || (rest[0] != ' ' && rest[0] != ',') {
				continue
			}
			trimmed = strings.TrimLeft(rest, " ,")
			lower = strings.ToLower(trimmed)
			changed = true
		}
	}
	return trimmed, lower
}

// cutPrefixFold cuts prefix off trimmed using the pre-lowered copy for the
// match, requiring a word boundary after the prefix.
func cutPrefixFold(trimmed, lower, prefix string) (string, bool) {
	if !strings.HasPrefix(lower, prefix) {
		return "", false
	}
	rest := trimmed[len(prefix):]
	if rest != "" && rest[0] != ' ' && rest[0] != ':' && rest[0] != '\n' {
		return "", false
	}
	return strings.TrimPrefix(rest, ":"), true
}

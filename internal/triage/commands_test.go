package triage

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind CommandKind
		want string
		ok   bool
	}{
		{
			name: "remember fact",
			text: "remember that deploys freeze on Fridays",
			kind: CmdRemember,
			want: "deploys freeze on Fridays",
			ok:   true,
		},
		{
			name: "remember case insensitive prefix keeps payload casing",
			text: "Remember that Alice owns the billing API",
			kind: CmdRemember,
			want: "Alice owns the billing API",
			ok:   true,
		},
		{
			name: "set directive",
			text: "set the channel directive to escalate all billing issues to @ops",
			kind: CmdSetDirective,
			want: "escalate all billing issues to @ops",
			ok:   true,
		},
		{
			name: "update directive with quotes",
			text: `update the directive to "answer in German"`,
			kind: CmdSetDirective,
			want: "answer in German",
			ok:   true,
		},
		{
			name: "reset directive",
			text: "reset the channel directive",
			kind: CmdResetDirective,
			ok:   true,
		},
		{
			name: "reset with trailing period",
			text: "Reset the directive.",
			kind: CmdResetDirective,
			ok:   true,
		},
		{
			name: "polite remember",
			text: "please remember that FooService owns bar-api",
			kind: CmdRemember,
			want: "FooService owns bar-api",
			ok:   true,
		},
		{
			name: "stacked politeness before directive",
			text: "Could you please set the channel directive to be terse",
			kind: CmdSetDirective,
			want: "be terse",
			ok:   true,
		},
		{
			name: "polite reset",
			text: "please reset the channel directive",
			kind: CmdResetDirective,
			ok:   true,
		},
		{
			name: "bare politeness is not a command",
			text: "please",
			ok:   false,
		},
		{
			name: "politeness needs its own word boundary",
			text: "pleased to report the fix shipped",
			ok:   false,
		},
		{
			name: "remember without payload is not a command",
			text: "remember that",
			ok:   false,
		},
		{
			name: "prefix must end on a word boundary",
			text: "remember thatch roofs burn",
			ok:   false,
		},
		{
			name: "ordinary question",
			text: "can someone remember to check the logs?",
			ok:   false,
		},
		{
			name: "directive phrase mid-sentence is not a command",
			text: "we should probably set the channel directive to something",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.text)
			if ok != tt.ok {
				t.Fatalf("ParseCommand(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if cmd.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", cmd.Kind, tt.kind)
			}
			if cmd.Text != tt.want {
				t.Errorf("text = %q, want %q", cmd.Text, tt.want)
			}
		})
	}
}

func TestKindEmoji(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindQuestion, "question"},
		{KindFeature, "bulb"},
		{KindBug, "bug"},
		{KindIncident, "warning"},
		{KindOther, "grey_question"},
		{Kind("garbage"), "grey_question"},
	}
	for _, tt := range tests {
		if got := tt.kind.Emoji(); got != tt.want {
			t.Errorf("Emoji(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/providers"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
		want    Classification
	}{
		{
			name:    "incident verdict",
			content: `{"kind":"incident","urgency":"high","needs_search":true,"search_terms":["outage","payments"]}`,
			want: Classification{
				Kind:        KindIncident,
				Urgency:     UrgencyHigh,
				NeedsSearch: true,
				SearchTerms: []string{"outage", "payments"},
			},
		},
		{
			name:    "unknown kind degrades to other",
			content: `{"kind":"complaint","urgency":"medium"}`,
			want:    Classification{Kind: KindOther, Urgency: UrgencyNormal},
		},
		{
			name:    "needs_search without terms is cleared",
			content: `{"kind":"question","urgency":"low","needs_search":true,"search_terms":[]}`,
			want:    Classification{Kind: KindQuestion, Urgency: UrgencyLow},
		},
		{
			name:    "unparseable output degrades to default",
			content: "I think this is a bug",
			want:    DefaultClassification(),
		},
		{
			name: "non-transient provider error degrades to default",
			err:  errors.New("invalid api key"),
			want: DefaultClassification(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptProvider{
				responses: []*providers.Response{textResponse(tt.content)},
				errs:      []error{tt.err},
			}
			c := NewClassifier(p, config.StageModel{Model: "cls"}, 2)

			got := c.Classify(context.Background(), "directive", "U1", "text", nil)
			if got.Kind != tt.want.Kind || got.Urgency != tt.want.Urgency || got.NeedsSearch != tt.want.NeedsSearch {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if len(got.SearchTerms) != len(tt.want.SearchTerms) {
				t.Errorf("search terms = %v, want %v", got.SearchTerms, tt.want.SearchTerms)
			}
			if tt.err != nil && p.calls() != 1 {
				t.Errorf("non-transient errors must not retry, got %d calls", p.calls())
			}
		})
	}
}

func TestClassifyCapsSearchTerms(t *testing.T) {
	p := &scriptProvider{responses: []*providers.Response{
		textResponse(`{"kind":"question","urgency":"normal","needs_search":true,"search_terms":["a","b","c","d","e","f","g"]}`),
	}}
	c := NewClassifier(p, config.StageModel{Model: "cls"}, 0)

	got := c.Classify(context.Background(), "d", "U1", "t", nil)
	if len(got.SearchTerms) != 5 {
		t.Errorf("search terms = %v, want 5 entries", got.SearchTerms)
	}
}

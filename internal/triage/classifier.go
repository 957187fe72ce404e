package triage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/triagebot/internal/config"
	"github.com/nextlevelbuilder/triagebot/internal/providers"
	"github.com/nextlevelbuilder/triagebot/internal/store"
)

// Classifier runs the one-shot classification stage. It never fails a
// run: transient errors retry with backoff, and on exhaustion (or any
// non-transient error) the stage degrades to the default classification.
type Classifier struct {
	provider providers.Provider
	model    config.StageModel
	retries  int
	backoff  time.Duration
}

func NewClassifier(p providers.Provider, model config.StageModel, retries int) *Classifier {
	if retries < 0 {
		retries = 0
	}
	return &Classifier{
		provider: p,
		model:    model,
		retries:  retries,
		backoff:  time.Second,
	}
}

// classifierVerdict is the JSON shape the model is asked for.
type classifierVerdict struct {
	Kind        string   `json:"kind"`
	Urgency     string   `json:"urgency"`
	NeedsSearch bool     `json:"needs_search"`
	SearchTerms []string `json:"search_terms"`
}

// Classify returns the message classification, degraded to the default
// on failure.
func (c *Classifier) Classify(ctx context.Context, directive, author, text string, history []store.MessageRecord) Classification {
	temp := c.model.Temperature
	req := providers.Request{
		Model:        c.model.Model,
		Temperature:  &temp,
		MaxTokens:    c.model.MaxTokens,
		ResponseJSON: true,
		Messages: []providers.Message{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: buildClassifierInput(directive, author, text, history)},
		},
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			if cls, parseErr := parseVerdict(resp.Content); parseErr == nil {
				return cls
			} else {
				lastErr = parseErr
			}
		} else {
			lastErr = err
			if !providers.IsTransient(err) {
				break
			}
		}

		if attempt == c.retries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			slog.Warn("classifier.degraded", "reason", "context done", "error", ctx.Err())
			return DefaultClassification()
		}
		backoff *= 2
	}

	slog.Warn("classifier.degraded", "error", lastErr)
	return DefaultClassification()
}

func parseVerdict(content string) (Classification, error) {
	var v classifierVerdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Classification{}, err
	}
	cls := Classification{
		Kind:        ParseKind(v.Kind),
		Urgency:     ParseUrgency(v.Urgency),
		NeedsSearch: v.NeedsSearch,
	}
	if cls.NeedsSearch {
		for _, t := range v.SearchTerms {
			if t != "" {
				cls.SearchTerms = append(cls.SearchTerms, t)
			}
		}
		if len(cls.SearchTerms) > 5 {
			cls.SearchTerms = cls.SearchTerms[:5]
		}
		if len(cls.SearchTerms) == 0 {
			cls.NeedsSearch = false
		}
	}
	return cls, nil
}

package triage

import (
	"strings"
	"time"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
)

// Kind is the triage category assigned to an inbound message.
type Kind string

const (
	KindBug      Kind = "bug"
	KindFeature  Kind = "feature"
	KindQuestion Kind = "question"
	KindIncident Kind = "incident"
	KindOther    Kind = "other"
)

// Emoji returns the reaction attached to the triaged message.
func (k Kind) Emoji() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindFeature:
		return "bulb"
	case KindBug:
		return "bug"
	case KindIncident:
		return "warning"
	default:
		return "grey_question"
	}
}

// ParseKind maps free-form model output to a Kind, defaulting to other.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindBug:
		return KindBug
	case KindFeature:
		return KindFeature
	case KindQuestion:
		return KindQuestion
	case KindIncident:
		return KindIncident
	default:
		return KindOther
	}
}

// Urgency grades how quickly a message needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

func ParseUrgency(s string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyLow:
		return UrgencyLow
	case UrgencyHigh:
		return UrgencyHigh
	default:
		return UrgencyNormal
	}
}

// Classification is the output of the classification stage.
type Classification struct {
	Kind        Kind     `json:"kind"`
	Urgency     Urgency  `json:"urgency"`
	NeedsSearch bool     `json:"needs_search"`
	SearchTerms []string `json:"search_terms,omitempty"`
}

// DefaultClassification is what the pipeline degrades to when the
// classifier cannot produce a verdict.
func DefaultClassification() Classification {
	return Classification{Kind: KindOther, Urgency: UrgencyNormal}
}

// Status is the terminal state of a pipeline run.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// ToolInvocation is one entry in a run's tool trace.
type ToolInvocation struct {
	Name     string        `json:"name"`
	ArgsJSON string        `json:"args_json"`
	IsError  bool          `json:"is_error"`
	Duration time.Duration `json:"duration"`
}

// RunOutcome is the result of one pipeline run, handed to the dispatcher.
type RunOutcome struct {
	RunID          string
	Event          bus.InboundEvent
	Status         Status
	Classification *Classification
	Reply          string
	TagIdentities  []string
	Mutations      *Mutations
	ToolTrace      []ToolInvocation
	Iterations     int
	StartedAt      time.Time
	Err            error
}

package triage

import (
	"context"
	"sync"
)

// FactDraft is a pending remembered fact, not yet persisted.
type FactDraft struct {
	Text         string
	AddedBy      string
	SupersedesID string
}

// Mutations accumulates state changes requested during a run. Tools record
// into it; nothing touches the store until the dispatcher commits, once,
// after the assistant stage finishes. Tool calls within a turn run
// concurrently, hence the lock.
type Mutations struct {
	mu        sync.Mutex
	author    string
	facts     []FactDraft
	directive *string
	oncall    map[string]string // topic -> identity assignments
	tags      []string          // identities to tag in the reply
	committed bool
}

func NewMutations(author string) *Mutations {
	return &Mutations{author: author}
}

func (m *Mutations) AddFact(text, supersedesID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = append(m.facts, FactDraft{Text: text, AddedBy: m.author, SupersedesID: supersedesID})
}

func (m *Mutations) SetDirective(directive string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directive = &directive
}

func (m *Mutations) AssignOncall(topic, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.oncall == nil {
		m.oncall = map[string]string{}
	}
	m.oncall[topic] = identity
}

func (m *Mutations) Tag(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tags {
		if t == identity {
			return
		}
	}
	m.tags = append(m.tags, identity)
}

func (m *Mutations) Facts() []FactDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FactDraft, len(m.facts))
	copy(out, m.facts)
	return out
}

func (m *Mutations) Directive() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.directive == nil {
		return "", false
	}
	return *m.directive, true
}

func (m *Mutations) Oncall() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.oncall))
	for k, v := range m.oncall {
		out[k] = v
	}
	return out
}

func (m *Mutations) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.tags))
	copy(out, m.tags)
	return out
}

func (m *Mutations) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.facts) == 0 && m.directive == nil && len(m.oncall) == 0 && len(m.tags) == 0
}

// MarkCommitted flags the accumulator after a successful store commit.
func (m *Mutations) MarkCommitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = true
}

func (m *Mutations) Committed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

type mutationsKey struct{}

// WithMutations attaches the run's accumulator to the context so builtin
// tools can record into it.
func WithMutations(ctx context.Context, m *Mutations) context.Context {
	return context.WithValue(ctx, mutationsKey{}, m)
}

// MutationsFrom returns the accumulator from the context, or nil.
func MutationsFrom(ctx context.Context) *Mutations {
	m, _ := ctx.Value(mutationsKey{}).(*Mutations)
	return m
}

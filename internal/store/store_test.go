package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/triagebot/internal/config"
)

func testStores(t *testing.T) *Stores {
	t.Helper()
	s, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChannelGetOrCreateAppliesDefaultDirective(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	ch, err := s.Channels.GetOrCreate(ctx, "C1", "slack")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if ch.Directive != DefaultDirective {
		t.Errorf("directive = %q, want default", ch.Directive)
	}

	// Second call returns the same row, not a fresh one.
	again, err := s.Channels.GetOrCreate(ctx, "C1", "slack")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.CreatedAt.UnixMilli() != ch.CreatedAt.UnixMilli() {
		t.Error("second GetOrCreate created a new row")
	}
}

func TestDirectiveRoundTrip(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	if _, err := s.Channels.GetOrCreate(ctx, "C1", "slack"); err != nil {
		t.Fatal(err)
	}
	if err := s.Channels.UpdateDirective(ctx, "C1", "Escalate all incidents to #ops."); err != nil {
		t.Fatalf("update directive: %v", err)
	}

	ch, err := s.Channels.GetOrCreate(ctx, "C1", "slack")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Directive != "Escalate all incidents to #ops." {
		t.Errorf("directive = %q", ch.Directive)
	}
}

func TestUpdateDirectiveUnknownChannel(t *testing.T) {
	s := testStores(t)
	err := s.Channels.UpdateDirective(context.Background(), "missing", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOncallRoundTrip(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	if _, err := s.Channels.GetOrCreate(ctx, "C1", "slack"); err != nil {
		t.Fatal(err)
	}
	if err := s.Channels.SetOncall(ctx, "C1", "billing", "U123"); err != nil {
		t.Fatalf("set oncall: %v", err)
	}
	// Upsert replaces the identity for the same topic.
	if err := s.Channels.SetOncall(ctx, "C1", "billing", "U456"); err != nil {
		t.Fatalf("set oncall upsert: %v", err)
	}

	ch, err := s.Channels.GetOrCreate(ctx, "C1", "slack")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Oncall["billing"] != "U456" {
		t.Errorf("oncall = %v", ch.Oncall)
	}
}

func TestFactAppendAndSearch(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	facts := []string{
		"The staging database resets every Sunday.",
		"Deploys are frozen during December.",
		"Use #releases for deploy questions.",
	}
	for _, text := range facts {
		if err := s.Facts.Append(ctx, &ContextFact{ChannelID: "C1", Text: text, AddedBy: "U1"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recent, err := s.Facts.ListRecent(ctx, "C1", 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent = %d, want 3", len(recent))
	}

	found, err := s.Facts.Search(ctx, "C1", []string{"deploy"}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("search hits = %d, want 2", len(found))
	}

	// Other channels are invisible.
	none, err := s.Facts.Search(ctx, "C2", []string{"deploy"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("cross-channel leak: %d hits", len(none))
	}
}

func TestAttachClassificationAtMostOnce(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	rec := &MessageRecord{ChannelID: "C1", TS: "100.1", Author: "U1", Text: "the login page 500s"}
	if err := s.Messages.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.Messages.AttachClassification(ctx, "C1", "100.1", "bug", "high"); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	err := s.Messages.AttachClassification(ctx, "C1", "100.1", "question", "normal")
	if !errors.Is(err, ErrAlreadyClassified) {
		t.Errorf("second attach err = %v, want ErrAlreadyClassified", err)
	}

	err = s.Messages.AttachClassification(ctx, "C1", "missing", "bug", "high")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing attach err = %v, want ErrNotFound", err)
	}
}

func TestMessageRecentAndReply(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	for _, rec := range []*MessageRecord{
		{ChannelID: "C1", TS: "1.0", Author: "U1", Text: "first"},
		{ChannelID: "C1", TS: "2.0", Author: "U2", Text: "second"},
	} {
		if err := s.Messages.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Messages.AttachReply(ctx, "C1", "2.0", "3.0"); err != nil {
		t.Fatalf("attach reply: %v", err)
	}

	recent, err := s.Messages.Recent(ctx, "C1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	for _, r := range recent {
		if r.TS == "2.0" && r.ReplyTS != "3.0" {
			t.Errorf("reply_ts = %q, want 3.0", r.ReplyTS)
		}
	}
}

func TestMessageAppendIdempotent(t *testing.T) {
	s := testStores(t)
	ctx := context.Background()

	rec := &MessageRecord{ChannelID: "C1", TS: "1.0", Text: "dup"}
	if err := s.Messages.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}
	// Redelivery of the same platform event is a no-op.
	if err := s.Messages.Append(ctx, rec); err != nil {
		t.Fatalf("second append: %v", err)
	}

	recent, err := s.Messages.Recent(ctx, "C1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("rows = %d, want 1", len(recent))
	}
}

func TestRunRecord(t *testing.T) {
	s := testStores(t)
	run := &PipelineRun{ChannelID: "C1", TS: "1.0", Status: "ok", Classification: "question", ToolCalls: 2, DurationMS: 1234}
	if err := s.Runs.Record(context.Background(), run); err != nil {
		t.Fatalf("record: %v", err)
	}
	if run.ID == "" {
		t.Error("run ID not assigned")
	}
}

func TestBindDollar(t *testing.T) {
	got := bindDollar("SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3"
	if got != want {
		t.Errorf("bindDollar = %q, want %q", got, want)
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// bindFn rewrites ?-style placeholders into the backend's dialect.
type bindFn func(query string) string

func bindQuestion(query string) string { return query }

// bindDollar rewrites ? placeholders as $1..$n for postgres.
func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlDB is the shared handle behind every store. The SQL is identical for
// sqlite and postgres; only placeholder style differs.
type sqlDB struct {
	db   *sql.DB
	bind bindFn
}

func newSQLStores(db *sql.DB, bind bindFn) *Stores {
	h := &sqlDB{db: db, bind: bind}
	return &Stores{
		Channels: &channelStore{h},
		Facts:    &factStore{h},
		Messages: &messageStore{h},
		Runs:     &runStore{h},
		closeFn:  db.Close,
	}
}

type channelStore struct{ *sqlDB }
type factStore struct{ *sqlDB }
type messageStore struct{ *sqlDB }
type runStore struct{ *sqlDB }

// --- ChannelStore ---

func (s *channelStore) GetOrCreate(ctx context.Context, channelID, platform string) (*ChannelState, error) {
	ch, err := s.get(ctx, channelID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, s.bind(
		`INSERT INTO channels (channel_id, platform, directive, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		channelID, platform, DefaultDirective, now, now)
	if err != nil {
		// Lost a create race; the row exists now.
		if ch, getErr := s.get(ctx, channelID); getErr == nil {
			return ch, nil
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}

	return &ChannelState{
		ChannelID: channelID,
		Platform:  platform,
		Directive: DefaultDirective,
		Oncall:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *channelStore) get(ctx context.Context, channelID string) (*ChannelState, error) {
	var ch ChannelState
	err := s.db.QueryRowContext(ctx, s.bind(
		`SELECT channel_id, platform, directive, created_at, updated_at FROM channels WHERE channel_id = ?`),
		channelID).Scan(&ch.ChannelID, &ch.Platform, &ch.Directive, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}

	ch.Oncall = map[string]string{}
	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT topic, identity FROM channel_oncall WHERE channel_id = ?`), channelID)
	if err != nil {
		return nil, fmt.Errorf("get oncall: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic, identity string
		if err := rows.Scan(&topic, &identity); err != nil {
			return nil, err
		}
		ch.Oncall[topic] = identity
	}
	return &ch, rows.Err()
}

func (s *channelStore) UpdateDirective(ctx context.Context, channelID, directive string) error {
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE channels SET directive = ?, updated_at = ? WHERE channel_id = ?`),
		directive, time.Now().UTC(), channelID)
	if err != nil {
		return fmt.Errorf("update directive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *channelStore) SetOncall(ctx context.Context, channelID, topic, identity string) error {
	_, err := s.db.ExecContext(ctx, s.bind(
		`INSERT INTO channel_oncall (channel_id, topic, identity, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (channel_id, topic) DO UPDATE SET identity = excluded.identity, updated_at = excluded.updated_at`),
		channelID, topic, identity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set oncall: %w", err)
	}
	return nil
}

// --- FactStore ---

func (s *factStore) Append(ctx context.Context, fact *ContextFact) error {
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.bind(
		`INSERT INTO facts (id, channel_id, text, added_by, supersedes_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		fact.ID, fact.ChannelID, fact.Text, fact.AddedBy, fact.SupersedesID, fact.CreatedAt)
	if err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

func (s *factStore) ListRecent(ctx context.Context, channelID string, limit int) ([]ContextFact, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT id, channel_id, text, added_by, supersedes_id, created_at FROM facts
		 WHERE channel_id = ? ORDER BY created_at DESC LIMIT ?`),
		channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) Search(ctx context.Context, channelID string, terms []string, limit int) ([]ContextFact, error) {
	query, args := likeQuery(
		`SELECT id, channel_id, text, added_by, supersedes_id, created_at FROM facts WHERE channel_id = ?`,
		"text", channelID, terms, limit)
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func scanFacts(rows *sql.Rows) ([]ContextFact, error) {
	var facts []ContextFact
	for rows.Next() {
		var f ContextFact
		if err := rows.Scan(&f.ID, &f.ChannelID, &f.Text, &f.AddedBy, &f.SupersedesID, &f.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// --- MessageStore ---

func (s *messageStore) Append(ctx context.Context, rec *MessageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.bind(
		`INSERT INTO messages (channel_id, ts, thread_ts, author, text, classification, urgency, reply_ts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (channel_id, ts) DO NOTHING`),
		rec.ChannelID, rec.TS, rec.ThreadTS, rec.Author, rec.Text, rec.Classification, rec.Urgency, rec.ReplyTS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *messageStore) AttachClassification(ctx context.Context, channelID, ts, classification, urgency string) error {
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE messages SET classification = ?, urgency = ? WHERE channel_id = ? AND ts = ? AND classification = ''`),
		classification, urgency, channelID, ts)
	if err != nil {
		return fmt.Errorf("attach classification: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var existing string
		err := s.db.QueryRowContext(ctx, s.bind(
			`SELECT classification FROM messages WHERE channel_id = ? AND ts = ?`),
			channelID, ts).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrAlreadyClassified
	}
	return nil
}

func (s *messageStore) AttachReply(ctx context.Context, channelID, ts, replyTS string) error {
	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE messages SET reply_ts = ? WHERE channel_id = ? AND ts = ?`),
		replyTS, channelID, ts)
	if err != nil {
		return fmt.Errorf("attach reply: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *messageStore) Recent(ctx context.Context, channelID string, limit int) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT channel_id, ts, thread_ts, author, text, classification, urgency, reply_ts, created_at FROM messages
		 WHERE channel_id = ? ORDER BY created_at DESC LIMIT ?`),
		channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *messageStore) Search(ctx context.Context, channelID string, terms []string, limit int) ([]MessageRecord, error) {
	query, args := likeQuery(
		`SELECT channel_id, ts, thread_ts, author, text, classification, urgency, reply_ts, created_at FROM messages WHERE channel_id = ?`,
		"text", channelID, terms, limit)
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]MessageRecord, error) {
	var recs []MessageRecord
	for rows.Next() {
		var r MessageRecord
		if err := rows.Scan(&r.ChannelID, &r.TS, &r.ThreadTS, &r.Author, &r.Text, &r.Classification, &r.Urgency, &r.ReplyTS, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// --- RunStore ---

func (s *runStore) Record(ctx context.Context, run *PipelineRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.bind(
		`INSERT INTO runs (id, channel_id, ts, status, classification, reply_ts, tool_calls, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.ChannelID, run.TS, run.Status, run.Classification, run.ReplyTS, run.ToolCalls, run.DurationMS, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// likeQuery appends case-insensitive LIKE clauses (one per term, OR-joined)
// and an ordering + limit to a base query.
func likeQuery(base, column, channelID string, terms []string, limit int) (string, []interface{}) {
	args := []interface{}{channelID}
	var clauses []string
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		clauses = append(clauses, "LOWER("+column+") LIKE ?")
		args = append(args, "%"+strings.ToLower(term)+"%")
	}
	query := base
	if len(clauses) > 0 {
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)
	return query, args
}

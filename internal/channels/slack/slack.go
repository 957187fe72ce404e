// Package slack implements the Slack adapter over Socket Mode: inbound
// events arrive on a websocket, outbound calls use the Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
	"github.com/nextlevelbuilder/triagebot/internal/channels"
	"github.com/nextlevelbuilder/triagebot/internal/config"
)

const (
	apiBase          = "https://slack.com/api"
	initialReconnect = 2 * time.Second
	maxReconnect     = 60 * time.Second
)

// Channel connects to Slack via Socket Mode.
type Channel struct {
	*channels.BaseChannel
	cfg        config.SlackConfig
	httpClient *http.Client
	limiter    *rate.Limiter

	botUserID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates the Slack adapter. It does not connect until Start.
func New(cfg config.SlackConfig, queue *bus.Queue) *Channel {
	perSecond := cfg.OutboundPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("slack", queue),
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Start resolves the bot identity and begins the socket read loop.
func (c *Channel) Start(ctx context.Context) error {
	botID, err := c.authTest(ctx)
	if err != nil {
		return fmt.Errorf("slack auth.test: %w", err)
	}
	c.botUserID = botID

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)

	c.SetRunning(true)
	slog.Info("slack connected", "bot_user_id", botID)
	return nil
}

// Stop tears down the socket loop.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

// run keeps a Socket Mode connection alive, reconnecting with backoff.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	backoff := initialReconnect
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.readSocket(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("slack socket closed, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxReconnect {
			backoff = maxReconnect
		}
	}
}

// readSocket opens one Socket Mode connection and pumps envelopes until
// it fails or Slack asks for a reconnect.
func (c *Channel) readSocket(ctx context.Context) error {
	wsURL, err := c.connectionsOpen(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadMessage unblocks.
	// watchDone releases the watcher when the connection closes on its
	// own, so reconnects do not accumulate goroutines.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go closeOnDone(ctx, watchDone, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("slack envelope parse failed", "error", err)
			continue
		}

		if env.EnvelopeID != "" {
			ack, _ := json.Marshal(map[string]string{"envelope_id": env.EnvelopeID})
			if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
		}

		switch env.Type {
		case "hello":
			slog.Debug("slack socket ready")
		case "disconnect":
			// Slack rotates connections; reconnect immediately.
			return fmt.Errorf("server requested disconnect")
		case "events_api":
			c.handleEventsAPI(ctx, env.Payload)
		}
	}
}

// closeOnDone closes c when ctx is cancelled. Closing done first
// releases the watcher without touching the connection.
func closeOnDone(ctx context.Context, done <-chan struct{}, c io.Closer) {
	select {
	case <-ctx.Done():
		c.Close()
	case <-done:
	}
}

func (c *Channel) handleEventsAPI(ctx context.Context, payload json.RawMessage) {
	var cb eventCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		slog.Warn("slack event parse failed", "error", err)
		return
	}
	ev, ok := normalizeEvent(cb.Event, c.botUserID, c.cfg.RespondsToTopLevel())
	if !ok {
		return
	}
	slog.Debug("slack event",
		"channel", ev.ChannelID,
		"author", ev.Author,
		"preview", channels.Truncate(ev.Text, 50))
	c.Publish(ctx, ev)
}

// Post creates a message via chat.postMessage and returns its ts.
func (c *Channel) Post(ctx context.Context, post bus.OutboundPost) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	text := post.Text
	if len(post.TagIdentities) > 0 {
		mentions := make([]string, len(post.TagIdentities))
		for i, id := range post.TagIdentities {
			mentions[i] = fmt.Sprintf("<@%s>", id)
		}
		text = fmt.Sprintf("%s\n\ncc %s", text, strings.Join(mentions, " "))
	}

	body := map[string]interface{}{
		"channel": post.ChannelID,
		"text":    text,
	}
	if post.ThreadTS != "" {
		body["thread_ts"] = post.ThreadTS
	}

	var resp struct {
		apiResponse
		TS string `json:"ts"`
	}
	if err := c.apiCall(ctx, "chat.postMessage", c.cfg.BotToken, body, &resp); err != nil {
		return "", err
	}
	return resp.TS, nil
}

// React attaches an emoji reaction via reactions.add. Duplicate
// reactions are treated as success.
func (c *Channel) React(ctx context.Context, reaction bus.Reaction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body := map[string]interface{}{
		"channel":   reaction.ChannelID,
		"name":      reaction.Emoji,
		"timestamp": reaction.TS,
	}
	var resp apiResponse
	err := c.apiCall(ctx, "reactions.add", c.cfg.BotToken, body, &resp)
	if err != nil && strings.Contains(err.Error(), "already_reacted") {
		return nil
	}
	return err
}

func (c *Channel) authTest(ctx context.Context) (string, error) {
	var resp struct {
		apiResponse
		UserID string `json:"user_id"`
	}
	if err := c.apiCall(ctx, "auth.test", c.cfg.BotToken, map[string]interface{}{}, &resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// connectionsOpen requests a fresh Socket Mode websocket URL.
func (c *Channel) connectionsOpen(ctx context.Context) (string, error) {
	var resp struct {
		apiResponse
		URL string `json:"url"`
	}
	if err := c.apiCall(ctx, "apps.connections.open", c.cfg.AppToken, nil, &resp); err != nil {
		return "", fmt.Errorf("apps.connections.open: %w", err)
	}
	return resp.URL, nil
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r apiResponse) err(method string) error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("slack %s: %s", method, r.Error)
}

// apiCall posts JSON to a Slack Web API method and decodes the response.
func (c *Channel) apiCall(ctx context.Context, method, token string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/"+method, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("slack %s: read response: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("slack %s: decode response: %w", method, err)
	}

	type errer interface{ err(string) error }
	if e, ok := out.(errer); ok {
		return e.err(method)
	}
	return nil
}

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteParsesToolCalls(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"function": {"name": "search_messages", "arguments": "{\"terms\": \"login outage\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "gpt-4.1")
	temp := 0.0
	resp, err := p.Complete(context.Background(), Request{
		Messages:    []Message{{Role: "user", Content: "anyone else seeing login failures?"}},
		Temperature: &temp,
		MaxTokens:   256,
		Tools: []ToolDefinition{{
			Type: "function",
			Function: ToolFunctionSchema{
				Name:       "search_messages",
				Parameters: map[string]interface{}{"type": "object"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "search_messages" || tc.Arguments["terms"] != "login outage" {
		t.Errorf("tool call = %+v", tc)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	// Wire format checks on the outbound request.
	if gotBody["model"] != "gpt-4.1" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v", gotBody["tool_choice"])
	}
	if gotBody["temperature"] != 0.0 {
		t.Errorf("temperature = %v", gotBody["temperature"])
	}
}

func TestCompleteSendsToolResultsAsJSONStringArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []map[string]interface{} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		// assistant message carries tool_calls with stringified arguments
		asst := body.Messages[1]
		calls := asst["tool_calls"].([]interface{})
		fn := calls[0].(map[string]interface{})["function"].(map[string]interface{})
		if _, ok := fn["arguments"].(string); !ok {
			t.Errorf("arguments should be a JSON string, got %T", fn["arguments"])
		}
		// tool message carries tool_call_id
		toolMsg := body.Messages[2]
		if toolMsg["tool_call_id"] != "call_1" {
			t.Errorf("tool_call_id = %v", toolMsg["tool_call_id"])
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "gpt-4.1")
	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_1", Name: "f", Arguments: map[string]interface{}{"a": float64(1)}}}},
			{Role: "tool", ToolCallID: "call_1", Content: "result"},
		},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestCompleteReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-bad", srv.URL, "gpt-4.1")
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("want error")
	}
	if IsTransient(err) {
		t.Error("401 should not be transient")
	}
}

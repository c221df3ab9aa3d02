package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dwizi/telegram-relay/internal/llm"
)

func TestCompleteMapsSystemAndTurns(t *testing.T) {
	var receivedKey string
	var receivedPath string
	var body struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		receivedKey = req.Header.Get("X-Api-Key")
		receivedPath = req.URL.Path
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "hello from claude"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	client := New(Config{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Model:     "claude-test",
		MaxTokens: 128,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), option.WithMaxRetries(0))

	reply, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "what now?"},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if reply != "hello from claude" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if receivedKey != "test-key" {
		t.Fatalf("expected api key header, got %q", receivedKey)
	}
	if receivedPath != "/v1/messages" {
		t.Fatalf("unexpected path %s", receivedPath)
	}
	if body.Model != "claude-test" || body.MaxTokens != 128 {
		t.Fatalf("unexpected model or max tokens: %s %d", body.Model, body.MaxTokens)
	}
	if len(body.System) != 1 || body.System[0].Text != "be brief" {
		t.Fatalf("expected system prompt out of band, got %+v", body.System)
	}
	if len(body.Messages) != 3 || body.Messages[1].Role != "assistant" || body.Messages[2].Content[0].Text != "what now?" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestCompleteWithoutKeyIsUnavailable(t *testing.T) {
	client := New(Config{}, nil)
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL}, nil, option.WithMaxRetries(0))
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if !errors.Is(err, llm.ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

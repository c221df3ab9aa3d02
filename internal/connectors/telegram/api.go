package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the Bot API limit for one sendMessage text, in characters.
const MaxMessageLength = 4096

var ErrUnauthorized = errors.New("telegram rejected the bot token")

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// call posts a JSON payload to a Bot API method and decodes its result into out.
func (c *Connector) call(ctx context.Context, method string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.cfg.APIBase, c.cfg.Token, method)
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redactToken(err, c.cfg.Token))
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var response apiResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return fmt.Errorf("decode %s: status=%d body=%q err=%w", method, res.StatusCode, truncateForLog(bodyBytes), err)
	}
	if res.StatusCode == http.StatusUnauthorized || response.ErrorCode == http.StatusUnauthorized {
		return fmt.Errorf("telegram %s: %w", method, ErrUnauthorized)
	}
	if !response.OK || res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		description := strings.TrimSpace(response.Description)
		if description == "" {
			description = truncateForLog(bodyBytes)
		}
		if response.ErrorCode > 0 {
			return fmt.Errorf("telegram %s failed: status=%d error_code=%d description=%s", method, res.StatusCode, response.ErrorCode, description)
		}
		return fmt.Errorf("telegram %s failed: status=%d description=%s", method, res.StatusCode, description)
	}
	if out == nil || len(response.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Verify checks the token with getMe and remembers the bot username.
func (c *Connector) Verify(ctx context.Context) (string, error) {
	if c.cfg.Token == "" {
		return "", fmt.Errorf("telegram getMe: %w", ErrUnauthorized)
	}
	var me telegramUser
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return "", err
	}
	username := strings.TrimSpace(me.Username)
	c.mu.Lock()
	c.botUsername = username
	c.mu.Unlock()
	return username, nil
}

func (c *Connector) getUpdates(ctx context.Context) ([]telegramUpdate, error) {
	var updates []telegramUpdate
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          c.offset,
		"timeout":         c.cfg.PollSeconds,
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

// sendMessage sends text as plain text, split into chunks under the Bot API limit.
func (c *Connector) sendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitMessage(text, MaxMessageLength) {
		if err := c.call(ctx, "sendMessage", map[string]any{
			"chat_id": chatID,
			"text":    chunk,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             strings.TrimSpace(url),
		"allowed_updates": []string{"message"},
	}
	if secret = strings.TrimSpace(secret); secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

func (c *Connector) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": dropPending}, nil)
}

func (c *Connector) WebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := c.call(ctx, "getWebhookInfo", nil, &info)
	return info, err
}

// splitMessage cuts text into pieces of at most limit characters, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	remaining := []rune(text)
	for len(remaining) > limit {
		cut := limit
		for index := limit; index > limit/2; index-- {
			if remaining[index-1] == '\n' {
				cut = index
				break
			}
		}
		chunk := strings.TrimRight(string(remaining[:cut]), "\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = remaining[cut:]
	}
	if tail := string(remaining); strings.TrimSpace(tail) != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

func redactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

func truncateForLog(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		return text[:512] + "..."
	}
	return text
}

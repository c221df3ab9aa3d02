package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dwizi/telegram-relay/internal/dispatch"
	"github.com/dwizi/telegram-relay/internal/gateway"
	"github.com/dwizi/telegram-relay/internal/responder"
)

// ServeHTTP accepts webhook-delivered updates.
func (c *Connector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if secret := c.cfg.WebhookSecret; secret != "" {
		provided := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.logger.Warn("telegram webhook rejected, bad secret token", "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBodyBytes))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	c.dispatchUpdate(r.Context(), update)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// dispatchUpdate queues text messages for handling. Updates without a message or
// text are dropped.
func (c *Connector) dispatchUpdate(ctx context.Context, update telegramUpdate) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	message := *update.Message
	if strings.TrimSpace(message.Text) == "" {
		return
	}
	c.logger.Info("message received", "update_id", update.UpdateID, "chat_id", message.Chat.ID, "user_id", message.From.ID)

	if c.dispatcher == nil {
		c.handleAndLog(ctx, update.UpdateID, message)
		return
	}
	_, err := c.dispatcher.Submit(dispatch.Job{
		Kind:   "telegram_message",
		ChatID: message.Chat.ID,
		Run: func(jobCtx context.Context) {
			c.handleAndLog(jobCtx, update.UpdateID, message)
		},
	})
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		c.logger.Warn("update dropped, dispatch queue full", "update_id", update.UpdateID, "chat_id", message.Chat.ID)
	case err != nil:
		c.logger.Warn("update dropped", "update_id", update.UpdateID, "chat_id", message.Chat.ID, "error", err)
	}
}

func (c *Connector) handleAndLog(ctx context.Context, updateID int64, message telegramMessage) {
	if err := c.handleMessage(ctx, message); err != nil {
		c.logger.Error("handle message failed", "error", err, "update_id", updateID, "chat_id", message.Chat.ID)
	}
}

func (c *Connector) handleMessage(ctx context.Context, message telegramMessage) error {
	text := strings.TrimSpace(message.Text)
	if c.gateway != nil {
		output, err := c.gateway.HandleMessage(ctx, gateway.MessageInput{
			ChatID:     message.Chat.ID,
			FromUserID: message.From.ID,
			Text:       text,
		})
		if err != nil {
			return err
		}
		if output.Handled {
			if output.Reply == "" {
				return nil
			}
			return c.sendMessage(ctx, message.Chat.ID, output.Reply)
		}
	}
	if c.responder == nil {
		return nil
	}

	result := c.responder.Respond(ctx, message.From.ID, message.Text)
	switch result.Outcome {
	case responder.OutcomeIgnored:
		return nil
	case responder.OutcomeFailed:
		c.logger.Warn("reply failed, sending apology", "chat_id", message.Chat.ID, "user_id", message.From.ID, "error", result.Err)
	}
	if strings.TrimSpace(result.Reply) == "" {
		return nil
	}
	return c.sendMessage(ctx, message.Chat.ID, result.Reply)
}

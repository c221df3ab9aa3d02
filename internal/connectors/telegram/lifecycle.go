package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

func (c *Connector) Publish(ctx context.Context, chatID int64, text string) error {
	message := strings.TrimSpace(text)
	if message == "" {
		return nil
	}
	return c.sendMessage(ctx, chatID, message)
}

// Listen binds the webhook listener ahead of Start so address conflicts surface
// before anything is served. It is a no-op in polling mode.
func (c *Connector) Listen() error {
	if c.cfg.Mode != ModeWebhook {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", c.cfg.WebhookAddr)
	if err != nil {
		return fmt.Errorf("listen telegram webhook on %s: %w", c.cfg.WebhookAddr, err)
	}
	c.listener = listener
	return nil
}

// CloseListener releases a listener bound by Listen when Start will not run.
func (c *Connector) CloseListener() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		c.listener.Close()
		c.listener = nil
	}
}

// Start receives updates until ctx is done, by long polling or by serving the
// webhook endpoint depending on the configured mode.
func (c *Connector) Start(ctx context.Context) error {
	if c.reporter != nil {
		c.reporter.Starting(heartbeatComponent, "starting")
	}
	if c.cfg.Token == "" {
		if c.reporter != nil {
			c.reporter.Disabled(heartbeatComponent, "token missing")
		}
		c.logger.Info("connector disabled, token missing")
		<-ctx.Done()
		return nil
	}
	if c.BotUsername() == "" {
		username, err := c.Verify(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("verify telegram bot: %w", err)
		}
		c.logger.Info("telegram bot identity loaded", "username", username)
	}

	if c.cfg.Mode == ModeWebhook {
		return c.runWebhook(ctx)
	}
	return c.runPolling(ctx)
}

func (c *Connector) runPolling(ctx context.Context) error {
	if err := c.DeleteWebhook(ctx, false); err != nil && ctx.Err() == nil {
		c.logger.Warn("telegram deleteWebhook before polling failed", "error", err)
	}

	c.ready.Store(true)
	defer c.ready.Store(false)
	if c.reporter != nil {
		c.reporter.Beat(heartbeatComponent, "polling updates")
	}
	c.logger.Info("connector started", "mode", ModePolling, "api_base", c.cfg.APIBase)

	for {
		if ctx.Err() != nil {
			c.stopped()
			return nil
		}
		if err := c.pollOnce(ctx); err != nil && ctx.Err() == nil {
			if c.reporter != nil {
				c.reporter.Degrade(heartbeatComponent, "poll failed", err)
			}
			c.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
				c.stopped()
				return nil
			case <-time.After(1500 * time.Millisecond):
			}
		} else if c.reporter != nil {
			c.reporter.Beat(heartbeatComponent, "poll cycle ok")
		}
	}
}

func (c *Connector) pollOnce(ctx context.Context) error {
	updates, err := c.getUpdates(ctx)
	if err != nil {
		return err
	}
	for _, update := range updates {
		if update.UpdateID >= c.offset {
			c.offset = update.UpdateID + 1
		}
		c.dispatchUpdate(ctx, update)
	}
	return nil
}

func (c *Connector) runWebhook(ctx context.Context) error {
	if err := c.Listen(); err != nil {
		return err
	}
	c.mu.Lock()
	listener := c.listener
	c.listener = nil
	c.mu.Unlock()

	if err := c.SetWebhook(ctx, c.cfg.WebhookURL, c.cfg.WebhookSecret); err != nil {
		listener.Close()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("register telegram webhook: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(WebhookPath, c)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	c.ready.Store(true)
	if c.reporter != nil {
		c.reporter.Beat(heartbeatComponent, "webhook serving")
	}
	c.logger.Info("connector started", "mode", ModeWebhook, "addr", listener.Addr().String(), "path", WebhookPath)

	ticker := time.NewTicker(c.beatEvery)
	defer ticker.Stop()
	var runErr error
serving:
	for {
		select {
		case <-ctx.Done():
			break serving
		case runErr = <-serveErr:
			break serving
		case <-ticker.C:
			if c.reporter != nil {
				c.reporter.Beat(heartbeatComponent, "webhook serving")
			}
		}
	}
	c.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), webhookShutdownWait)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("telegram webhook shutdown incomplete", "error", err)
	}
	if err := c.DeleteWebhook(shutdownCtx, false); err != nil {
		c.logger.Warn("telegram deleteWebhook on stop failed", "error", err)
	}
	c.stopped()
	if runErr != nil {
		return fmt.Errorf("serve telegram webhook: %w", runErr)
	}
	return nil
}

func (c *Connector) stopped() {
	if c.reporter != nil {
		c.reporter.Stopped(heartbeatComponent, "stopped")
	}
	c.logger.Info("connector stopped")
}

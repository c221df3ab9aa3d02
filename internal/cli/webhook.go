package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dwizi/telegram-relay/internal/config"
	"github.com/dwizi/telegram-relay/internal/connectors/telegram"
	"github.com/spf13/cobra"
)

func newWebhookCommand(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	webhook := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	webhook.AddCommand(newWebhookSetCommand(logger, opts))
	webhook.AddCommand(newWebhookInfoCommand(logger, opts))
	webhook.AddCommand(newWebhookDeleteCommand(logger, opts))
	return webhook
}

func webhookConnector(logger *slog.Logger, opts *rootOptions) (*telegram.Connector, config.Config, error) {
	cfg := config.LoadEnv(logger, opts.envFiles()...)
	if cfg.TelegramToken == "" {
		return nil, cfg, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN", config.ErrMissing)
	}
	connector := telegram.New(telegram.Config{
		Token:   cfg.TelegramToken,
		APIBase: cfg.TelegramAPI,
	}, nil, nil, logger.With("connector", "telegram"))
	return connector, cfg, nil
}

func newWebhookSetCommand(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "set [url]",
		Short: "Register the webhook URL with Telegram (defaults to TELEGRAM_WEBHOOK_URL)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connector, cfg, err := webhookConnector(logger, opts)
			if err != nil {
				return err
			}
			url := cfg.TelegramWebhookURL
			if len(args) == 1 {
				url = strings.TrimSpace(args[0])
			}
			if url == "" {
				return fmt.Errorf("%w: webhook url argument or TELEGRAM_WEBHOOK_URL", config.ErrMissing)
			}
			if secret == "" {
				secret = cfg.TelegramWebhookSecret
			}
			if err := connector.SetWebhook(cmd.Context(), url, secret); err != nil {
				return err
			}
			cmd.Printf("webhook registered: %s\n", url)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "secret token Telegram sends back in each request (defaults to TELEGRAM_WEBHOOK_SECRET)")
	return cmd
}

func newWebhookInfoCommand(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			connector, _, err := webhookConnector(logger, opts)
			if err != nil {
				return err
			}
			info, err := connector.WebhookInfo(cmd.Context())
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(encoded))
			return nil
		},
	}
}

func newWebhookDeleteCommand(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	var dropPending bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long poll again",
		RunE: func(cmd *cobra.Command, args []string) error {
			connector, _, err := webhookConnector(logger, opts)
			if err != nil {
				return err
			}
			if err := connector.DeleteWebhook(cmd.Context(), dropPending); err != nil {
				return err
			}
			cmd.Println("webhook deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates Telegram queued while the webhook was set")
	return cmd
}

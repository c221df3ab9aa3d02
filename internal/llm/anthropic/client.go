package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dwizi/telegram-relay/internal/llm"
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type Client struct {
	cfg    Config
	api    sdk.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger, opts ...option.RequestOption) *Client {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = string(sdk.ModelClaude3_7SonnetLatest)
	}
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(baseURL))
	}
	requestOptions = append(requestOptions, opts...)

	return &Client{
		cfg:    cfg,
		api:    sdk.NewClient(requestOptions...),
		logger: logger,
	}
}

func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", fmt.Errorf("%w: missing anthropic API key", llm.ErrUnavailable)
	}

	system, turns := llm.SplitSystem(messages)
	if len(turns) == 0 {
		return "", fmt.Errorf("anthropic completion: no messages")
	}
	conversation := make([]sdk.MessageParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case llm.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(turn.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(turn.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages:  conversation,
	}
	if strings.TrimSpace(system) != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	message, err := c.api.Messages.New(ctx, params)
	if err != nil {
		c.logger.Error("anthropic request failed", "model", c.cfg.Model, "error", err)
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var reply strings.Builder
	for _, block := range message.Content {
		if block.Type != "text" {
			continue
		}
		if reply.Len() > 0 {
			reply.WriteString("\n")
		}
		reply.WriteString(block.Text)
	}
	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", llm.ErrEmptyReply
	}
	return text, nil
}

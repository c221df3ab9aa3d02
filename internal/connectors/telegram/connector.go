package telegram

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwizi/telegram-relay/internal/dispatch"
	"github.com/dwizi/telegram-relay/internal/gateway"
	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"github.com/dwizi/telegram-relay/internal/responder"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	WebhookPath         = "/telegram/webhook"
	secretTokenHeader   = "X-Telegram-Bot-Api-Secret-Token"
	heartbeatComponent  = "connector:telegram"
	defaultAPIBase      = "https://api.telegram.org"
	defaultPollSeconds  = 25
	defaultWebhookAddr  = ":8443"
	maxUpdateBodyBytes  = 1 << 20
	webhookShutdownWait = 10 * time.Second
	defaultBeatInterval = 20 * time.Second
)

type CommandGateway interface {
	HandleMessage(ctx context.Context, input gateway.MessageInput) (gateway.MessageOutput, error)
}

type Responder interface {
	Respond(ctx context.Context, userID int64, text string) responder.Result
}

type Dispatcher interface {
	Submit(job dispatch.Job) (dispatch.Job, error)
}

type Config struct {
	Token         string
	APIBase       string
	PollSeconds   int
	Mode          string
	WebhookURL    string
	WebhookAddr   string
	WebhookSecret string
}

type Connector struct {
	cfg        Config
	gateway    CommandGateway
	responder  Responder
	dispatcher Dispatcher
	httpClient *http.Client
	logger     *slog.Logger
	reporter   heartbeat.Reporter
	beatEvery  time.Duration

	ready       atomic.Bool
	offset      int64
	mu          sync.Mutex
	botUsername string
	listener    net.Listener
}

type Option func(*Connector)

// WithDispatcher hands every inbound update to a worker pool instead of handling it
// on the receiving goroutine.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(connector *Connector) {
		connector.dispatcher = dispatcher
	}
}

// WithHeartbeatInterval sets how often a running webhook listener reports itself alive.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(connector *Connector) {
		if interval > 0 {
			connector.beatEvery = interval
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(connector *Connector) {
		if client != nil {
			connector.httpClient = client
		}
	}
}

func New(cfg Config, commandGateway CommandGateway, responder Responder, logger *slog.Logger, opts ...Option) *Connector {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.PollSeconds < 1 {
		cfg.PollSeconds = defaultPollSeconds
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModePolling
	}
	if strings.TrimSpace(cfg.WebhookAddr) == "" {
		cfg.WebhookAddr = defaultWebhookAddr
	}
	if logger == nil {
		logger = slog.Default()
	}
	connector := &Connector{
		cfg:       cfg,
		gateway:   commandGateway,
		responder: responder,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.PollSeconds+10) * time.Second,
		},
		logger:    logger,
		beatEvery: defaultBeatInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(connector)
		}
	}
	return connector
}

func (c *Connector) Mode() string {
	return c.cfg.Mode
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

// Ready reports whether the bot identity is verified and the listener is running.
func (c *Connector) Ready() bool {
	return c.ready.Load()
}

func (c *Connector) BotUsername() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.botUsername
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mywio/task-sync/pkg/core"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Pushover sends subscribed events as Pushover messages.
type Pushover struct {
	logger        *slog.Logger
	client        *http.Client
	endpoint      string
	token         core.Secret
	user          string
	priorities    map[string]int
	enabled       bool
	subscriptions []string
}

type pushoverConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
	// Priority maps event types to Pushover priorities (-2..2).
	Priority map[string]int `yaml:"priority"`
}

func NewPushover() *Pushover {
	return &Pushover{endpoint: pushoverEndpoint}
}

func (n *Pushover) Name() string {
	return "pushover"
}

func (n *Pushover) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	n.logger = logger
	if registry == nil {
		return nil
	}

	n.client = registry.GetHTTPClient()
	section := registry.GetConfig()["pushover"]
	var cfg pushoverConfig
	if err := core.DecodeConfigSection(section, &cfg); err != nil {
		n.logger.WarnContext(ctx, "Invalid pushover config", "error", err)
	}
	n.token = core.NewSecret(cfg.Token)
	n.user = cfg.User
	n.priorities = cfg.Priority
	if n.priorities == nil {
		n.priorities = map[string]int{string(core.EventSyncFailed): 1}
	}

	if n.token.Value == "" || n.user == "" {
		n.logger.WarnContext(ctx, "Pushover token or user not set, notifications disabled")
		return nil
	}
	n.enabled = true
	n.subscriptions = subscriptions(section)
	for _, pattern := range n.subscriptions {
		registry.Subscribe(pattern, n.process)
	}
	n.logger.InfoContext(ctx, "Pushover notifier initialized", "subscribe", n.subscriptions)
	return nil
}

func (n *Pushover) Start(context.Context) error { return nil }

func (n *Pushover) Stop(context.Context) error { return nil }

func (n *Pushover) Description() string {
	return "Pushover notifier for sending notifications via Pushover API"
}

func (n *Pushover) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (n *Pushover) Status() core.ServiceStatus {
	if n.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

type pushoverConfigView struct {
	Token     core.Secret `json:"token"`
	User      string      `json:"user"`
	Subscribe []string    `json:"subscribe,omitempty"`
	Enabled   bool        `json:"enabled"`
}

func (n *Pushover) Config() any {
	return pushoverConfigView{
		Token:     n.token,
		User:      n.user,
		Subscribe: append([]string(nil), n.subscriptions...),
		Enabled:   n.enabled,
	}
}

func (n *Pushover) process(ctx context.Context, event core.InternalEvent) {
	if !n.enabled {
		return
	}
	if err := n.send(ctx, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send Pushover notification", "error", err)
	}
}

func (n *Pushover) send(ctx context.Context, event core.InternalEvent) error {
	payload := map[string]interface{}{
		"token":    n.token.Value,
		"user":     n.user,
		"title":    "task-sync",
		"message":  formatMessage(event),
		"priority": n.priorities[string(event.Type)],
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover API error: %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "Pushover notification delivered", "event", event.Type)
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mywio/task-sync/pkg/core"
	"github.com/mywio/task-sync/pkg/retry"
)

// Webhook POSTs every subscribed event as JSON to a configured URL.
type Webhook struct {
	logger        *slog.Logger
	url           string
	client        *http.Client
	retry         retry.Config
	enabled       bool
	subscriptions []string
}

type webhookConfig struct {
	URL string `yaml:"url"`
}

func NewWebhook() *Webhook {
	return &Webhook{retry: retry.DefaultConfig()}
}

func (p *Webhook) Name() string {
	return "webhook"
}

func (p *Webhook) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	if registry == nil {
		return nil
	}

	p.client = registry.GetHTTPClient()
	section := registry.GetConfig()["webhook"]
	var wcfg webhookConfig
	if err := core.DecodeConfigSection(section, &wcfg); err != nil {
		p.logger.Warn("Invalid webhook config", "error", err)
	}
	p.url = wcfg.URL
	if p.url == "" {
		p.logger.Warn("Webhook URL not set, webhook notifications disabled")
		return nil
	}

	p.enabled = true
	p.subscriptions = subscriptions(section)
	for _, pattern := range p.subscriptions {
		registry.Subscribe(pattern, p.process)
	}
	if len(p.subscriptions) == 0 {
		p.logger.InfoContext(ctx, "Webhook notifier has no subscriptions configured")
	}
	p.logger.Info("Webhook notifier initialized", "url", p.url, "subscribe", p.subscriptions)
	return nil
}

func (p *Webhook) Start(context.Context) error { return nil }

func (p *Webhook) Stop(context.Context) error { return nil }

func (p *Webhook) Description() string { return "Generic webhook notifier" }

func (p *Webhook) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (p *Webhook) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusUnhealthy
}

type webhookConfigView struct {
	URL       string   `json:"url"`
	Subscribe []string `json:"subscribe,omitempty"`
	Enabled   bool     `json:"enabled"`
}

func (p *Webhook) Config() any {
	return webhookConfigView{URL: p.url, Subscribe: append([]string(nil), p.subscriptions...), Enabled: p.enabled}
}

func (p *Webhook) process(ctx context.Context, event core.InternalEvent) {
	if !p.enabled {
		return
	}
	if err := p.send(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "Webhook notification failed", "event", event.Type, "error", err)
	}
}

type webhookPayload struct {
	EventType core.EventTypeName     `json:"event_type"`
	Source    string                 `json:"source"`
	Category  string                 `json:"category,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (p *Webhook) send(ctx context.Context, event core.InternalEvent) error {
	data, err := json.Marshal(webhookPayload{
		EventType: event.Type,
		Source:    event.Source,
		Category:  event.Category,
		Message:   formatMessage(event),
		Details:   event.Details,
		Timestamp: event.Timestamp.UTC(),
	})
	if err != nil {
		return err
	}

	_, err = retry.Do(ctx, p.retry, p.logger, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook status %d: service unavailable", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("webhook status %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "Webhook delivered", "event", event.Type)
	return nil
}

// Package trigger exposes an HTTP endpoint that starts a sync cycle on demand.
package trigger

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mywio/task-sync/pkg/core"
)

const (
	Path               = "/sync"
	EventWebhookCalled = core.EventTypeName("webhook_received")
)

type Webhook struct {
	token    core.Secret
	logger   *slog.Logger
	registry core.PluginRegistry
}

type webhookConfig struct {
	Token string `yaml:"token"`
}

func NewWebhook() *Webhook {
	return &Webhook{}
}

func (p *Webhook) Name() string {
	return "webhook_trigger"
}

func (p *Webhook) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry
	if registry == nil {
		return nil
	}

	var cfg webhookConfig
	if err := core.DecodeConfigSection(registry.GetConfig()["webhook_trigger"], &cfg); err != nil {
		p.logger.Warn("Invalid webhook_trigger config", "error", err)
	}
	p.token = core.NewSecret(cfg.Token)
	if p.token.Value == "" {
		p.logger.Warn("Webhook trigger token not set, endpoint is unsecured (use with caution)")
	} else {
		p.logger.Info("Webhook trigger initialized", "path", Path, "secured", true)
	}

	if err := registry.RegisterEventType(core.EventTypeDesc{
		Name:        EventWebhookCalled,
		Description: "Sync webhook called (before the cycle runs)",
	}); err != nil {
		return err
	}
	registry.GetMuxServer().HandleFunc(Path, p.handleSync)
	return nil
}

func (p *Webhook) Start(context.Context) error { return nil }

func (p *Webhook) Stop(context.Context) error { return nil }

func (p *Webhook) Description() string {
	return "Webhook trigger for on-demand sync cycles"
}

func (p *Webhook) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityTrigger, core.CapabilityAPI}
}

func (p *Webhook) Status() core.ServiceStatus {
	if p.registry == nil {
		return core.StatusUnknown
	}
	if p.token.Value == "" {
		return core.StatusDegraded
	}
	return core.StatusHealthy
}

type webhookConfigView struct {
	Token core.Secret `json:"token"`
	Path  string      `json:"path"`
}

func (p *Webhook) Config() any {
	return webhookConfigView{Token: p.token, Path: Path}
}

func (p *Webhook) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if p.token.Value != "" {
		auth := r.Header.Get("Authorization")
		given := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(given), []byte(p.token.Value)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	p.logger.Info("Sync trigger received via webhook", "client_ip", r.RemoteAddr, "user_agent", r.UserAgent())

	// Listeners outlive the request.
	ctx := context.WithoutCancel(r.Context())
	p.registry.Publish(ctx, core.InternalEvent{
		Type:   EventWebhookCalled,
		Source: p.Name(),
		Details: map[string]interface{}{
			"client_ip":  r.RemoteAddr,
			"user_agent": r.UserAgent(),
		},
	})
	p.registry.Publish(ctx, core.InternalEvent{
		Type:    core.EventSyncNow,
		Source:  p.Name(),
		Details: map[string]interface{}{"client_ip": r.RemoteAddr},
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted","message":"Sync triggered"}` + "\n"))
}

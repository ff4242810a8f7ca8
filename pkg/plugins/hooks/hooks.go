// Package hooks runs local shell scripts when a sync cycle ends.
//
// Scripts live in <dir>/<event type>/*.sh, e.g. hooks/sync_completed/10-report.sh,
// and receive the event details as SYNC_* environment variables.
package hooks

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/mywio/task-sync/pkg/core"
	"github.com/mywio/task-sync/pkg/utils"
)

type Plugin struct {
	dir     string
	logger  *slog.Logger
	enabled bool
}

type hooksConfig struct {
	Dir string `yaml:"dir"`
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string {
	return "hooks"
}

func (p *Plugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	if registry == nil {
		return nil
	}

	var cfg hooksConfig
	if err := core.DecodeConfigSection(registry.GetConfig()["hooks"], &cfg); err != nil {
		p.logger.Warn("Invalid hooks config", "error", err)
	}
	p.dir = cfg.Dir
	if p.dir == "" {
		p.logger.Debug("Hooks dir not set, sync hooks disabled")
		return nil
	}

	p.enabled = true
	for _, ev := range []core.EventTypeName{core.EventSyncCompleted, core.EventSyncFailed} {
		registry.Subscribe(string(ev), p.process)
	}
	p.logger.Info("Sync hooks initialized", "dir", p.dir)
	return nil
}

func (p *Plugin) Start(context.Context) error { return nil }

func (p *Plugin) Stop(context.Context) error { return nil }

func (p *Plugin) Description() string { return "Runs local scripts after sync cycles" }

func (p *Plugin) Capabilities() []core.Capability { return nil }

func (p *Plugin) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusUnknown
}

func (p *Plugin) Config() any {
	return map[string]any{"dir": p.dir, "enabled": p.enabled}
}

func (p *Plugin) process(ctx context.Context, event core.InternalEvent) {
	env := append(utils.HookEnv("SYNC_", event.Details), "SYNC_EVENT="+string(event.Type))
	dir := filepath.Join(p.dir, string(event.Type))
	if err := utils.ExecuteHooks(ctx, dir, env, p.logger); err != nil {
		p.logger.Error("Sync hook failed", "event", event.Type, "error", err)
	}
}

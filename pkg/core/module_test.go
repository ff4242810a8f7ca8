package core

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockModule struct {
	name        string
	initCalled  bool
	startCalled atomic.Bool
	stopCalled  bool
	registry    PluginRegistry
}

func (m *MockModule) Name() string { return m.name }
func (m *MockModule) Init(ctx context.Context, l *slog.Logger, r PluginRegistry) error {
	m.initCalled = true
	m.registry = r
	return nil
}
func (m *MockModule) Start(ctx context.Context) error {
	m.startCalled.Store(true)
	return nil
}
func (m *MockModule) Stop(ctx context.Context) error {
	m.stopCalled = true
	return nil
}

func TestModuleManager(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	mgr := NewModuleManager(logger)

	mock := &MockModule{name: "mock"}
	mgr.Register(mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := mgr.Init(ctx)
	require.NoError(t, err)
	assert.True(t, mock.initCalled)
	assert.Same(t, mgr, mock.registry)

	mgr.Start(ctx)
	assert.Eventually(t, mock.startCalled.Load, time.Second, 10*time.Millisecond)

	mgr.Stop(ctx)
	assert.True(t, mock.stopCalled)
}

func TestModuleManagerCapabilities(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := NewModuleManager(logger)
	mgr.Register(&MockModule{name: "plain"})
	mgr.Register(&testPlugin{name: "api"})

	assert.Len(t, mgr.ListPlugins(), 1)
	assert.Len(t, mgr.GetPluginsWithCapability(CapabilityAPI), 1)
	assert.Empty(t, mgr.GetPluginsWithCapability(CapabilityNotifier))

	_, err := mgr.GetPlugin("api")
	assert.NoError(t, err)
	_, err = mgr.GetPlugin("plain")
	assert.Error(t, err)
}

func TestModuleManagerHTTPClientDefault(t *testing.T) {
	mgr := NewModuleManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NotNil(t, mgr.GetHTTPClient())
	assert.NotNil(t, mgr.GetConfig())
}

package dbus

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := NewConnConfig()
	want := DefaultConfig()
	if cfg.ConnectTimeout != want.ConnectTimeout ||
		cfg.MethodCallTimeout != want.MethodCallTimeout ||
		cfg.AutoReconnectEnabled != want.AutoReconnectEnabled ||
		cfg.ReconnectInitialDelay != want.ReconnectInitialDelay ||
		cfg.ReconnectMaxDelay != want.ReconnectMaxDelay ||
		cfg.ReconnectBackoffMultiplier != want.ReconnectBackoffMultiplier ||
		cfg.MaxReconnectAttempts != want.MaxReconnectAttempts ||
		cfg.HealthCheckEnabled != want.HealthCheckEnabled ||
		cfg.HealthCheckInterval != want.HealthCheckInterval ||
		cfg.HealthCheckTimeout != want.HealthCheckTimeout ||
		cfg.WorkerPoolSize != want.WorkerPoolSize {
		t.Errorf("NewConnConfig() with no options = %+v, want %+v", cfg, want)
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := NewConnConfig(
		WithConnectTimeout(5*time.Second),
		WithMethodCallTimeout(2*time.Second),
		WithAutoReconnect(100*time.Millisecond, time.Second, 1.5),
		WithMaxReconnectAttempts(3),
		WithHealthCheck(10*time.Second, time.Second),
		WithWorkerPoolSize(4),
	)
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.MethodCallTimeout != 2*time.Second {
		t.Errorf("MethodCallTimeout = %v", cfg.MethodCallTimeout)
	}
	if !cfg.AutoReconnectEnabled || cfg.ReconnectInitialDelay != 100*time.Millisecond || cfg.ReconnectBackoffMultiplier != 1.5 {
		t.Errorf("reconnect config = %+v", cfg)
	}
	if cfg.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts = %d", cfg.MaxReconnectAttempts)
	}
	if !cfg.HealthCheckEnabled || cfg.HealthCheckInterval != 10*time.Second {
		t.Errorf("health check config = %+v", cfg)
	}
	if cfg.WorkerPoolSize != 4 {
		t.Errorf("WorkerPoolSize = %d", cfg.WorkerPoolSize)
	}
}

func TestWithAutoReconnectIgnoresNonPositiveMultiplier(t *testing.T) {
	cfg := NewConnConfig(WithAutoReconnect(time.Second, time.Minute, 0))
	if cfg.ReconnectBackoffMultiplier != DefaultConfig().ReconnectBackoffMultiplier {
		t.Errorf("multiplier = %v, want default preserved", cfg.ReconnectBackoffMultiplier)
	}
}

// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/canvasrelay/pkg/telemetry"
)

func TestWatcherDetectsChanges(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeFile(t, tmpDir, "config.yaml", "log:\n  level: info\n")

	watcher, err := NewWatcher(Options{Path: configPath},
		WithWatchInterval(20*time.Millisecond),
		WithWatchLogger(telemetry.Discard()),
	)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}

	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	if got := watcher.Config().Log.Level; got != "info" {
		t.Errorf("expected level info, got %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(configPath, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Log.Level != "debug" {
			t.Errorf("expected level debug, got %q", cfg.Log.Level)
		}
		if watcher.Config().Log.Level != "debug" {
			t.Errorf("watcher did not keep the reloaded config")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config change notification")
	}
}

func TestWatcherKeepsLastGoodConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeFile(t, tmpDir, "config.yaml", "log:\n  level: warn\n")

	watcher, err := NewWatcher(Options{Path: configPath},
		WithWatchInterval(20*time.Millisecond),
		WithWatchLogger(telemetry.Discard()),
	)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	var calls atomic.Int32
	watcher.OnChange(func(*Config) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(configPath, []byte("log: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("failed to write broken config: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("listeners must not run for a broken file, ran %d times", calls.Load())
	}
	if watcher.Config().Log.Level != "warn" {
		t.Errorf("expected last good level warn, got %q", watcher.Config().Log.Level)
	}
}

func TestWatcherWatchesProfileOverlay(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeFile(t, tmpDir, "config.yaml", "log:\n  level: info\n")
	devPath := writeFile(t, tmpDir, "config.dev.yaml", "log:\n  format: json\n")

	watcher, err := NewWatcher(Options{Path: basePath, Profile: "dev"},
		WithWatchInterval(20*time.Millisecond),
		WithWatchLogger(telemetry.Discard()),
	)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if len(watcher.paths) != 2 {
		t.Fatalf("expected base and overlay to be watched, got %v", watcher.paths)
	}

	changes := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(devPath, []byte("log:\n  format: json\n  level: error\n"), 0o644); err != nil {
		t.Fatalf("failed to write overlay: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Log.Level != "error" || cfg.Log.Format != "json" {
			t.Errorf("unexpected log config %+v", cfg.Log)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for overlay change")
	}
}

func TestWatcherStops(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "config.yaml", "log: {}")

	watcher, err := NewWatcher(Options{Path: configPath}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("watcher.Stop() did not complete in time")
	}
}

func TestWatcherWithoutFile(t *testing.T) {
	watcher, err := NewWatcher(Options{})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	watcher.Start(context.Background())
	watcher.Stop()
	if watcher.Config() == nil {
		t.Fatal("expected defaults to be loaded")
	}
}

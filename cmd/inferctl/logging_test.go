package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/config"
)

func TestNewLoggerFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "inferctl.log")
	l, lvl, err := newLogger(config.LogConfig{Level: "warn", File: p, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	l.Info("dropped")
	l.Warn("kept")
	_ = l.Sync()

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(b), "dropped") || !strings.Contains(string(b), "kept") {
		t.Fatalf("log file = %s", b)
	}
	if lvl.String() != "warn" {
		t.Fatalf("level = %s", lvl)
	}
}

func TestNewLoggerBadLevel(t *testing.T) {
	if _, _, err := newLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoggingAdapters(t *testing.T) {
	for _, adapter := range []string{"zap", "logrus", "slog"} {
		t.Run(adapter, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := newLogging(config.LogConfig{Level: "info", Adapter: adapter}, &buf)
			if err != nil {
				t.Fatalf("newLogging: %v", err)
			}
			lg := l.logger("cache")
			lg.Debug("hidden", nil)
			lg.Info("fetched", inferkit.Fields{"key": "chat/1"})
			l.close()

			out := buf.String()
			if strings.Contains(out, "hidden") {
				t.Fatalf("debug line logged at info: %s", out)
			}
			for _, want := range []string{"fetched", "chat/1", "cache"} {
				if !strings.Contains(out, want) {
					t.Fatalf("missing %q in %s", want, out)
				}
			}
		})
	}
}

func TestLoggingSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogging(config.LogConfig{Level: "warn", Adapter: "logrus"}, &buf)
	if err != nil {
		t.Fatalf("newLogging: %v", err)
	}
	l.logger("x").Info("before", nil)
	if err := l.setLevel("debug"); err != nil {
		t.Fatalf("setLevel: %v", err)
	}
	l.logger("x").Debug("after", nil)
	l.close()

	out := buf.String()
	if strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("out = %s", out)
	}
	if err := l.setLevel("loud"); err == nil {
		t.Fatalf("expected error for bad level")
	}
}

func TestLoggingAsyncEvents(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogging(config.LogConfig{Level: "info", Events: "async"}, &buf)
	if err != nil {
		t.Fatalf("newLogging: %v", err)
	}
	if l.async == nil {
		t.Fatalf("async hooks not installed")
	}
	l.hooks.GenerationFinished("run-1", "failed", 3)
	l.close()

	if out := buf.String(); !strings.Contains(out, "inferkit.generation_finished") || !strings.Contains(out, "run-1") {
		t.Fatalf("event not logged: %s", out)
	}
	if _, err := newLogging(config.LogConfig{Events: "loud"}, &buf); err == nil {
		t.Fatalf("expected error for unknown events mode")
	}
}

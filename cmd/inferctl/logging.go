package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/config"
	async "github.com/unkn0wn-root/inferkit/hooks/async"
	lrlog "github.com/unkn0wn-root/inferkit/log/logrus"
	slogadapter "github.com/unkn0wn-root/inferkit/log/slog"
	zaplog "github.com/unkn0wn-root/inferkit/log/zap"
	"github.com/unkn0wn-root/inferkit/sloghooks"
)

// logging is the CLI's log stack. zap carries inferctl's own lines; library
// components log through the adapter named by log.adapter, and cache and
// generation events go through sloghooks when log.events is set.
type logging struct {
	zl      *zap.Logger
	level   zap.AtomicLevel
	adapter string

	lr     *logrus.Logger
	sl     *slog.Logger
	slevel *slog.LevelVar

	hooks inferkit.Hooks
	async *async.Hooks
}

func newLogging(cfg config.LogConfig, stderr io.Writer) (*logging, error) {
	rot := rotator(cfg)
	zl, lvl, err := newZap(cfg, zapcore.Lock(zapcore.AddSync(stderr)), rot)
	if err != nil {
		return nil, err
	}
	l := &logging{
		zl:      zl,
		level:   lvl,
		adapter: strings.ToLower(cfg.Adapter),
		lr:      logrus.New(),
		slevel:  new(slog.LevelVar),
		hooks:   inferkit.NopHooks{},
	}

	var out io.Writer = stderr
	if rot != nil {
		out = io.MultiWriter(stderr, rot)
	}
	l.lr.SetOutput(out)
	hopts := &slog.HandlerOptions{Level: l.slevel}
	if cfg.Format == "console" {
		l.lr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.sl = slog.New(slog.NewTextHandler(out, hopts))
	} else {
		l.lr.SetFormatter(&logrus.JSONFormatter{})
		l.sl = slog.New(slog.NewJSONHandler(out, hopts))
	}
	if err := l.setLevel(cfg.Level); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Events) {
	case "", "off":
	case "sync":
		l.hooks = l.eventHooks(cfg)
	case "async":
		l.async = async.New(l.eventHooks(cfg), 1, 256)
		l.hooks = l.async
	default:
		return nil, fmt.Errorf("log.events: unknown mode %q", cfg.Events)
	}
	return l, nil
}

func (l *logging) eventHooks(cfg config.LogConfig) *sloghooks.Hooks {
	return sloghooks.New(l.sl.With("component", "events"), sloghooks.Options{
		CoalescedEvery: 10,
		StaleEvery:     10,
		RedactKeys:     cfg.RedactKeys,
	})
}

// logger returns the library logger for component.
func (l *logging) logger(component string) inferkit.Logger {
	switch l.adapter {
	case "logrus":
		return lrlog.New(l.lr, component)
	case "slog":
		return slogadapter.Logger{L: l.sl.With("component", component)}
	default:
		return zaplog.New(l.zl, component)
	}
}

// setLevel applies level to every backend. "" means info.
func (l *logging) setLevel(level string) error {
	if level == "" {
		level = "info"
	}
	if err := l.level.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.lr.SetLevel(lv)
	return l.slevel.UnmarshalText([]byte(level))
}

// close drains queued events and flushes zap.
func (l *logging) close() {
	if l.async != nil {
		l.async.Close()
		if n := l.async.Dropped(); n > 0 {
			l.zl.Warn("events dropped", zap.Uint64("count", n))
		}
	}
	_ = l.zl.Sync()
}

// newLogger writes to stderr and, when cfg.File is set, to a rotated file.
// The returned level can be changed at runtime.
func newLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	return newZap(cfg, zapcore.Lock(os.Stderr), rotator(cfg))
}

func rotator(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
}

func newZap(cfg config.LogConfig, stderr zapcore.WriteSyncer, rot io.Writer) (*zap.Logger, zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, lvl, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, stderr, lvl)}
	if rot != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rot), lvl))
	}
	return zap.New(zapcore.NewTee(cores...)), lvl, nil
}

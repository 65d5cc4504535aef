package zap

import (
	"sort"

	"github.com/unkn0wn-root/inferkit"
	"go.uber.org/zap"
)

var _ inferkit.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New wraps l, tagging every line with component.
func New(l *zap.Logger, component string) ZapLogger {
	if component != "" {
		l = l.With(zap.String("component", component))
	}
	return ZapLogger{L: l}
}

func (z ZapLogger) Debug(msg string, f inferkit.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f inferkit.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f inferkit.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f inferkit.Fields) { z.L.Error(msg, zf(f)...) }

// zf converts fields in key order so lines are stable across runs.
func zf(f inferkit.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}

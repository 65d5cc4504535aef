package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/inferkit"
)

func TestLoggerAttrsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))}

	l.Info("invalidate", inferkit.Fields{"matched": 2, "key": "chat"})

	out := buf.String()
	if !strings.Contains(out, "msg=invalidate key=chat matched=2") {
		t.Fatalf("unexpected output %q", out)
	}
}

package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentTagAndLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := Level()
	defer SetLevel(prev)

	SetLogger(New(&buf))
	SetLevel(slog.LevelInfo)

	Debug(ComponentService, "hidden")
	Info(ComponentService, "state", "busy", true)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "component=lcd") || !strings.Contains(out, "busy=true") {
		t.Fatalf("missing attrs: %q", out)
	}
}

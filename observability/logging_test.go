package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLogger_RedactsAPIKeyInMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	logger.Info(context.Background(), "calling provider api_key=sk-ant-REDACTED")
	if strings.Contains(buf.String(), "sk-ant-") {
		t.Fatalf("expected api key to be redacted, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("expected redaction marker in output, got: %s", buf.String())
	}
}

func TestLogger_WithContextAddsJobAndModel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	ctx := context.WithValue(context.Background(), JobIDKey, "job-1")
	ctx = context.WithValue(ctx, ModelKey, "claude-3-opus")

	logger.WithContext(ctx).Info(ctx, "starting run")
	out := buf.String()
	if !strings.Contains(out, "job-1") || !strings.Contains(out, "claude-3-opus") {
		t.Fatalf("expected job_id and model in log output, got: %s", out)
	}
}

func TestLogger_RedactsMapValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})
	logger.Info(context.Background(), "config loaded", "config", map[string]any{
		"api_key": "super-secret-value",
		"model":   "gpt-4",
	})
	out := buf.String()
	if strings.Contains(out, "super-secret-value") {
		t.Fatalf("expected api_key field to be redacted, got: %s", out)
	}
	if !strings.Contains(out, "gpt-4") {
		t.Fatalf("expected non-sensitive field to survive redaction, got: %s", out)
	}
}

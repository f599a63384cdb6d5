package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"gatepass.dev/internal/auth"
	"gatepass.dev/internal/obs"
	"gatepass.dev/internal/tenant"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, "staff-42", []string{"scanner"})
	ctx = tenant.ContextWithID(ctx, "t1")

	if err := LogEvent(ctx, "checkin.attempt", map[string]any{"guest_id": "g1", "outcome": "accepted"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "checkin.attempt" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor_id"] != "staff-42" {
		t.Fatalf("unexpected actor: %v", entry["actor_id"])
	}
	if entry["tenant_id"] != "t1" {
		t.Fatalf("unexpected tenant: %v", entry["tenant_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["guest_id"] != "g1" || fields["outcome"] != "accepted" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

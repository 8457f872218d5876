package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"harmonia.org/internal/authn"
	"harmonia.org/internal/obs"
	"harmonia.org/internal/roles"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	comp := roles.NewComposition(roles.Member)
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = authn.ContextWithClaims(ctx, &authn.Claims{EmailAddress: "ada@example.org", Roles: comp})

	if err := LogEvent(ctx, "roles.associate", map[string]any{"member_id": 7}); err != nil {
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
	if entry["event"] != "roles.associate" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["member"] != "ada@example.org" {
		t.Fatalf("unexpected member: %v", entry["member"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["member_id"] != float64(7) {
		t.Fatalf("unexpected fields: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("blank event name accepted")
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "engine")).Info(context.Background(), "round ended",
		String("winner", "rock"),
		Int("tick", 42),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "round ended" || rec["winner"] != "rock" || rec["component"] != "engine" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["tick"] != float64(42) {
		t.Fatalf("tick = %v, want 42", rec["tick"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithRoundAssignsFreshIDs(t *testing.T) {
	ctx, _, first := WithRound(context.Background(), nil)
	if first == "" || RoundIDFromContext(ctx) != first {
		t.Fatalf("round id not stored on context: %q vs %q", RoundIDFromContext(ctx), first)
	}

	ctx2, _, second := WithRound(ctx, Noop())
	if second == first {
		t.Fatalf("expected a new round id, got %q twice", first)
	}
	if RoundIDFromContext(ctx2) != second {
		t.Fatalf("context round id = %q, want %q", RoundIDFromContext(ctx2), second)
	}
	if RoundIDFromContext(nil) != "" {
		t.Fatalf("nil context should yield empty round id")
	}
}

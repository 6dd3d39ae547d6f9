package logger

import (
	"context"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	Init(Options{Level: "error"})
	os.Exit(m.Run())
}

func TestBuildRID(t *testing.T) {
	if rid := BuildRID(42, 7, 9); rid != "42:7:9" {
		t.Fatalf("BuildRID = %q, want 42:7:9", rid)
	}
}

func TestRIDRoundTrip(t *testing.T) {
	ctx := WithRID(context.Background(), "42:7:9")
	if rid := RIDFrom(ctx); rid != "42:7:9" {
		t.Errorf("RIDFrom = %q, want 42:7:9", rid)
	}
	if rid := RIDFrom(context.Background()); rid != "" {
		t.Errorf("RIDFrom(empty) = %q, want empty", rid)
	}
}

func TestUpdateMetaRoundTrip(t *testing.T) {
	ctx := WithUpdateMeta(context.Background(), 42, 9, 7)
	if id := UserIDFrom(ctx); id != 9 {
		t.Errorf("UserIDFrom = %d, want 9", id)
	}
	if id := ChatIDFrom(ctx); id != 7 {
		t.Errorf("ChatIDFrom = %d, want 7", id)
	}
	if UserIDFrom(context.Background()) != 0 || ChatIDFrom(context.Background()) != 0 {
		t.Error("empty context should carry zero ids")
	}
}

func TestLoggerRoundTrip(t *testing.T) {
	child := L.With("component", "test")
	ctx := WithLogger(context.Background(), child)
	if got := FromContext(ctx); got != child {
		t.Error("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()); got != L {
		t.Error("FromContext(empty) should fall back to the base logger")
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("ab\x00cd", 3); got != "abc" {
		t.Errorf("SanitizeLimit = %q, want abc", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Errorf("SanitizeLimit with zero max = %q, want empty", got)
	}
}

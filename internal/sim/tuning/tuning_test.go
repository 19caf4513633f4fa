package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	p := writeFile(t, "protocol_version: \"1.0\"\n")
	tn, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tn.TickRateHz != 60 {
		t.Fatalf("tick rate default: got %d want 60", tn.TickRateHz)
	}
	if tn.LoopSeconds != 120 {
		t.Fatalf("loop seconds default: got %v want 120", tn.LoopSeconds)
	}
	if tn.ArenaCount != 9 || tn.MaxGhostsPerArena != 40 {
		t.Fatalf("arena defaults: %d arenas, %d ghosts", tn.ArenaCount, tn.MaxGhostsPerArena)
	}
	if tn.GridWidth != 66 || tn.GridHeight != 31 {
		t.Fatalf("grid defaults: %dx%d", tn.GridWidth, tn.GridHeight)
	}
}

func TestLoadRejectsFractionalLoopTicks(t *testing.T) {
	p := writeFile(t, "tick_rate_hz: 7\nloop_seconds: 0.5\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for fractional ticks per loop")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	p := writeFile(t, "tick_rate_hz: [oops\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected yaml error")
	}
}

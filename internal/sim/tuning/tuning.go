package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz  int     `yaml:"tick_rate_hz"`
	LoopSeconds float64 `yaml:"loop_seconds"`
	ArenaCount  int     `yaml:"arena_count"`

	GridWidth  int `yaml:"grid_width"`
	GridHeight int `yaml:"grid_height"`

	MaxGhostsPerArena  int `yaml:"max_ghosts_per_arena"`
	TimelineMaxActions int `yaml:"timeline_max_actions"`

	MoveCellsPerSecond float64 `yaml:"move_cells_per_second"`
	BossHP             int     `yaml:"boss_hp"`
	CharacterHP        int     `yaml:"character_hp"`
	ResourceMax        int     `yaml:"resource_max"`
	ResourceRegenTick  int     `yaml:"resource_regen_per_tick"`

	Seed int64 `yaml:"seed"`

	DesyncCheck bool `yaml:"desync_check"`

	AbilitiesFile  string `yaml:"abilities_file"`
	BossScriptFile string `yaml:"boss_script_file"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t *Tuning) ApplyDefaults() {
	if t.TickRateHz == 0 {
		t.TickRateHz = 60
	}
	if t.LoopSeconds == 0 {
		t.LoopSeconds = 120
	}
	if t.ArenaCount == 0 {
		t.ArenaCount = 9
	}
	if t.GridWidth == 0 {
		t.GridWidth = 66
	}
	if t.GridHeight == 0 {
		t.GridHeight = 31
	}
	if t.MaxGhostsPerArena == 0 {
		t.MaxGhostsPerArena = 40
	}
	if t.TimelineMaxActions == 0 {
		t.TimelineMaxActions = 4096
	}
	if t.MoveCellsPerSecond == 0 {
		t.MoveCellsPerSecond = 6
	}
	if t.BossHP == 0 {
		t.BossHP = 100000
	}
	if t.CharacterHP == 0 {
		t.CharacterHP = 1000
	}
	if t.ResourceMax == 0 {
		t.ResourceMax = 100
	}
	if t.Seed == 0 {
		t.Seed = 1337
	}
}

func (t *Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive, got %d", t.TickRateHz)
	}
	if t.LoopSeconds <= 0 {
		return fmt.Errorf("loop_seconds must be positive, got %v", t.LoopSeconds)
	}
	// The loop must be a whole number of ticks or loop wraps drift off the
	// fixed-step grid and replayed offsets stop lining up across loops.
	ticks := t.LoopSeconds * float64(t.TickRateHz)
	if ticks != float64(int64(ticks)) {
		return fmt.Errorf("loop_seconds*tick_rate_hz must be integral, got %v", ticks)
	}
	if t.ArenaCount <= 0 || t.ArenaCount > 64 {
		return fmt.Errorf("arena_count out of range: %d", t.ArenaCount)
	}
	if t.GridWidth <= 0 || t.GridHeight <= 0 {
		return fmt.Errorf("grid size out of range: %dx%d", t.GridWidth, t.GridHeight)
	}
	return nil
}

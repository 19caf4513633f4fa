package arena

import "echoraid.gg/internal/sim/tuning"

type Config struct {
	ID          uint8
	TickRateHz  int
	LoopSeconds float64

	GridWidth  int
	GridHeight int

	MaxGhosts          int
	TimelineMaxActions int

	MoveCellsPerSecond float64
	BossHP             int
	CharacterHP        int
	ResourceMax        int
	ResourceRegenTick  int
	BossDecideTicks    int

	Seed        int64
	DesyncCheck bool
}

// ConfigFromTuning builds one arena's config. The per-arena seed is offset by
// the arena id so arenas draw from unrelated streams.
func ConfigFromTuning(t tuning.Tuning, id uint8) Config {
	return Config{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		LoopSeconds:        t.LoopSeconds,
		GridWidth:          t.GridWidth,
		GridHeight:         t.GridHeight,
		MaxGhosts:          t.MaxGhostsPerArena,
		TimelineMaxActions: t.TimelineMaxActions,
		MoveCellsPerSecond: t.MoveCellsPerSecond,
		BossHP:             t.BossHP,
		CharacterHP:        t.CharacterHP,
		ResourceMax:        t.ResourceMax,
		ResourceRegenTick:  t.ResourceRegenTick,
		BossDecideTicks:    30,
		Seed:               t.Seed,
		DesyncCheck:        t.DesyncCheck,
	}
}

// BossBrain decides the boss action for a tick. Implementations must be pure
// in their inputs; the engine resolves targets and damage.
type BossBrain interface {
	Decide(in BossInput) BossDecision
}

type BossInput struct {
	Time       float64
	LoopCount  uint64
	TickInLoop uint64
	HPPermille int
	Targets    int
}

type BossDecision struct {
	Cast   bool
	Slot   uint8
	Target int
}

package boss

import "echoraid.gg/internal/sim/arena"

// RotationBrain is the scriptless fallback: cycle a fixed slot rotation,
// spreading hits across targets round-robin. Everything derives from the tick
// within the loop, so the rotation is loop-stable by construction.
type RotationBrain struct {
	Slots       []uint8
	DecideTicks int // window size; matches the engine's decide cadence
}

func (b *RotationBrain) Decide(in arena.BossInput) arena.BossDecision {
	if len(b.Slots) == 0 || in.Targets == 0 {
		return arena.BossDecision{}
	}
	dt := b.DecideTicks
	if dt <= 0 {
		dt = 30
	}
	window := in.TickInLoop / uint64(dt)
	return arena.BossDecision{
		Cast:   true,
		Slot:   b.Slots[window%uint64(len(b.Slots))],
		Target: int(window) % in.Targets,
	}
}

package arena

import (
	"hash/fnv"

	"echoraid.gg/internal/protocol"
)

// Ghost is a replaying recording bound to an entity. It owns no behavior of
// its own: every tick it re-derives its actions from the timeline and the
// arena clock.
type Ghost struct {
	Entity   *Entity
	Timeline *Timeline

	Disabled       bool
	DisabledReason string

	// nextAction is the replay cursor: the first timeline index not yet
	// dispatched this loop. It always equals the count of timeline offsets
	// <= the current loop time, so it is derivable from the timeline and
	// the clock alone; it is kept incrementally only so each action
	// dispatches exactly once. Comparing offsets against arena time is
	// exact, both sides are the same float the capture recorded.
	nextAction int

	// Desync audit state, active only when the arena runs with the check
	// enabled. The loop hash folds every delta the ghost produced this loop;
	// a mismatch against the previous complete loop disables the ghost.
	loopHash       uint64
	prevLoopHash   uint64
	windowComplete bool // current window started at t=0
	haveRef        bool // prevLoopHash holds a complete window

	spawnX, spawnY int
}

func newGhost(tl *Timeline, cfg Config) *Ghost {
	x, y := spawnCell(cfg.Seed, cfg.ID, tl.CharacterID, cfg.GridWidth, cfg.GridHeight)
	e := newCharacterEntity(tl.CharacterID, x, y, cfg.CharacterHP, cfg.ResourceMax)
	e.Kind = EntityGhost
	return &Ghost{Entity: e, Timeline: tl, spawnX: x, spawnY: y}
}

// resetForLoop restores the ghost to its loop-start state at a wrap and rolls
// the desync hash window forward. A window that started mid-loop (the ghost's
// creation loop after a manual finalize) is discarded, not promoted.
func (g *Ghost) resetForLoop(resourceMax int) {
	g.Entity.resetForLoop(g.spawnX, g.spawnY, resourceMax)
	g.nextAction = 0
	if g.windowComplete {
		g.prevLoopHash = g.loopHash
		g.haveRef = true
	}
	g.loopHash = fnvSeed
	g.windowComplete = true
}

// resetForced restarts the ghost after a forced clock reset. The window it was
// in never reached the wrap, so its hash is dropped; the reference from the
// last complete loop stays valid because the loop count did not change.
func (g *Ghost) resetForced(resourceMax int) {
	g.Entity.resetForLoop(g.spawnX, g.spawnY, resourceMax)
	g.nextAction = 0
	g.loopHash = fnvSeed
	g.windowComplete = true
}

const fnvSeed uint64 = 0xcbf29ce484222325 // FNV-1a offset basis

func (g *Ghost) foldDelta(d StateDelta) {
	h := fnv.New64a()
	h.Write([]byte(d.Kind))
	h.Write([]byte(d.TargetID))
	var buf [8]byte
	putU64(&buf, uint64(int64(d.Amount)))
	h.Write(buf[:])
	putU64(&buf, uint64(d.X)<<32|uint64(uint32(d.Y)))
	h.Write(buf[:])
	g.loopHash = g.loopHash*0x100000001b3 ^ h.Sum64()
}

func putU64(buf *[8]byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

// tickGhost replays one fixed step of a ghost.
func (ar *Arena) tickGhost(g *Ghost, t float64) {
	if g.Disabled {
		return
	}
	if t < 0 || t >= ar.cfg.LoopSeconds {
		// Invalid playback state. The clock should make this unreachable;
		// log and skip rather than corrupt the replay.
		ar.logf("ghost %s: playback time %v outside loop window, tick skipped (%s)",
			g.Entity.ID, t, protocol.ErrInvalidPlayback)
		return
	}

	e := g.Entity
	if e.Alive {
		before := len(ar.deltas)
		ar.replayDueActions(g, t)
		e.integrate(ar.milliPerTick, ar.cfg.GridWidth, ar.cfg.GridHeight)
		ar.advanceChannel(e)
		if ar.cfg.DesyncCheck {
			for _, d := range ar.deltas[before:] {
				g.foldDelta(d)
			}
		}
		return
	}
	// Dead ghosts stay down until the loop wrap revives them.
}

// replayDueActions dispatches every timeline action that has come due since
// the last tick, numbered by its timeline index so RNG draws match the
// original live casts.
func (ar *Arena) replayDueActions(g *Ghost, t float64) {
	acts := g.Timeline.Actions
	for g.nextAction < len(acts) && acts[g.nextAction].Offset <= t {
		a := acts[g.nextAction]
		ar.dispatch(g.Entity, ResolvedAction{Kind: a.Kind, Payload: a.Payload, Seq: uint32(g.nextAction)})
		g.nextAction++
	}
}

// checkDesync runs at each loop wrap, before the loop resets. The first
// complete loop only seeds the reference hash; from the second on, any
// divergence disables the ghost (and only the ghost) so one bad replay cannot
// poison the arena.
func (ar *Arena) checkDesync(g *Ghost) {
	if !ar.cfg.DesyncCheck || g.Disabled || !g.windowComplete || !g.haveRef {
		return
	}
	if g.loopHash == g.prevLoopHash {
		return
	}
	g.Disabled = true
	g.DisabledReason = protocol.ErrDesync
	ar.logf("ghost %s: loop hash mismatch (%016x != %016x), ghost disabled (%s)",
		g.Entity.ID, g.loopHash, g.prevLoopHash, protocol.ErrDesync)
}

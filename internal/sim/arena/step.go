package arena

import (
	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/catalogs"
	"echoraid.gg/internal/sim/mathx"
)

// StepResult reports what one fixed step did beyond mutating arena state.
type StepResult struct {
	Wrapped       bool
	AutoFinalized *Timeline
}

// Step advances the arena one fixed tick. Entity order is fixed: live
// character, then ghosts in creation order, then the boss, then environment
// effects. Pending inputs apply only inside the live phase.
func (ar *Arena) Step() StepResult {
	var res StepResult

	if ar.Clock.Advance() {
		res.Wrapped = true
		for _, g := range ar.Ghosts {
			ar.checkDesync(g)
		}
		if ar.Session != nil {
			tl, _, err := ar.finalizeInternal(true)
			if err != nil {
				ar.logf("auto-finalize at wrap failed: %v", err)
			}
			res.AutoFinalized = tl
		}
		ar.onWrap()
	}

	t := ar.Clock.Time()
	ar.tickLive(t)
	for _, g := range ar.Ghosts {
		ar.tickGhost(g, t)
	}
	ar.tickBoss(t)
	ar.resolveEnvironment()
	return res
}

// onWrap restores loop-start state for everything the loop owns. The live
// character is deliberately excluded below full reset: position and resource
// restart, but a dead live character stays dead until re-armed.
func (ar *Arena) onWrap() {
	for _, g := range ar.Ghosts {
		g.resetForLoop(ar.cfg.ResourceMax)
	}
	ar.Boss.resetForLoop(ar.bossSpawnX, ar.bossSpawnY, 0)
	if ar.Live != nil && ar.Live.Alive {
		ar.Live.resetForLoop(ar.liveSpawnX, ar.liveSpawnY, ar.cfg.ResourceMax)
	}
}

func (ar *Arena) tickLive(t float64) {
	e := ar.Live
	if e == nil {
		ar.pendingInputs = ar.pendingInputs[:0]
		return
	}
	for _, ev := range ar.pendingInputs {
		if ev.CharacterID != e.Num {
			continue // stale input for an unbound character
		}
		ar.applyLiveInput(e, ev, t)
	}
	ar.pendingInputs = ar.pendingInputs[:0]
	e.integrate(ar.milliPerTick, ar.cfg.GridWidth, ar.cfg.GridHeight)
	ar.advanceChannel(e)
}

// applyLiveInput translates, filters, records and dispatches one input event.
// Only state changes are captured: holding a direction key produces a stream
// of identical MOVE events and exactly one recorded action.
func (ar *Arena) applyLiveInput(e *Entity, ev protocol.InputEvent, t float64) {
	act, ok := translateInput(ev)
	if !ok {
		ar.logf("input for %s: unknown kind %q, dropped", e.ID, ev.Kind)
		return
	}
	if !isStateChange(e, act) {
		return
	}

	overflow := false
	if s := ar.Session; s != nil && s.CharacterID == e.Num {
		idx, captured, full := s.Capture(t, ar.cfg.LoopSeconds, act.Kind, act.Payload)
		if captured {
			act.Seq = uint32(idx)
		}
		overflow = full
	} else if act.Kind == ActionCast {
		act.Seq = e.castSeq
		e.castSeq++
	}

	ar.dispatch(e, act)

	if overflow {
		ar.logf("session %s: capture buffer full (%s), auto-finalizing",
			ar.Session.ID, protocol.ErrTimelineOverflow)
		if _, _, err := ar.finalizeInternal(true); err != nil {
			ar.logf("overflow auto-finalize failed: %v", err)
		}
	}
}

func translateInput(ev protocol.InputEvent) (ResolvedAction, bool) {
	switch ev.Kind {
	case protocol.InputMove:
		dx := int8(mathx.ClampInt(int(ev.DX), -1, 1))
		dy := int8(mathx.ClampInt(int(ev.DY), -1, 1))
		if dx == 0 && dy == 0 {
			return ResolvedAction{Kind: ActionHalt}, true
		}
		return ResolvedAction{Kind: ActionMove, Payload: ActionPayload{DX: dx, DY: dy}}, true
	case protocol.InputHalt:
		return ResolvedAction{Kind: ActionHalt}, true
	case protocol.InputCast:
		return ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: ev.Slot}}, true
	default:
		return ResolvedAction{}, false
	}
}

// isStateChange filters no-op inputs before they reach capture or dispatch.
func isStateChange(e *Entity, act ResolvedAction) bool {
	switch act.Kind {
	case ActionMove:
		return e.DirX != act.Payload.DX || e.DirY != act.Payload.DY
	case ActionHalt:
		return e.DirX != 0 || e.DirY != 0
	default:
		return true
	}
}

// tickBoss lets the boss brain decide every BossDecideTicks. The decision
// input is keyed to the position within the loop, not the loop count, so a
// pure brain behaves identically on every loop.
func (ar *Arena) tickBoss(t float64) {
	b := ar.Boss
	if b == nil || !b.Alive || ar.brain == nil {
		return
	}
	if ar.cfg.BossDecideTicks <= 0 || ar.Clock.TickInLoop()%uint64(ar.cfg.BossDecideTicks) != 0 {
		return
	}
	targets := ar.targetOrder()
	dec := ar.brain.Decide(BossInput{
		Time:       t,
		LoopCount:  ar.Clock.LoopCount(),
		TickInLoop: ar.Clock.TickInLoop(),
		HPPermille: b.HP * 1000 / b.MaxHP,
		Targets:    len(targets),
	})
	if !dec.Cast || len(targets) == 0 {
		return
	}
	def, ok := ar.abilities.Slot(dec.Slot)
	if !ok {
		ar.logf("boss decision: slot %d not in catalog, skipped", dec.Slot)
		return
	}
	tgt := targets[mathx.Mod(dec.Target, len(targets))]
	ar.resolveBossCast(b, tgt, def)
}

// targetOrder is the deterministic target list: live character first, then
// alive ghosts in creation order.
func (ar *Arena) targetOrder() []*Entity {
	out := make([]*Entity, 0, 1+len(ar.Ghosts))
	if ar.Live != nil && ar.Live.Alive {
		out = append(out, ar.Live)
	}
	for _, g := range ar.Ghosts {
		if !g.Disabled && g.Entity.Alive {
			out = append(out, g.Entity)
		}
	}
	return out
}

// resolveBossCast settles boss damage. The draw is keyed by the tick within
// the loop: the boss has no action sequence, and this keeps its rolls stable
// across loops.
func (ar *Arena) resolveBossCast(b, tgt *Entity, def catalogs.AbilityDef) {
	d := draw(ar.cfg.Seed, ar.cfg.ID, b.Num, uint32(ar.Clock.TickInLoop()))
	amount := def.Power
	if def.VariancePermille > 0 {
		amount += def.Power * def.VariancePermille * varianceRoll(d) / 1_000_000
	}
	crit := critRoll(d) < def.CritPermille
	if crit {
		amount *= 2
	}
	tgt.HP -= amount
	ar.emit(StateDelta{
		EntityID: b.ID,
		Kind:     DeltaBossCast,
		Slot:     def.Slot,
		X:        b.X,
		Y:        b.Y,
		TargetID: tgt.ID,
		Amount:   amount,
		Crit:     crit,
	})
}

// resolveEnvironment runs end-of-tick upkeep: resource regeneration and death
// transitions. Deaths emit exactly once.
func (ar *Arena) resolveEnvironment() {
	ar.upkeep(ar.Live)
	for _, g := range ar.Ghosts {
		if !g.Disabled {
			ar.upkeep(g.Entity)
		}
	}
	if b := ar.Boss; b != nil && b.Alive && b.HP <= 0 {
		b.HP = 0
		b.Alive = false
		ar.emit(StateDelta{EntityID: b.ID, Kind: DeltaDeath, X: b.X, Y: b.Y})
	}
}

func (ar *Arena) upkeep(e *Entity) {
	if e == nil || !e.Alive {
		return
	}
	if e.HP <= 0 {
		e.HP = 0
		e.Alive = false
		e.DirX, e.DirY = 0, 0
		e.Channel = nil
		ar.emit(StateDelta{EntityID: e.ID, Kind: DeltaDeath, X: e.X, Y: e.Y})
		return
	}
	if ar.cfg.ResourceRegenTick > 0 {
		e.Resource += ar.cfg.ResourceRegenTick
		if e.Resource > ar.cfg.ResourceMax {
			e.Resource = ar.cfg.ResourceMax
		}
	}
}

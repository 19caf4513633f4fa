package arena

import (
	"fmt"

	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/catalogs"
)

// ResolvedAction is one action ready for dispatch. Live input and timeline
// replay both reduce to this form, so a recorded action takes exactly the
// code path it took when the player performed it.
type ResolvedAction struct {
	Kind    ActionKind
	Payload ActionPayload
	Seq     uint32
}

type actionHandler func(ar *Arena, e *Entity, act ResolvedAction)

var actionDispatch = map[ActionKind]actionHandler{
	ActionHalt: dispatchHalt,
	ActionMove: dispatchMove,
	ActionCast: dispatchCast,
}

var supportedActionKinds = []ActionKind{
	ActionHalt,
	ActionMove,
	ActionCast,
}

func init() {
	if err := validateDispatchMap("actionDispatch", actionDispatch, supportedActionKinds); err != nil {
		panic(err)
	}
}

func validateDispatchMap[K comparable, T any](name string, handlers map[K]T, supported []K) error {
	allowed := make(map[K]struct{}, len(supported))
	for _, k := range supported {
		if _, ok := allowed[k]; ok {
			return fmt.Errorf("%s: duplicate supported key %v", name, k)
		}
		allowed[k] = struct{}{}
	}
	if len(handlers) != len(allowed) {
		return fmt.Errorf("%s size mismatch: got=%d want=%d", name, len(handlers), len(allowed))
	}
	for k := range handlers {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%s has unsupported key %v", name, k)
		}
	}
	for k := range allowed {
		if _, ok := handlers[k]; !ok {
			return fmt.Errorf("%s missing handler for %v", name, k)
		}
	}
	return nil
}

// dispatch applies one action to an entity. Dead entities ignore everything.
func (ar *Arena) dispatch(e *Entity, act ResolvedAction) {
	if !e.Alive {
		return
	}
	if h := actionDispatch[act.Kind]; h != nil {
		h(ar, e, act)
		return
	}
	ar.logf("entity %s: unknown action kind %d, dropped", e.ID, act.Kind)
}

func dispatchMove(ar *Arena, e *Entity, act ResolvedAction) {
	ar.breakChannel(e)
	e.DirX, e.DirY = act.Payload.DX, act.Payload.DY
	ar.emit(StateDelta{
		EntityID: e.ID,
		Kind:     DeltaMove,
		DX:       e.DirX,
		DY:       e.DirY,
		X:        e.X,
		Y:        e.Y,
	})
}

func dispatchHalt(ar *Arena, e *Entity, act ResolvedAction) {
	e.DirX, e.DirY = 0, 0
	ar.emit(StateDelta{
		EntityID: e.ID,
		Kind:     DeltaHalt,
		X:        e.X,
		Y:        e.Y,
	})
}

func dispatchCast(ar *Arena, e *Entity, act ResolvedAction) {
	def, ok := ar.abilities.Slot(act.Payload.Slot)
	if !ok {
		ar.emit(StateDelta{
			EntityID: e.ID,
			Kind:     DeltaCastFail,
			Slot:     act.Payload.Slot,
			X:        e.X,
			Y:        e.Y,
			Code:     protocol.ErrBadRequest,
		})
		return
	}
	if e.Resource < def.Cost {
		ar.emit(StateDelta{
			EntityID: e.ID,
			Kind:     DeltaCastFail,
			Slot:     def.Slot,
			X:        e.X,
			Y:        e.Y,
			Code:     protocol.ErrNoResource,
		})
		return
	}
	e.Resource -= def.Cost

	if def.Kind == catalogs.AbilityChannel {
		// Channeling roots the caster; a later MOVE breaks the wind-up.
		e.DirX, e.DirY = 0, 0
		e.Channel = &ChannelState{
			Slot:     def.Slot,
			Duration: def.ChannelTicks,
			Seq:      act.Seq,
		}
		ar.emit(StateDelta{
			EntityID: e.ID,
			Kind:     DeltaChannelStart,
			Slot:     def.Slot,
			X:        e.X,
			Y:        e.Y,
		})
		return
	}

	ar.resolveCast(e, def, act.Seq, DeltaCast)
}

// resolveCast settles a damage/heal/gamble outcome from a single RNG draw.
// The draw key carries the action sequence index, never the wall clock, so a
// replay lands on the same numbers as the original cast.
func (ar *Arena) resolveCast(e *Entity, def catalogs.AbilityDef, seq uint32, kind string) {
	d := draw(ar.cfg.Seed, ar.cfg.ID, e.Num, seq)

	amount := def.Power
	if def.VariancePermille > 0 {
		amount += def.Power * def.VariancePermille * varianceRoll(d) / 1_000_000
	}
	crit := critRoll(d) < def.CritPermille
	if crit {
		amount *= 2
	}

	delta := StateDelta{
		EntityID: e.ID,
		Kind:     kind,
		Slot:     def.Slot,
		X:        e.X,
		Y:        e.Y,
		Amount:   amount,
		Crit:     crit,
	}

	switch def.Kind {
	case catalogs.AbilityHeal:
		e.HP += amount
		if e.HP > e.MaxHP {
			e.HP = e.MaxHP
		}
		delta.TargetID = e.ID
	default:
		if b := ar.Boss; b != nil && b.Alive {
			b.HP -= amount
			delta.TargetID = b.ID
		}
		if def.Kind == catalogs.AbilityGamble {
			// 1-based in the delta so zero means no loot.
			delta.LootTier = 1 + lootRoll(d, def.LootTiers)
		}
	}

	ar.emit(delta)
}

// advanceChannel moves an in-flight wind-up one tick and resolves it on
// completion, reusing the sequence index the cast was started with.
func (ar *Arena) advanceChannel(e *Entity) {
	if e.Channel == nil || !e.Alive {
		return
	}
	e.Channel.Elapsed++
	if e.Channel.Elapsed < e.Channel.Duration {
		return
	}
	ch := e.Channel
	e.Channel = nil
	def, ok := ar.abilities.Slot(ch.Slot)
	if !ok {
		ar.logf("entity %s: channel slot %d vanished from catalog", e.ID, ch.Slot)
		return
	}
	ar.resolveCast(e, def, ch.Seq, DeltaChannelResolve)
}

func (ar *Arena) breakChannel(e *Entity) {
	if e.Channel == nil {
		return
	}
	slot := e.Channel.Slot
	e.Channel = nil
	ar.emit(StateDelta{
		EntityID: e.ID,
		Kind:     DeltaChannelBreak,
		Slot:     slot,
		X:        e.X,
		Y:        e.Y,
	})
}

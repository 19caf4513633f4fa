package arena

import (
	"fmt"
	"sort"
)

type ActionKind uint16

const (
	ActionHalt ActionKind = 0
	ActionMove ActionKind = 1
	ActionCast ActionKind = 2
)

func (k ActionKind) String() string {
	switch k {
	case ActionHalt:
		return "HALT"
	case ActionMove:
		return "MOVE"
	case ActionCast:
		return "CAST"
	default:
		return fmt.Sprintf("KIND_%d", uint16(k))
	}
}

// ActionPayload is the tagged-variant payload for a TimedAction. The kind on
// the owning action selects which fields are meaningful.
type ActionPayload struct {
	DX, DY int8  // MOVE
	Slot   uint8 // CAST
}

type TimedAction struct {
	Offset  float64
	Kind    ActionKind
	Payload ActionPayload
}

// Timeline is an immutable, time-ordered action log for one character's loop
// window. Offsets are strictly increasing within [0, loopSeconds).
type Timeline struct {
	ArenaID     uint8
	CharacterID uint32
	Actions     []TimedAction
}

// ActiveAction is the replay state a timeline resolves to at a given arena
// time.
type ActiveAction struct {
	Index        int
	Action       TimedAction
	ElapsedSince float64
}

// Lookup returns the last action whose offset is <= at. ok is false before
// the first action.
func (t *Timeline) Lookup(at float64) (ActiveAction, bool) {
	i := sort.Search(len(t.Actions), func(i int) bool { return t.Actions[i].Offset > at })
	if i == 0 {
		return ActiveAction{}, false
	}
	idx := i - 1
	return ActiveAction{
		Index:        idx,
		Action:       t.Actions[idx],
		ElapsedSince: at - t.Actions[idx].Offset,
	}, true
}

func (t *Timeline) Empty() bool { return len(t.Actions) == 0 }

func (t *Timeline) Validate(loopSeconds float64) error {
	prev := -1.0
	for i, a := range t.Actions {
		if a.Offset < 0 || a.Offset >= loopSeconds {
			return fmt.Errorf("action %d: offset %v out of [0,%v)", i, a.Offset, loopSeconds)
		}
		if a.Offset <= prev {
			return fmt.Errorf("action %d: offset %v not strictly increasing (prev %v)", i, a.Offset, prev)
		}
		prev = a.Offset
	}
	return nil
}

// Equal compares timelines structurally. Used by round-trip tests and slot
// replacement checks.
func (t *Timeline) Equal(o *Timeline) bool {
	if t.ArenaID != o.ArenaID || t.CharacterID != o.CharacterID || len(t.Actions) != len(o.Actions) {
		return false
	}
	for i := range t.Actions {
		if t.Actions[i] != o.Actions[i] {
			return false
		}
	}
	return true
}

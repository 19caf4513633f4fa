package arena

import "testing"

func sampleTimeline() *Timeline {
	return &Timeline{
		ArenaID:     2,
		CharacterID: 7,
		Actions: []TimedAction{
			{Offset: 0.5, Kind: ActionMove, Payload: ActionPayload{DX: 1}},
			{Offset: 1.0, Kind: ActionCast, Payload: ActionPayload{Slot: 1}},
			{Offset: 3.25, Kind: ActionHalt},
		},
	}
}

func TestLookupBeforeFirstAction(t *testing.T) {
	tl := sampleTimeline()
	if _, ok := tl.Lookup(0.25); ok {
		t.Fatalf("lookup before first action should report not ok")
	}
}

func TestLookupResolvesLastAction(t *testing.T) {
	tl := sampleTimeline()
	cases := []struct {
		at      float64
		idx     int
		elapsed float64
	}{
		{0.5, 0, 0},
		{0.75, 0, 0.25},
		{1.0, 1, 0},
		{2.0, 1, 1.0},
		{100.0, 2, 96.75},
	}
	for _, c := range cases {
		st, ok := tl.Lookup(c.at)
		if !ok {
			t.Fatalf("lookup(%v): not ok", c.at)
		}
		if st.Index != c.idx {
			t.Fatalf("lookup(%v): index %d want %d", c.at, st.Index, c.idx)
		}
		if st.ElapsedSince != c.elapsed {
			t.Fatalf("lookup(%v): elapsed %v want %v", c.at, st.ElapsedSince, c.elapsed)
		}
	}
}

func TestValidateBounds(t *testing.T) {
	tl := sampleTimeline()
	if err := tl.Validate(120); err != nil {
		t.Fatalf("valid timeline rejected: %v", err)
	}

	bad := &Timeline{Actions: []TimedAction{{Offset: 120.0, Kind: ActionHalt}}}
	if err := bad.Validate(120); err == nil {
		t.Fatalf("offset 120 should be rejected")
	}

	dup := &Timeline{Actions: []TimedAction{
		{Offset: 1, Kind: ActionHalt},
		{Offset: 1, Kind: ActionMove},
	}}
	if err := dup.Validate(120); err == nil {
		t.Fatalf("equal offsets should be rejected")
	}
}

func TestEqual(t *testing.T) {
	a, b := sampleTimeline(), sampleTimeline()
	if !a.Equal(b) {
		t.Fatalf("identical timelines not equal")
	}
	b.Actions[1].Payload.Slot = 2
	if a.Equal(b) {
		t.Fatalf("differing payloads reported equal")
	}
}

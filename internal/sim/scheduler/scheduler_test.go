package scheduler

import (
	"encoding/json"
	"io"
	"log"
	"testing"

	"echoraid.gg/internal/persistence/timelinestore"
	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/catalogs"
	"echoraid.gg/internal/sim/guild"
	"echoraid.gg/internal/sim/tuning"
)

func testTuning() tuning.Tuning {
	t := tuning.Tuning{
		TickRateHz:         60,
		LoopSeconds:        2,
		ArenaCount:         3,
		GridWidth:          66,
		GridHeight:         31,
		MaxGhostsPerArena:  40,
		TimelineMaxActions: 64,
		MoveCellsPerSecond: 6,
		BossHP:             100000,
		CharacterHP:        1000,
		ResourceMax:        100,
		ResourceRegenTick:  1,
		Seed:               1337,
	}
	return t
}

func testAbilities() *catalogs.Abilities {
	defs := []catalogs.AbilityDef{
		{Slot: 1, ID: "strike", Kind: catalogs.AbilityDamage, Power: 100, Cost: 10, CritPermille: 200, VariancePermille: 100},
		{Slot: 2, ID: "mend", Kind: catalogs.AbilityHeal, Power: 50, Cost: 20},
		{Slot: 4, ID: "wild_toss", Kind: catalogs.AbilityGamble, Power: 40, Cost: 5, LootTiers: 4},
	}
	c := &catalogs.Abilities{Defs: defs, BySlot: make(map[uint8]catalogs.AbilityDef)}
	for _, d := range defs {
		c.BySlot[d.Slot] = d
	}
	return c
}

func newTestScheduler() *Scheduler {
	return New(testTuning(), testAbilities(), nil, log.New(io.Discard, "", 0))
}

func result(t *testing.T, ch chan protocol.ResultMsg) protocol.ResultMsg {
	t.Helper()
	select {
	case r := <-ch:
		return r
	default:
		t.Fatalf("no RESULT delivered")
		return protocol.ResultMsg{}
	}
}

func TestCommandsApplyAtTickBoundary(t *testing.T) {
	s := newTestScheduler()
	reply := make(chan protocol.ResultMsg, 4)

	s.StepOnce([]Command{{Kind: CmdArm, Ref: "r1", ArenaID: 1, CharacterID: 7, Reply: reply}})
	r := result(t, reply)
	if !r.OK || r.Ref != "r1" {
		t.Fatalf("ARM result = %+v", r)
	}

	// Conflicting second arm on the same arena.
	s.StepOnce([]Command{{Kind: CmdArm, Ref: "r2", ArenaID: 1, CharacterID: 8, Reply: reply}})
	if r := result(t, reply); r.OK || r.Code != protocol.ErrRecordingConflict {
		t.Fatalf("conflict result = %+v", r)
	}

	// Unknown arena.
	s.StepOnce([]Command{{Kind: CmdInput, Ref: "r3", ArenaID: 9, Reply: reply}})
	if r := result(t, reply); r.OK || r.Code != protocol.ErrArenaNotFound {
		t.Fatalf("bad arena result = %+v", r)
	}

	// Input for a character that is not live.
	s.StepOnce([]Command{{
		Kind: CmdInput, Ref: "r4", ArenaID: 1, Reply: reply,
		Input: protocol.InputEvent{CharacterID: 99, Kind: protocol.InputMove, DX: 1},
	}})
	if r := result(t, reply); r.OK || r.Code != protocol.ErrNoLiveCharacter {
		t.Fatalf("no-live result = %+v", r)
	}
}

func TestArenasAreIndependentlyClocked(t *testing.T) {
	s := newTestScheduler()
	// Half a loop in, arm arena 1: its clock force-resets, the others do not.
	for i := 0; i < 60; i++ {
		s.StepOnce(nil)
	}
	entry := s.StepOnce([]Command{{Kind: CmdArm, ArenaID: 1, CharacterID: 7}})

	if entry.Arenas[1].Time != 1.0/60 {
		t.Fatalf("arena 1 time = %v, want one tick after forced reset", entry.Arenas[1].Time)
	}
	if entry.Arenas[0].Time != 61.0/60 || entry.Arenas[2].Time != 61.0/60 {
		t.Fatalf("sibling arenas disturbed: %v, %v", entry.Arenas[0].Time, entry.Arenas[2].Time)
	}
}

func TestRecordPersistReload(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	store := timelinestore.NewStore(dir, 60, logger)

	s := newTestScheduler()
	s.AttachPersistence(store, nil)

	s.StepOnce([]Command{{Kind: CmdArm, ArenaID: 1, CharacterID: 7}})
	s.StepOnce([]Command{{
		Kind: CmdInput, ArenaID: 1,
		Input: protocol.InputEvent{CharacterID: 7, Kind: protocol.InputCast, Slot: 1},
	}})
	reply := make(chan protocol.ResultMsg, 1)
	s.StepOnce([]Command{{Kind: CmdFinalize, ArenaID: 1, Reply: reply}})
	if r := result(t, reply); !r.OK {
		t.Fatalf("FINALIZE result = %+v", r)
	}

	// A fresh scheduler picks the recording up from disk.
	s2 := newTestScheduler()
	s2.AttachPersistence(store, nil)
	if n := s2.LoadTimelines(); n != 1 {
		t.Fatalf("LoadTimelines = %d, want 1", n)
	}
	refs := s2.ArenaRefs()
	if refs[1].Ghosts != 1 || refs[0].Ghosts != 0 {
		t.Fatalf("ghost placement after reload: %+v", refs)
	}
}

func TestReplayReproducesDigests(t *testing.T) {
	script := func(s *Scheduler) []TickLogEntry {
		var entries []TickLogEntry
		entries = append(entries, s.StepOnce([]Command{{Kind: CmdArm, ArenaID: 0, CharacterID: 3}}))
		for i := 0; i < 10; i++ {
			entries = append(entries, s.StepOnce(nil))
		}
		entries = append(entries, s.StepOnce([]Command{{
			Kind: CmdInput, ArenaID: 0,
			Input: protocol.InputEvent{CharacterID: 3, Kind: protocol.InputMove, DX: 1, DY: 1},
		}}))
		for i := 0; i < 200; i++ {
			entries = append(entries, s.StepOnce(nil))
		}
		return entries
	}

	a := script(newTestScheduler())
	b := script(newTestScheduler())
	for i := range a {
		ja, _ := json.Marshal(a[i])
		jb, _ := json.Marshal(b[i])
		if string(ja) != string(jb) {
			t.Fatalf("tick %d diverged:\n a=%s\n b=%s", a[i].Tick, ja, jb)
		}
	}
}

func TestSubscribersReceiveTicks(t *testing.T) {
	s := newTestScheduler()
	ch := s.Subscribe("c1")

	s.StepOnce([]Command{{Kind: CmdArm, ArenaID: 0, CharacterID: 3}})
	var msg protocol.TickMsg
	select {
	case b := <-ch:
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("unmarshal tick: %v", err)
		}
	default:
		t.Fatalf("no tick delivered")
	}
	if msg.Type != protocol.TypeTick || msg.Tick != 1 || len(msg.Clocks) != 3 {
		t.Fatalf("tick msg = %+v", msg)
	}

	// A stalled subscriber keeps only the latest tick.
	s.StepOnce(nil)
	s.StepOnce(nil)
	b := <-ch
	_ = json.Unmarshal(b, &msg)
	if msg.Tick != 3 {
		t.Fatalf("stalled subscriber got tick %d, want latest", msg.Tick)
	}

	s.Unsubscribe("c1")
	s.StepOnce(nil)
	select {
	case <-ch:
		t.Fatalf("unsubscribed channel still receiving")
	default:
	}
}

func TestGuildRosterUpdatesWithTicks(t *testing.T) {
	s := newTestScheduler()
	roster := guild.NewContext()
	s.AttachGuild(roster)

	s.StepOnce([]Command{{Kind: CmdArm, ArenaID: 1, CharacterID: 7}})
	if _, ok := roster.Character(7); !ok {
		t.Fatalf("arming did not register the character")
	}

	// A gamble cast credits loot on the tick it resolves.
	s.StepOnce([]Command{{
		Kind: CmdInput, ArenaID: 1,
		Input: protocol.InputEvent{CharacterID: 7, Kind: protocol.InputCast, Slot: 4},
	}})
	ch, _ := roster.Character(7)
	total := 0
	for _, n := range ch.Loot {
		total += n
	}
	if total != 1 {
		t.Fatalf("loot after gamble = %+v", ch.Loot)
	}

	s.StepOnce([]Command{{Kind: CmdFinalize, ArenaID: 1}})
	if _, ok := roster.Timeline(1, 7); !ok {
		t.Fatalf("finalize did not store the timeline slot")
	}
}

func TestWrapAutoFinalizeProducesGhost(t *testing.T) {
	s := newTestScheduler()
	s.StepOnce([]Command{{Kind: CmdArm, ArenaID: 2, CharacterID: 5}})
	s.StepOnce([]Command{{
		Kind: CmdInput, ArenaID: 2,
		Input: protocol.InputEvent{CharacterID: 5, Kind: protocol.InputMove, DX: 1},
	}})
	for i := 0; i < 120; i++ {
		s.StepOnce(nil)
	}
	refs := s.ArenaRefs()
	if refs[2].Ghosts != 1 || refs[2].Recording {
		t.Fatalf("after wrap: %+v", refs[2])
	}
}

package arena

import (
	"io"
	"log"
	"testing"

	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/catalogs"
)

func testAbilities() *catalogs.Abilities {
	defs := []catalogs.AbilityDef{
		{Slot: 1, ID: "strike", Kind: catalogs.AbilityDamage, Power: 100, Cost: 10, CritPermille: 200, VariancePermille: 100},
		{Slot: 2, ID: "mend", Kind: catalogs.AbilityHeal, Power: 50, Cost: 20},
		{Slot: 3, ID: "focus_beam", Kind: catalogs.AbilityChannel, Power: 300, Cost: 30, ChannelTicks: 10},
		{Slot: 4, ID: "wild_toss", Kind: catalogs.AbilityGamble, Power: 40, Cost: 5, LootTiers: 4},
		{Slot: 9, ID: "boss_smash", Kind: catalogs.AbilityDamage, Power: 80},
	}
	c := &catalogs.Abilities{Defs: defs, BySlot: make(map[uint8]catalogs.AbilityDef)}
	for _, d := range defs {
		c.BySlot[d.Slot] = d
	}
	return c
}

func testConfig() Config {
	return Config{
		ID:                 1,
		TickRateHz:         60,
		LoopSeconds:        2,
		GridWidth:          66,
		GridHeight:         31,
		MaxGhosts:          40,
		TimelineMaxActions: 64,
		MoveCellsPerSecond: 6,
		BossHP:             100000,
		CharacterHP:        1000,
		ResourceMax:        100,
		ResourceRegenTick:  1,
		BossDecideTicks:    30,
		Seed:               1337,
	}
}

func newTestArena(cfg Config) *Arena {
	return New(cfg, testAbilities(), nil, log.New(io.Discard, "", 0))
}

func TestValidateDispatchMap(t *testing.T) {
	handlers := map[string]int{"a": 1, "b": 2}
	if err := validateDispatchMap("test", handlers, []string{"a", "b"}); err != nil {
		t.Fatalf("validateDispatchMap returned error: %v", err)
	}
	if err := validateDispatchMap("test", handlers, []string{"a"}); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if err := validateDispatchMap("test", handlers, []string{"a", "c"}); err == nil {
		t.Fatalf("expected unsupported key error")
	}
	if err := validateDispatchMap("test", map[string]int{"a": 1}, []string{"a", "a"}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestCastWithoutResourceFails(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)
	ar.Live.Resource = 5

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 1}})
	ds := ar.DrainDeltas()
	if len(ds) != 1 || ds[0].Kind != DeltaCastFail {
		t.Fatalf("deltas = %+v, want one CAST_FAIL", ds)
	}
	if ds[0].Code != protocol.ErrNoResource {
		t.Fatalf("code = %q, want %q", ds[0].Code, protocol.ErrNoResource)
	}
	if ar.Live.Resource != 5 {
		t.Fatalf("failed cast consumed resource: %d", ar.Live.Resource)
	}
}

func TestCastUnknownSlotFails(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 200}})
	ds := ar.DrainDeltas()
	if len(ds) != 1 || ds[0].Kind != DeltaCastFail || ds[0].Code != protocol.ErrBadRequest {
		t.Fatalf("deltas = %+v, want CAST_FAIL with %s", ds, protocol.ErrBadRequest)
	}
}

func TestDamageCastHitsBoss(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 1}, Seq: 0})
	ds := ar.DrainDeltas()
	if len(ds) != 1 || ds[0].Kind != DeltaCast {
		t.Fatalf("deltas = %+v, want one CAST", ds)
	}
	if ds[0].TargetID != "BOSS" {
		t.Fatalf("target = %q, want BOSS", ds[0].TargetID)
	}
	if got := 100000 - ar.Boss.HP; got != ds[0].Amount {
		t.Fatalf("boss lost %d HP, delta says %d", got, ds[0].Amount)
	}
	if ar.Live.Resource != 90 {
		t.Fatalf("resource = %d, want 90", ar.Live.Resource)
	}
}

func TestCastSameSeqSameOutcome(t *testing.T) {
	a1 := newTestArena(testConfig())
	a1.bindLive(1)
	a2 := newTestArena(testConfig())
	a2.bindLive(1)

	a1.dispatch(a1.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 1}, Seq: 3})
	a2.dispatch(a2.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 1}, Seq: 3})
	d1, d2 := a1.DrainDeltas()[0], a2.DrainDeltas()[0]
	if d1.Amount != d2.Amount || d1.Crit != d2.Crit {
		t.Fatalf("same seq resolved differently: %+v vs %+v", d1, d2)
	}

	a1.dispatch(a1.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 4}, Seq: 3})
	a1.dispatch(a1.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 4}, Seq: 4})
	ds := a1.DrainDeltas()
	if ds[0].LootTier < 1 || ds[0].LootTier > 4 {
		t.Fatalf("loot tier %d out of range", ds[0].LootTier)
	}
	_ = ds[1]
}

func TestHealClampsToMax(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)
	ar.Live.HP = 990

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 2}})
	ds := ar.DrainDeltas()
	if ds[0].TargetID != ar.Live.ID {
		t.Fatalf("heal target = %q, want self", ds[0].TargetID)
	}
	if ar.Live.HP != 1000 {
		t.Fatalf("HP = %d, want clamped to 1000", ar.Live.HP)
	}
}

func TestChannelLifecycle(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)
	ar.Live.DirX = 1

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 3}, Seq: 5})
	ds := ar.DrainDeltas()
	if len(ds) != 1 || ds[0].Kind != DeltaChannelStart {
		t.Fatalf("deltas = %+v, want CHANNEL_START", ds)
	}
	if ar.Live.DirX != 0 {
		t.Fatalf("channel start should root the caster")
	}
	if ar.Live.Channel == nil || ar.Live.Channel.Duration != 10 {
		t.Fatalf("channel state = %+v", ar.Live.Channel)
	}

	for i := 0; i < 9; i++ {
		ar.advanceChannel(ar.Live)
	}
	if ar.Live.Channel == nil {
		t.Fatalf("channel resolved early")
	}
	ar.advanceChannel(ar.Live)
	if ar.Live.Channel != nil {
		t.Fatalf("channel did not resolve")
	}
	ds = ar.DrainDeltas()
	if len(ds) != 1 || ds[0].Kind != DeltaChannelResolve {
		t.Fatalf("deltas = %+v, want CHANNEL_RESOLVE", ds)
	}
	if ar.Boss.HP >= 100000 {
		t.Fatalf("channel resolve dealt no damage")
	}
}

func TestMoveBreaksChannel(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 3}})
	ar.DrainDeltas()
	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionMove, Payload: ActionPayload{DX: 1}})
	ds := ar.DrainDeltas()
	if len(ds) != 2 || ds[0].Kind != DeltaChannelBreak || ds[1].Kind != DeltaMove {
		t.Fatalf("deltas = %+v, want CHANNEL_BREAK then MOVE", ds)
	}
	if ar.Live.Channel != nil {
		t.Fatalf("channel survived a move")
	}
}

func TestDeadEntityIgnoresActions(t *testing.T) {
	ar := newTestArena(testConfig())
	ar.bindLive(1)
	ar.Live.Alive = false

	ar.dispatch(ar.Live, ResolvedAction{Kind: ActionCast, Payload: ActionPayload{Slot: 1}})
	if ds := ar.DrainDeltas(); len(ds) != 0 {
		t.Fatalf("dead entity produced deltas: %+v", ds)
	}
}

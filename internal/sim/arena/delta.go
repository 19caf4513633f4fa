package arena

// Delta kinds.
const (
	DeltaMove           = "MOVE"
	DeltaHalt           = "HALT"
	DeltaCast           = "CAST"
	DeltaCastFail       = "CAST_FAIL"
	DeltaChannelStart   = "CHANNEL_START"
	DeltaChannelResolve = "CHANNEL_RESOLVE"
	DeltaChannelBreak   = "CHANNEL_BREAK"
	DeltaBossCast       = "BOSS_CAST"
	DeltaDeath          = "DEATH"
)

// StateDelta is the externally visible result of one dispatch. It carries the
// arena time rather than the global tick so the same replayed action produces
// byte-identical deltas on every loop.
type StateDelta struct {
	ArenaID  uint8   `json:"arena_id"`
	T        float64 `json:"t"`
	EntityID string  `json:"entity_id"`
	Kind     string  `json:"kind"`
	DX       int8    `json:"dx,omitempty"`
	DY       int8    `json:"dy,omitempty"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Slot     uint8   `json:"slot,omitempty"`
	TargetID string  `json:"target_id,omitempty"`
	Amount   int     `json:"amount,omitempty"`
	Crit     bool    `json:"crit,omitempty"`
	LootTier int     `json:"loot_tier,omitempty"`
	Code     string  `json:"code,omitempty"`
}

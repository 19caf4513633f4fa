package protocol

// Input event kinds. The core consumes translated input events; it never
// parses raw device state.
const (
	InputMove = "MOVE"
	InputHalt = "HALT"
	InputCast = "CAST"
)

// InputEvent is one translated player input for one tick.
type InputEvent struct {
	CharacterID uint32 `json:"character_id"`
	Kind        string `json:"kind"`
	DX          int8   `json:"dx,omitempty"`
	DY          int8   `json:"dy,omitempty"`
	Slot        uint8  `json:"slot,omitempty"`
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientID        string     `json:"client_id"`
	Params          SimParams  `json:"sim_params"`
	Arenas          []ArenaRef `json:"arenas"`
	AbilitiesDigest string     `json:"abilities_digest"`
}

type SimParams struct {
	TickRateHz  int     `json:"tick_rate_hz"`
	LoopSeconds float64 `json:"loop_seconds"`
	GridWidth   int     `json:"grid_width"`
	GridHeight  int     `json:"grid_height"`
	MaxGhosts   int     `json:"max_ghosts"`
	Seed        int64   `json:"seed"`
}

type ArenaRef struct {
	ArenaID   uint8   `json:"arena_id"`
	Time      float64 `json:"time"`
	LoopCount uint64  `json:"loop_count"`
	Ghosts    int     `json:"ghosts"`
	Recording bool    `json:"recording"`
}

// ARM (client -> server)
type ArmMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	ArenaID         uint8  `json:"arena_id"`
	CharacterID     uint32 `json:"character_id"`
}

// FINALIZE / CANCEL (client -> server)
type SessionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	ArenaID         uint8  `json:"arena_id"`
}

// INPUT (client -> server)
type InputMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ArenaID         uint8      `json:"arena_id"`
	Input           InputEvent `json:"input"`
}

// RESULT (server -> client), one per command.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ActionAppliedEvent is emitted once per successful dispatch for render and
// audio consumers. ResolvedPayload carries the outcome, never the roll.
type ActionAppliedEvent struct {
	EntityID  string          `json:"entity_id"`
	ArenaID   uint8           `json:"arena_id"`
	ArenaTime float64         `json:"arena_time"`
	Kind      string          `json:"kind"`
	Payload   ResolvedPayload `json:"resolved_payload"`
}

type ResolvedPayload struct {
	DX       int8   `json:"dx,omitempty"`
	DY       int8   `json:"dy,omitempty"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Slot     uint8  `json:"slot,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Crit     bool   `json:"crit,omitempty"`
	LootTier int    `json:"loot_tier,omitempty"`
}

// TICK (server -> client), one per simulation tick.
type TickMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	Tick            uint64               `json:"tick"`
	Clocks          []ArenaRef           `json:"clocks"`
	Events          []ActionAppliedEvent `json:"events,omitempty"`
}

package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Recording layer.
	ErrRecordingConflict = "E_RECORDING_CONFLICT"
	ErrNoSession         = "E_NO_SESSION"
	ErrGhostCapacity     = "E_GHOST_CAPACITY"

	// Arena routing/state.
	ErrArenaNotFound    = "E_ARENA_NOT_FOUND"
	ErrNoLiveCharacter  = "E_NO_LIVE_CHARACTER"
	ErrInvalidPlayback  = "E_INVALID_PLAYBACK"
	ErrDesync           = "E_DESYNC"
	ErrSerialization    = "E_SERIALIZATION"
	ErrTimelineOverflow = "E_TIMELINE_OVERFLOW"

	// Rule/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrRecordingConflict: {},
	ErrNoSession:         {},
	ErrGhostCapacity:     {},
	ErrArenaNotFound:     {},
	ErrNoLiveCharacter:   {},
	ErrInvalidPlayback:   {},
	ErrDesync:            {},
	ErrSerialization:     {},
	ErrTimelineOverflow:  {},
	ErrBadRequest:        {},
	ErrNoResource:        {},
	ErrInvalidTarget:     {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

package arena

import (
	"errors"
	"fmt"
)

var (
	ErrRecordingConflict = errors.New("arena already has an active recording session")
	ErrNoSession         = errors.New("no active recording session")
	ErrGhostCapacity     = errors.New("arena ghost capacity reached")
	ErrInvalidTimeline   = errors.New("timeline failed validation")
)

type SessionState uint8

const (
	SessionIdle SessionState = iota
	SessionArmed
	SessionRecording
	SessionFinalizing
	SessionAutoFinalizing
	SessionCancelled
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "IDLE"
	case SessionArmed:
		return "ARMED"
	case SessionRecording:
		return "RECORDING"
	case SessionFinalizing:
		return "FINALIZING"
	case SessionAutoFinalizing:
		return "AUTO_FINALIZING"
	case SessionCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("STATE_%d", uint8(s))
	}
}

// RecordingSession is the transient capture buffer between arm and
// finalize/cancel. At most one exists per arena.
type RecordingSession struct {
	ID          string
	ArenaID     uint8
	CharacterID uint32
	StartLoop   uint64
	State       SessionState

	buf        []TimedAction
	maxActions int
}

// Capture appends one state-change action at offset t. Returns the buffer
// index of the captured action, whether it was captured at all, and whether
// the buffer is now full (the caller must auto-finalize on overflow).
//
// Inputs at t >= cap are dropped: recording ends at the loop boundary and the
// wrap finalizes the session before any such offset could be observed in a
// healthy arena.
func (s *RecordingSession) Capture(t, cap float64, kind ActionKind, p ActionPayload) (idx int, captured, full bool) {
	if t < 0 || t >= cap {
		return 0, false, false
	}
	if n := len(s.buf); n > 0 && t <= s.buf[n-1].Offset {
		return 0, false, false
	}
	if len(s.buf) >= s.maxActions {
		return 0, false, true
	}
	s.buf = append(s.buf, TimedAction{Offset: t, Kind: kind, Payload: p})
	if s.State == SessionArmed {
		s.State = SessionRecording
	}
	return len(s.buf) - 1, true, len(s.buf) >= s.maxActions
}

func (s *RecordingSession) Len() int { return len(s.buf) }

// snapshot copies the buffer so the produced Timeline is immutable even if
// the session object is reused.
func (s *RecordingSession) snapshot() []TimedAction {
	out := make([]TimedAction, len(s.buf))
	copy(out, s.buf)
	return out
}

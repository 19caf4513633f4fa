package timelinestore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"echoraid.gg/internal/sim/arena"
)

// Binary timeline format, little-endian throughout:
//
//	magic   [4]byte "ERTL"
//	version u16
//	arena_id u8
//	character_id u32
//	action_count u32
//	actions: offset f32, kind u16, payload_len u16, payload bytes
//
// Payloads: MOVE is dx,dy as two int8; CAST is one slot byte; HALT is empty.
// Unknown kinds round-trip opaquely so old readers skip what they cannot
// interpret.

var magic = [4]byte{'E', 'R', 'T', 'L'}

const codecVersion uint16 = 1

const maxDecodeActions = 1 << 20

func Encode(w io.Writer, tl *arena.Timeline) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint16(tmp[:2], codecVersion)
	tmp[2] = tl.ArenaID
	if _, err := w.Write(tmp[:3]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(tmp[:4], tl.CharacterID)
	binary.LittleEndian.PutUint32(tmp[4:8], uint32(len(tl.Actions)))
	if _, err := w.Write(tmp[:8]); err != nil {
		return err
	}

	for i, a := range tl.Actions {
		payload := encodePayload(a.Kind, a.Payload)
		binary.LittleEndian.PutUint32(tmp[:4], math.Float32bits(float32(a.Offset)))
		binary.LittleEndian.PutUint16(tmp[4:6], uint16(a.Kind))
		binary.LittleEndian.PutUint16(tmp[6:8], uint16(len(payload)))
		if _, err := w.Write(tmp[:8]); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func EncodeBytes(tl *arena.Timeline) []byte {
	var buf bytes.Buffer
	_ = Encode(&buf, tl) // bytes.Buffer writes cannot fail
	return buf.Bytes()
}

func Decode(r io.Reader) (*arena.Timeline, error) {
	// 4 magic + 2 version + 1 arena_id + 4 character_id + 4 action_count.
	var head [15]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("timeline header: %w", err)
	}
	if !bytes.Equal(head[:4], magic[:]) {
		return nil, fmt.Errorf("timeline header: bad magic %q", head[:4])
	}
	if v := binary.LittleEndian.Uint16(head[4:6]); v != codecVersion {
		return nil, fmt.Errorf("timeline header: unsupported version %d", v)
	}
	count := binary.LittleEndian.Uint32(head[11:15])
	if count > maxDecodeActions {
		return nil, fmt.Errorf("timeline header: action count %d too large", count)
	}

	tl := &arena.Timeline{
		ArenaID:     head[6],
		CharacterID: binary.LittleEndian.Uint32(head[7:11]),
	}
	return tl, decodeActions(r, tl, count)
}

func decodeActions(r io.Reader, tl *arena.Timeline, count uint32) error {
	var tmp [8]byte
	tl.Actions = make([]arena.TimedAction, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, tmp[:8]); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		offset := float64(math.Float32frombits(binary.LittleEndian.Uint32(tmp[:4])))
		kind := arena.ActionKind(binary.LittleEndian.Uint16(tmp[4:6]))
		plen := binary.LittleEndian.Uint16(tmp[6:8])
		payload := make([]byte, plen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("action %d payload: %w", i, err)
		}
		p, err := decodePayload(kind, payload)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		tl.Actions = append(tl.Actions, arena.TimedAction{Offset: offset, Kind: kind, Payload: p})
	}
	return nil
}

func DecodeBytes(b []byte) (*arena.Timeline, error) {
	return Decode(bytes.NewReader(b))
}

func encodePayload(kind arena.ActionKind, p arena.ActionPayload) []byte {
	switch kind {
	case arena.ActionMove:
		return []byte{byte(p.DX), byte(p.DY)}
	case arena.ActionCast:
		return []byte{p.Slot}
	default:
		return nil
	}
}

func decodePayload(kind arena.ActionKind, b []byte) (arena.ActionPayload, error) {
	var p arena.ActionPayload
	switch kind {
	case arena.ActionMove:
		if len(b) < 2 {
			return p, fmt.Errorf("MOVE payload: %d bytes", len(b))
		}
		p.DX, p.DY = int8(b[0]), int8(b[1])
	case arena.ActionCast:
		if len(b) < 1 {
			return p, fmt.Errorf("CAST payload: %d bytes", len(b))
		}
		p.Slot = b[0]
	}
	return p, nil
}

// SnapToGrid realigns decoded offsets onto the tick grid. Offsets are stored
// as f32; the lost precision would otherwise shift replay by a tick relative
// to the original recording.
func SnapToGrid(tl *arena.Timeline, tickRateHz int) {
	dt := 1 / float64(tickRateHz)
	for i := range tl.Actions {
		k := math.Round(tl.Actions[i].Offset * float64(tickRateHz))
		tl.Actions[i].Offset = k * dt
	}
}

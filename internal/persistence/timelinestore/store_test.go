package timelinestore

import (
	"encoding/binary"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"echoraid.gg/internal/sim/arena"
)

func testTimeline() *arena.Timeline {
	dt := 1.0 / 60
	return &arena.Timeline{
		ArenaID:     3,
		CharacterID: 17,
		Actions: []arena.TimedAction{
			{Offset: 5 * dt, Kind: arena.ActionMove, Payload: arena.ActionPayload{DX: 1, DY: -1}},
			{Offset: 30 * dt, Kind: arena.ActionCast, Payload: arena.ActionPayload{Slot: 4}},
			{Offset: 60 * dt, Kind: arena.ActionHalt},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), 60, log.New(io.Discard, "", 0))
}

func TestCodecRoundTrip(t *testing.T) {
	tl := testTimeline()
	got, err := DecodeBytes(EncodeBytes(tl))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	SnapToGrid(got, 60)
	if !got.Equal(tl) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, tl)
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	// The header layout is a persistence contract: 4 magic, 2 version,
	// 1 arena_id, 4 character_id, 4 action_count, little-endian. Pinning the
	// byte positions here keeps Encode and Decode from drifting apart in a
	// way a pure round-trip test would not catch.
	tl := testTimeline()
	b := EncodeBytes(tl)
	if len(b) < 15 {
		t.Fatalf("encoded header is %d bytes, want at least 15", len(b))
	}
	if string(b[:4]) != "ERTL" {
		t.Fatalf("magic = %q", b[:4])
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != codecVersion {
		t.Fatalf("version = %d, want %d", v, codecVersion)
	}
	if b[6] != tl.ArenaID {
		t.Fatalf("arena_id byte = %d, want %d", b[6], tl.ArenaID)
	}
	if id := binary.LittleEndian.Uint32(b[7:11]); id != tl.CharacterID {
		t.Fatalf("character_id = %d, want %d", id, tl.CharacterID)
	}
	if n := binary.LittleEndian.Uint32(b[11:15]); n != uint32(len(tl.Actions)) {
		t.Fatalf("action_count = %d, want %d", n, len(tl.Actions))
	}

	got, err := DecodeBytes(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ArenaID != tl.ArenaID || got.CharacterID != tl.CharacterID || len(got.Actions) != len(tl.Actions) {
		t.Fatalf("decoded identity = arena %d char %d actions %d, want arena %d char %d actions %d",
			got.ArenaID, got.CharacterID, len(got.Actions), tl.ArenaID, tl.CharacterID, len(tl.Actions))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeBytes([]byte("not a timeline at all")); err == nil {
		t.Fatalf("garbage accepted")
	}
	b := EncodeBytes(testTimeline())
	if _, err := DecodeBytes(b[:10]); err == nil {
		t.Fatalf("truncated header accepted")
	}
	if _, err := DecodeBytes(b[:len(b)-3]); err == nil {
		t.Fatalf("truncated body accepted")
	}
}

func TestStoreSaveLoad(t *testing.T) {
	s := newTestStore(t)
	tl := testTimeline()

	digest, err := s.Save(tl)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if digest == "" {
		t.Fatalf("empty digest")
	}
	got, err := s.Load(3, 17)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(tl) {
		t.Fatalf("load mismatch:\n got=%+v\nwant=%+v", got, tl)
	}

	// Saving again replaces the slot.
	tl.Actions = tl.Actions[:1]
	if _, err := s.Save(tl); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err = s.Load(3, 17)
	if err != nil {
		t.Fatalf("re-load: %v", err)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("replace did not take: %d actions", len(got.Actions))
	}
}

func TestLoadArenaSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	good := testTimeline()
	if _, err := s.Save(good); err != nil {
		t.Fatalf("Save: %v", err)
	}
	bad := filepath.Join(s.dir, "arena-03", "char-0099.tl.zst")
	if err := os.WriteFile(bad, []byte("corrupt"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	tls := s.LoadArena(3)
	if len(tls) != 1 || tls[0].CharacterID != 17 {
		t.Fatalf("LoadArena = %+v, want only the good slot", tls)
	}
}

func TestLoadArenaEmptyDir(t *testing.T) {
	s := newTestStore(t)
	if tls := s.LoadArena(5); tls != nil {
		t.Fatalf("empty arena returned %+v", tls)
	}
}

func TestRosterIndex(t *testing.T) {
	idx, err := OpenRosterIndex(filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("OpenRosterIndex: %v", err)
	}
	defer idx.Close()

	idx.RecordSlot(3, 17, 3, "digest-a", "arena-03/char-0017.tl.zst")
	idx.RecordSlot(3, 17, 1, "digest-b", "arena-03/char-0017.tl.zst")
	idx.RecordSlot(3, 20, 5, "digest-c", "arena-03/char-0020.tl.zst")
	idx.RecordSlot(4, 17, 2, "digest-d", "arena-04/char-0017.tl.zst")
	idx.Flush()

	slots, err := idx.Slots(3)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("slots = %+v, want 2 rows", slots)
	}
	if slots[0].CharacterID != 17 || slots[0].Digest != "digest-b" || slots[0].Actions != 1 {
		t.Fatalf("slot 17 = %+v, want the replacing recording", slots[0])
	}
	if slots[1].CharacterID != 20 {
		t.Fatalf("slot order = %+v", slots)
	}

	n, err := idx.RecordingCount(3, 17)
	if err != nil {
		t.Fatalf("RecordingCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("recordings = %d, want 2 (history keeps replaced ones)", n)
	}
}

// Package timelinestore persists recorded timelines: one zstd-compressed
// binary file per (arena, character) slot plus a SQLite roster index for
// queries. The files are the source of truth; the index is derived.
package timelinestore

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"echoraid.gg/internal/sim/arena"
)

// FileHeader is the JSON first line of every timeline file, readable with
// plain zstdcat for operational spelunking; the binary body follows.
type FileHeader struct {
	Version     int    `json:"version"`
	ArenaID     uint8  `json:"arena_id"`
	CharacterID uint32 `json:"character_id"`
	Actions     int    `json:"actions"`
	Digest      string `json:"digest"`
}

type Store struct {
	dir        string
	tickRateHz int
	logger     *log.Logger
}

func NewStore(dir string, tickRateHz int, logger *log.Logger) *Store {
	return &Store{dir: dir, tickRateHz: tickRateHz, logger: logger}
}

func (s *Store) path(arenaID uint8, characterID uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("arena-%02d", arenaID), fmt.Sprintf("char-%04d.tl.zst", characterID))
}

// Save writes a timeline to its slot file, replacing any previous recording
// for the same (arena, character). Returns the content digest for indexing.
func (s *Store) Save(tl *arena.Timeline) (string, error) {
	body := EncodeBytes(tl)
	digest := sha256Hex(body)

	path := s.path(tl.ArenaID, tl.CharacterID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(FileHeader{
		Version:     1,
		ArenaID:     tl.ArenaID,
		CharacterID: tl.CharacterID,
		Actions:     len(tl.Actions),
		Digest:      digest,
	})
	if _, err := bw.Write(hb); err != nil {
		return "", err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return "", err
	}
	if _, err := bw.Write(body); err != nil {
		return "", err
	}
	return digest, nil
}

// Load reads one slot file and snaps its offsets back onto the tick grid.
func (s *Store) Load(arenaID uint8, characterID uint32) (*arena.Timeline, error) {
	f, err := os.Open(s.path(arenaID, characterID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return nil, fmt.Errorf("timeline file header: %w", err)
	}
	tl, err := Decode(br)
	if err != nil {
		return nil, err
	}
	SnapToGrid(tl, s.tickRateHz)
	return tl, nil
}

// LoadArena loads every readable slot for one arena, sorted by character id.
// Corrupt files are logged and skipped: a bad recording must not keep the
// other 39 ghosts out of the raid.
func (s *Store) LoadArena(arenaID uint8) []*arena.Timeline {
	dir := filepath.Join(s.dir, fmt.Sprintf("arena-%02d", arenaID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []*arena.Timeline
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var characterID uint32
		if _, err := fmt.Sscanf(e.Name(), "char-%d.tl.zst", &characterID); err != nil {
			continue
		}
		tl, err := s.Load(arenaID, characterID)
		if err != nil {
			s.logf("arena %d: slot file %s unreadable, skipped: %v", arenaID, e.Name(), err)
			continue
		}
		if tl.ArenaID != arenaID || tl.CharacterID != characterID {
			s.logf("arena %d: slot file %s identity mismatch (arena %d char %d), skipped",
				arenaID, e.Name(), tl.ArenaID, tl.CharacterID)
			continue
		}
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CharacterID < out[j].CharacterID })
	return out
}

// Delete removes a slot file. Missing files are not an error.
func (s *Store) Delete(arenaID uint8, characterID uint32) error {
	err := os.Remove(s.path(arenaID, characterID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

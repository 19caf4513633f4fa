// Command replay verifies a tick journal: it rebuilds a fresh scheduler from
// the same tuning and abilities, re-applies the journaled command stream, and
// compares per-arena digests tick by tick. Any mismatch means the simulation
// is no longer deterministic against the recorded run.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"echoraid.gg/internal/persistence/timelinestore"
	"echoraid.gg/internal/sim/arena"
	"echoraid.gg/internal/sim/boss"
	"echoraid.gg/internal/sim/catalogs"
	"echoraid.gg/internal/sim/scheduler"
	"echoraid.gg/internal/sim/tuning"
)

func main() {
	var (
		ticksDir   = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		bossScript = flag.String("boss", "", "boss script the recorded run used (empty: idle bosses)")
		timelines  = flag.String("timelines", "", "timeline store dir as it was when the recorded run booted (optional)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *ticksDir == "" {
		fmt.Fprintln(os.Stderr, "missing -ticks")
		os.Exit(2)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	abilitiesPath := strings.TrimSpace(tune.AbilitiesFile)
	if abilitiesPath == "" {
		abilitiesPath = "abilities.yaml"
	}
	if !filepath.IsAbs(abilitiesPath) {
		abilitiesPath = filepath.Join(*configDir, abilitiesPath)
	}
	abilities, err := catalogs.LoadAbilities(abilitiesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load abilities:", err)
		os.Exit(1)
	}

	// Bosses must be rebuilt exactly as the recording run had them, or the
	// digest streams cannot match. -boss replays a scripted run; leaving it
	// empty replays a run with idle bosses.
	var brain func(id uint8) arena.BossBrain
	if *bossScript != "" {
		src, err := os.ReadFile(*bossScript)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read boss script:", err)
			os.Exit(1)
		}
		brain = func(id uint8) arena.BossBrain {
			b, err := boss.NewScriptBrain(string(src))
			if err != nil {
				fmt.Fprintln(os.Stderr, "boss script:", err)
				os.Exit(1)
			}
			return b
		}
	}

	s := scheduler.New(tune, abilities, brain, log.New(io.Discard, "", 0))

	// Ghosts the recorded run loaded at boot are part of tick 1's digest, so
	// the verifier must seed them the same way.
	if *timelines != "" {
		store := timelinestore.NewStore(*timelines, tune.TickRateHz, log.New(io.Discard, "", 0))
		s.AttachPersistence(store, nil)
		fmt.Printf("seeded %d stored timelines\n", s.LoadTimelines())
	}

	files, err := listTickFiles(*ticksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	var checked uint64
	for _, path := range files {
		done, err := replayFile(s, path, *fromTick, *toTick, &checked)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if done {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
}

func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(s *scheduler.Scheduler, path string, fromTick, toTick uint64, checked *uint64) (done bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return false, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry scheduler.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return false, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if toTick != 0 && entry.Tick > toTick {
			return true, nil
		}
		if entry.Tick != s.Tick()+1 {
			return false, fmt.Errorf("tick gap: journal=%d scheduler=%d (file=%s)",
				entry.Tick, s.Tick()+1, filepath.Base(path))
		}

		got := s.StepOnce(commandsOf(entry))

		if entry.Tick < fromTick {
			continue
		}
		*checked++
		for i, want := range entry.Arenas {
			if i >= len(got.Arenas) {
				return false, fmt.Errorf("tick %d: journal has arena %d, scheduler has %d arenas",
					entry.Tick, want.ArenaID, len(got.Arenas))
			}
			if got.Arenas[i].Digest != want.Digest {
				return false, fmt.Errorf("digest mismatch at tick %d arena %d: got=%s want=%s",
					entry.Tick, want.ArenaID, got.Arenas[i].Digest, want.Digest)
			}
		}
	}
	return false, sc.Err()
}

// commandsOf reconstructs the boundary commands from their journaled records.
// Records that were rejected still re-apply so the rejection itself replays.
func commandsOf(entry scheduler.TickLogEntry) []scheduler.Command {
	if len(entry.Commands) == 0 {
		return nil
	}
	cmds := make([]scheduler.Command, 0, len(entry.Commands))
	for _, rec := range entry.Commands {
		cmd := scheduler.Command{
			Kind:        rec.Kind,
			ArenaID:     rec.ArenaID,
			CharacterID: rec.CharacterID,
		}
		if rec.Input != nil {
			cmd.Input = *rec.Input
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

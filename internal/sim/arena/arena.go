package arena

import (
	"fmt"
	"log"

	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/catalogs"
)

// Arena is one independently clocked raid instance. It is not goroutine safe;
// the scheduler owns it and touches it only from the tick loop.
type Arena struct {
	cfg       Config
	Clock     *Clock
	abilities *catalogs.Abilities
	brain     BossBrain
	logger    *log.Logger

	Live    *Entity
	Ghosts  []*Ghost
	Boss    *Entity
	Session *RecordingSession

	pendingInputs []protocol.InputEvent
	deltas        []StateDelta

	milliPerTick   int
	nextSessionNum uint64

	liveSpawnX, liveSpawnY int
	bossSpawnX, bossSpawnY int
}

func New(cfg Config, abilities *catalogs.Abilities, brain BossBrain, logger *log.Logger) *Arena {
	bx, by := cfg.GridWidth-4, cfg.GridHeight/2
	ar := &Arena{
		cfg:          cfg,
		Clock:        NewClock(cfg.TickRateHz, cfg.LoopSeconds),
		abilities:    abilities,
		brain:        brain,
		logger:       logger,
		milliPerTick: int(cfg.MoveCellsPerSecond*1000) / cfg.TickRateHz,
		bossSpawnX:   bx,
		bossSpawnY:   by,
	}
	ar.Boss = newBossEntity(bx, by, cfg.BossHP)
	return ar
}

func (ar *Arena) Config() Config { return ar.cfg }

func (ar *Arena) logf(format string, args ...any) {
	if ar.logger != nil {
		ar.logger.Printf("arena %d: "+format, append([]any{ar.cfg.ID}, args...)...)
	}
}

// emit stamps the arena id and arena time onto a delta and buffers it for the
// scheduler to drain after the tick.
func (ar *Arena) emit(d StateDelta) {
	d.ArenaID = ar.cfg.ID
	d.T = ar.Clock.Time()
	ar.deltas = append(ar.deltas, d)
}

// DrainDeltas returns the deltas produced since the last drain.
func (ar *Arena) DrainDeltas() []StateDelta {
	if len(ar.deltas) == 0 {
		return nil
	}
	out := ar.deltas
	ar.deltas = nil
	return out
}

// QueueInput buffers a live input event; it applies at the next tick boundary.
func (ar *Arena) QueueInput(ev protocol.InputEvent) {
	ar.pendingInputs = append(ar.pendingInputs, ev)
}

// Arm starts a recording session for characterID and force-resets the arena
// clock to zero so the recording window aligns with the loop window. Only one
// session may exist per arena.
func (ar *Arena) Arm(characterID uint32) (*RecordingSession, error) {
	if ar.Session != nil {
		return nil, ErrRecordingConflict
	}
	ar.bindLive(characterID)
	ar.nextSessionNum++
	s := &RecordingSession{
		ID:          fmt.Sprintf("R%06d", ar.nextSessionNum),
		ArenaID:     ar.cfg.ID,
		CharacterID: characterID,
		StartLoop:   ar.Clock.LoopCount(),
		State:       SessionArmed,
		maxActions:  ar.cfg.TimelineMaxActions,
	}
	ar.Session = s
	ar.forceReset()
	return s, nil
}

// Finalize ends the session and converts its buffer into a replaying ghost.
// An empty buffer still produces a ghost (it stands at spawn all loop). The
// live character unbinds: from here on the recording plays, not the player.
func (ar *Arena) Finalize() (*Timeline, *Ghost, error) {
	return ar.finalizeInternal(false)
}

func (ar *Arena) finalizeInternal(auto bool) (*Timeline, *Ghost, error) {
	s := ar.Session
	if s == nil {
		return nil, nil, ErrNoSession
	}
	if auto {
		s.State = SessionAutoFinalizing
	} else {
		s.State = SessionFinalizing
	}
	tl := &Timeline{
		ArenaID:     s.ArenaID,
		CharacterID: s.CharacterID,
		Actions:     s.snapshot(),
	}
	ar.Session = nil
	ar.Live = nil
	g, err := ar.AddGhost(tl)
	if err != nil {
		return tl, nil, err
	}
	return tl, g, nil
}

// Cancel discards the session buffer. Arena state is untouched: everything
// that happened while recording already happened.
func (ar *Arena) Cancel() error {
	if ar.Session == nil {
		return ErrNoSession
	}
	ar.Session.State = SessionCancelled
	ar.Session = nil
	return nil
}

// AddGhost registers a timeline as a replaying ghost. A timeline for a
// character that already has a ghost replaces that ghost in place; a new
// character beyond the capacity limit is rejected outright.
func (ar *Arena) AddGhost(tl *Timeline) (*Ghost, error) {
	if err := tl.Validate(ar.cfg.LoopSeconds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeline, err)
	}
	g := newGhost(tl, ar.cfg)
	// A ghost joining mid-loop skips actions already in the past; it starts
	// acting from here and plays the full timeline from the next wrap.
	if st, ok := tl.Lookup(ar.Clock.Time()); ok {
		g.nextAction = st.Index + 1
	}
	for i, old := range ar.Ghosts {
		if old.Timeline.CharacterID == tl.CharacterID {
			ar.Ghosts[i] = g
			return g, nil
		}
	}
	if len(ar.Ghosts) >= ar.cfg.MaxGhosts {
		return nil, ErrGhostCapacity
	}
	ar.Ghosts = append(ar.Ghosts, g)
	return g, nil
}

// GhostFor returns the ghost replaying characterID's timeline, if any.
func (ar *Arena) GhostFor(characterID uint32) *Ghost {
	for _, g := range ar.Ghosts {
		if g.Timeline.CharacterID == characterID {
			return g
		}
	}
	return nil
}

// bindLive attaches a fresh live entity for characterID at its deterministic
// spawn cell.
func (ar *Arena) bindLive(characterID uint32) {
	x, y := spawnCell(ar.cfg.Seed, ar.cfg.ID, characterID, ar.cfg.GridWidth, ar.cfg.GridHeight)
	ar.Live = newCharacterEntity(characterID, x, y, ar.cfg.CharacterHP, ar.cfg.ResourceMax)
	ar.liveSpawnX, ar.liveSpawnY = x, y
}

// forceReset zeroes the clock and restarts every entity at its loop-start
// state without a Looping transition.
func (ar *Arena) forceReset() {
	ar.Clock.ForceReset()
	for _, g := range ar.Ghosts {
		g.resetForced(ar.cfg.ResourceMax)
	}
	ar.Boss.resetForLoop(ar.bossSpawnX, ar.bossSpawnY, 0)
	if ar.Live != nil {
		ar.Live.resetForLoop(ar.liveSpawnX, ar.liveSpawnY, ar.cfg.ResourceMax)
	}
	ar.pendingInputs = ar.pendingInputs[:0]
}

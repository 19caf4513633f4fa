// Package scheduler owns the nine arena instances and the single simulation
// goroutine that ticks them. Commands from transports queue here and apply
// only at tick boundaries, so arena state is never touched concurrently.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"echoraid.gg/internal/persistence/timelinestore"
	"echoraid.gg/internal/protocol"
	"echoraid.gg/internal/sim/arena"
	"echoraid.gg/internal/sim/catalogs"
	"echoraid.gg/internal/sim/guild"
	"echoraid.gg/internal/sim/tuning"
)

type CommandKind string

const (
	CmdArm      CommandKind = "ARM"
	CmdFinalize CommandKind = "FINALIZE"
	CmdCancel   CommandKind = "CANCEL"
	CmdInput    CommandKind = "INPUT"
)

// Command is one transport request bound for an arena. Reply, when set,
// receives exactly one RESULT after the command applies.
type Command struct {
	Kind        CommandKind
	Ref         string
	ArenaID     uint8
	CharacterID uint32
	Input       protocol.InputEvent

	Reply chan<- protocol.ResultMsg
}

// CommandRecord is the journaled form of an applied command.
type CommandRecord struct {
	Kind        CommandKind          `json:"kind"`
	ArenaID     uint8                `json:"arena_id"`
	CharacterID uint32               `json:"character_id,omitempty"`
	Input       *protocol.InputEvent `json:"input,omitempty"`
	OK          bool                 `json:"ok"`
	Code        string               `json:"code,omitempty"`
}

// ArenaRecord is one arena's clock and digest at the end of a tick.
type ArenaRecord struct {
	ArenaID uint8   `json:"arena_id"`
	Time    float64 `json:"time"`
	Loop    uint64  `json:"loop_count"`
	Ghosts  int     `json:"ghosts"`
	Digest  string  `json:"digest"`
}

// TickLogEntry is one journaled tick: the commands that applied and the
// resulting per-arena digests. Replaying the command stream must reproduce
// the digest stream.
type TickLogEntry struct {
	Tick     uint64          `json:"tick"`
	Commands []CommandRecord `json:"commands,omitempty"`
	Arenas   []ArenaRecord   `json:"arenas"`
}

// TickSink receives one entry per tick; the JSONL journal implements it.
type TickSink interface {
	WriteTick(TickLogEntry) error
}

type Scheduler struct {
	cfg       tuning.Tuning
	abilities *catalogs.Abilities
	arenas    []*arena.Arena
	logger    *log.Logger

	cmds chan Command
	stop chan struct{}

	tick atomic.Uint64

	// latestRefs is republished every tick so transports can answer HELLO
	// without touching arena state.
	latestRefs atomic.Value // []protocol.ArenaRef

	store  *timelinestore.Store
	index  *timelinestore.RosterIndex
	sink   TickSink
	roster *guild.Context

	subMu sync.Mutex
	subs  map[string]chan []byte
}

// New builds the arena set. brain may be nil (bosses idle) or return nil for
// individual arenas.
func New(cfg tuning.Tuning, abilities *catalogs.Abilities, brain func(id uint8) arena.BossBrain, logger *log.Logger) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		abilities: abilities,
		logger:    logger,
		cmds:      make(chan Command, 4096),
		stop:      make(chan struct{}),
		subs:      make(map[string]chan []byte),
	}
	for id := 0; id < cfg.ArenaCount; id++ {
		var b arena.BossBrain
		if brain != nil {
			b = brain(uint8(id))
		}
		s.arenas = append(s.arenas, arena.New(arena.ConfigFromTuning(cfg, uint8(id)), abilities, b, logger))
	}
	s.latestRefs.Store(s.buildRefs())
	return s
}

// AttachPersistence wires the slot store and roster index; finalized
// timelines are saved as they appear.
func (s *Scheduler) AttachPersistence(store *timelinestore.Store, index *timelinestore.RosterIndex) {
	s.store = store
	s.index = index
}

func (s *Scheduler) AttachSink(sink TickSink) { s.sink = sink }

// AttachGuild wires the cross-arena roster. The scheduler is its only writer
// and mutates it exclusively inside StepOnce, at tick boundaries.
func (s *Scheduler) AttachGuild(ctx *guild.Context) { s.roster = ctx }

// LoadTimelines seeds every arena's ghosts from the slot store. Call before
// Run; it touches arena state directly.
func (s *Scheduler) LoadTimelines() int {
	if s.store == nil {
		return 0
	}
	n := 0
	for _, ar := range s.arenas {
		for _, tl := range s.store.LoadArena(ar.Config().ID) {
			if _, err := ar.AddGhost(tl); err != nil {
				s.logf("arena %d: stored timeline for character %d rejected: %v",
					tl.ArenaID, tl.CharacterID, err)
				continue
			}
			n++
		}
	}
	s.latestRefs.Store(s.buildRefs())
	return n
}

// Enqueue hands a command to the tick loop. A full queue rejects immediately
// rather than blocking a transport goroutine.
func (s *Scheduler) Enqueue(cmd Command) error {
	select {
	case s.cmds <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue full")
	}
}

func (s *Scheduler) Tick() uint64 { return s.tick.Load() }

// ArenaRefs returns the clock snapshot published at the last tick boundary.
func (s *Scheduler) ArenaRefs() []protocol.ArenaRef {
	refs, _ := s.latestRefs.Load().([]protocol.ArenaRef)
	return refs
}

// Subscribe registers a TICK stream consumer. The channel holds one message;
// slow consumers skip ticks instead of stalling the loop.
func (s *Scheduler) Subscribe(id string) <-chan []byte {
	ch := make(chan []byte, 1)
	s.subMu.Lock()
	s.subs[id] = ch
	s.subMu.Unlock()
	return ch
}

func (s *Scheduler) Unsubscribe(id string) {
	s.subMu.Lock()
	delete(s.subs, id)
	s.subMu.Unlock()
}

func (s *Scheduler) Stop() { close(s.stop) }

// Run drives the fixed-rate loop until the context ends or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Command
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case cmd := <-s.cmds:
			pending = append(pending, cmd)
		case <-ticker.C:
			s.StepOnce(pending)
			pending = pending[:0]
		}
	}
}

// StepOnce applies the queued commands at the boundary and advances every
// arena by one tick. Exposed for tests and the replay verifier; Run uses the
// same path.
func (s *Scheduler) StepOnce(cmds []Command) TickLogEntry {
	tick := s.tick.Add(1)

	entry := TickLogEntry{Tick: tick}
	for _, cmd := range cmds {
		entry.Commands = append(entry.Commands, s.apply(cmd))
	}

	var events []protocol.ActionAppliedEvent
	for _, ar := range s.arenas {
		res := ar.Step()
		if res.AutoFinalized != nil {
			s.persistTimeline(res.AutoFinalized)
		}
		for _, d := range ar.DrainDeltas() {
			events = append(events, deltaEvent(d))
			if s.roster != nil && d.LootTier > 0 {
				if id, ok := guild.CharacterIDFromEntity(d.EntityID); ok {
					s.roster.AwardLoot(id, d.LootTier)
				}
			}
		}
		entry.Arenas = append(entry.Arenas, ArenaRecord{
			ArenaID: ar.Config().ID,
			Time:    ar.Clock.Time(),
			Loop:    ar.Clock.LoopCount(),
			Ghosts:  len(ar.Ghosts),
			Digest:  ar.StateDigest(),
		})
	}

	refs := s.buildRefs()
	s.latestRefs.Store(refs)

	if s.sink != nil {
		if err := s.sink.WriteTick(entry); err != nil {
			s.logf("tick journal write failed: %v", err)
		}
	}
	s.broadcast(tick, refs, events)
	return entry
}

func (s *Scheduler) apply(cmd Command) CommandRecord {
	rec := CommandRecord{Kind: cmd.Kind, ArenaID: cmd.ArenaID, CharacterID: cmd.CharacterID}
	if cmd.Kind == CmdInput {
		in := cmd.Input
		rec.Input = &in
	}

	code := s.applyToArena(cmd)
	rec.OK = code == ""
	rec.Code = code

	if cmd.Reply != nil {
		msg := protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			Ref:             cmd.Ref,
			OK:              rec.OK,
			Code:            code,
		}
		select {
		case cmd.Reply <- msg:
		default:
		}
	}
	return rec
}

func (s *Scheduler) applyToArena(cmd Command) string {
	if int(cmd.ArenaID) >= len(s.arenas) {
		return protocol.ErrArenaNotFound
	}
	ar := s.arenas[cmd.ArenaID]

	switch cmd.Kind {
	case CmdArm:
		_, err := ar.Arm(cmd.CharacterID)
		if err == nil && s.roster != nil {
			s.roster.Ensure(cmd.CharacterID)
		}
		return errCode(err)
	case CmdFinalize:
		tl, _, err := ar.Finalize()
		if err == nil {
			s.persistTimeline(tl)
		}
		return errCode(err)
	case CmdCancel:
		return errCode(ar.Cancel())
	case CmdInput:
		if ar.Live == nil || ar.Live.Num != cmd.Input.CharacterID {
			return protocol.ErrNoLiveCharacter
		}
		ar.QueueInput(cmd.Input)
		return ""
	default:
		return protocol.ErrBadRequest
	}
}

func errCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, arena.ErrRecordingConflict):
		return protocol.ErrRecordingConflict
	case errors.Is(err, arena.ErrNoSession):
		return protocol.ErrNoSession
	case errors.Is(err, arena.ErrGhostCapacity):
		return protocol.ErrGhostCapacity
	case errors.Is(err, arena.ErrInvalidTimeline):
		return protocol.ErrInvalidPlayback
	default:
		return protocol.ErrInternal
	}
}

func (s *Scheduler) persistTimeline(tl *arena.Timeline) {
	if tl == nil {
		return
	}
	if s.roster != nil {
		s.roster.SetTimeline(tl)
	}
	if s.store == nil {
		return
	}
	digest, err := s.store.Save(tl)
	if err != nil {
		s.logf("arena %d: saving timeline for character %d failed: %v", tl.ArenaID, tl.CharacterID, err)
		return
	}
	if s.index != nil {
		s.index.RecordSlot(tl.ArenaID, tl.CharacterID, len(tl.Actions), digest, "")
	}
}

func (s *Scheduler) buildRefs() []protocol.ArenaRef {
	refs := make([]protocol.ArenaRef, 0, len(s.arenas))
	for _, ar := range s.arenas {
		refs = append(refs, protocol.ArenaRef{
			ArenaID:   ar.Config().ID,
			Time:      ar.Clock.Time(),
			LoopCount: ar.Clock.LoopCount(),
			Ghosts:    len(ar.Ghosts),
			Recording: ar.Session != nil,
		})
	}
	return refs
}

func deltaEvent(d arena.StateDelta) protocol.ActionAppliedEvent {
	return protocol.ActionAppliedEvent{
		EntityID:  d.EntityID,
		ArenaID:   d.ArenaID,
		ArenaTime: d.T,
		Kind:      d.Kind,
		Payload: protocol.ResolvedPayload{
			DX:       d.DX,
			DY:       d.DY,
			X:        d.X,
			Y:        d.Y,
			Slot:     d.Slot,
			TargetID: d.TargetID,
			Amount:   d.Amount,
			Crit:     d.Crit,
			LootTier: d.LootTier,
		},
	}
}

// broadcast fans the TICK message out to every subscriber. Marshaling happens
// once; a subscriber that has not drained its previous message loses it.
func (s *Scheduler) broadcast(tick uint64, refs []protocol.ArenaRef, events []protocol.ActionAppliedEvent) {
	s.subMu.Lock()
	n := len(s.subs)
	s.subMu.Unlock()
	if n == 0 {
		return
	}
	b, err := json.Marshal(protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Clocks:          refs,
		Events:          events,
	})
	if err != nil {
		s.logf("tick broadcast marshal failed: %v", err)
		return
	}
	s.subMu.Lock()
	for _, ch := range s.subs {
		sendLatest(ch, b)
	}
	s.subMu.Unlock()
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

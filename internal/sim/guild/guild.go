// Package guild holds the only state shared across arenas: the character
// roster, their stored timelines and loot. The scheduler owns a Context and
// touches it exclusively at tick boundaries, so no locking is needed; it is
// passed in explicitly rather than living as a process-wide singleton.
package guild

import (
	"fmt"
	"sort"

	"echoraid.gg/internal/sim/arena"
)

// SlotKey addresses one (arena, character) timeline slot.
type SlotKey struct {
	ArenaID     uint8
	CharacterID uint32
}

type Character struct {
	ID   uint32
	Name string

	// Loot counts by 1-based tier, accumulated from gamble casts.
	Loot map[int]int
}

type Context struct {
	characters map[uint32]*Character
	timelines  map[SlotKey]*arena.Timeline
	nextID     uint32
}

func NewContext() *Context {
	return &Context{
		characters: make(map[uint32]*Character),
		timelines:  make(map[SlotKey]*arena.Timeline),
	}
}

// CreateCharacter registers a new roster member and assigns its id.
func (c *Context) CreateCharacter(name string) *Character {
	c.nextID++
	ch := &Character{ID: c.nextID, Name: name, Loot: make(map[int]int)}
	c.characters[ch.ID] = ch
	return ch
}

// Ensure returns the character with the given id, registering it on first
// sight. Arming an arena for an id the roster has never seen creates the
// record implicitly.
func (c *Context) Ensure(id uint32) *Character {
	if ch, ok := c.characters[id]; ok {
		return ch
	}
	ch := &Character{ID: id, Name: fmt.Sprintf("C%04d", id), Loot: make(map[int]int)}
	c.characters[id] = ch
	if id > c.nextID {
		c.nextID = id
	}
	return ch
}

func (c *Context) Character(id uint32) (*Character, bool) {
	ch, ok := c.characters[id]
	return ch, ok
}

// Characters lists the roster sorted by id.
func (c *Context) Characters() []*Character {
	out := make([]*Character, 0, len(c.characters))
	for _, ch := range c.characters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetTimeline stores a finalized timeline in its slot, replacing any
// previous recording there.
func (c *Context) SetTimeline(tl *arena.Timeline) {
	c.Ensure(tl.CharacterID)
	c.timelines[SlotKey{ArenaID: tl.ArenaID, CharacterID: tl.CharacterID}] = tl
}

func (c *Context) Timeline(arenaID uint8, characterID uint32) (*arena.Timeline, bool) {
	tl, ok := c.timelines[SlotKey{ArenaID: arenaID, CharacterID: characterID}]
	return tl, ok
}

// ClearTimeline removes a slot; the character record stays.
func (c *Context) ClearTimeline(arenaID uint8, characterID uint32) {
	delete(c.timelines, SlotKey{ArenaID: arenaID, CharacterID: characterID})
}

// Slots lists occupied timeline slots for one arena, sorted by character id.
func (c *Context) Slots(arenaID uint8) []SlotKey {
	var out []SlotKey
	for k := range c.timelines {
		if k.ArenaID == arenaID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CharacterID < out[j].CharacterID })
	return out
}

// AwardLoot credits one drop of the given 1-based tier.
func (c *Context) AwardLoot(characterID uint32, tier int) {
	if tier <= 0 {
		return
	}
	c.Ensure(characterID).Loot[tier]++
}

// CharacterIDFromEntity recovers a character id from an entity id such as
// "C0017". The boss and malformed ids report false.
func CharacterIDFromEntity(entityID string) (uint32, bool) {
	var id uint32
	if _, err := fmt.Sscanf(entityID, "C%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

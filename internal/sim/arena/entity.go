package arena

import (
	"fmt"

	"echoraid.gg/internal/sim/mathx"
)

type EntityKind uint8

const (
	EntityLive EntityKind = iota
	EntityGhost
	EntityBoss
)

// BossEntityNum is the reserved entity number for the boss's RNG identity.
const BossEntityNum uint32 = 0xFFFFFFFF

type Entity struct {
	ID   string
	Num  uint32 // character id for players/ghosts, BossEntityNum for the boss
	Kind EntityKind

	X, Y       int
	subX, subY int // milli-cell movement remainders
	DirX, DirY int8

	HP       int
	MaxHP    int
	Resource int
	Alive    bool

	Channel *ChannelState

	// castSeq numbers the casts of an unrecorded live character. Recorded
	// casts are numbered by their buffer index instead (see tickLive).
	castSeq uint32
}

// ChannelState is an in-flight wind-up ability, advanced per fixed tick.
type ChannelState struct {
	Slot     uint8
	Elapsed  int
	Duration int
	Seq      uint32
}

func newCharacterEntity(id uint32, x, y, hp, resource int) *Entity {
	return &Entity{
		ID:       fmt.Sprintf("C%04d", id),
		Num:      id,
		Kind:     EntityLive,
		X:        x,
		Y:        y,
		HP:       hp,
		MaxHP:    hp,
		Resource: resource,
		Alive:    true,
	}
}

func newBossEntity(x, y, hp int) *Entity {
	return &Entity{
		ID:    "BOSS",
		Num:   BossEntityNum,
		Kind:  EntityBoss,
		X:     x,
		Y:     y,
		HP:    hp,
		MaxHP: hp,
		Alive: true,
	}
}

// resetForLoop returns the entity to its loop-start state. Ghost replay is a
// pure function of (timeline, clock time) only because every integrated
// quantity restarts here.
func (e *Entity) resetForLoop(x, y, resource int) {
	e.X, e.Y = x, y
	e.subX, e.subY = 0, 0
	e.DirX, e.DirY = 0, 0
	e.HP = e.MaxHP
	e.Resource = resource
	e.Alive = true
	e.Channel = nil
	e.castSeq = 0
}

// integrate advances grid movement by one fixed tick. milliPerTick is the
// movement speed in thousandths of a cell per tick.
func (e *Entity) integrate(milliPerTick, gridW, gridH int) {
	if !e.Alive || (e.DirX == 0 && e.DirY == 0) {
		return
	}
	e.subX += int(e.DirX) * milliPerTick
	e.subY += int(e.DirY) * milliPerTick
	for e.subX >= 1000 {
		e.subX -= 1000
		e.X++
	}
	for e.subX <= -1000 {
		e.subX += 1000
		e.X--
	}
	for e.subY >= 1000 {
		e.subY -= 1000
		e.Y++
	}
	for e.subY <= -1000 {
		e.subY += 1000
		e.Y--
	}
	clampedX := mathx.ClampInt(e.X, 0, gridW-1)
	clampedY := mathx.ClampInt(e.Y, 0, gridH-1)
	if clampedX != e.X {
		e.X = clampedX
		e.subX = 0
	}
	if clampedY != e.Y {
		e.Y = clampedY
		e.subY = 0
	}
}

// spawnCell places a character deterministically from the arena seed so the
// same character starts every loop on the same cell.
func spawnCell(seed int64, arenaID uint8, characterID uint32, gridW, gridH int) (int, int) {
	h := mathx.Hash3(seed, int(arenaID), int(characterID), 0x5157)
	// Spawn band along the left quarter of the grid, away from the boss.
	x := int(h % uint64(gridW/4+1))
	y := int((h >> 24) % uint64(gridH))
	return x, y
}

package arena

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// StateDigest is the canonical hash of the arena's mutable state at the
// current tick. Two runs fed the same commands must produce the same digest
// stream; the replay verifier depends on it.
func (ar *Arena) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, uint64(ar.cfg.ID))
	digestWriteU64(h, &tmp, ar.Clock.TickInLoop())
	digestWriteU64(h, &tmp, ar.Clock.LoopCount())

	ar.digestEntity(h, &tmp, ar.Live)
	digestWriteU64(h, &tmp, uint64(len(ar.Ghosts)))
	for _, g := range ar.Ghosts {
		h.Write([]byte{boolByte(g.Disabled)})
		ar.digestEntity(h, &tmp, g.Entity)
	}
	ar.digestEntity(h, &tmp, ar.Boss)

	if s := ar.Session; s != nil {
		h.Write([]byte(s.ID))
		digestWriteU64(h, &tmp, uint64(s.CharacterID))
		digestWriteU64(h, &tmp, uint64(s.State))
		digestWriteU64(h, &tmp, uint64(len(s.buf)))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (ar *Arena) digestEntity(h hashWriter, tmp *[8]byte, e *Entity) {
	if e == nil {
		digestWriteU64(h, tmp, 0)
		return
	}
	h.Write([]byte(e.ID))
	digestWriteI64(h, tmp, int64(e.X))
	digestWriteI64(h, tmp, int64(e.Y))
	digestWriteI64(h, tmp, int64(e.subX))
	digestWriteI64(h, tmp, int64(e.subY))
	digestWriteI64(h, tmp, int64(e.DirX))
	digestWriteI64(h, tmp, int64(e.DirY))
	digestWriteI64(h, tmp, int64(e.HP))
	digestWriteI64(h, tmp, int64(e.Resource))
	h.Write([]byte{boolByte(e.Alive)})
	if c := e.Channel; c != nil {
		digestWriteU64(h, tmp, uint64(c.Slot))
		digestWriteU64(h, tmp, uint64(c.Elapsed))
		digestWriteU64(h, tmp, uint64(c.Seq))
	} else {
		digestWriteU64(h, tmp, ^uint64(0))
	}
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

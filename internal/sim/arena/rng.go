package arena

import "echoraid.gg/internal/sim/mathx"

// Every stochastic outcome draws from a stream keyed by (arena seed, arena
// id, entity number, action sequence index). The loop count is not part of
// the key: a replayed action resolves identically on every loop, and a live
// cast resolves exactly as its later ghost replay does.
func draw(seed int64, arenaID uint8, entityNum uint32, seq uint32) uint64 {
	return mathx.Hash4(seed, uint64(arenaID), uint64(entityNum), uint64(seq))
}

// critRoll extracts a permille value in [0,1000).
func critRoll(d uint64) int { return int(d % 1000) }

// varianceRoll extracts a signed permille in [-1000,1000].
func varianceRoll(d uint64) int { return int((d>>10)%2001) - 1000 }

// lootRoll extracts a tier in [0,tiers).
func lootRoll(d uint64, tiers int) int {
	if tiers <= 0 {
		return 0
	}
	return int((d >> 32) % uint64(tiers))
}

package arena

// Clock is the per-arena simulation time source. Time is backed by an
// integer tick within the loop so every loop visits exactly the same float
// values; accumulating float deltas would drift the tick grid across loops
// and recorded offsets would stop lining up.
type Clock struct {
	tick         uint64 // position within the current loop
	loopCount    uint64
	ticksPerLoop uint64
	dt           float64
}

func NewClock(tickRateHz int, loopSeconds float64) *Clock {
	return &Clock{
		ticksPerLoop: uint64(loopSeconds*float64(tickRateHz) + 0.5),
		dt:           1 / float64(tickRateHz),
	}
}

// Time is the arena time in [0, loopSeconds).
func (c *Clock) Time() float64 { return float64(c.tick) * c.dt }

func (c *Clock) LoopCount() uint64  { return c.loopCount }
func (c *Clock) TickInLoop() uint64 { return c.tick }
func (c *Clock) DT() float64        { return c.dt }

// Advance moves the clock one fixed step. Reports whether the loop wrapped
// (the Looping transition).
func (c *Clock) Advance() bool {
	c.tick++
	if c.tick >= c.ticksPerLoop {
		c.tick -= c.ticksPerLoop
		c.loopCount++
		return true
	}
	return false
}

// ForceReset zeroes the clock without a Looping transition. Loop count is
// untouched; only arming a new recording calls this.
func (c *Clock) ForceReset() { c.tick = 0 }

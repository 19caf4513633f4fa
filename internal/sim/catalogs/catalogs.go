package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ability kinds. GAMBLE rolls a loot tier on hit; CHANNEL winds up over
// ChannelTicks fixed steps before resolving.
const (
	AbilityDamage  = "DAMAGE"
	AbilityHeal    = "HEAL"
	AbilityChannel = "CHANNEL"
	AbilityGamble  = "GAMBLE"
)

type AbilityDef struct {
	Slot             uint8  `yaml:"slot"`
	ID               string `yaml:"id"`
	Kind             string `yaml:"kind"`
	Power            int    `yaml:"power"`
	Cost             int    `yaml:"cost"`
	ChannelTicks     int    `yaml:"channel_ticks"`
	CritPermille     int    `yaml:"crit_permille"`
	VariancePermille int    `yaml:"variance_permille"`
	LootTiers        int    `yaml:"loot_tiers"`
}

type Abilities struct {
	Defs   []AbilityDef
	BySlot map[uint8]AbilityDef
	Digest string
}

func LoadAbilities(path string) (*Abilities, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []AbilityDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("abilities.yaml: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("abilities.yaml: empty catalog")
	}

	c := &Abilities{
		Defs:   defs,
		BySlot: make(map[uint8]AbilityDef, len(defs)),
		Digest: sha256Hex(raw),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("abilities.yaml: empty id")
		}
		switch d.Kind {
		case AbilityDamage, AbilityHeal, AbilityChannel, AbilityGamble:
		default:
			return nil, fmt.Errorf("abilities.yaml: %s: unknown kind %q", d.ID, d.Kind)
		}
		if d.Kind == AbilityChannel && d.ChannelTicks <= 0 {
			return nil, fmt.Errorf("abilities.yaml: %s: channel_ticks must be positive", d.ID)
		}
		if _, dup := c.BySlot[d.Slot]; dup {
			return nil, fmt.Errorf("abilities.yaml: duplicate slot %d", d.Slot)
		}
		c.BySlot[d.Slot] = d
	}
	return c, nil
}

func (c *Abilities) Slot(slot uint8) (AbilityDef, bool) {
	d, ok := c.BySlot[slot]
	return d, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

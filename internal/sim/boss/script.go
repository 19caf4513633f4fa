// Package boss provides the decision brains driving an arena's boss. The
// engine calls a brain at a fixed cadence and resolves the outcome itself;
// brains only pick what to do, never how much it hits for.
package boss

import (
	"fmt"
	"os"

	"github.com/Shopify/go-lua"

	"echoraid.gg/internal/sim/arena"
)

// ScriptBrain runs a Lua script exposing an on_decide(time, hp_permille,
// targets) function that returns (slot, target). A nil slot (or 0) means the
// boss idles this window.
//
// Scripts must be pure functions of their arguments: the loop count is never
// passed in, so a well-formed script behaves identically on every loop.
type ScriptBrain struct {
	state *lua.State
	fn    string
}

// LoadScript compiles path into a ready brain. The script runs once at load
// time to define its globals.
func LoadScript(path string) (*ScriptBrain, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewScriptBrain(string(src))
}

// NewScriptBrain compiles a script from source.
func NewScriptBrain(src string) (*ScriptBrain, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	if err := lua.LoadString(state, src); err != nil {
		return nil, fmt.Errorf("boss script: %w", err)
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("boss script: %w", err)
	}
	state.Global("on_decide")
	defined := state.IsFunction(-1)
	state.Pop(1)
	if !defined {
		return nil, fmt.Errorf("boss script: on_decide is not defined")
	}
	return &ScriptBrain{state: state, fn: "on_decide"}, nil
}

// Decide calls the script. A script error yields an idle decision; the engine
// logs nothing here because the decision path must stay allocation-light.
func (b *ScriptBrain) Decide(in arena.BossInput) arena.BossDecision {
	s := b.state
	s.Global(b.fn)
	s.PushNumber(in.Time)
	s.PushInteger(in.HPPermille)
	s.PushInteger(in.Targets)
	if err := s.ProtectedCall(3, 2, 0); err != nil {
		return arena.BossDecision{}
	}
	slot, slotOK := s.ToInteger(-2)
	target, _ := s.ToInteger(-1)
	s.Pop(2)
	if !slotOK || slot <= 0 || slot > 255 {
		return arena.BossDecision{}
	}
	return arena.BossDecision{Cast: true, Slot: uint8(slot), Target: target}
}

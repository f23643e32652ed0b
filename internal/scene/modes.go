package scene

import (
	"slices"

	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// Mode is the state of the pointer interaction.
type Mode string

const (
	ModeIdle        Mode = "idle"
	ModeAddingLink  Mode = "adding_link"
	ModePrepareMove Mode = "prepare_move"
	ModeMoving      Mode = "moving"
	ModeScaling     Mode = "scaling"
)

// TransitionHook is called after a mode transition.
type TransitionHook func(from, to Mode)

type modeHookKey struct {
	from, to Mode
}

// ValidModeTransitions defines the allowed interaction transitions.
var ValidModeTransitions = map[Mode][]Mode{
	ModeIdle:        {ModePrepareMove, ModeAddingLink, ModeScaling},
	ModePrepareMove: {ModeMoving, ModeIdle},
	ModeMoving:      {ModeIdle},
	ModeScaling:     {ModeIdle},
	ModeAddingLink:  {ModeIdle},
}

// modeMachine tracks the interaction mode. It is owned by one Scene and
// not safe for concurrent use.
type modeMachine struct {
	cur   Mode
	after map[modeHookKey][]TransitionHook
}

func newModeMachine() *modeMachine {
	return &modeMachine{cur: ModeIdle, after: make(map[modeHookKey][]TransitionHook)}
}

func (m *modeMachine) onAfter(from, to Mode, hook TransitionHook) {
	key := modeHookKey{from, to}
	m.after[key] = append(m.after[key], hook)
}

// transition moves to the next mode. Staying in the current mode is a no-op.
func (m *modeMachine) transition(to Mode) error {
	from := m.cur
	if from == to {
		return nil
	}
	if !slices.Contains(ValidModeTransitions[from], to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid interaction transition: %s -> %s", from, to).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}
	m.cur = to
	for _, hook := range m.after[modeHookKey{from, to}] {
		hook(from, to)
	}
	for _, hook := range m.after[modeHookKey{"", to}] {
		hook(from, to)
	}
	return nil
}

// reset forces Idle, e.g. when the diagram is replaced mid-gesture.
func (m *modeMachine) reset() { m.cur = ModeIdle }

package l4detect

import (
	"fmt"
	"strings"
)

// StateType is one of the fixed behaviour states.
type StateType uint8

const (
	Pause StateType = iota
	Linger
	Rush
	Walk
	Scan
	Focus
	LookUp
	LookDown
	Attend
	Occupy
	Noticed
	Entered

	NumStates int = iota
)

// Shape distinguishes states with a duration from instantaneous ones.
type Shape uint8

const (
	ShapeDuration Shape = iota
	ShapePoint
)

var stateNames = [NumStates]string{
	Pause:    "pause",
	Linger:   "linger",
	Rush:     "rush",
	Walk:     "walk",
	Scan:     "scan",
	Focus:    "focus",
	LookUp:   "lookUp",
	LookDown: "lookDown",
	Attend:   "attend",
	Occupy:   "occupy",
	Noticed:  "noticed",
	Entered:  "entered",
}

// Shape returns whether s has a duration or is a point event.
func (s StateType) Shape() Shape {
	switch s {
	case Noticed, Entered:
		return ShapePoint
	}
	return ShapeDuration
}

// Valid reports whether s is a defined state.
func (s StateType) Valid() bool {
	return int(s) < NumStates
}

func (s StateType) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", uint8(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name, so it reads well as a JSON value or
// map key.
func (s StateType) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %d", uint8(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a state name.
func (s *StateType) UnmarshalText(b []byte) error {
	st, ok := ParseStateType(string(b))
	if !ok {
		return fmt.Errorf("unknown state %q", string(b))
	}
	*s = st
	return nil
}

// ParseStateType looks up a state by name (case-insensitive).
func ParseStateType(name string) (StateType, bool) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return StateType(i), true
		}
	}
	return 0, false
}

// AllStates returns every state in declaration order.
func AllStates() []StateType {
	out := make([]StateType, NumStates)
	for i := range out {
		out[i] = StateType(i)
	}
	return out
}

// StateMask is a set of states.
type StateMask uint16

// DurationMask and PointMask partition the taxonomy by shape.
const (
	DurationMask StateMask = 1<<Pause | 1<<Linger | 1<<Rush | 1<<Walk | 1<<Scan |
		1<<Focus | 1<<LookUp | 1<<LookDown | 1<<Attend | 1<<Occupy
	PointMask StateMask = 1<<Noticed | 1<<Entered
)

// MaskOf builds a mask from states.
func MaskOf(states ...StateType) StateMask {
	var m StateMask
	for _, s := range states {
		m = m.With(s)
	}
	return m
}

// Has reports whether s is in the mask.
func (m StateMask) Has(s StateType) bool {
	return m&(1<<s) != 0
}

// With returns the mask with s added.
func (m StateMask) With(s StateType) StateMask {
	return m | 1<<s
}

// States lists the members in declaration order.
func (m StateMask) States() []StateType {
	var out []StateType
	for i := 0; i < NumStates; i++ {
		if m.Has(StateType(i)) {
			out = append(out, StateType(i))
		}
	}
	return out
}

func (m StateMask) String() string {
	states := m.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}

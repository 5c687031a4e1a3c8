package core

import (
	"fmt"
	"strings"
)

// Cycle names a point of the host's repeating loop at which queued work is
// executed.
type Cycle int

const (
	// CycleDefault items run during the next drain of any cycle.
	CycleDefault Cycle = iota
	CycleUpdate
	CycleFixedUpdate
	CycleLateUpdate
	CycleTick

	numCycles
)

var cycleNames = [numCycles]string{
	CycleDefault:     "Default",
	CycleUpdate:      "Update",
	CycleFixedUpdate: "FixedUpdate",
	CycleLateUpdate:  "LateUpdate",
	CycleTick:        "Tick",
}

func (c Cycle) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Cycle(%d)", int(c))
	}
	return cycleNames[c]
}

// Valid reports whether c is one of the enumerated cycles.
func (c Cycle) Valid() bool {
	return c >= 0 && c < numCycles
}

// Cycles returns every cycle a host may drain, in declaration order.
func Cycles() []Cycle {
	out := make([]Cycle, 0, numCycles)
	for c := range numCycles {
		out = append(out, c)
	}
	return out
}

// ParseCycle resolves a cycle by its case-insensitive name.
func ParseCycle(name string) (Cycle, error) {
	for c, n := range cycleNames {
		if strings.EqualFold(n, name) {
			return Cycle(c), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCycle, name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Cycle) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCycle, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cycle) UnmarshalText(text []byte) error {
	parsed, err := ParseCycle(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

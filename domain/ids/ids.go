// Package ids generates stable, human-readable state identifiers.
package ids

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Generator produces deterministic state IDs of the form
// "<label> [<machine-index>:<state-index>]". A Generator is bound to one
// compiled machine; the machine-index is assigned once, at creation, from
// a process-wide monotonic counter so that two machines compiled in the
// same process never collide, while a single machine's state-index
// sequence restarts at zero for stable snapshots.
type Generator struct {
	machineIndex int
	mu           sync.Mutex
	stateIndex   int
}

var (
	processMu    sync.Mutex
	nextMachine  int
)

// NewGenerator allocates the next machine index and returns a Generator
// for one compiled machine.
func NewGenerator() *Generator {
	processMu.Lock()
	idx := nextMachine
	nextMachine++
	processMu.Unlock()

	return &Generator{machineIndex: idx}
}

// MachineIndex returns the machine index assigned to this generator.
func (g *Generator) MachineIndex() int {
	return g.machineIndex
}

// Next returns the next state ID for the given human-readable label.
func (g *Generator) Next(label string) string {
	g.mu.Lock()
	idx := g.stateIndex
	g.stateIndex++
	g.mu.Unlock()

	return fmt.Sprintf("%s [%d:%d]", label, g.machineIndex, idx)
}

// StateIndex extracts the numeric state-index suffix from an ID produced
// by Next, e.g. "step1 [0:3]" -> 3. Returns -1 if the ID isn't in the
// expected shape, so callers can sort malformed IDs last rather than
// panicking on untrusted input.
func StateIndex(id string) int {
	open := strings.LastIndexByte(id, '[')
	close := strings.LastIndexByte(id, ']')
	if open < 0 || close < 0 || close < open {
		return -1
	}
	inner := id[open+1 : close]
	colon := strings.LastIndexByte(inner, ':')
	if colon < 0 {
		return -1
	}
	n, err := strconv.Atoi(inner[colon+1:])
	if err != nil {
		return -1
	}
	return n
}

// ResetProcessCounter resets the process-wide machine-index counter.
// Intended for tests that need deterministic machine indices across
// independent compilations within the same test binary.
func ResetProcessCounter() {
	processMu.Lock()
	nextMachine = 0
	processMu.Unlock()
}

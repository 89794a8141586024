// Package world declares the narrow contracts the scheduling core uses to read
// live state and to invoke action primitives. Implementations live outside the
// core; Sim is an in-memory implementation used by tests and simulation runs.
package world

import (
	"context"
	"fmt"
	"math"
)

// Point is a tile coordinate on a plane.
type Point struct {
	X     int `json:"x" yaml:"x"`
	Y     int `json:"y" yaml:"y"`
	Plane int `json:"plane,omitempty" yaml:"plane,omitempty"`
}

// String renders the point as (x, y, plane).
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Plane)
}

// Distance returns the Chebyshev distance between two points. Points on
// different planes are infinitely far apart.
func (p Point) Distance(other Point) int {
	if p.Plane != other.Plane {
		return math.MaxInt32
	}
	dx := p.X - other.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - other.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// State exposes the live values conditions and requirement checks read.
type State interface {
	Position() Point
	World() int
	// Count returns how many of item are held in slot. An empty slot means
	// anywhere.
	Count(item, slot string) int
	// Collected returns how many of item were gathered during the current run.
	Collected(item string) int
	Mode() string
	Probe(name string) (float64, bool)
	Flag(name string) bool
}

// Actions are the primitives fulfillment routines invoke. A nil error only
// means the action was accepted; callers re-check state to learn whether it
// took effect.
type Actions interface {
	MoveTo(ctx context.Context, target Point, useTransport bool) error
	SwitchWorld(ctx context.Context, world int) error
	Acquire(ctx context.Context, item string, quantity int, slot string) error
	Release(ctx context.Context, item string, quantity int) error
	SelectMode(ctx context.Context, mode string) error
	Collect(ctx context.Context, item string, amount int) error
}

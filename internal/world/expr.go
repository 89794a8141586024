package world

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expr is a compiled boolean expression over live state. Expressions can use:
//
//	count("logs"), countIn("axe", "equipment"), collected("feather"),
//	probe("hitpoints"), flag("bank_open"), mode, world, x, y, plane,
//	distance(x, y), elapsed (seconds)
type Expr struct {
	source  string
	program *vm.Program
}

// CompileExpr type-checks src against the state environment.
func CompileExpr(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, fmt.Errorf("world: expression is empty")
	}
	program, err := expr.Compile(trimmed, expr.Env(buildEnv(nil, 0)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("world: compile %q: %w", trimmed, err)
	}
	return &Expr{source: trimmed, program: program}, nil
}

// Source returns the expression text.
func (e *Expr) Source() string {
	if e == nil {
		return ""
	}
	return e.source
}

// Eval runs the expression against state. elapsed is exposed to the
// expression as seconds.
func (e *Expr) Eval(state State, elapsed time.Duration) (bool, error) {
	if e == nil || e.program == nil {
		return false, fmt.Errorf("world: expression not compiled")
	}
	if state == nil {
		return false, fmt.Errorf("world: %q evaluated without state", e.source)
	}
	out, err := expr.Run(e.program, buildEnv(state, elapsed))
	if err != nil {
		return false, fmt.Errorf("world: eval %q: %w", e.source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("world: %q returned %T, want bool", e.source, out)
	}
	return result, nil
}

func buildEnv(state State, elapsed time.Duration) map[string]any {
	if state == nil {
		state = emptyState{}
	}
	pos := state.Position()
	return map[string]any{
		"count":     func(item string) int { return state.Count(item, "") },
		"countIn":   func(item, slot string) int { return state.Count(item, slot) },
		"collected": func(item string) int { return state.Collected(item) },
		"probe": func(name string) float64 {
			v, _ := state.Probe(name)
			return v
		},
		"flag":     func(name string) bool { return state.Flag(name) },
		"distance": func(x, y int) int { return pos.Distance(Point{X: x, Y: y, Plane: pos.Plane}) },
		"mode":     state.Mode(),
		"world":    state.World(),
		"x":        pos.X,
		"y":        pos.Y,
		"plane":    pos.Plane,
		"elapsed":  elapsed.Seconds(),
	}
}

type emptyState struct{}

func (emptyState) Position() Point              { return Point{} }
func (emptyState) World() int                   { return 0 }
func (emptyState) Count(string, string) int     { return 0 }
func (emptyState) Collected(string) int         { return 0 }
func (emptyState) Mode() string                 { return "" }
func (emptyState) Probe(string) (float64, bool) { return 0, false }
func (emptyState) Flag(string) bool             { return false }

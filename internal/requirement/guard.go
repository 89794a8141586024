package requirement

import (
	"fmt"

	"github.com/kingrea/warden/internal/world"
)

// Guard decides whether a conditional step applies.
type Guard interface {
	Holds(state world.State) (bool, error)
	Describe() string
}

// GuardFunc adapts a function into a Guard.
type GuardFunc struct {
	Label string
	Fn    func(world.State) (bool, error)
}

func (g GuardFunc) Holds(state world.State) (bool, error) {
	if g.Fn == nil {
		return false, fmt.Errorf("guard %q has no function", g.Label)
	}
	return g.Fn(state)
}

func (g GuardFunc) Describe() string { return g.Label }

// ExprGuard holds when the compiled expression is true.
type ExprGuard struct {
	Expr *world.Expr
}

// NewExprGuard compiles src into a guard.
func NewExprGuard(src string) (ExprGuard, error) {
	compiled, err := world.CompileExpr(src)
	if err != nil {
		return ExprGuard{}, err
	}
	return ExprGuard{Expr: compiled}, nil
}

func (g ExprGuard) Holds(state world.State) (bool, error) {
	return g.Expr.Eval(state, 0)
}

func (g ExprGuard) Describe() string { return g.Expr.Source() }

// NotGuard inverts another guard.
type NotGuard struct {
	Guard Guard
}

func (g NotGuard) Holds(state world.State) (bool, error) {
	ok, err := g.Guard.Holds(state)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (g NotGuard) Describe() string { return "not " + g.Guard.Describe() }

// Always is a guard that always holds, useful as a final fallback step.
type Always struct{}

func (Always) Holds(world.State) (bool, error) { return true, nil }
func (Always) Describe() string                { return "always" }

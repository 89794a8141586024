package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/warden/internal/world"
)

// Leaf is a predicate refreshed from live state once per tick.
type Leaf interface {
	Refresh(env Env) (bool, error)
	Describe() string
}

// Resetter is implemented by leaves that carry per-run state.
type Resetter interface {
	Reset(now time.Time)
}

// Timer is true once Duration has elapsed since the last Reset. A timer that
// was never reset starts counting on its first refresh.
type Timer struct {
	Duration time.Duration
	started  time.Time
}

func (t *Timer) Refresh(env Env) (bool, error) {
	if t.started.IsZero() {
		t.started = env.Now
	}
	return env.Now.Sub(t.started) >= t.Duration, nil
}

func (t *Timer) Reset(now time.Time) { t.started = now }

func (t *Timer) Describe() string {
	return fmt.Sprintf("elapsed >= %s", t.Duration)
}

// Remaining reports how long until the timer fires, as of now.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if t.started.IsZero() {
		return t.Duration
	}
	left := t.Duration - now.Sub(t.started)
	if left < 0 {
		return 0
	}
	return left
}

func (t *Timer) Validate() error {
	if t.Duration < 0 {
		return fmt.Errorf("timer duration must not be negative")
	}
	return nil
}

// Count is true when at least Min of Item is held (in Slot when set).
type Count struct {
	Item string
	Slot string
	Min  int
}

func (c Count) Refresh(env Env) (bool, error) {
	if env.State == nil {
		return false, errNoState
	}
	return env.State.Count(c.Item, c.Slot) >= c.Min, nil
}

func (c Count) Describe() string {
	if c.Slot != "" {
		return fmt.Sprintf("%s in %s >= %d", c.Item, c.Slot, c.Min)
	}
	return fmt.Sprintf("%s >= %d", c.Item, c.Min)
}

func (c Count) Validate() error {
	if strings.TrimSpace(c.Item) == "" {
		return fmt.Errorf("count leaf requires an item")
	}
	return nil
}

// Collected is true when at least Min of Item has been gathered this run.
type Collected struct {
	Item string
	Min  int
}

func (c Collected) Refresh(env Env) (bool, error) {
	if env.State == nil {
		return false, errNoState
	}
	return env.State.Collected(c.Item) >= c.Min, nil
}

func (c Collected) Describe() string {
	return fmt.Sprintf("collected %s >= %d", c.Item, c.Min)
}

func (c Collected) Validate() error {
	if strings.TrimSpace(c.Item) == "" {
		return fmt.Errorf("collected leaf requires an item")
	}
	return nil
}

// Probe is true when the named numeric probe is at least Threshold, or at most
// Threshold when Below is set. A probe the state cannot read is an error.
type Probe struct {
	Name      string
	Threshold float64
	Below     bool
}

func (p Probe) Refresh(env Env) (bool, error) {
	if env.State == nil {
		return false, errNoState
	}
	v, ok := env.State.Probe(p.Name)
	if !ok {
		return false, fmt.Errorf("probe %q unavailable", p.Name)
	}
	if p.Below {
		return v <= p.Threshold, nil
	}
	return v >= p.Threshold, nil
}

func (p Probe) Describe() string {
	op := ">="
	if p.Below {
		op = "<="
	}
	return fmt.Sprintf("%s %s %g", p.Name, op, p.Threshold)
}

func (p Probe) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("probe leaf requires a name")
	}
	return nil
}

// Flag mirrors an externally reported boolean.
type Flag struct {
	Name string
}

func (f Flag) Refresh(env Env) (bool, error) {
	if env.State == nil {
		return false, errNoState
	}
	return env.State.Flag(f.Name), nil
}

func (f Flag) Describe() string { return "flag " + f.Name }

func (f Flag) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("flag leaf requires a name")
	}
	return nil
}

// Expr evaluates a compiled expression. elapsed inside the expression counts
// from the last Reset.
type Expr struct {
	Expr    *world.Expr
	started time.Time
}

// NewExpr compiles src into an expression leaf.
func NewExpr(src string) (*Expr, error) {
	compiled, err := world.CompileExpr(src)
	if err != nil {
		return nil, err
	}
	return &Expr{Expr: compiled}, nil
}

func (e *Expr) Refresh(env Env) (bool, error) {
	if e.started.IsZero() {
		e.started = env.Now
	}
	return e.Expr.Eval(env.State, env.Now.Sub(e.started))
}

func (e *Expr) Reset(now time.Time) { e.started = now }

func (e *Expr) Describe() string { return e.Expr.Source() }

func (e *Expr) Validate() error {
	if e.Expr == nil {
		return fmt.Errorf("expression leaf is not compiled")
	}
	return nil
}

// Func adapts a plain function into a leaf.
type Func struct {
	Label string
	Fn    func(Env) (bool, error)
}

func (f Func) Refresh(env Env) (bool, error) {
	if f.Fn == nil {
		return false, fmt.Errorf("func leaf has no function")
	}
	return f.Fn(env)
}

func (f Func) Describe() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

var errNoState = fmt.Errorf("no live state available")

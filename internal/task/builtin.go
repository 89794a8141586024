package task

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Built-in logic ids.
const (
	LogicGather = "gather"
	LogicIdle   = "idle"
)

// RegisterBuiltins installs the logic shipped with warden.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(LogicGather, newGather); err != nil {
		return err
	}
	return r.Register(LogicIdle, newIdle)
}

// Gather collects an item in batches until a target amount has been
// collected, then reports itself finished.
type Gather struct {
	Item     string
	Target   int
	PerStep  int
	steps    atomic.Int64
	reported atomic.Bool
}

func newGather(cfg Config) (Logic, error) {
	item := cfg.Text("item", "")
	if item == "" {
		return nil, fmt.Errorf("item is required")
	}
	target, err := cfg.Int("amount", 0)
	if err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	perStep, err := cfg.Int("per_step", 1)
	if err != nil {
		return nil, err
	}
	if perStep <= 0 {
		perStep = 1
	}
	return &Gather{Item: item, Target: target, PerStep: perStep}, nil
}

func (g *Gather) OnStart(context.Context, Env) error {
	g.steps.Store(0)
	g.reported.Store(false)
	return nil
}

func (g *Gather) Step(ctx context.Context, env Env) (Status, error) {
	g.steps.Add(1)
	have := env.State.Collected(g.Item)
	if have >= g.Target {
		if env.Reporter != nil && g.reported.CompareAndSwap(false, true) {
			env.Reporter.ReportFinished(fmt.Sprintf("collected %d %s", have, g.Item), ResultSuccess)
		}
		return Done, nil
	}
	amount := g.PerStep
	if left := g.Target - have; left < amount {
		amount = left
	}
	if err := env.Actions.Collect(ctx, g.Item, amount); err != nil {
		return Continue, fmt.Errorf("gather %s: %w", g.Item, err)
	}
	return Continue, nil
}

// QueryVersion implements Queryable.
func (g *Gather) QueryVersion() int { return 1 }

// Query exposes the gather target and step count.
func (g *Gather) Query(key string) (any, bool) {
	switch key {
	case "item":
		return g.Item, true
	case "target":
		return g.Target, true
	case "steps":
		return int(g.steps.Load()), true
	default:
		return nil, false
	}
}

// Idle does nothing for a fixed number of steps. Zero steps means forever,
// leaving the stop conditions to end the run.
type Idle struct {
	Steps int
	done  int
}

func newIdle(cfg Config) (Logic, error) {
	steps, err := cfg.Int("steps", 0)
	if err != nil {
		return nil, err
	}
	if steps < 0 {
		return nil, fmt.Errorf("steps must not be negative")
	}
	return &Idle{Steps: steps}, nil
}

func (i *Idle) OnStart(context.Context, Env) error {
	i.done = 0
	return nil
}

func (i *Idle) Step(context.Context, Env) (Status, error) {
	i.done++
	if i.Steps > 0 && i.done >= i.Steps {
		return Done, nil
	}
	return Continue, nil
}

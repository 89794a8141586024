package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/warden/internal/condition"
	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/world"
)

// Build turns a validated definition into a task, resolving its logic from
// logics and compiling every expression.
func Build(def TaskDefinition, logics *task.Registry) (*task.Task, error) {
	if logics == nil {
		return nil, fmt.Errorf("workflow: logic registry is required")
	}
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	fail := func(err error) (*task.Task, error) {
		return nil, fmt.Errorf("workflow: task %s: %w", def.Name, err)
	}
	trigger, err := task.ParseTrigger(def.Trigger.Kind, def.Trigger.Every, def.Trigger.At)
	if err != nil {
		return fail(err)
	}
	logic, err := logics.Resolve(def.Logic.ID, task.Config(cloneConfig(def.Logic.Config)))
	if err != nil {
		return fail(err)
	}
	start, err := BuildConditions(def.Start)
	if err != nil {
		return fail(fmt.Errorf("start: %w", err))
	}
	stop, err := BuildConditions(def.Stop)
	if err != nil {
		return fail(fmt.Errorf("stop: %w", err))
	}
	reqs, err := BuildRequirements(def.Requirements)
	if err != nil {
		return fail(err)
	}
	registry := requirement.NewRegistry()
	if err := registry.Rebuild(reqs); err != nil {
		return fail(err)
	}
	return &task.Task{
		Name:              def.Name,
		Description:       def.Description,
		Enabled:           def.IsEnabled(),
		Priority:          def.Priority,
		Default:           def.Default,
		Trigger:           trigger,
		Start:             start,
		Stop:              stop,
		Requirements:      registry,
		Logic:             logic,
		AllowHardStop:     def.AllowHardStop,
		ImmediateHardStop: def.ImmediateHardStop,
	}, nil
}

// BuildConditions compiles a flat list of conditions into a single-level And.
// An empty list yields a nil tree.
func BuildConditions(specs []ConditionSpec) (*condition.Node, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	nodes := make([]*condition.Node, 0, len(specs))
	for _, spec := range specs {
		node, err := BuildCondition(spec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	root := condition.FromList(nodes...)
	if err := condition.Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}

// BuildCondition compiles one condition spec into a node.
func BuildCondition(spec ConditionSpec) (*condition.Node, error) {
	children := func(specs []ConditionSpec) ([]*condition.Node, error) {
		nodes := make([]*condition.Node, 0, len(specs))
		for _, child := range specs {
			node, err := BuildCondition(child)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		return nodes, nil
	}
	var (
		node *condition.Node
		err  error
	)
	switch {
	case len(spec.All) > 0:
		var nodes []*condition.Node
		if nodes, err = children(spec.All); err == nil {
			node = condition.And(nodes...)
		}
	case len(spec.Any) > 0:
		var nodes []*condition.Node
		if nodes, err = children(spec.Any); err == nil {
			node = condition.Or(nodes...)
		}
	case spec.Not != nil:
		var child *condition.Node
		if child, err = BuildCondition(*spec.Not); err == nil {
			node = condition.Not(child)
		}
	case spec.Lock != nil:
		var child *condition.Node
		if child, err = BuildCondition(*spec.Lock); err == nil {
			node = condition.NewLock(leafName(spec.Name, "lock"), child)
		}
	case strings.TrimSpace(spec.Timer) != "":
		var d time.Duration
		d, err = time.ParseDuration(strings.TrimSpace(spec.Timer))
		if err == nil {
			leaf := &condition.Timer{Duration: d}
			node = condition.NewLeaf(leafName(spec.Name, leaf.Describe()), leaf)
		}
	case spec.Count != nil:
		leaf := condition.Count{Item: spec.Count.Item, Slot: spec.Count.Slot, Min: spec.Count.Min}
		node = condition.NewLeaf(leafName(spec.Name, leaf.Describe()), leaf)
	case spec.Collected != nil:
		leaf := condition.Collected{Item: spec.Collected.Item, Min: spec.Collected.Min}
		node = condition.NewLeaf(leafName(spec.Name, leaf.Describe()), leaf)
	case spec.Probe != nil:
		leaf := condition.Probe{Name: spec.Probe.Name, Threshold: spec.Probe.Threshold, Below: spec.Probe.Below}
		node = condition.NewLeaf(leafName(spec.Name, leaf.Describe()), leaf)
	case strings.TrimSpace(spec.Flag) != "":
		leaf := condition.Flag{Name: strings.TrimSpace(spec.Flag)}
		node = condition.NewLeaf(leafName(spec.Name, leaf.Describe()), leaf)
	case strings.TrimSpace(spec.Expr) != "":
		var leaf *condition.Expr
		if leaf, err = condition.NewExpr(spec.Expr); err == nil {
			node = condition.NewLeaf(leafName(spec.Name, leaf.Describe()), leaf)
		}
	default:
		err = fmt.Errorf("empty condition")
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func leafName(name, fallback string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return fallback
}

// BuildRequirements converts requirement specs and validates each result.
func BuildRequirements(specs []RequirementSpec) ([]requirement.Requirement, error) {
	reqs := make([]requirement.Requirement, 0, len(specs))
	for _, spec := range specs {
		req, err := BuildRequirement(spec)
		if err != nil {
			return nil, err
		}
		if err := requirement.Validate(req); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// BuildRequirement converts one requirement spec. Nested alternatives inherit
// the parent's priority and phase.
func BuildRequirement(spec RequirementSpec) (requirement.Requirement, error) {
	priority, err := requirement.ParsePriority(spec.Priority)
	if err != nil {
		return requirement.Requirement{}, &requirement.ConfigError{ID: spec.ID, Reason: err.Error()}
	}
	phase, err := requirement.ParsePhase(spec.Phase)
	if err != nil {
		return requirement.Requirement{}, &requirement.ConfigError{ID: spec.ID, Reason: err.Error()}
	}
	req := requirement.Requirement{
		ID:          strings.TrimSpace(spec.ID),
		Priority:    priority,
		Phase:       phase,
		Weight:      spec.Weight,
		Description: strings.TrimSpace(spec.Description),
	}
	nested := func(child RequirementSpec, suffix string) (requirement.Requirement, error) {
		if child.ID == "" {
			child.ID = req.ID + suffix
		}
		if child.Priority == "" {
			child.Priority = spec.Priority
		}
		if child.Phase == "" {
			child.Phase = spec.Phase
		}
		return BuildRequirement(child)
	}
	switch {
	case spec.Item != nil:
		req.Spec = requirement.ItemSpec{
			Item:     strings.TrimSpace(spec.Item.Name),
			Quantity: spec.Item.Quantity,
			Slot:     strings.TrimSpace(spec.Item.Slot),
			Deposit:  spec.Item.Deposit,
		}
	case spec.Location != nil:
		loc := spec.Location
		req.Spec = requirement.LocationSpec{
			Target:    world.Point{X: loc.X, Y: loc.Y, Plane: loc.Plane},
			Radius:    loc.Radius,
			Transport: loc.Transport,
			Worlds:    append([]int(nil), loc.Worlds...),
		}
	case strings.TrimSpace(spec.Mode) != "":
		req.Spec = requirement.ModeSpec{Mode: strings.TrimSpace(spec.Mode)}
	case len(spec.Loot) > 0:
		targets := make(map[string]int, len(spec.Loot))
		for item, amount := range spec.Loot {
			targets[strings.TrimSpace(item)] = amount
		}
		req.Spec = requirement.LootSpec{Targets: targets}
	case len(spec.Any) > 0:
		alts := make([]requirement.Requirement, 0, len(spec.Any))
		for i, alt := range spec.Any {
			built, err := nested(alt, fmt.Sprintf("/any%d", i+1))
			if err != nil {
				return requirement.Requirement{}, err
			}
			alts = append(alts, built)
		}
		req.Spec = requirement.OrSpec{Alternatives: alts}
	case len(spec.When) > 0:
		steps := make([]requirement.ConditionalStep, 0, len(spec.When))
		for i, branch := range spec.When {
			var guard requirement.Guard = requirement.Always{}
			if src := strings.TrimSpace(branch.If); src != "" {
				exprGuard, err := requirement.NewExprGuard(src)
				if err != nil {
					return requirement.Requirement{}, &requirement.ConfigError{ID: req.ID, Reason: fmt.Sprintf("when[%d]: %v", i, err)}
				}
				guard = exprGuard
			}
			then, err := nested(branch.Then, fmt.Sprintf("/when%d", i+1))
			if err != nil {
				return requirement.Requirement{}, err
			}
			steps = append(steps, requirement.ConditionalStep{
				Guard:       guard,
				Requirement: then,
				Description: strings.TrimSpace(branch.Description),
			})
		}
		req.Spec = requirement.ConditionalSpec{Steps: steps}
	default:
		return requirement.Requirement{}, &requirement.ConfigError{ID: req.ID, Reason: "no requirement kind set"}
	}
	return req, nil
}

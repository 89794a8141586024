package requirement

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingrea/warden/internal/world"
)

// Satisfied reports whether the requirement currently holds.
func Satisfied(r Requirement, state world.State) (bool, error) {
	if state == nil {
		return false, fmt.Errorf("requirement %s: no live state", r.ID)
	}
	return satisfied(r.Spec, state)
}

func satisfied(spec Spec, state world.State) (bool, error) {
	switch s := spec.(type) {
	case ItemSpec:
		held := state.Count(s.Item, s.Slot)
		if s.Deposit {
			return held == 0, nil
		}
		return held >= s.Quantity, nil
	case LocationSpec:
		if !s.onAllowedWorld(state.World()) {
			return false, nil
		}
		if s.switching {
			return true, nil
		}
		return state.Position().Distance(s.Target) <= s.Radius, nil
	case ModeSpec:
		return state.Mode() == s.Mode, nil
	case LootSpec:
		for _, item := range s.items() {
			if state.Collected(item) < s.Targets[item] {
				return false, nil
			}
		}
		return true, nil
	case OrSpec:
		var firstErr error
		for _, alt := range s.Alternatives {
			ok, err := satisfied(alt.Spec, state)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	case ConditionalSpec:
		bound, ok, err := bindConditional(s, state)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		return satisfied(bound.Spec, state)
	default:
		return false, fmt.Errorf("unsupported spec %T", spec)
	}
}

func (s LocationSpec) onAllowedWorld(current int) bool {
	if len(s.Worlds) == 0 {
		return true
	}
	for _, w := range s.Worlds {
		if w == current {
			return true
		}
	}
	return false
}

// Bind resolves conditional requirements against state, following nested
// conditionals. It returns false when no guard matched, in which case there is
// nothing to do. Other kinds bind to themselves.
func Bind(r Requirement, state world.State) (Requirement, bool, error) {
	spec, ok := r.Spec.(ConditionalSpec)
	if !ok {
		return r, true, nil
	}
	return bindConditional(spec, state)
}

func bindConditional(spec ConditionalSpec, state world.State) (Requirement, bool, error) {
	for i, step := range spec.Steps {
		holds, err := step.Guard.Holds(state)
		if err != nil {
			return Requirement{}, false, fmt.Errorf("step %d guard %q: %w", i, step.Guard.Describe(), err)
		}
		if !holds {
			continue
		}
		bound := step.Requirement
		if bound.Description == "" {
			bound.Description = step.Description
		}
		return Bind(bound, state)
	}
	return Requirement{}, false, nil
}

// Fulfill performs the actions needed to make the requirement hold.
func Fulfill(ctx context.Context, r Requirement, state world.State, actions world.Actions) error {
	committed, err := Commit(ctx, r, state, actions)
	if err != nil || !Staged(committed) {
		return err
	}
	if ok, _ := Satisfied(committed, state); !ok {
		return nil
	}
	_, err = Commit(ctx, r, state, actions)
	return err
}

// Staged reports whether a committed requirement covers only the first stage
// of its work, a world switch ahead of a move. Once the staged requirement is
// satisfied the original must be committed again.
func Staged(r Requirement) bool {
	loc, ok := r.Spec.(LocationSpec)
	return ok && loc.switching
}

// Commit is Fulfill that also returns the requirement actually acted on: the
// bound step of a conditional or the chosen alternative of an or. Callers
// re-check the committed requirement on later ticks. A conditional with no
// matching guard commits to itself, which is satisfied by definition.
func Commit(ctx context.Context, r Requirement, state world.State, actions world.Actions) (Requirement, error) {
	if actions == nil {
		return r, fmt.Errorf("requirement %s: no action primitives", r.ID)
	}
	switch s := r.Spec.(type) {
	case ConditionalSpec:
		bound, ok, err := bindConditional(s, state)
		if err != nil {
			return r, fmt.Errorf("requirement %s: %w", r.ID, err)
		}
		if !ok {
			return r, nil
		}
		if bound.ID == "" {
			bound.ID = r.ID
		}
		return Commit(ctx, bound, state, actions)
	case OrSpec:
		chosen, err := s.Attempt(ctx, state, actions)
		if err != nil {
			return r, fmt.Errorf("requirement %s: %w", r.ID, err)
		}
		if chosen.ID == "" {
			chosen.ID = r.ID
		}
		return chosen, nil
	case ItemSpec:
		held := state.Count(s.Item, s.Slot)
		if s.Deposit {
			if held == 0 {
				return r, nil
			}
			return r, wrapAction(r, actions.Release(ctx, s.Item, held))
		}
		missing := s.Quantity - held
		if missing <= 0 {
			return r, nil
		}
		return r, wrapAction(r, actions.Acquire(ctx, s.Item, missing, s.Slot))
	case LocationSpec:
		if !s.onAllowedWorld(state.World()) {
			if err := actions.SwitchWorld(ctx, s.Worlds[0]); err != nil {
				return r, wrapAction(r, err)
			}
			s.switching = true
			staged := r
			staged.Spec = s
			return staged, nil
		}
		if state.Position().Distance(s.Target) <= s.Radius {
			return r, nil
		}
		return r, wrapAction(r, actions.MoveTo(ctx, s.Target, s.Transport))
	case ModeSpec:
		return r, wrapAction(r, actions.SelectMode(ctx, s.Mode))
	case LootSpec:
		for _, item := range s.items() {
			missing := s.Targets[item] - state.Collected(item)
			if missing <= 0 {
				continue
			}
			if err := actions.Collect(ctx, item, missing); err != nil {
				return r, wrapAction(r, err)
			}
		}
		return r, nil
	default:
		return r, fmt.Errorf("requirement %s: unsupported spec %T", r.ID, r.Spec)
	}
}

// Attempt commits to one alternative. An alternative that already holds wins
// without any action. Otherwise alternatives are fulfilled in order and the
// first whose action succeeds is returned; later ones are not touched.
func (s OrSpec) Attempt(ctx context.Context, state world.State, actions world.Actions) (Requirement, error) {
	for _, alt := range s.Alternatives {
		ok, err := satisfied(alt.Spec, state)
		if err == nil && ok {
			return alt, nil
		}
	}
	var errs []error
	for _, alt := range s.Alternatives {
		chosen, err := Commit(ctx, alt, state, actions)
		if err == nil {
			return chosen, nil
		}
		if ctx.Err() != nil {
			return Requirement{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", alt.Label(), err))
	}
	return Requirement{}, fmt.Errorf("no alternative could be fulfilled: %w", errors.Join(errs...))
}

func wrapAction(r Requirement, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("requirement %s (%s): %w", r.ID, r.Spec.Kind(), err)
}

package resolver

import (
	"fmt"

	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/world"
)

// StepState represents the resolver's understanding of a requirement.
type StepState string

const (
	StepStateUnknown   StepState = "unknown"
	StepStatePending   StepState = "pending"
	StepStateSatisfied StepState = "satisfied"
	StepStateError     StepState = "error"
)

// Step is one requirement in plan order.
type Step struct {
	Index       int
	Requirement requirement.Requirement
	State       StepState
	Err         error
}

// Plan is the ordered walk over one phase of a generation. The generation is
// captured when the plan is built, so a rebuild of the registry never changes
// an in-flight plan.
type Plan struct {
	phase   requirement.Phase
	version uint64
	steps   []*Step
}

// New builds the plan for phase from gen: kinds in fulfillment order, each
// bucket in registry order.
func New(gen *requirement.Generation, phase requirement.Phase) (*Plan, error) {
	if gen == nil {
		return nil, fmt.Errorf("resolver: requirement generation is required")
	}
	reqs := gen.Phase(phase)
	steps := make([]*Step, len(reqs))
	for i, req := range reqs {
		steps[i] = &Step{Index: i, Requirement: req, State: StepStateUnknown}
	}
	return &Plan{phase: phase, version: gen.Version(), steps: steps}, nil
}

// Phase returns the phase this plan walks.
func (p *Plan) Phase() requirement.Phase { return p.phase }

// Version is the registry generation the plan was built from.
func (p *Plan) Version() uint64 { return p.version }

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Steps returns the steps in order.
func (p *Plan) Steps() []*Step {
	out := make([]*Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Step returns the step at index i.
func (p *Plan) Step(i int) (*Step, bool) {
	if i < 0 || i >= len(p.steps) {
		return nil, false
	}
	return p.steps[i], true
}

// Refresh re-evaluates every step against state.
func (p *Plan) Refresh(state world.State) {
	for _, step := range p.steps {
		step.Err = nil
		ok, err := requirement.Satisfied(step.Requirement, state)
		switch {
		case err != nil:
			step.State = StepStateError
			step.Err = err
		case ok:
			step.State = StepStateSatisfied
		default:
			step.State = StepStatePending
		}
	}
}

// Pending returns the steps that are not yet satisfied, in plan order.
func (p *Plan) Pending() []*Step {
	var pending []*Step
	for _, step := range p.steps {
		if step.State != StepStateSatisfied {
			pending = append(pending, step)
		}
	}
	return pending
}

// Summary counts steps by state.
type Summary struct {
	Total            int
	Satisfied        int
	Pending          int
	Errors           int
	MandatoryPending int
}

// Summarize counts the step states from the last Refresh.
func (p *Plan) Summarize() Summary {
	s := Summary{Total: len(p.steps)}
	for _, step := range p.steps {
		switch step.State {
		case StepStateSatisfied:
			s.Satisfied++
			continue
		case StepStateError:
			s.Errors++
		default:
			s.Pending++
		}
		if step.Requirement.Priority == requirement.Mandatory {
			s.MandatoryPending++
		}
	}
	return s
}

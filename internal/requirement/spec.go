package requirement

import (
	"sort"

	"github.com/kingrea/warden/internal/world"
)

// Spec is the sealed set of requirement variants.
type Spec interface {
	Kind() Kind
	clone() Spec
}

// ItemSpec requires possession of Quantity of Item, in Slot when set. With
// Deposit it instead requires that none is held, releasing what is.
type ItemSpec struct {
	Item     string
	Quantity int
	Slot     string
	Deposit  bool
}

func (ItemSpec) Kind() Kind    { return KindItem }
func (s ItemSpec) clone() Spec { return s }

// LocationSpec requires presence within Radius of Target on one of Worlds
// (any world when empty).
type LocationSpec struct {
	Target    world.Point
	Radius    int
	Transport bool
	Worlds    []int

	// switching marks a commit that only changed world; the move follows.
	switching bool
}

func (LocationSpec) Kind() Kind { return KindLocation }

func (s LocationSpec) clone() Spec {
	s.Worlds = append([]int(nil), s.Worlds...)
	return s
}

// ModeSpec requires the named operating mode to be selected.
type ModeSpec struct {
	Mode string
}

func (ModeSpec) Kind() Kind    { return KindMode }
func (s ModeSpec) clone() Spec { return s }

// LootSpec requires that each target item has been collected in at least the
// given amount.
type LootSpec struct {
	Targets map[string]int
}

func (LootSpec) Kind() Kind { return KindLoot }

func (s LootSpec) clone() Spec {
	targets := make(map[string]int, len(s.Targets))
	for k, v := range s.Targets {
		targets[k] = v
	}
	return LootSpec{Targets: targets}
}

func (s LootSpec) items() []string {
	items := make([]string, 0, len(s.Targets))
	for item := range s.Targets {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

// OrSpec is satisfied by any one of its alternatives.
type OrSpec struct {
	Alternatives []Requirement
}

func (OrSpec) Kind() Kind { return KindOr }

func (s OrSpec) clone() Spec {
	alts := make([]Requirement, len(s.Alternatives))
	for i, alt := range s.Alternatives {
		alts[i] = alt.Clone()
	}
	return OrSpec{Alternatives: alts}
}

// ConditionalStep pairs a guard with the requirement it selects.
type ConditionalStep struct {
	Guard       Guard
	Requirement Requirement
	Description string
}

// ConditionalSpec binds to the first step whose guard holds.
type ConditionalSpec struct {
	Steps []ConditionalStep
}

func (ConditionalSpec) Kind() Kind { return KindConditional }

func (s ConditionalSpec) clone() Spec {
	steps := make([]ConditionalStep, len(s.Steps))
	for i, step := range s.Steps {
		steps[i] = step
		steps[i].Requirement = step.Requirement.Clone()
	}
	return ConditionalSpec{Steps: steps}
}

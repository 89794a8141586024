package requirement

import (
	"fmt"
	"strings"
)

// Priority orders requirements inside a bucket. Lower sorts first.
type Priority int

const (
	Mandatory Priority = iota
	Recommended
)

func (p Priority) String() string {
	switch p {
	case Mandatory:
		return "mandatory"
	case Recommended:
		return "recommended"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority accepts the names produced by String.
func ParsePriority(value string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "mandatory":
		return Mandatory, nil
	case "recommended":
		return Recommended, nil
	default:
		return Mandatory, fmt.Errorf("requirement: unknown priority %q", value)
	}
}

// Phase places a requirement before or after the task's main logic.
type Phase int

const (
	Pre Phase = iota
	Post
)

func (p Phase) String() string {
	switch p {
	case Pre:
		return "pre"
	case Post:
		return "post"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ParsePhase accepts the names produced by String.
func ParsePhase(value string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "pre":
		return Pre, nil
	case "post":
		return Post, nil
	default:
		return Pre, fmt.Errorf("requirement: unknown phase %q", value)
	}
}

// Kind identifies the Spec variant. The declaration order is the order in
// which kinds are fulfilled inside a phase.
type Kind int

const (
	KindConditional Kind = iota
	KindLoot
	KindItem
	KindOr
	KindMode
	KindLocation
)

// FulfillmentOrder lists every kind in the order a phase walks them.
var FulfillmentOrder = []Kind{KindConditional, KindLoot, KindItem, KindOr, KindMode, KindLocation}

func (k Kind) String() string {
	switch k {
	case KindConditional:
		return "conditional"
	case KindLoot:
		return "loot"
	case KindItem:
		return "item"
	case KindOr:
		return "or"
	case KindMode:
		return "mode"
	case KindLocation:
		return "location"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Requirement is one declared precondition or postcondition.
type Requirement struct {
	ID          string
	Priority    Priority
	Weight      int
	Phase       Phase
	Description string
	Spec        Spec
}

// Kind returns the variant tag of the requirement's spec.
func (r Requirement) Kind() Kind {
	if r.Spec == nil {
		return Kind(-1)
	}
	return r.Spec.Kind()
}

// Label is the description, falling back to the id.
func (r Requirement) Label() string {
	if r.Description != "" {
		return r.Description
	}
	if r.ID != "" {
		return r.ID
	}
	if r.Spec != nil {
		return r.Spec.Kind().String()
	}
	return "requirement"
}

// Clone returns a deep copy so registry generations never share mutable
// slices or maps with callers.
func (r Requirement) Clone() Requirement {
	clone := r
	if r.Spec != nil {
		clone.Spec = r.Spec.clone()
	}
	return clone
}

// Less orders by priority and then ordering weight.
func Less(a, b Requirement) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Weight < b.Weight
}

// ConfigError reports a malformed requirement definition.
type ConfigError struct {
	ID     string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.ID == "" {
		return "requirement: " + e.Reason
	}
	return fmt.Sprintf("requirement %s: %s", e.ID, e.Reason)
}

// Validate rejects requirements the engine could not act on.
func Validate(r Requirement) error {
	if strings.TrimSpace(r.ID) == "" {
		return &ConfigError{Reason: "id is required"}
	}
	if r.Priority != Mandatory && r.Priority != Recommended {
		return &ConfigError{ID: r.ID, Reason: fmt.Sprintf("invalid priority %d", int(r.Priority))}
	}
	if r.Phase != Pre && r.Phase != Post {
		return &ConfigError{ID: r.ID, Reason: fmt.Sprintf("invalid phase %d", int(r.Phase))}
	}
	if err := validateSpec(r.Spec, 0); err != nil {
		return &ConfigError{ID: r.ID, Reason: err.Error()}
	}
	return nil
}

const maxNesting = 8

func validateSpec(spec Spec, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("nesting deeper than %d", maxNesting)
	}
	switch s := spec.(type) {
	case nil:
		return fmt.Errorf("spec is required")
	case ItemSpec:
		if strings.TrimSpace(s.Item) == "" {
			return fmt.Errorf("item is required")
		}
		if !s.Deposit && s.Quantity <= 0 {
			return fmt.Errorf("quantity must be positive")
		}
		if s.Quantity < 0 {
			return fmt.Errorf("quantity must not be negative")
		}
	case LocationSpec:
		if s.Radius < 0 {
			return fmt.Errorf("radius must not be negative")
		}
		for _, w := range s.Worlds {
			if w <= 0 {
				return fmt.Errorf("invalid world %d", w)
			}
		}
	case ModeSpec:
		if strings.TrimSpace(s.Mode) == "" {
			return fmt.Errorf("mode is required")
		}
	case LootSpec:
		if len(s.Targets) == 0 {
			return fmt.Errorf("loot requires at least one target")
		}
		for item, amount := range s.Targets {
			if strings.TrimSpace(item) == "" || amount <= 0 {
				return fmt.Errorf("invalid loot target %q=%d", item, amount)
			}
		}
	case OrSpec:
		if len(s.Alternatives) == 0 {
			return fmt.Errorf("or requires at least one alternative")
		}
		for i, alt := range s.Alternatives {
			if err := validateSpec(alt.Spec, depth+1); err != nil {
				return fmt.Errorf("alternative %d: %w", i, err)
			}
		}
	case ConditionalSpec:
		if len(s.Steps) == 0 {
			return fmt.Errorf("conditional requires at least one step")
		}
		for i, step := range s.Steps {
			if step.Guard == nil {
				return fmt.Errorf("step %d: guard is required", i)
			}
			if err := validateSpec(step.Requirement.Spec, depth+1); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unsupported spec %T", spec)
	}
	return nil
}

package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// DefinitionSet is the content of one definition file: shared defaults plus
// the tasks declared in it.
type DefinitionSet struct {
	Defaults TaskDefinition   `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Tasks    []TaskDefinition `json:"tasks" yaml:"tasks"`
}

// TaskDefinition declares a task: its trigger, the logic it runs, when it may
// start, when it should stop, and what it needs before and after running.
type TaskDefinition struct {
	Name              string            `json:"name" yaml:"name"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled           *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Priority          int               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Default           bool              `json:"default,omitempty" yaml:"default,omitempty"`
	Trigger           TriggerSpec       `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Logic             LogicRef          `json:"logic" yaml:"logic"`
	AllowHardStop     bool              `json:"allow_hard_stop,omitempty" yaml:"allow_hard_stop,omitempty"`
	ImmediateHardStop bool              `json:"immediate_hard_stop,omitempty" yaml:"immediate_hard_stop,omitempty"`
	Start             []ConditionSpec   `json:"start,omitempty" yaml:"start,omitempty"`
	Stop              []ConditionSpec   `json:"stop,omitempty" yaml:"stop,omitempty"`
	Requirements      []RequirementSpec `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

// IsEnabled reports the effective enabled flag. Tasks are enabled unless a
// definition says otherwise.
func (def TaskDefinition) IsEnabled() bool {
	return def.Enabled == nil || *def.Enabled
}

// TriggerSpec selects a task.Trigger.
type TriggerSpec struct {
	Kind  string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Every string `json:"every,omitempty" yaml:"every,omitempty"`
	At    string `json:"at,omitempty" yaml:"at,omitempty"`
}

// LogicRef names a registered logic factory and its configuration.
type LogicRef struct {
	ID     string         `json:"id" yaml:"id"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// ConditionSpec is one node of a condition tree. Exactly one of the fields
// other than Name must be set.
type ConditionSpec struct {
	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	All       []ConditionSpec `json:"all,omitempty" yaml:"all,omitempty"`
	Any       []ConditionSpec `json:"any,omitempty" yaml:"any,omitempty"`
	Not       *ConditionSpec  `json:"not,omitempty" yaml:"not,omitempty"`
	Lock      *ConditionSpec  `json:"lock,omitempty" yaml:"lock,omitempty"`
	Timer     string          `json:"timer,omitempty" yaml:"timer,omitempty"`
	Count     *CountSpec      `json:"count,omitempty" yaml:"count,omitempty"`
	Collected *CollectedSpec  `json:"collected,omitempty" yaml:"collected,omitempty"`
	Probe     *ProbeSpec      `json:"probe,omitempty" yaml:"probe,omitempty"`
	Flag      string          `json:"flag,omitempty" yaml:"flag,omitempty"`
	Expr      string          `json:"expr,omitempty" yaml:"expr,omitempty"`
}

type CountSpec struct {
	Item string `json:"item" yaml:"item"`
	Slot string `json:"slot,omitempty" yaml:"slot,omitempty"`
	Min  int    `json:"min" yaml:"min"`
}

type CollectedSpec struct {
	Item string `json:"item" yaml:"item"`
	Min  int    `json:"min" yaml:"min"`
}

type ProbeSpec struct {
	Name      string  `json:"name" yaml:"name"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Below     bool    `json:"below,omitempty" yaml:"below,omitempty"`
}

// kinds lists which node kinds are set, in a stable order.
func (spec ConditionSpec) kinds() []string {
	var kinds []string
	if len(spec.All) > 0 {
		kinds = append(kinds, "all")
	}
	if len(spec.Any) > 0 {
		kinds = append(kinds, "any")
	}
	if spec.Not != nil {
		kinds = append(kinds, "not")
	}
	if spec.Lock != nil {
		kinds = append(kinds, "lock")
	}
	if strings.TrimSpace(spec.Timer) != "" {
		kinds = append(kinds, "timer")
	}
	if spec.Count != nil {
		kinds = append(kinds, "count")
	}
	if spec.Collected != nil {
		kinds = append(kinds, "collected")
	}
	if spec.Probe != nil {
		kinds = append(kinds, "probe")
	}
	if strings.TrimSpace(spec.Flag) != "" {
		kinds = append(kinds, "flag")
	}
	if strings.TrimSpace(spec.Expr) != "" {
		kinds = append(kinds, "expr")
	}
	return kinds
}

// RequirementSpec declares one requirement. Exactly one of item, location,
// mode, loot, any and when must be set.
type RequirementSpec struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Phase       string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Weight      int    `json:"weight,omitempty" yaml:"weight,omitempty"`

	Item     *ItemRequirement       `json:"item,omitempty" yaml:"item,omitempty"`
	Location *LocationRequirement   `json:"location,omitempty" yaml:"location,omitempty"`
	Mode     string                 `json:"mode,omitempty" yaml:"mode,omitempty"`
	Loot     map[string]int         `json:"loot,omitempty" yaml:"loot,omitempty"`
	Any      []RequirementSpec      `json:"any,omitempty" yaml:"any,omitempty"`
	When     []ConditionalAlternate `json:"when,omitempty" yaml:"when,omitempty"`
}

type ItemRequirement struct {
	Name     string `json:"name" yaml:"name"`
	Quantity int    `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Slot     string `json:"slot,omitempty" yaml:"slot,omitempty"`
	Deposit  bool   `json:"deposit,omitempty" yaml:"deposit,omitempty"`
}

type LocationRequirement struct {
	X         int   `json:"x" yaml:"x"`
	Y         int   `json:"y" yaml:"y"`
	Plane     int   `json:"plane,omitempty" yaml:"plane,omitempty"`
	Radius    int   `json:"radius,omitempty" yaml:"radius,omitempty"`
	Transport bool  `json:"transport,omitempty" yaml:"transport,omitempty"`
	Worlds    []int `json:"worlds,omitempty" yaml:"worlds,omitempty"`
}

// ConditionalAlternate is one guarded branch of a conditional requirement. An
// empty If always holds.
type ConditionalAlternate struct {
	If          string          `json:"if,omitempty" yaml:"if,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Then        RequirementSpec `json:"then" yaml:"then"`
}

func (spec RequirementSpec) kinds() []string {
	var kinds []string
	if spec.Item != nil {
		kinds = append(kinds, "item")
	}
	if spec.Location != nil {
		kinds = append(kinds, "location")
	}
	if strings.TrimSpace(spec.Mode) != "" {
		kinds = append(kinds, "mode")
	}
	if len(spec.Loot) > 0 {
		kinds = append(kinds, "loot")
	}
	if len(spec.Any) > 0 {
		kinds = append(kinds, "any")
	}
	if len(spec.When) > 0 {
		kinds = append(kinds, "when")
	}
	return kinds
}

// DefinitionError reports a malformed task definition.
type DefinitionError struct {
	Task   string
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.Task == "" {
		return "workflow: " + e.Reason
	}
	return fmt.Sprintf("workflow: task %s: %s", e.Task, e.Reason)
}

// Normalized trims identifiers and fills in requirement ids that were left
// blank.
func (def TaskDefinition) Normalized() TaskDefinition {
	clone := def.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	clone.Description = strings.TrimSpace(clone.Description)
	clone.Logic.ID = strings.TrimSpace(clone.Logic.ID)
	clone.Trigger.Kind = strings.ToLower(strings.TrimSpace(clone.Trigger.Kind))
	for i := range clone.Requirements {
		req := &clone.Requirements[i]
		req.ID = strings.TrimSpace(req.ID)
		if req.ID == "" {
			req.ID = fmt.Sprintf("%s-%d", clone.Name, i+1)
		}
	}
	return clone
}

// Validate checks the definition's shape. Expression compilation and logic
// resolution happen in Build.
func (def TaskDefinition) Validate() error {
	if strings.TrimSpace(def.Name) == "" {
		return &DefinitionError{Reason: "name is required"}
	}
	if strings.TrimSpace(def.Logic.ID) == "" {
		return &DefinitionError{Task: def.Name, Reason: "logic.id is required"}
	}
	if def.ImmediateHardStop && !def.AllowHardStop {
		return &DefinitionError{Task: def.Name, Reason: "immediate_hard_stop requires allow_hard_stop"}
	}
	for i, spec := range def.Start {
		if err := validateCondition(spec, fmt.Sprintf("start[%d]", i)); err != nil {
			return &DefinitionError{Task: def.Name, Reason: err.Error()}
		}
	}
	for i, spec := range def.Stop {
		if err := validateCondition(spec, fmt.Sprintf("stop[%d]", i)); err != nil {
			return &DefinitionError{Task: def.Name, Reason: err.Error()}
		}
	}
	seen := map[string]struct{}{}
	for i, spec := range def.Requirements {
		if err := validateRequirement(spec, fmt.Sprintf("requirements[%d]", i)); err != nil {
			return &DefinitionError{Task: def.Name, Reason: err.Error()}
		}
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return &DefinitionError{Task: def.Name, Reason: fmt.Sprintf("duplicate requirement id %s", id)}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateCondition(spec ConditionSpec, path string) error {
	kinds := spec.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("%s: empty condition", path)
	case 1:
	default:
		return fmt.Errorf("%s: condition sets %s, want exactly one", path, strings.Join(kinds, ", "))
	}
	for i, child := range spec.All {
		if err := validateCondition(child, fmt.Sprintf("%s.all[%d]", path, i)); err != nil {
			return err
		}
	}
	for i, child := range spec.Any {
		if err := validateCondition(child, fmt.Sprintf("%s.any[%d]", path, i)); err != nil {
			return err
		}
	}
	if spec.Not != nil {
		return validateCondition(*spec.Not, path+".not")
	}
	if spec.Lock != nil {
		return validateCondition(*spec.Lock, path+".lock")
	}
	return nil
}

func validateRequirement(spec RequirementSpec, path string) error {
	kinds := spec.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("%s: requirement sets no kind", path)
	case 1:
	default:
		return fmt.Errorf("%s: requirement sets %s, want exactly one", path, strings.Join(kinds, ", "))
	}
	for i, alt := range spec.Any {
		if err := validateRequirement(alt, fmt.Sprintf("%s.any[%d]", path, i)); err != nil {
			return err
		}
	}
	for i, branch := range spec.When {
		if err := validateRequirement(branch.Then, fmt.Sprintf("%s.when[%d].then", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the definition.
func (def TaskDefinition) Clone() TaskDefinition {
	clone := def
	if def.Enabled != nil {
		enabled := *def.Enabled
		clone.Enabled = &enabled
	}
	clone.Logic.Config = cloneConfig(def.Logic.Config)
	clone.Start = cloneConditions(def.Start)
	clone.Stop = cloneConditions(def.Stop)
	if len(def.Requirements) > 0 {
		clone.Requirements = make([]RequirementSpec, len(def.Requirements))
		for i, req := range def.Requirements {
			clone.Requirements[i] = req.Clone()
		}
	}
	return clone
}

// Clone returns a deep copy of the condition spec.
func (spec ConditionSpec) Clone() ConditionSpec {
	clone := spec
	clone.All = cloneConditions(spec.All)
	clone.Any = cloneConditions(spec.Any)
	if spec.Not != nil {
		not := spec.Not.Clone()
		clone.Not = &not
	}
	if spec.Lock != nil {
		lock := spec.Lock.Clone()
		clone.Lock = &lock
	}
	if spec.Count != nil {
		count := *spec.Count
		clone.Count = &count
	}
	if spec.Collected != nil {
		collected := *spec.Collected
		clone.Collected = &collected
	}
	if spec.Probe != nil {
		probe := *spec.Probe
		clone.Probe = &probe
	}
	return clone
}

// Clone returns a deep copy of the requirement spec.
func (spec RequirementSpec) Clone() RequirementSpec {
	clone := spec
	if spec.Item != nil {
		item := *spec.Item
		clone.Item = &item
	}
	if spec.Location != nil {
		loc := *spec.Location
		loc.Worlds = append([]int(nil), spec.Location.Worlds...)
		clone.Location = &loc
	}
	if len(spec.Loot) > 0 {
		clone.Loot = make(map[string]int, len(spec.Loot))
		for item, amount := range spec.Loot {
			clone.Loot[item] = amount
		}
	}
	if len(spec.Any) > 0 {
		clone.Any = make([]RequirementSpec, len(spec.Any))
		for i, alt := range spec.Any {
			clone.Any[i] = alt.Clone()
		}
	}
	if len(spec.When) > 0 {
		clone.When = make([]ConditionalAlternate, len(spec.When))
		for i, branch := range spec.When {
			clone.When[i] = branch
			clone.When[i].Then = branch.Then.Clone()
		}
	}
	return clone
}

func cloneConditions(specs []ConditionSpec) []ConditionSpec {
	if len(specs) == 0 {
		return nil
	}
	out := make([]ConditionSpec, len(specs))
	for i, spec := range specs {
		out[i] = spec.Clone()
	}
	return out
}

func cloneConfig(cfg map[string]any) map[string]any {
	if len(cfg) == 0 {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for key, value := range cfg {
		out[key] = value
	}
	return out
}

// TaskNames returns the names declared in the set, sorted.
func (set DefinitionSet) TaskNames() []string {
	names := make([]string, 0, len(set.Tasks))
	for _, def := range set.Tasks {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

package condition

import "fmt"

// ConfigError reports a malformed tree.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "condition: " + e.Reason
	}
	return fmt.Sprintf("condition: %s: %s", e.Path, e.Reason)
}

// Validate checks the structural invariants of a tree: no nil nodes, Not with
// exactly one child, Lock with exactly one child, leaves with a predicate, and
// no back-references. Shared subtrees are allowed.
func Validate(n *Node) error {
	if n == nil {
		return &ConfigError{Reason: "tree is nil"}
	}
	return validate(n, "root", map[*Node]bool{})
}

func validate(n *Node, path string, onPath map[*Node]bool) error {
	if n == nil {
		return &ConfigError{Path: path, Reason: "nil node"}
	}
	if onPath[n] {
		return &ConfigError{Path: path, Reason: "cycle detected"}
	}
	switch n.Kind {
	case KindLeaf:
		if n.Leaf == nil {
			return &ConfigError{Path: path, Reason: "leaf has no predicate"}
		}
		if len(n.Children) > 0 {
			return &ConfigError{Path: path, Reason: "leaf cannot have children"}
		}
		if v, ok := n.Leaf.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return &ConfigError{Path: path, Reason: err.Error()}
			}
		}
		return nil
	case KindAnd, KindOr:
	case KindNot:
		if len(n.Children) != 1 {
			return &ConfigError{Path: path, Reason: fmt.Sprintf("not requires exactly one child, got %d", len(n.Children))}
		}
	case KindLock:
		if len(n.Children) != 1 {
			return &ConfigError{Path: path, Reason: "lock requires exactly one child"}
		}
	default:
		return &ConfigError{Path: path, Reason: fmt.Sprintf("unknown node kind %d", int(n.Kind))}
	}
	onPath[n] = true
	defer delete(onPath, n)
	for i, child := range n.Children {
		childPath := fmt.Sprintf("%s.%s[%d]", path, n.Kind, i)
		if err := validate(child, childPath, onPath); err != nil {
			return err
		}
	}
	return nil
}

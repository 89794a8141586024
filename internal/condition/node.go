package condition

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kingrea/warden/internal/world"
)

// Kind tags the node variant.
type Kind int

const (
	KindLeaf Kind = iota
	KindAnd
	KindOr
	KindNot
	KindLock
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	case KindLock:
		return "lock"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Env carries the inputs a leaf needs to refresh itself.
type Env struct {
	Now   time.Time
	State world.State
}

// Node is one element of a condition tree. Only the fields relevant to Kind
// are meaningful.
type Node struct {
	Kind     Kind
	Name     string
	Children []*Node
	Leaf     Leaf

	// leaf cache, written by OnCheck on the tick goroutine only
	value bool
	fault error

	locked atomic.Bool
}

// NewLeaf wraps a predicate in a leaf node.
func NewLeaf(name string, leaf Leaf) *Node {
	return &Node{Kind: KindLeaf, Name: name, Leaf: leaf}
}

// And is true when every child is true. No children means true.
func And(children ...*Node) *Node {
	return &Node{Kind: KindAnd, Children: children}
}

// Or is true when any child is true. No children means false.
func Or(children ...*Node) *Node {
	return &Node{Kind: KindOr, Children: children}
}

// Not negates its single child.
func Not(child *Node) *Node {
	return &Node{Kind: KindNot, Children: []*Node{child}}
}

// NewLock wraps child in a manually controlled override. While locked the
// node evaluates false whatever the child says.
func NewLock(name string, child *Node) *Node {
	n := &Node{Kind: KindLock, Name: name}
	if child != nil {
		n.Children = []*Node{child}
	}
	return n
}

// FromList builds the flat list-of-conditions form: a single-level And.
func FromList(nodes ...*Node) *Node {
	return And(nodes...)
}

// Lock engages the override. It is safe to call from any goroutine.
func (n *Node) Lock() { n.locked.Store(true) }

// Unlock releases the override.
func (n *Node) Unlock() { n.locked.Store(false) }

// Toggle flips the override and returns the new locked state.
func (n *Node) Toggle() bool {
	for {
		cur := n.locked.Load()
		if n.locked.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

// Locked reports whether the override is engaged.
func (n *Node) Locked() bool { return n.locked.Load() }

// Fault returns the error from the last refresh of a leaf, if any.
func (n *Node) Fault() error {
	if n == nil {
		return nil
	}
	return n.fault
}

func (n *Node) label() string {
	if n.Name != "" {
		return n.Name
	}
	if n.Kind == KindLeaf && n.Leaf != nil {
		return n.Leaf.Describe()
	}
	return strings.ToUpper(n.Kind.String())
}

// Evaluate folds the tree to a boolean using the leaf values captured by the
// most recent OnCheck. A nil tree is false.
func Evaluate(n *Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindLeaf:
		return n.fault == nil && n.value
	case KindAnd:
		for _, child := range n.Children {
			if !Evaluate(child) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range n.Children {
			if Evaluate(child) {
				return true
			}
		}
		return false
	case KindNot:
		if len(n.Children) != 1 {
			return false
		}
		return !Evaluate(n.Children[0])
	case KindLock:
		if n.Locked() || len(n.Children) == 0 {
			return false
		}
		return Evaluate(n.Children[0])
	default:
		return false
	}
}

// LeafError records a leaf that failed to refresh.
type LeafError struct {
	Leaf string
	Err  error
}

func (e LeafError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Leaf, e.Err)
}

func (e LeafError) Unwrap() error { return e.Err }

// OnCheck refreshes every leaf from env. Failures are captured per leaf: the
// leaf is marked faulted (so it evaluates false) and the error is returned for
// logging. Panics inside a leaf are treated the same way.
func OnCheck(n *Node, env Env) []LeafError {
	var errs []LeafError
	walk(n, func(node *Node) {
		if node.Kind != KindLeaf {
			return
		}
		value, err := refreshLeaf(node, env)
		node.value = value
		node.fault = err
		if err != nil {
			errs = append(errs, LeafError{Leaf: node.label(), Err: err})
		}
	})
	return errs
}

func refreshLeaf(n *Node, env Env) (value bool, err error) {
	if n.Leaf == nil {
		return false, fmt.Errorf("leaf has no predicate")
	}
	defer func() {
		if r := recover(); r != nil {
			value = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.Leaf.Refresh(env)
}

// Reset restarts stateful leaves such as timers. Call it when a run starts.
func Reset(n *Node, now time.Time) {
	walk(n, func(node *Node) {
		if node.Kind != KindLeaf {
			return
		}
		node.value = false
		node.fault = nil
		if r, ok := node.Leaf.(Resetter); ok {
			r.Reset(now)
		}
	})
}

// FindAllLocks collects every Lock node in the tree in depth-first order.
func FindAllLocks(n *Node) []*Node {
	var locks []*Node
	walk(n, func(node *Node) {
		if node.Kind == KindLock {
			locks = append(locks, node)
		}
	})
	return locks
}

// AnyLocked reports whether any Lock node in the tree is engaged.
func AnyLocked(n *Node) bool {
	for _, lock := range FindAllLocks(n) {
		if lock.Locked() {
			return true
		}
	}
	return false
}

// Progress counts leaves whose last refresh was true against all leaves.
func Progress(n *Node) (met, total int) {
	walk(n, func(node *Node) {
		if node.Kind != KindLeaf {
			return
		}
		total++
		if node.fault == nil && node.value {
			met++
		}
	})
	return met, total
}

// Describe renders the tree as indented status text.
func Describe(n *Node) string {
	if n == nil {
		return "(none)"
	}
	var b strings.Builder
	describe(&b, n, 0, map[*Node]bool{})
	return strings.TrimRight(b.String(), "\n")
}

func describe(b *strings.Builder, n *Node, depth int, seen map[*Node]bool) {
	indent := strings.Repeat("  ", depth)
	if n == nil {
		fmt.Fprintf(b, "%s(nil)\n", indent)
		return
	}
	if seen[n] {
		fmt.Fprintf(b, "%s%s (cycle)\n", indent, n.label())
		return
	}
	seen[n] = true
	defer delete(seen, n)

	status := "[NOT SATISFIED]"
	if Evaluate(n) {
		status = "[SATISFIED]"
	}
	switch n.Kind {
	case KindLeaf:
		line := fmt.Sprintf("%s%s %s", indent, status, n.label())
		if n.fault != nil {
			line += fmt.Sprintf(" (error: %v)", n.fault)
		}
		b.WriteString(line + "\n")
		return
	case KindLock:
		state := "unlocked"
		if n.Locked() {
			state = "LOCKED"
		}
		fmt.Fprintf(b, "%s%s %s [%s]\n", indent, status, n.label(), state)
	default:
		fmt.Fprintf(b, "%s%s %s\n", indent, status, strings.ToUpper(n.Kind.String()))
	}
	for _, child := range n.Children {
		describe(b, child, depth+1, seen)
	}
}

// walk visits every reachable node once, tolerating shared subtrees and
// cycles so that it can run on trees that have not been validated.
func walk(n *Node, fn func(*Node)) {
	seen := map[*Node]bool{}
	var visit func(*Node)
	visit = func(node *Node) {
		if node == nil || seen[node] {
			return
		}
		seen[node] = true
		fn(node)
		for _, child := range node.Children {
			visit(child)
		}
	}
	visit(n)
}

package condition

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/warden/internal/world"
)

func fixed(v bool) *Node {
	return NewLeaf("", Func{Label: "fixed", Fn: func(Env) (bool, error) { return v, nil }})
}

func TestEmptyCompositeIdentities(t *testing.T) {
	if !Evaluate(And()) {
		t.Fatalf("empty and should be true")
	}
	if Evaluate(Or()) {
		t.Fatalf("empty or should be false")
	}
	if Evaluate(nil) {
		t.Fatalf("nil tree should be false")
	}
}

func TestEvaluateIsStableForUnchangedLeaves(t *testing.T) {
	tree := Or(And(fixed(true), Not(fixed(false))), fixed(false))
	OnCheck(tree, Env{Now: time.Now()})
	first := Evaluate(tree)
	for i := 0; i < 5; i++ {
		if got := Evaluate(tree); got != first {
			t.Fatalf("evaluation %d = %v, want %v", i, got, first)
		}
	}
	if !first {
		t.Fatalf("expected tree to be true")
	}
}

func TestLockOverridesChild(t *testing.T) {
	lock := NewLock("hold", fixed(true))
	OnCheck(lock, Env{Now: time.Now()})
	if !Evaluate(lock) {
		t.Fatalf("unlocked lock should mirror its child")
	}
	lock.Lock()
	if Evaluate(lock) {
		t.Fatalf("locked lock should be false")
	}
	lock.Unlock()
	if !Evaluate(lock) {
		t.Fatalf("unlock should take effect immediately")
	}
	if !lock.Toggle() || !lock.Locked() {
		t.Fatalf("toggle should engage the lock")
	}
}

func TestTimerWithLockScenario(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sim := world.NewSim()
	timer := NewLeaf("ten minutes", &Timer{Duration: 10 * time.Minute})
	tree := And(timer, Not(NewLeaf("locked", Flag{Name: "locked"})))
	Reset(tree, start)

	check := func(offset time.Duration) bool {
		if errs := OnCheck(tree, Env{Now: start.Add(offset), State: sim}); len(errs) > 0 {
			t.Fatalf("unexpected leaf errors: %v", errs)
		}
		return Evaluate(tree)
	}

	if check(9*time.Minute + 59*time.Second) {
		t.Fatalf("expected false at 9:59")
	}
	sim.SetFlag("locked", true)
	if check(10 * time.Minute) {
		t.Fatalf("expected false at 10:00 while locked")
	}
	sim.SetFlag("locked", false)
	if !check(10*time.Minute + time.Second) {
		t.Fatalf("expected true at 10:01 after unlocking")
	}
}

func TestTimerWithLockNodeScenario(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tree := NewLock("manual", And(NewLeaf("", &Timer{Duration: 10 * time.Minute})))
	Reset(tree, start)
	OnCheck(tree, Env{Now: start.Add(9*time.Minute + 59*time.Second)})
	if Evaluate(tree) {
		t.Fatalf("expected false at 9:59")
	}
	tree.Lock()
	OnCheck(tree, Env{Now: start.Add(10 * time.Minute)})
	if Evaluate(tree) {
		t.Fatalf("expected false at 10:00 while locked")
	}
	tree.Unlock()
	OnCheck(tree, Env{Now: start.Add(10*time.Minute + time.Second)})
	if !Evaluate(tree) {
		t.Fatalf("expected true at 10:01 after unlocking")
	}
}

func TestOnCheckCapturesErrorsAndPanics(t *testing.T) {
	boom := errors.New("boom")
	failing := NewLeaf("failing", Func{Fn: func(Env) (bool, error) { return true, boom }})
	panicking := NewLeaf("panicking", Func{Fn: func(Env) (bool, error) { panic("kaboom") }})
	tree := Or(failing, panicking)

	errs := OnCheck(tree, Env{Now: time.Now()})
	if len(errs) != 2 {
		t.Fatalf("expected two leaf errors, got %d", len(errs))
	}
	if !errors.Is(errs[0], boom) {
		t.Fatalf("expected wrapped leaf error, got %v", errs[0])
	}
	if !strings.Contains(errs[1].Error(), "kaboom") {
		t.Fatalf("expected panic to be reported, got %v", errs[1])
	}
	if Evaluate(tree) {
		t.Fatalf("faulted leaves must evaluate false")
	}
	if failing.Fault() == nil {
		t.Fatalf("expected leaf to be marked faulted")
	}
}

func TestProbeLeafMissingProbeFaults(t *testing.T) {
	sim := world.NewSim()
	leaf := NewLeaf("", Probe{Name: "hitpoints", Threshold: 10, Below: true})
	if errs := OnCheck(leaf, Env{Now: time.Now(), State: sim}); len(errs) != 1 {
		t.Fatalf("expected missing probe to fault, got %v", errs)
	}
	sim.SetProbe("hitpoints", 8)
	if errs := OnCheck(leaf, Env{Now: time.Now(), State: sim}); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !Evaluate(leaf) {
		t.Fatalf("expected probe below threshold to hold")
	}
}

func TestExprLeafSeesLiveState(t *testing.T) {
	sim := world.NewSim()
	leaf, err := NewExpr(`count("logs") >= 5 || flag("done")`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	node := NewLeaf("logs", leaf)
	OnCheck(node, Env{Now: time.Now(), State: sim})
	if Evaluate(node) {
		t.Fatalf("expected false with no logs")
	}
	sim.SetCount("logs", "inventory", 5)
	OnCheck(node, Env{Now: time.Now(), State: sim})
	if !Evaluate(node) {
		t.Fatalf("expected true once logs are held")
	}
}

func TestFindAllLocks(t *testing.T) {
	inner := NewLock("inner", fixed(true))
	outer := NewLock("outer", And(fixed(true), Or(inner, fixed(false))))
	locks := FindAllLocks(outer)
	if len(locks) != 2 || locks[0] != outer || locks[1] != inner {
		t.Fatalf("unexpected locks: %v", locks)
	}
	if len(FindAllLocks(And(fixed(true)))) != 0 {
		t.Fatalf("expected no locks")
	}
	inner.Lock()
	if !AnyLocked(outer) {
		t.Fatalf("expected AnyLocked to see inner lock")
	}
}

func TestValidate(t *testing.T) {
	cyclic := And(fixed(true))
	cyclic.Children = append(cyclic.Children, Or(cyclic))
	shared := fixed(true)

	cases := []struct {
		name    string
		tree    *Node
		wantErr bool
	}{
		{"valid", And(Not(fixed(false)), NewLock("l", fixed(true))), false},
		{"shared subtree", And(shared, Or(shared)), false},
		{"nil root", nil, true},
		{"nil child", And(nil), true},
		{"not without child", &Node{Kind: KindNot}, true},
		{"not with two children", &Node{Kind: KindNot, Children: []*Node{fixed(true), fixed(false)}}, true},
		{"lock without child", NewLock("l", nil), true},
		{"leaf without predicate", &Node{Kind: KindLeaf}, true},
		{"count without item", NewLeaf("", Count{Min: 1}), true},
		{"cycle", cyclic, true},
	}
	for _, tc := range cases {
		err := Validate(tc.tree)
		if tc.wantErr {
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("%s: expected ConfigError, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestProgressAndDescribe(t *testing.T) {
	lock := NewLock("hold", fixed(true))
	tree := FromList(fixed(true), fixed(false), lock)
	OnCheck(tree, Env{Now: time.Now()})
	met, total := Progress(tree)
	if met != 2 || total != 3 {
		t.Fatalf("progress = %d/%d, want 2/3", met, total)
	}
	lock.Lock()
	text := Describe(tree)
	for _, want := range []string{"[NOT SATISFIED] AND", "hold [LOCKED]", "[SATISFIED] fixed"} {
		if !strings.Contains(text, want) {
			t.Fatalf("describe output missing %q:\n%s", want, text)
		}
	}
}

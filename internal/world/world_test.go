package world

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPointDistance(t *testing.T) {
	cases := []struct {
		a, b Point
		want int
	}{
		{Point{X: 0, Y: 0}, Point{X: 3, Y: 4}, 4},
		{Point{X: 10, Y: 10}, Point{X: 10, Y: 10}, 0},
		{Point{X: -2, Y: 5}, Point{X: 3, Y: 5}, 5},
	}
	for _, tc := range cases {
		if got := tc.a.Distance(tc.b); got != tc.want {
			t.Fatalf("%v -> %v = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
	if got := (Point{Plane: 1}).Distance(Point{}); got < 1000 {
		t.Fatalf("cross-plane distance = %d, want effectively infinite", got)
	}
}

func TestSimLatencyDefersEffects(t *testing.T) {
	sim := NewSim()
	sim.SetLatency(2)
	if err := sim.Acquire(context.Background(), "axe", 1, "equipment"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := sim.Count("axe", ""); got != 0 {
		t.Fatalf("count before advance = %d, want 0", got)
	}
	sim.Advance()
	if got := sim.Count("axe", ""); got != 0 {
		t.Fatalf("count after one tick = %d, want 0", got)
	}
	sim.Advance()
	if got := sim.Count("axe", "equipment"); got != 1 {
		t.Fatalf("count after two ticks = %d, want 1", got)
	}
	if sim.Calls(ActionAcquire) != 1 {
		t.Fatalf("expected one acquire call, got %d", sim.Calls(ActionAcquire))
	}
}

func TestSimRefuseAndBlock(t *testing.T) {
	sim := NewSim()
	boom := errors.New("boom")
	sim.Refuse(ActionSelectMode, boom)
	if err := sim.SelectMode(context.Background(), "ancient"); !errors.Is(err, boom) {
		t.Fatalf("expected refusal, got %v", err)
	}
	sim.Refuse(ActionSelectMode, nil)
	sim.Block("dragon bones")
	if err := sim.Acquire(context.Background(), "dragon bones", 5, ""); err != nil {
		t.Fatalf("blocked acquire should be accepted: %v", err)
	}
	if sim.Count("dragon bones", "") != 0 {
		t.Fatalf("blocked item should never arrive")
	}
}

func TestExprEvaluatesAgainstState(t *testing.T) {
	sim := NewSim()
	sim.SetCount("logs", "inventory", 27)
	sim.SetProbe("hitpoints", 40)
	sim.SetMode("standard")
	e, err := CompileExpr(`count("logs") >= 27 && probe("hitpoints") > 30 && mode == "standard" && elapsed >= 60`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok, err := e.Eval(sim, time.Minute)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Fatalf("expected expression to hold")
	}
	ok, err = e.Eval(sim, 59*time.Second)
	if err != nil || ok {
		t.Fatalf("expected false before a minute elapsed, got %v (%v)", ok, err)
	}
}

func TestCompileExprRejectsNonBoolean(t *testing.T) {
	if _, err := CompileExpr(`count("logs") + 1`); err == nil {
		t.Fatalf("expected non-boolean expression to be rejected")
	}
	if _, err := CompileExpr("   "); err == nil {
		t.Fatalf("expected empty expression to be rejected")
	}
}

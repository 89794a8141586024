package resolver

import (
	"testing"

	"github.com/kingrea/warden/internal/requirement"
	"github.com/kingrea/warden/internal/world"
)

func newGeneration(t *testing.T, reqs ...requirement.Requirement) *requirement.Generation {
	t.Helper()
	reg := requirement.NewRegistry()
	if err := reg.Rebuild(reqs); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	return reg.Snapshot()
}

func TestPlanOrdersByKindThenRegistry(t *testing.T) {
	gen := newGeneration(t,
		requirement.Requirement{ID: "spot", Spec: requirement.LocationSpec{Radius: 3}},
		requirement.Requirement{ID: "book", Spec: requirement.ModeSpec{Mode: "standard"}},
		requirement.Requirement{ID: "food", Priority: requirement.Recommended, Spec: requirement.ItemSpec{Item: "trout", Quantity: 5}},
		requirement.Requirement{ID: "axe", Spec: requirement.ItemSpec{Item: "axe", Quantity: 1}},
		requirement.Requirement{ID: "bank", Phase: requirement.Post, Spec: requirement.ItemSpec{Item: "logs", Deposit: true}},
	)
	plan, err := New(gen, requirement.Pre)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	var got []string
	for _, step := range plan.Steps() {
		got = append(got, step.Requirement.ID)
	}
	want := []string{"axe", "food", "book", "spot"}
	if len(got) != len(want) {
		t.Fatalf("plan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plan = %v, want %v", got, want)
		}
	}
	if plan.Version() != gen.Version() {
		t.Fatalf("plan version mismatch")
	}
}

func TestPlanRefreshAndSummary(t *testing.T) {
	gen := newGeneration(t,
		requirement.Requirement{ID: "axe", Spec: requirement.ItemSpec{Item: "axe", Quantity: 1}},
		requirement.Requirement{ID: "food", Priority: requirement.Recommended, Spec: requirement.ItemSpec{Item: "trout", Quantity: 5}},
		requirement.Requirement{ID: "book", Spec: requirement.ModeSpec{Mode: "standard"}},
	)
	plan, err := New(gen, requirement.Pre)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	sim := world.NewSim()
	sim.SetCount("axe", "equipment", 1)
	plan.Refresh(sim)
	summary := plan.Summarize()
	if summary.Total != 3 || summary.Satisfied != 1 || summary.Pending != 2 || summary.MandatoryPending != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	pending := plan.Pending()
	if len(pending) != 2 || pending[0].Requirement.ID != "food" {
		t.Fatalf("unexpected pending steps: %+v", pending)
	}
}

func TestNewRequiresGeneration(t *testing.T) {
	if _, err := New(nil, requirement.Pre); err == nil {
		t.Fatalf("expected error for nil generation")
	}
}

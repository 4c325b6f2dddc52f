package vecplan

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"github.com/orizon-lang/vecplan/internal/position"
)

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", want)
		}
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, want) {
			t.Fatalf("panic = %v, want substring %q", r, want)
		}
	}()
	fn()
}

// notRecipe builds a trivial detached recipe for structural tests.
func notRecipe(p *Plan, in ValueID) RecipeID {
	return p.NewInstruction(OpNot, types.I1, in)
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b := p.NewBlock(p.TopRegion(), "body")

	r := notRecipe(p, in)
	if got := p.Parent(r); got != NoBlock {
		t.Fatalf("new recipe parent = %v, want detached", got)
	}

	p.AppendRecipe(b, r)
	if got := p.Parent(r); got != b {
		t.Fatalf("parent after append = %v, want %v", got, b)
	}
	if got := len(p.Recipes(b)); got != 1 {
		t.Fatalf("block recipe count = %d, want 1", got)
	}

	p.RemoveFromParent(r)
	if got := p.Parent(r); got != NoBlock {
		t.Fatalf("parent after remove = %v, want detached", got)
	}
	if got := len(p.Recipes(b)); got != 0 {
		t.Fatalf("block recipe count after remove = %d, want 0", got)
	}

	// Detached recipes can be reinserted.
	p.AppendRecipe(b, r)
	if got := p.Parent(r); got != b {
		t.Fatalf("parent after reinsert = %v, want %v", got, b)
	}
}

func TestInsertBeforeAfterOrdering(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b := p.NewBlock(p.TopRegion(), "body")

	r1 := notRecipe(p, in)
	r2 := notRecipe(p, in)
	r3 := notRecipe(p, in)

	p.AppendRecipe(b, r2)
	p.InsertBefore(r1, r2)
	p.InsertAfter(r3, r2)

	want := []RecipeID{r1, r2, r3}
	got := p.Recipes(b)
	if len(got) != len(want) {
		t.Fatalf("recipe count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipes[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDoubleAttachPanics(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b := p.NewBlock(p.TopRegion(), "body")

	r := notRecipe(p, in)
	p.AppendRecipe(b, r)
	mustPanic(t, "already in some block", func() {
		p.AppendRecipe(b, r)
	})
}

func TestDetachedPositionPanics(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")

	pos := notRecipe(p, in) // never attached
	r := notRecipe(p, in)
	mustPanic(t, "insertion position not in any block", func() {
		p.InsertBefore(r, pos)
	})
}

func TestRemoveDetachedPanics(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")

	r := notRecipe(p, in)
	mustPanic(t, "not in any block", func() {
		p.RemoveFromParent(r)
	})
}

func TestMoveBetweenBlocks(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b1 := p.NewBlock(p.TopRegion(), "first")
	b2 := p.NewBlock(p.TopRegion(), "second")

	r := notRecipe(p, in)
	anchor := notRecipe(p, in)
	p.AppendRecipe(b1, r)
	p.AppendRecipe(b2, anchor)

	p.MoveBefore(r, anchor)
	if got := p.Parent(r); got != b2 {
		t.Fatalf("parent after move = %v, want %v", got, b2)
	}
	if got := len(p.Recipes(b1)); got != 0 {
		t.Fatalf("source block still holds %d recipes", got)
	}
	if got := p.Recipes(b2); got[0] != r || got[1] != anchor {
		t.Fatalf("destination order = %v, want [%v %v]", got, r, anchor)
	}
}

func TestEraseFromParent(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b := p.NewBlock(p.TopRegion(), "body")

	r := notRecipe(p, in)
	p.AppendRecipe(b, r)
	p.EraseFromParent(r)

	if got := len(p.Recipes(b)); got != 0 {
		t.Fatalf("block recipe count after erase = %d, want 0", got)
	}
	mustPanic(t, "use of erased recipe", func() {
		p.AppendRecipe(b, r)
	})
}

func TestMutationAfterExecutePanics(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b := p.NewBlock(p.TopRegion(), "body")
	r := notRecipe(p, in)
	p.AppendRecipe(b, r)

	m := ir.NewModule()
	fn := m.NewFunc("loop", types.Void)
	st := NewState(p, NewBuilder(m, fn), 4, 1)
	st.CFG.Preheader = fn.NewBlock("ph")
	p.Execute(st)

	mustPanic(t, "structural mutation after codegen started", func() {
		notRecipe(p, in)
	})
	mustPanic(t, "structural mutation after codegen started", func() {
		p.RemoveFromParent(r)
	})
}

func TestValidateDefBeforeUse(t *testing.T) {
	p := NewPlan("test")
	in := p.NewLiveIn(constant.NewInt(types.I1, 0), "flag")
	b := p.NewBlock(p.TopRegion(), "body")

	first := notRecipe(p, in)
	second := notRecipe(p, p.Result(first))
	p.AppendRecipe(b, second)
	p.AppendRecipe(b, first)

	if err := p.Validate(); err == nil {
		t.Fatal("Validate() = nil, want use-before-def error")
	}

	p.MoveBefore(first, second)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() after reorder = %v, want nil", err)
	}
}

func TestValidateHeaderPhiBackedge(t *testing.T) {
	p := NewPlan("test")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	b := p.NewBlock(p.TopRegion(), "body")

	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(b, civ)
	inc := p.NewInstruction(OpCanonicalIVIncrementNUW, types.I64, p.Result(civ))
	p.AppendRecipe(b, inc)
	p.AddOperand(civ, p.Result(inc)) // backedge references a later definition

	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil for phi backedge", err)
	}
}

func TestValidateInductionStepOrdering(t *testing.T) {
	p := NewPlan("test")
	start := p.NewLiveIn(constant.NewInt(types.I64, 0), "start")
	one := p.NewLiveIn(constant.NewInt(types.I64, 1), "one")
	b := p.NewBlock(p.TopRegion(), "body")

	// The step is a plan-computed value. Unlike a backedge, it must be
	// defined before the induction that consumes it.
	step := p.NewInstruction(OpAdd, types.I64, one, one)
	iv := p.NewWidenIntOrFpInduction(Ingredient{Op: OpAdd, Type: types.I64}, start, p.Result(step))
	p.AppendRecipe(b, iv)
	p.AppendRecipe(b, step)

	if err := p.Validate(); err == nil {
		t.Fatal("Validate() = nil, want use-before-def error for the step")
	}

	p.MoveBefore(step, iv)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() after reorder = %v, want nil", err)
	}
}

func TestSingleCanonicalIV(t *testing.T) {
	p := NewPlan("test")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	p.NewCanonicalIVPHI(zero, position.Span{})
	mustPanic(t, "already has a canonical induction", func() {
		p.NewCanonicalIVPHI(zero, position.Span{})
	})
}

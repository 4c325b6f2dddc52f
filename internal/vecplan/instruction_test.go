package vecplan

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/orizon-lang/vecplan/internal/position"
)

// loopFixture wraps a plan in a fresh module, function and preheader.
func loopFixture(p *Plan, vf, uf int) *State {
	m := ir.NewModule()
	fn := m.NewFunc("loop", types.Void)
	st := NewState(p, NewBuilder(m, fn), vf, uf)
	st.CFG.Preheader = fn.NewBlock("vector.ph")
	return st
}

func countInsts(blk *ir.Block, match func(ir.Instruction) bool) int {
	n := 0
	for _, inst := range blk.Insts {
		if match(inst) {
			n++
		}
	}
	return n
}

func TestCanonicalIncrementSharedAcrossParts(t *testing.T) {
	p := NewPlan("civ")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	n := p.NewLiveIn(constant.NewInt(types.I64, 1024), "n")
	body := p.NewBlock(p.TopRegion(), "vector.body")
	p.SetExiting(p.TopRegion(), body)

	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(body, civ)
	inc := p.NewInstruction(OpCanonicalIVIncrementNUW, types.I64, p.Result(civ))
	p.AppendRecipe(body, inc)
	p.AddOperand(civ, p.Result(inc))
	latch := p.NewInstruction(OpBranchOnCount, nil, p.Result(inc), n)
	p.AppendRecipe(body, latch)

	st := loopFixture(p, 4, 3)
	p.Execute(st)

	blk := st.CFG.Blocks[body]

	// One increment serves all three parts, with step VF*UF and nuw.
	adds := 0
	for _, inst := range blk.Insts {
		add, ok := inst.(*ir.InstAdd)
		if !ok {
			continue
		}
		adds++
		c, ok := add.Y.(*constant.Int)
		if !ok || c.X.Int64() != 12 {
			t.Errorf("increment step = %v, want 12", add.Y)
		}
		if len(add.OverflowFlags) != 1 || add.OverflowFlags[0] != enum.OverflowFlagNUW {
			t.Errorf("increment flags = %v, want [nuw]", add.OverflowFlags)
		}
	}
	if adds != 1 {
		t.Fatalf("emitted %d adds, want 1 shared across parts", adds)
	}
	for part := 1; part < 3; part++ {
		if st.GetLane(p.Result(inc), part, 0) != st.GetLane(p.Result(inc), 0, 0) {
			t.Errorf("part %d increment differs from part 0", part)
		}
	}

	// The latch compares against the trip count and loops back to the
	// header; the exit edge stays unresolved.
	term, ok := blk.Term.(*ir.TermCondBr)
	if !ok {
		t.Fatalf("latch terminator = %T, want conditional branch", blk.Term)
	}
	if term.TargetTrue != nil {
		t.Error("exit edge should be unresolved")
	}
	if term.TargetFalse != blk {
		t.Error("backedge should target the loop header")
	}
	if len(st.CFG.Unresolved) != 1 {
		t.Fatalf("unresolved edges = %d, want 1", len(st.CFG.Unresolved))
	}

	// Header phi is complete: entry value plus backedge.
	phi, ok := blk.Insts[0].(*ir.InstPhi)
	if !ok {
		t.Fatalf("first header instruction = %T, want phi", blk.Insts[0])
	}
	if len(phi.Incs) != 2 {
		t.Fatalf("canonical phi incomings = %d, want 2", len(phi.Incs))
	}
}

func TestBranchOnCondInNonExitingBlock(t *testing.T) {
	p := NewPlan("early-exit")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	n := p.NewLiveIn(constant.NewInt(types.I64, 1024), "n")
	ec := p.NewLiveIn(constant.NewInt(types.I1, 0), "ec")

	body := p.NewBlock(p.TopRegion(), "vector.body")
	latchBlk := p.NewBlock(p.TopRegion(), "vector.latch")
	p.SetExiting(p.TopRegion(), latchBlk)

	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(body, civ)
	early := p.NewInstruction(OpBranchOnCond, nil, ec)
	p.AppendRecipe(body, early)

	inc := p.NewInstruction(OpCanonicalIVIncrementNUW, types.I64, p.Result(civ))
	p.AppendRecipe(latchBlk, inc)
	p.AddOperand(civ, p.Result(inc))
	latch := p.NewInstruction(OpBranchOnCount, nil, p.Result(inc), n)
	p.AppendRecipe(latchBlk, latch)

	st := loopFixture(p, 4, 2)
	p.Execute(st)

	// The early-exit branch sits in a non-exiting block: its taken edge
	// leaves the loop, its not-taken edge falls through to the latch block
	// rather than looping back to the header.
	bodyTerm, ok := st.CFG.Blocks[body].Term.(*ir.TermCondBr)
	if !ok {
		t.Fatalf("body terminator = %T, want conditional branch", st.CFG.Blocks[body].Term)
	}
	if bodyTerm.TargetTrue != nil {
		t.Error("early-exit edge should stay unresolved")
	}
	if bodyTerm.TargetFalse != st.CFG.Blocks[latchBlk] {
		t.Errorf("not-taken edge = %v, want fall-through to the latch block", bodyTerm.TargetFalse)
	}

	// Only the exiting block's branch targets the header directly.
	latchTerm := st.CFG.Blocks[latchBlk].Term.(*ir.TermCondBr)
	if latchTerm.TargetTrue != nil {
		t.Error("loop-exit edge should stay unresolved")
	}
	if latchTerm.TargetFalse != st.CFG.Blocks[body] {
		t.Error("latch backedge should target the loop header")
	}

	if len(st.CFG.Unresolved) != 2 {
		t.Errorf("unresolved exits = %d, want the early exit and the latch", len(st.CFG.Unresolved))
	}
}

func TestFirstOrderRecurrenceSplice(t *testing.T) {
	p := NewPlan("recur")
	init := p.NewLiveIn(constant.NewFloat(types.Float, 0), "init")
	x := p.NewLiveIn(constant.NewFloat(types.Float, 1), "x")
	body := p.NewBlock(p.TopRegion(), "vector.body")

	forPhi := p.NewFirstOrderRecurrencePHI(init)
	p.AppendRecipe(body, forPhi)
	cur := p.NewWiden(Ingredient{Op: OpFAdd, Type: types.Float}, x, x)
	p.AppendRecipe(body, cur)
	splice := p.NewInstruction(OpFirstOrderRecurrenceSplice, types.Float, p.Result(forPhi), p.Result(cur))
	p.AppendRecipe(body, splice)
	p.AddOperand(forPhi, p.Result(cur))

	st := loopFixture(p, 4, 2)
	p.Execute(st)

	// The preheader seeds the last lane of the initial vector.
	seeded := false
	for _, inst := range st.CFG.Preheader.Insts {
		ins, ok := inst.(*ir.InstInsertElement)
		if !ok {
			continue
		}
		if c, ok := ins.Index.(*constant.Int); ok && c.X.Int64() == 3 {
			seeded = true
		}
	}
	if !seeded {
		t.Error("preheader should insert the initial value at lane VF-1")
	}

	// One splice shuffle per part.
	blk := st.CFG.Blocks[body]
	shuffles := 0
	for _, inst := range blk.Insts {
		sh, ok := inst.(*ir.InstShuffleVector)
		if !ok {
			continue
		}
		shuffles++
		if got, want := sh.Mask.Ident(), SpliceMask(4).Ident(); got != want {
			t.Errorf("splice mask = %s, want %s", got, want)
		}
	}
	if shuffles != 2 {
		t.Errorf("emitted %d splice shuffles, want 2", shuffles)
	}
}

func TestFirstOrderRecurrenceSpliceScalar(t *testing.T) {
	p := NewPlan("recur")
	init := p.NewLiveIn(constant.NewFloat(types.Float, 0), "init")
	x := p.NewLiveIn(constant.NewFloat(types.Float, 1), "x")
	body := p.NewBlock(p.TopRegion(), "vector.body")

	forPhi := p.NewFirstOrderRecurrencePHI(init)
	p.AppendRecipe(body, forPhi)
	cur := p.NewWiden(Ingredient{Op: OpFAdd, Type: types.Float}, x, x)
	p.AppendRecipe(body, cur)
	splice := p.NewInstruction(OpFirstOrderRecurrenceSplice, types.Float, p.Result(forPhi), p.Result(cur))
	p.AppendRecipe(body, splice)
	p.AddOperand(forPhi, p.Result(cur))

	st := loopFixture(p, 1, 1)
	p.Execute(st)

	// At VF=1 the splice degenerates to the previous scalar: the phi.
	got := st.GetLane(p.Result(splice), 0, 0)
	if _, ok := got.(*ir.InstPhi); !ok {
		t.Errorf("scalar splice = %T, want the recurrence phi itself", got)
	}
}

func TestActiveLaneMask(t *testing.T) {
	p := NewPlan("alm")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	n := p.NewLiveIn(constant.NewInt(types.I64, 100), "n")
	body := p.NewBlock(p.TopRegion(), "vector.body")

	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(body, civ)
	alm := p.NewInstruction(OpActiveLaneMask, types.I1, p.Result(civ), n)
	p.AppendRecipe(body, alm)
	inc := p.NewInstruction(OpCanonicalIVIncrement, types.I64, p.Result(civ))
	p.AppendRecipe(body, inc)
	p.AddOperand(civ, p.Result(inc))

	st := loopFixture(p, 4, 2)
	p.Execute(st)

	// The intrinsic is declared once on the module.
	found := false
	for _, f := range st.Builder.Module.Funcs {
		if f.Name() == "llvm.get.active.lane.mask.v4i1.i64" {
			found = true
		}
	}
	if !found {
		t.Fatal("active-lane-mask intrinsic not declared")
	}

	blk := st.CFG.Blocks[body]
	calls := countInsts(blk, func(inst ir.Instruction) bool {
		call, ok := inst.(*ir.InstCall)
		if !ok {
			return false
		}
		callee, ok := call.Callee.(*ir.Func)
		return ok && strings.HasPrefix(callee.Name(), "llvm.get.active.lane.mask")
	})
	if calls != 2 {
		t.Errorf("emitted %d active-lane-mask calls, want one per part", calls)
	}
}

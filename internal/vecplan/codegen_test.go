package vecplan

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/orizon-lang/vecplan/internal/position"
)

// buildElementwiseAdd assembles the plan for c[i] = a[i] + b[i] over the
// given function's (a, b, c, n) parameters.
func buildElementwiseAdd(p *Plan, fn *ir.Func) (body BlockID) {
	a := p.NewLiveIn(fn.Params[0], "a")
	b := p.NewLiveIn(fn.Params[1], "b")
	c := p.NewLiveIn(fn.Params[2], "c")
	n := p.NewLiveIn(fn.Params[3], "n")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	one := p.NewLiveIn(constant.NewInt(types.I64, 1), "")

	body = p.NewBlock(p.TopRegion(), "vector.body")
	p.SetExiting(p.TopRegion(), body)

	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(body, civ)
	steps := p.NewScalarIVSteps(Ingredient{Op: OpAdd, Type: types.I64}, p.Result(civ), one)
	p.AppendRecipe(body, steps)

	gep := func(base ValueID) RecipeID {
		r := p.NewReplicate(Ingredient{
			Op:      OpGetElementPtr,
			Type:    types.NewPointer(types.Float),
			GEPElem: types.Float,
		}, []ValueID{base, p.Result(steps)}, true, false)
		p.AppendRecipe(body, r)
		return r
	}
	gepA, gepB, gepC := gep(a), gep(b), gep(c)

	loadIng := Ingredient{Op: OpLoad, Type: types.Float}
	loadA := p.NewWidenLoad(loadIng, p.Result(gepA), NoValue, true, false)
	p.AppendRecipe(body, loadA)
	loadB := p.NewWidenLoad(loadIng, p.Result(gepB), NoValue, true, false)
	p.AppendRecipe(body, loadB)

	add := p.NewWiden(Ingredient{Op: OpFAdd, Type: types.Float}, p.Result(loadA), p.Result(loadB))
	p.AppendRecipe(body, add)
	store := p.NewWidenStore(Ingredient{Op: OpStore, Type: types.Float},
		p.Result(gepC), p.Result(add), NoValue, true, false)
	p.AppendRecipe(body, store)

	inc := p.NewInstruction(OpCanonicalIVIncrementNUW, types.I64, p.Result(civ))
	p.AppendRecipe(body, inc)
	p.AddOperand(civ, p.Result(inc))
	latch := p.NewInstruction(OpBranchOnCount, nil, p.Result(inc), n)
	p.AppendRecipe(body, latch)
	return body
}

func newLoopFunc(m *ir.Module) *ir.Func {
	ptr := types.NewPointer(types.Float)
	return m.NewFunc("loop", types.Void,
		ir.NewParam("a", ptr), ir.NewParam("b", ptr), ir.NewParam("c", ptr),
		ir.NewParam("n", types.I64))
}

func TestExecuteElementwiseAdd(t *testing.T) {
	p := NewPlan("saxpy")
	m := ir.NewModule()
	fn := newLoopFunc(m)
	body := buildElementwiseAdd(p, fn)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	st := NewState(p, NewBuilder(m, fn), 4, 2)
	st.CFG.Preheader = fn.NewBlock("vector.ph")
	p.Execute(st)

	blk := st.CFG.Blocks[body]

	loads := countInsts(blk, func(inst ir.Instruction) bool { _, ok := inst.(*ir.InstLoad); return ok })
	if loads != 4 {
		t.Errorf("wide loads = %d, want 2 arrays x 2 parts", loads)
	}
	stores := countInsts(blk, func(inst ir.Instruction) bool { _, ok := inst.(*ir.InstStore); return ok })
	if stores != 2 {
		t.Errorf("wide stores = %d, want one per part", stores)
	}
	fadds := countInsts(blk, func(inst ir.Instruction) bool { _, ok := inst.(*ir.InstFAdd); return ok })
	if fadds != 2 {
		t.Errorf("wide fadds = %d, want one per part", fadds)
	}
	geps := countInsts(blk, func(inst ir.Instruction) bool { _, ok := inst.(*ir.InstGetElementPtr); return ok })
	if geps != 6 {
		t.Errorf("address computations = %d, want 3 arrays x 2 parts", geps)
	}

	// Exactly one nuw add: the shared canonical increment with step VF*UF.
	nuwAdds := countInsts(blk, func(inst ir.Instruction) bool {
		add, ok := inst.(*ir.InstAdd)
		return ok && len(add.OverflowFlags) == 1 && add.OverflowFlags[0] == enum.OverflowFlagNUW
	})
	if nuwAdds != 1 {
		t.Errorf("canonical increments = %d, want 1", nuwAdds)
	}

	// Wide loads read through a vector-typed view of the lane-0 address.
	for _, inst := range blk.Insts {
		load, ok := inst.(*ir.InstLoad)
		if !ok {
			continue
		}
		if !load.ElemType.Equal(types.NewVector(4, types.Float)) {
			t.Errorf("load element type = %v, want <4 x float>", load.ElemType)
		}
	}

	// Close the loop the way a driver would and check the edges.
	if len(st.CFG.Unresolved) != 1 {
		t.Fatalf("unresolved exits = %d, want 1", len(st.CFG.Unresolved))
	}
	middle := fn.NewBlock("middle.block")
	middle.Term = ir.NewRet(nil)
	st.CFG.Unresolved[0].TargetTrue = middle
	term := blk.Term.(*ir.TermCondBr)
	if term.TargetTrue != middle || term.TargetFalse != blk {
		t.Error("latch edges should be exit forward, header backward")
	}
}

func TestLiveOutFixup(t *testing.T) {
	p := NewPlan("saxpy")
	m := ir.NewModule()
	fn := newLoopFunc(m)
	buildElementwiseAdd(p, fn)

	// The canonical counter escapes to the scalar epilogue.
	civ := p.CanonicalIV()
	p.MarkUniform(p.Result(civ))
	epiloguePhi := &ir.InstPhi{Typ: types.I64}
	p.AddLiveOut(epiloguePhi, p.Result(civ))

	st := NewState(p, NewBuilder(m, fn), 4, 2)
	st.CFG.Preheader = fn.NewBlock("vector.ph")
	p.Execute(st)

	middle := fn.NewBlock("middle.block")
	middle.Term = ir.NewRet(nil)
	st.CFG.Unresolved[0].TargetTrue = middle
	p.FixLiveOuts(st, middle)

	if len(epiloguePhi.Incs) != 1 {
		t.Fatalf("live-out incomings = %d, want 1", len(epiloguePhi.Incs))
	}
	if epiloguePhi.Incs[0].Pred != middle {
		t.Error("live-out incoming should come from the middle block")
	}
	// Uniform value: lane 0 of the last part, which is the shared phi.
	if epiloguePhi.Incs[0].X != st.GetLane(p.Result(civ), 1, 0) {
		t.Error("live-out value should be the last part's lane-0 value")
	}
}

func TestPredicatedReplicateRegion(t *testing.T) {
	p := NewPlan("pred")
	m := ir.NewModule()
	ptr := types.NewPointer(types.I32)
	fn := m.NewFunc("loop", types.Void,
		ir.NewParam("a", ptr), ir.NewParam("n", types.I64))

	a := p.NewLiveIn(fn.Params[0], "a")
	n := p.NewLiveIn(fn.Params[1], "n")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")

	header := p.NewBlock(p.TopRegion(), "vector.body")
	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(header, civ)
	wciv := p.NewWidenCanonicalIV(p.Result(civ))
	p.AppendRecipe(header, wciv)
	mask := p.NewInstruction(OpICmpULE, types.I1, p.Result(wciv), p.Result(wciv))
	p.AppendRecipe(header, mask)

	region := p.NewRegion(p.TopRegion(), "pred.load", true)
	entry := p.NewBlock(region, "pred.load.entry")
	bom := p.NewBranchOnMask(p.Result(mask))
	p.AppendRecipe(entry, bom)
	ifBlk := p.NewBlock(region, "pred.load.if")
	gep := p.NewReplicate(Ingredient{Op: OpGetElementPtr, Type: ptr, GEPElem: types.I32},
		[]ValueID{a, p.Result(civ)}, false, false)
	p.AppendRecipe(ifBlk, gep)
	load := p.NewReplicate(Ingredient{Op: OpLoad, Type: types.I32, Reads: true},
		[]ValueID{p.Result(gep)}, false, false)
	p.SetPredicated(load)
	p.AppendRecipe(ifBlk, load)
	cont := p.NewBlock(region, "pred.load.continue")
	merge := p.NewPredInstPHI(p.Result(load))
	p.AppendRecipe(cont, merge)

	latchBlk := p.NewBlock(p.TopRegion(), "vector.latch")
	p.SetExiting(p.TopRegion(), latchBlk)
	inc := p.NewInstruction(OpCanonicalIVIncrementNUW, types.I64, p.Result(civ))
	p.AppendRecipe(latchBlk, inc)
	p.AddOperand(civ, p.Result(inc))
	latch := p.NewInstruction(OpBranchOnCount, nil, p.Result(inc), n)
	p.AppendRecipe(latchBlk, latch)

	vf, uf := 2, 2
	st := NewState(p, NewBuilder(m, fn), vf, uf)
	st.CFG.Preheader = fn.NewBlock("vector.ph")
	p.Execute(st)

	// Preheader + header + (body, continue) per instance + latch.
	wantBlocks := 2 + 2*vf*uf + 1
	if got := len(fn.Blocks); got != wantBlocks {
		t.Fatalf("function has %d blocks, want %d", got, wantBlocks)
	}

	// Each instance merges the predicated load against poison.
	phis := 0
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			phi, ok := inst.(*ir.InstPhi)
			if !ok || blk == st.CFG.Blocks[header] {
				continue
			}
			phis++
			if len(phi.Incs) != 2 {
				t.Errorf("merge phi has %d incomings, want 2", len(phi.Incs))
			}
			if _, ok := phi.Incs[1].X.(*constant.Undef); !ok {
				t.Errorf("skip-edge incoming = %T, want poison", phi.Incs[1].X)
			}
		}
	}
	if phis != vf*uf {
		t.Errorf("merge phis = %d, want one per (part, lane)", phis)
	}

	// Every value the loop later needs is a per-lane scalar on the merge
	// phi, packable on demand.
	st.Block = st.CFG.Blocks[latchBlk]
	if _, ok := st.Get(p.Result(merge), 0).Type().(*types.VectorType); !ok {
		t.Error("packed merge result should be a vector")
	}
}

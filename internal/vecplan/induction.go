package vecplan

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// stepVectorFloat builds <0.0, 1.0, ..., vf-1.0>.
func stepVectorFloat(ty *types.FloatType, vf int) constant.Constant {
	vecTy := types.NewVector(uint64(vf), ty)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewFloat(ty, float64(i))
	}
	return constant.NewVector(vecTy, elems...)
}

// laneOffsets builds <base, base+1, ..., base+vf-1>.
func laneOffsets(ty *types.IntType, vf, base int) constant.Constant {
	vecTy := types.NewVector(uint64(vf), ty)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewInt(ty, int64(base+i))
	}
	return constant.NewVector(vecTy, elems...)
}

// execCanonicalIVPHI materializes the canonical counter: one scalar phi in
// the header, observed identically by every unroll part.
func (p *Plan) execCanonicalIVPHI(r RecipeID, rec *Recipe, s *State) {
	start := s.GetLane(rec.operands[0], 0, 0)
	phi := s.Block.NewPhi(ir.NewIncoming(start, s.CFG.Preheader))
	for part := 0; part < s.UF; part++ {
		s.SetLane(rec.results[0], part, 0, phi)
	}
	if len(rec.operands) < 2 {
		panic("vecplan: canonical induction without a backedge operand")
	}
	backedge := rec.operands[1]
	s.backpatch = append(s.backpatch, func(latch *ir.Block) {
		phi.Incs = append(phi.Incs, ir.NewIncoming(s.GetLane(backedge, 0, 0), latch))
	})
}

// execWidenCanonicalIV materializes the widened view of the canonical
// counter: per part, broadcast plus the part's lane offsets.
func (p *Plan) execWidenCanonicalIV(r RecipeID, rec *Recipe, s *State) {
	civ := s.GetLane(rec.operands[0], 0, 0)
	ty := civ.Type().(*types.IntType)
	base := s.Builder.Broadcast(s.Block, civ, s.VF)
	for part := 0; part < s.UF; part++ {
		vec := s.Block.NewAdd(base, laneOffsets(ty, s.VF, part*s.VF))
		s.Set(rec.results[0], part, vec)
	}
}

// execWidenIntOrFpInduction materializes a widened induction: one vector
// phi seeded with start + step*<0..VF-1>, consecutive parts offset by
// step*VF, backedge offset by another step*VF past the last part.
func (p *Plan) execWidenIntOrFpInduction(r RecipeID, rec *Recipe, s *State) {
	ph := s.CFG.Preheader
	start := s.GetLane(rec.operands[0], 0, 0)
	step := s.GetLane(rec.operands[1], 0, 0)

	var init, splatVF value.Value
	fp := false
	switch ty := rec.ing.Type.(type) {
	case *types.IntType:
		stepVec := ph.NewMul(s.Builder.Broadcast(ph, step, s.VF), StepVector(ty, s.VF))
		init = ph.NewAdd(s.Builder.Broadcast(ph, start, s.VF), stepVec)
		splatVF = s.Builder.Broadcast(ph, ph.NewMul(step, constant.NewInt(ty, int64(s.VF))), s.VF)
	case *types.FloatType:
		fp = true
		stepVec := ph.NewFMul(s.Builder.Broadcast(ph, step, s.VF), stepVectorFloat(ty, s.VF))
		init = ph.NewFAdd(s.Builder.Broadcast(ph, start, s.VF), stepVec)
		splatVF = s.Builder.Broadcast(ph, ph.NewFMul(step, constant.NewFloat(ty, float64(s.VF))), s.VF)
	default:
		panic("vecplan: widened induction over non-numeric type")
	}

	phi := s.Block.NewPhi(ir.NewIncoming(init, ph))
	s.Set(rec.results[0], 0, phi)
	prev := value.Value(phi)
	for part := 1; part < s.UF; part++ {
		if fp {
			prev = s.Block.NewFAdd(prev, splatVF)
		} else {
			prev = s.Block.NewAdd(prev, splatVF)
		}
		s.Set(rec.results[0], part, prev)
	}
	last := prev
	s.backpatch = append(s.backpatch, func(latch *ir.Block) {
		var next value.Value
		if fp {
			next = latch.NewFAdd(last, splatVF)
		} else {
			next = latch.NewAdd(last, splatVF)
		}
		phi.Incs = append(phi.Incs, ir.NewIncoming(next, latch))
	})
}

// execWidenPointerInduction materializes a pointer induction on its
// scalars-only path: one pointer phi, per-lane addresses offset by
// step*(part*VF+lane).
func (p *Plan) execWidenPointerInduction(r RecipeID, rec *Recipe, s *State) {
	start := s.GetLane(rec.operands[0], 0, 0)
	step := s.GetLane(rec.operands[1], 0, 0)
	stepTy := step.Type().(*types.IntType)
	elemTy := rec.ing.GEPElem

	phi := s.Block.NewPhi(ir.NewIncoming(start, s.CFG.Preheader))
	for part := 0; part < s.UF; part++ {
		for lane := 0; lane < s.VF; lane++ {
			offset := part*s.VF + lane
			if offset == 0 {
				s.SetLane(rec.results[0], part, lane, phi)
				continue
			}
			idx := s.Block.NewMul(step, constant.NewInt(stepTy, int64(offset)))
			s.SetLane(rec.results[0], part, lane, s.Block.NewGetElementPtr(elemTy, phi, idx))
		}
	}
	s.backpatch = append(s.backpatch, func(latch *ir.Block) {
		total := latch.NewMul(step, constant.NewInt(stepTy, int64(s.VF*s.UF)))
		next := latch.NewGetElementPtr(elemTy, phi, total)
		phi.Incs = append(phi.Incs, ir.NewIncoming(next, latch))
	})
}

// execScalarIVSteps materializes per-lane scalar induction steps:
// base + step*(part*VF+lane) for every needed lane.
func (p *Plan) execScalarIVSteps(r RecipeID, rec *Recipe, s *State) {
	base := s.GetLane(rec.operands[0], 0, 0)
	step := s.GetLane(rec.operands[1], 0, 0)
	ty := base.Type().(*types.IntType)

	lanes := s.VF
	if p.IsUniformAfterVectorization(rec.results[0]) {
		lanes = 1
	}
	for part := 0; part < s.UF; part++ {
		for lane := 0; lane < lanes; lane++ {
			offset := part*s.VF + lane
			if offset == 0 {
				s.SetLane(rec.results[0], part, lane, base)
				continue
			}
			inc := s.Block.NewMul(step, constant.NewInt(ty, int64(offset)))
			s.SetLane(rec.results[0], part, lane, s.Block.NewAdd(base, inc))
		}
	}
}

// execExpandExpr expands a loop-invariant expression once into the
// preheader; every part observes the same scalar.
func (p *Plan) execExpandExpr(r RecipeID, rec *Recipe, s *State) {
	ty, ok := p.TypeOf(rec.results[0]).(*types.IntType)
	if !ok {
		panic("vecplan: expression expansion over non-integer type")
	}
	val := rec.expr.emit(s.Builder, s.CFG.Preheader, ty)
	for part := 0; part < s.UF; part++ {
		s.SetLane(rec.results[0], part, 0, val)
	}
}

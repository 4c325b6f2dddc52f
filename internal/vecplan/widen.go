package vecplan

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// execWiden materializes a widen recipe: one vector instruction per unroll
// part, mirroring the scalar operation lane-wise.
func (p *Plan) execWiden(r RecipeID, rec *Recipe, s *State) {
	flags := rec.ing.Flags
	if s.mayStripPoison(r) {
		flags = flags.stripPoison()
	}

	op := rec.ing.Op
	switch {
	case op.IsBinary():
		for part := 0; part < s.UF; part++ {
			a := s.Get(rec.operands[0], part)
			b := s.Get(rec.operands[1], part)
			s.Set(rec.results[0], part, emitBinary(s.Block, op, a, b, flags))
		}

	case op == OpFNeg:
		for part := 0; part < s.UF; part++ {
			inst := s.Block.NewFNeg(s.Get(rec.operands[0], part))
			inst.FastMathFlags = flags.Fast
			s.Set(rec.results[0], part, inst)
		}

	case op == OpFreeze:
		for part := 0; part < s.UF; part++ {
			inst := ir.NewInstFreeze(s.Get(rec.operands[0], part))
			s.Block.Insts = append(s.Block.Insts, inst)
			s.Set(rec.results[0], part, inst)
		}

	case op == OpICmp:
		for part := 0; part < s.UF; part++ {
			a := s.Get(rec.operands[0], part)
			b := s.Get(rec.operands[1], part)
			s.Set(rec.results[0], part, s.Block.NewICmp(rec.ing.IPred, a, b))
		}

	case op == OpFCmp:
		for part := 0; part < s.UF; part++ {
			a := s.Get(rec.operands[0], part)
			b := s.Get(rec.operands[1], part)
			inst := s.Block.NewFCmp(rec.ing.FPred, a, b)
			inst.FastMathFlags = flags.Fast
			s.Set(rec.results[0], part, inst)
		}

	case op.IsCast():
		// Destination is the vectorized scalar destination type.
		dstTy := types.NewVector(uint64(s.VF), rec.ing.Type)
		for part := 0; part < s.UF; part++ {
			s.Set(rec.results[0], part, emitCast(s.Block, op, s.Get(rec.operands[0], part), dstTy))
		}

	default:
		panic("vecplan: widen recipe with unsupported opcode " + op.Name())
	}
	s.tracef("widen", "op", op.Name())
}

func emitCast(blk *ir.Block, op Opcode, v value.Value, to types.Type) value.Value {
	switch op {
	case OpTrunc:
		return blk.NewTrunc(v, to)
	case OpZExt:
		return blk.NewZExt(v, to)
	case OpSExt:
		return blk.NewSExt(v, to)
	case OpFPToUI:
		return blk.NewFPToUI(v, to)
	case OpFPToSI:
		return blk.NewFPToSI(v, to)
	case OpUIToFP:
		return blk.NewUIToFP(v, to)
	case OpSIToFP:
		return blk.NewSIToFP(v, to)
	case OpFPTrunc:
		return blk.NewFPTrunc(v, to)
	case OpFPExt:
		return blk.NewFPExt(v, to)
	case OpPtrToInt:
		return blk.NewPtrToInt(v, to)
	case OpIntToPtr:
		return blk.NewIntToPtr(v, to)
	case OpBitCast:
		return blk.NewBitCast(v, to)
	default:
		panic("vecplan: not a cast opcode: " + op.Name())
	}
}

// execWidenSelect materializes a widened select. A loop-invariant condition
// is evaluated once as a scalar and steers whole vectors.
func (p *Plan) execWidenSelect(r RecipeID, rec *Recipe, s *State) {
	for part := 0; part < s.UF; part++ {
		var cond value.Value
		if rec.invariantCond {
			cond = s.GetLane(rec.operands[0], 0, 0)
		} else {
			cond = s.Get(rec.operands[0], part)
		}
		t := s.Get(rec.operands[1], part)
		f := s.Get(rec.operands[2], part)
		s.Set(rec.results[0], part, s.Block.NewSelect(cond, t, f))
	}
}

// execWidenCall materializes a call to the pre-resolved vector variant, one
// call per part with vectorized arguments.
func (p *Plan) execWidenCall(r RecipeID, rec *Recipe, s *State) {
	for part := 0; part < s.UF; part++ {
		args := make([]value.Value, len(rec.operands))
		for i, op := range rec.operands {
			args[i] = s.Get(op, part)
		}
		s.Set(rec.results[0], part, s.Block.NewCall(rec.variant, args...))
	}
}

// execWidenGEP materializes a widened address computation. A fully
// invariant GEP is computed once as a scalar and broadcast; otherwise each
// operand contributes its scalar or vector form per its invariance.
func (p *Plan) execWidenGEP(r RecipeID, rec *Recipe, s *State) {
	allInvariant := true
	for _, inv := range rec.invariant {
		allInvariant = allInvariant && inv
	}

	if allInvariant {
		ops := make([]value.Value, len(rec.operands))
		for i, op := range rec.operands {
			ops[i] = s.GetLane(op, 0, 0)
		}
		scalar := s.Block.NewGetElementPtr(rec.ing.GEPElem, ops[0], ops[1:]...)
		for part := 0; part < s.UF; part++ {
			s.Set(rec.results[0], part, s.Builder.Broadcast(s.Block, scalar, s.VF))
		}
		return
	}

	for part := 0; part < s.UF; part++ {
		ops := make([]value.Value, len(rec.operands))
		for i, op := range rec.operands {
			if rec.invariant[i] {
				ops[i] = s.GetLane(op, part, 0)
			} else {
				ops[i] = s.Get(op, part)
			}
		}
		s.Set(rec.results[0], part, s.Block.NewGetElementPtr(rec.ing.GEPElem, ops[0], ops[1:]...))
	}
}

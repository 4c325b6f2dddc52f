package vecplan

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// onesLike builds the all-ones constant of ty (scalar or vector integer).
func onesLike(ty types.Type) constant.Constant {
	switch t := ty.(type) {
	case *types.IntType:
		return constant.NewInt(t, -1)
	case *types.VectorType:
		elem := t.ElemType.(*types.IntType)
		elems := make([]constant.Constant, t.Len)
		for i := range elems {
			elems[i] = constant.NewInt(elem, -1)
		}
		return constant.NewVector(t, elems...)
	default:
		panic("vecplan: all-ones constant of non-integer type")
	}
}

// execInstruction materializes a generic-instruction recipe. Most opcodes
// generate once per unroll part; the canonical increment and the branches
// generate only at part 0 and share the value across parts.
func (p *Plan) execInstruction(r RecipeID, rec *Recipe, s *State) {
	switch rec.op {
	case OpNot:
		for part := 0; part < s.UF; part++ {
			a := s.Get(rec.operands[0], part)
			s.Set(rec.results[0], part, s.Block.NewXor(a, onesLike(a.Type())))
		}

	case OpICmpULE:
		for part := 0; part < s.UF; part++ {
			a := s.Get(rec.operands[0], part)
			b := s.Get(rec.operands[1], part)
			s.Set(rec.results[0], part, s.Block.NewICmp(enum.IPredULE, a, b))
		}

	case OpSelect:
		for part := 0; part < s.UF; part++ {
			cond := s.Get(rec.operands[0], part)
			t := s.Get(rec.operands[1], part)
			f := s.Get(rec.operands[2], part)
			s.Set(rec.results[0], part, s.Block.NewSelect(cond, t, f))
		}

	case OpActiveLaneMask:
		// Per part: mask = get.active.lane.mask(iv[part][0], scalar TC).
		maskTy := types.NewVector(uint64(s.VF), types.I1)
		for part := 0; part < s.UF; part++ {
			iv := s.GetLane(rec.operands[0], part, 0)
			tc := s.GetLane(rec.operands[1], part, 0)
			name := fmt.Sprintf("llvm.get.active.lane.mask.%s.%s", typeSuffix(maskTy), typeSuffix(iv.Type()))
			alm := s.Builder.Intrinsic(name, maskTy, iv.Type(), tc.Type())
			s.Set(rec.results[0], part, s.Block.NewCall(alm, iv, tc))
		}

	case OpFirstOrderRecurrenceSplice:
		for part := 0; part < s.UF; part++ {
			var prev value.Value
			if part == 0 {
				prev = s.Get(rec.operands[0], 0)
			} else {
				prev = s.Get(rec.operands[1], part-1)
			}
			if s.VF == 1 {
				// Scalar loop: the spliced value is just the previous one.
				s.SetLane(rec.results[0], part, 0, prev)
				continue
			}
			cur := s.Get(rec.operands[1], part)
			s.Set(rec.results[0], part, s.Block.NewShuffleVector(prev, cur, SpliceMask(s.VF)))
		}

	case OpCanonicalIVIncrement, OpCanonicalIVIncrementNUW:
		// Computed once; every part observes the part-0 value.
		civ := s.GetLane(rec.operands[0], 0, 0)
		ty := civ.Type().(*types.IntType)
		step := constant.NewInt(ty, int64(s.VF*s.UF))
		next := s.Block.NewAdd(civ, step)
		if rec.op == OpCanonicalIVIncrementNUW {
			next.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNUW}
		}
		for part := 0; part < s.UF; part++ {
			s.SetLane(rec.results[0], part, 0, next)
		}

	case OpBranchOnCond:
		cond := s.GetLane(rec.operands[0], 0, 0)
		p.emitExitBranch(s, cond)

	case OpBranchOnCount:
		next := s.GetLane(rec.operands[0], 0, 0)
		tc := s.GetLane(rec.operands[1], 0, 0)
		cond := s.Block.NewICmp(enum.IPredEQ, next, tc)
		p.emitExitBranch(s, cond)

	default:
		if !rec.op.IsBinary() {
			panic("vecplan: generic instruction with unsupported opcode " + rec.op.Name())
		}
		for part := 0; part < s.UF; part++ {
			a := s.Get(rec.operands[0], part)
			b := s.Get(rec.operands[1], part)
			s.Set(rec.results[0], part, emitBinary(s.Block, rec.op, a, b, Flags{Fast: rec.fast}))
		}
	}
	s.tracef("instruction", "op", rec.op.Name())
}

// emitExitBranch terminates the current block with a conditional branch
// whose taken edge leaves the loop. The forward edge stays unresolved for
// the caller to patch. Only the region's exiting block wires its not-taken
// edge back to the loop header now; elsewhere that edge is completed when
// the structurally following block is created.
func (p *Plan) emitExitBranch(s *State, cond value.Value) {
	header := s.CFG.Blocks[p.EntryBlock(p.top)]
	term := ir.NewCondBr(cond, header, header)
	term.TargetTrue = nil
	region := p.blocks[s.planBlock].parent
	if p.regions[region].exiting != s.planBlock {
		term.TargetFalse = nil
	}
	s.Block.Term = term
	s.CFG.Unresolved = append(s.CFG.Unresolved, term)
}

// emitBinary lowers one binary opcode through the instruction builder,
// attaching whatever flags survive.
func emitBinary(blk *ir.Block, op Opcode, a, b value.Value, f Flags) value.Value {
	switch op {
	case OpAdd:
		inst := blk.NewAdd(a, b)
		inst.OverflowFlags = f.overflow()
		return inst
	case OpSub:
		inst := blk.NewSub(a, b)
		inst.OverflowFlags = f.overflow()
		return inst
	case OpMul:
		inst := blk.NewMul(a, b)
		inst.OverflowFlags = f.overflow()
		return inst
	case OpFAdd:
		inst := blk.NewFAdd(a, b)
		inst.FastMathFlags = f.Fast
		return inst
	case OpFSub:
		inst := blk.NewFSub(a, b)
		inst.FastMathFlags = f.Fast
		return inst
	case OpFMul:
		inst := blk.NewFMul(a, b)
		inst.FastMathFlags = f.Fast
		return inst
	case OpFDiv:
		inst := blk.NewFDiv(a, b)
		inst.FastMathFlags = f.Fast
		return inst
	case OpFRem:
		inst := blk.NewFRem(a, b)
		inst.FastMathFlags = f.Fast
		return inst
	case OpUDiv:
		inst := blk.NewUDiv(a, b)
		inst.Exact = f.Exact
		return inst
	case OpSDiv:
		inst := blk.NewSDiv(a, b)
		inst.Exact = f.Exact
		return inst
	case OpURem:
		return blk.NewURem(a, b)
	case OpSRem:
		return blk.NewSRem(a, b)
	case OpShl:
		inst := blk.NewShl(a, b)
		inst.OverflowFlags = f.overflow()
		return inst
	case OpLShr:
		inst := blk.NewLShr(a, b)
		inst.Exact = f.Exact
		return inst
	case OpAShr:
		inst := blk.NewAShr(a, b)
		inst.Exact = f.Exact
		return inst
	case OpAnd:
		return blk.NewAnd(a, b)
	case OpOr:
		return blk.NewOr(a, b)
	case OpXor:
		return blk.NewXor(a, b)
	default:
		panic("vecplan: not a binary opcode: " + op.Name())
	}
}

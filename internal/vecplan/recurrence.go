package vecplan

import (
	"fmt"
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// RecurKind classifies a reduction by its combining operation.
type RecurKind uint8

const (
	RecurNone RecurKind = iota
	RecurAdd
	RecurMul
	RecurAnd
	RecurOr
	RecurXor
	RecurSMin
	RecurSMax
	RecurUMin
	RecurUMax
	RecurFAdd
	RecurFMul
	RecurFMin
	RecurFMax
)

func (k RecurKind) String() string {
	switch k {
	case RecurAdd:
		return "add"
	case RecurMul:
		return "mul"
	case RecurAnd:
		return "and"
	case RecurOr:
		return "or"
	case RecurXor:
		return "xor"
	case RecurSMin:
		return "smin"
	case RecurSMax:
		return "smax"
	case RecurUMin:
		return "umin"
	case RecurUMax:
		return "umax"
	case RecurFAdd:
		return "fadd"
	case RecurFMul:
		return "fmul"
	case RecurFMin:
		return "fmin"
	case RecurFMax:
		return "fmax"
	default:
		return "none"
	}
}

// IsMinMax reports whether k combines by comparison. Min/max reductions
// have no neutral constant; the external start value seeds every lane.
func (k RecurKind) IsMinMax() bool {
	switch k {
	case RecurSMin, RecurSMax, RecurUMin, RecurUMax, RecurFMin, RecurFMax:
		return true
	}
	return false
}

// identity returns the neutral element of k over ty.
func (k RecurKind) identity(ty types.Type) constant.Constant {
	switch t := ty.(type) {
	case *types.IntType:
		switch k {
		case RecurAdd, RecurOr, RecurXor:
			return constant.NewInt(t, 0)
		case RecurMul:
			return constant.NewInt(t, 1)
		case RecurAnd:
			return constant.NewInt(t, -1)
		}
	case *types.FloatType:
		switch k {
		case RecurFAdd:
			return constant.NewFloat(t, math.Copysign(0, -1))
		case RecurFMul:
			return constant.NewFloat(t, 1)
		}
	}
	panic(fmt.Sprintf("vecplan: no identity for %v reduction over %v", k, ty))
}

// execFirstOrderRecurrencePHI materializes a recurrence phi: the preheader
// seeds the last lane with the scalar initial value, the splice in the body
// reads it back out.
func (p *Plan) execFirstOrderRecurrencePHI(r RecipeID, rec *Recipe, s *State) {
	init := s.GetLane(rec.operands[0], 0, 0)
	ph := s.CFG.Preheader

	var seed value.Value = init
	if s.VF > 1 {
		vecTy := types.NewVector(uint64(s.VF), init.Type())
		seed = ph.NewInsertElement(constant.NewUndef(vecTy), init, constant.NewInt(types.I32, int64(s.VF-1)))
	}
	phi := s.Block.NewPhi(ir.NewIncoming(seed, ph))
	if s.VF == 1 {
		s.SetLane(rec.results[0], 0, 0, phi)
	} else {
		s.Set(rec.results[0], 0, phi)
	}

	if len(rec.operands) < 2 {
		panic("vecplan: recurrence phi without a backedge operand")
	}
	backedge := rec.operands[1]
	s.backpatch = append(s.backpatch, func(latch *ir.Block) {
		var in value.Value
		if s.VF == 1 {
			in = s.GetLane(backedge, s.UF-1, 0)
		} else {
			in = s.Get(backedge, s.UF-1)
		}
		phi.Incs = append(phi.Incs, ir.NewIncoming(in, latch))
	})
}

// execReductionPHI materializes a reduction phi. Scalar phis serve VF==1
// and in-loop reductions; ordered reductions keep one phi for all parts.
// Part 0 is seeded with the start value (inserted into the identity splat
// for vector phis), later parts with the bare identity.
func (p *Plan) execReductionPHI(r RecipeID, rec *Recipe, s *State) {
	scalarPHI := s.VF == 1 || rec.inLoop
	lastPart := s.UF
	if rec.ordered {
		lastPart = 1
	}
	start := s.GetLane(rec.operands[0], 0, 0)
	scalarTy := p.TypeOf(rec.results[0])
	ph := s.CFG.Preheader

	var seed0, seedRest value.Value
	switch {
	case rec.recur.IsMinMax() && scalarPHI:
		seed0, seedRest = start, start
	case rec.recur.IsMinMax():
		bc := s.Builder.Broadcast(ph, start, s.VF)
		seed0, seedRest = bc, bc
	case scalarPHI:
		seed0, seedRest = start, rec.recur.identity(scalarTy)
	default:
		iden := rec.recur.identity(scalarTy)
		vecTy := types.NewVector(uint64(s.VF), scalarTy)
		elems := make([]constant.Constant, s.VF)
		for i := range elems {
			elems[i] = iden
		}
		splat := constant.NewVector(vecTy, elems...)
		seed0 = ph.NewInsertElement(splat, start, constant.NewInt(types.I32, 0))
		seedRest = splat
	}

	if len(rec.operands) < 2 {
		panic("vecplan: reduction phi without a backedge operand")
	}
	backedge := rec.operands[1]
	for part := 0; part < lastPart; part++ {
		seed := seedRest
		if part == 0 {
			seed = seed0
		}
		phi := s.Block.NewPhi(ir.NewIncoming(seed, ph))
		if scalarPHI {
			s.SetLane(rec.results[0], part, 0, phi)
		} else {
			s.Set(rec.results[0], part, phi)
		}
		part := part
		s.backpatch = append(s.backpatch, func(latch *ir.Block) {
			bpart := part
			if rec.ordered {
				bpart = s.UF - 1
			}
			var in value.Value
			if scalarPHI {
				in = s.GetLane(backedge, bpart, 0)
			} else {
				in = s.Get(backedge, bpart)
			}
			phi.Incs = append(phi.Incs, ir.NewIncoming(in, latch))
		})
	}
}

// execReduction materializes an in-loop reduction step: per part, reduce
// the vector operand into the running scalar chain. A mask selects the
// identity into inactive lanes first; ordered float additions go through
// the sequential reduce intrinsic.
func (p *Plan) execReduction(r RecipeID, rec *Recipe, s *State) {
	scalarTy := p.TypeOf(rec.results[0])
	vecTy := types.NewVector(uint64(s.VF), scalarTy)
	chain := s.GetLane(rec.operands[0], 0, 0)

	for part := 0; part < s.UF; part++ {
		vec := s.Get(rec.operands[1], part)
		if rec.masked {
			cond := s.Get(rec.operands[2], part)
			var neutral value.Value
			if rec.recur.IsMinMax() {
				neutral = s.Builder.Broadcast(s.Block, chain, s.VF)
			} else {
				iden := rec.recur.identity(scalarTy)
				elems := make([]constant.Constant, s.VF)
				for i := range elems {
					elems[i] = iden
				}
				neutral = constant.NewVector(vecTy, elems...)
			}
			vec = s.Block.NewSelect(cond, vec, neutral)
		}

		var next value.Value
		if rec.ordered {
			if rec.recur != RecurFAdd {
				panic("vecplan: ordered reduction of non-fadd kind " + rec.recur.String())
			}
			name := fmt.Sprintf("llvm.vector.reduce.fadd.%s", typeSuffix(vecTy))
			reduce := s.Builder.Intrinsic(name, scalarTy, scalarTy, vecTy)
			next = s.Block.NewCall(reduce, chain, vec)
		} else {
			name := fmt.Sprintf("llvm.vector.reduce.%s.%s", rec.recur.String(), typeSuffix(vecTy))
			reduce := s.Builder.Intrinsic(name, scalarTy, vecTy)
			reduced := s.Block.NewCall(reduce, vec)
			next = combineChain(s.Block, rec.recur, chain, reduced)
		}
		s.SetLane(rec.results[0], part, 0, next)
		chain = next
	}
}

// combineChain folds one reduced scalar into the running chain.
func combineChain(blk *ir.Block, k RecurKind, chain, v value.Value) value.Value {
	switch k {
	case RecurAdd:
		return blk.NewAdd(chain, v)
	case RecurMul:
		return blk.NewMul(chain, v)
	case RecurAnd:
		return blk.NewAnd(chain, v)
	case RecurOr:
		return blk.NewOr(chain, v)
	case RecurXor:
		return blk.NewXor(chain, v)
	case RecurFAdd:
		return blk.NewFAdd(chain, v)
	case RecurFMul:
		return blk.NewFMul(chain, v)
	case RecurSMin:
		return blk.NewSelect(blk.NewICmp(enum.IPredSLT, chain, v), chain, v)
	case RecurSMax:
		return blk.NewSelect(blk.NewICmp(enum.IPredSGT, chain, v), chain, v)
	case RecurUMin:
		return blk.NewSelect(blk.NewICmp(enum.IPredULT, chain, v), chain, v)
	case RecurUMax:
		return blk.NewSelect(blk.NewICmp(enum.IPredUGT, chain, v), chain, v)
	case RecurFMin:
		return blk.NewSelect(blk.NewFCmp(enum.FPredOLT, chain, v), chain, v)
	case RecurFMax:
		return blk.NewSelect(blk.NewFCmp(enum.FPredOGT, chain, v), chain, v)
	default:
		panic("vecplan: cannot combine " + k.String() + " reduction")
	}
}

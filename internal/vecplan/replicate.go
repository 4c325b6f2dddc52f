package vecplan

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// execReplicate materializes per-lane clones of the underlying scalar
// operation. Inside a predicated region only the current instance runs;
// uniform recipes run lane 0 of each part; everything else runs every
// (part, lane).
func (p *Plan) execReplicate(r RecipeID, rec *Recipe, s *State) {
	if s.Instance != nil {
		p.replicateInstance(rec, s, s.Instance.Part, s.Instance.Lane)
		return
	}
	lanes := s.VF
	if rec.uniform {
		lanes = 1
	}
	for part := 0; part < s.UF; part++ {
		for lane := 0; lane < lanes; lane++ {
			p.replicateInstance(rec, s, part, lane)
		}
	}
}

// replicateInstance emits one scalar clone at (part, lane).
func (p *Plan) replicateInstance(rec *Recipe, s *State, part, lane int) {
	ing := &rec.ing
	ops := make([]value.Value, len(rec.operands))
	for i, op := range rec.operands {
		ops[i] = s.GetLane(op, part, lane)
	}

	var out value.Value
	switch {
	case ing.Op.IsBinary():
		out = emitBinary(s.Block, ing.Op, ops[0], ops[1], ing.Flags)
	case ing.Op.IsCast():
		out = emitCast(s.Block, ing.Op, ops[0], ing.Type)
	case ing.Op == OpICmp:
		out = s.Block.NewICmp(ing.IPred, ops[0], ops[1])
	case ing.Op == OpFCmp:
		out = s.Block.NewFCmp(ing.FPred, ops[0], ops[1])
	case ing.Op == OpSelect:
		out = s.Block.NewSelect(ops[0], ops[1], ops[2])
	case ing.Op == OpLoad:
		out = s.Block.NewLoad(ing.Type, ops[0])
	case ing.Op == OpStore:
		s.Block.NewStore(ops[1], ops[0])
	case ing.Op == OpGetElementPtr:
		out = s.Block.NewGetElementPtr(ing.GEPElem, ops[0], ops[1:]...)
	case ing.Op == OpCall:
		out = s.Block.NewCall(ing.Callee, ops...)
	default:
		panic("vecplan: cannot replicate opcode " + ing.Op.Name())
	}
	if len(rec.results) > 0 {
		s.SetLane(rec.results[0], part, lane, out)
	}
}

// execBlend materializes a blend of predicated incomings as a select chain.
// A single incoming is a plain copy; later pairs override earlier ones
// where their mask is set.
func (p *Plan) execBlend(r RecipeID, rec *Recipe, s *State) {
	pairs := len(rec.operands) / 2
	for part := 0; part < s.UF; part++ {
		acc := s.Get(rec.operands[0], part)
		for i := 1; i < pairs; i++ {
			mask := s.Get(rec.operands[2*i+1], part)
			in := s.Get(rec.operands[2*i], part)
			acc = s.Block.NewSelect(mask, in, acc)
		}
		s.Set(rec.results[0], part, acc)
	}
}

// emitBranchOnMask terminates the current block with a branch into the
// predicated body on the instance's lane of the mask.
func (p *Plan) emitBranchOnMask(rec *Recipe, s *State, body, cont *ir.Block) {
	cond := s.GetLane(rec.operands[0], s.Instance.Part, s.Instance.Lane)
	s.Block.Term = ir.NewCondBr(cond, body, cont)
}

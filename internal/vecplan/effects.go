package vecplan

// Memory-effect classification. Scheduling and dead-recipe elimination rely
// on these answers, so the pure structural kinds assert that the underlying
// operation agrees: a widen recipe wrapping an effectful operation is a
// planner bug, not a conservative answer.

// MayReadFromMemory reports whether executing r may read memory.
func (p *Plan) MayReadFromMemory(r RecipeID) bool {
	rec := &p.recipes[r].r
	switch rec.kind {
	case KindWidenMemory:
		return rec.ing.Op == OpLoad
	case KindReplicate, KindWidenCall:
		return rec.ing.MayReadMemory()
	case KindInstruction, KindBranchOnMask, KindPredInstPHI, KindBlend,
		KindCanonicalIVPHI, KindFirstOrderRecurrencePHI, KindReductionPHI,
		KindWidenCanonicalIV, KindWidenIntOrFpInduction, KindWidenPointerInduction,
		KindWidenPHI, KindScalarIVSteps, KindExpandExpr, KindReduction:
		return false
	case KindWiden, KindWidenGEP, KindWidenSelect:
		if rec.ing.MayReadMemory() {
			panic("vecplan: pure widen recipe wraps a memory-reading operation")
		}
		return false
	default:
		panic("vecplan: memory-effect query on unmodeled kind " + rec.kind.String())
	}
}

// MayWriteToMemory reports whether executing r may write memory.
func (p *Plan) MayWriteToMemory(r RecipeID) bool {
	rec := &p.recipes[r].r
	switch rec.kind {
	case KindWidenMemory:
		return rec.ing.Op == OpStore
	case KindReplicate, KindWidenCall:
		return rec.ing.MayWriteMemory()
	case KindInstruction, KindBranchOnMask, KindPredInstPHI, KindBlend,
		KindCanonicalIVPHI, KindFirstOrderRecurrencePHI, KindReductionPHI,
		KindWidenCanonicalIV, KindWidenIntOrFpInduction, KindWidenPointerInduction,
		KindWidenPHI, KindScalarIVSteps, KindExpandExpr, KindReduction:
		return false
	case KindWiden, KindWidenGEP, KindWidenSelect:
		if rec.ing.MayWriteMemory() {
			panic("vecplan: pure widen recipe wraps a memory-writing operation")
		}
		return false
	default:
		panic("vecplan: memory-effect query on unmodeled kind " + rec.kind.String())
	}
}

// MayHaveSideEffects reports whether r has observable effects beyond its
// result: memory writes, effectful calls, or control flow.
func (p *Plan) MayHaveSideEffects(r RecipeID) bool {
	rec := &p.recipes[r].r
	switch rec.kind {
	case KindInstruction:
		switch rec.op {
		case OpBranchOnCond, OpBranchOnCount:
			return true
		}
		return false
	case KindBranchOnMask:
		return true
	case KindWidenCall:
		return rec.ing.MayHaveSideEffects()
	case KindReplicate:
		return rec.ing.MayHaveSideEffects()
	case KindWidenMemory:
		if rec.ing.MayHaveSideEffects() != (rec.ing.Op == OpStore) {
			panic("vecplan: widen-memory effect summary disagrees with opcode")
		}
		return rec.ing.Op == OpStore
	case KindPredInstPHI, KindBlend, KindCanonicalIVPHI, KindFirstOrderRecurrencePHI,
		KindReductionPHI, KindWidenCanonicalIV, KindWidenIntOrFpInduction,
		KindWidenPointerInduction, KindWidenPHI, KindScalarIVSteps,
		KindExpandExpr, KindReduction:
		return false
	case KindWiden, KindWidenGEP, KindWidenSelect:
		if rec.ing.MayHaveSideEffects() {
			panic("vecplan: pure widen recipe wraps an effectful operation")
		}
		return false
	default:
		panic("vecplan: side-effect query on unmodeled kind " + rec.kind.String())
	}
}

package vecplan

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/orizon-lang/vecplan/internal/position"
)

// Kind tags a recipe with its materialization strategy. The catalog is
// closed; effect classification, codegen and printing all switch over it
// exhaustively and panic on anything they do not model.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInstruction
	KindWiden
	KindWidenCall
	KindWidenSelect
	KindWidenGEP
	KindWidenMemory
	KindWidenIntOrFpInduction
	KindWidenPointerInduction
	KindWidenCanonicalIV
	KindWidenPHI
	KindBlend
	KindReduction
	KindReductionPHI
	KindReplicate
	KindBranchOnMask
	KindPredInstPHI
	KindCanonicalIVPHI
	KindFirstOrderRecurrencePHI
	KindScalarIVSteps
	KindExpandExpr
)

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "instruction"
	case KindWiden:
		return "widen"
	case KindWidenCall:
		return "widen-call"
	case KindWidenSelect:
		return "widen-select"
	case KindWidenGEP:
		return "widen-gep"
	case KindWidenMemory:
		return "widen-memory"
	case KindWidenIntOrFpInduction:
		return "widen-induction"
	case KindWidenPointerInduction:
		return "widen-pointer-induction"
	case KindWidenCanonicalIV:
		return "widen-canonical-induction"
	case KindWidenPHI:
		return "widen-phi"
	case KindBlend:
		return "blend"
	case KindReduction:
		return "reduction"
	case KindReductionPHI:
		return "reduction-phi"
	case KindReplicate:
		return "replicate"
	case KindBranchOnMask:
		return "branch-on-mask"
	case KindPredInstPHI:
		return "pred-inst-phi"
	case KindCanonicalIVPHI:
		return "canonical-iv-phi"
	case KindFirstOrderRecurrencePHI:
		return "first-order-recurrence-phi"
	case KindScalarIVSteps:
		return "scalar-iv-steps"
	case KindExpandExpr:
		return "expand-expr"
	default:
		return "invalid"
	}
}

// backedgeOperand reports whether operand i of a recipe of kind k arrives
// over the loop backedge and so may reference a later definition. Induction
// phis are excluded: their step operand sits at index 1 and must be defined
// before use.
func (k Kind) backedgeOperand(i int) bool {
	switch k {
	case KindCanonicalIVPHI, KindFirstOrderRecurrencePHI, KindReductionPHI,
		KindWidenPHI:
		return i >= 1
	}
	return false
}

// Recipe is one planned operation: how to turn a scalar-loop operation (or a
// planner-synthesized one) into target instructions across all unroll parts
// and lanes. The payload fields are interpreted per kind; unused fields stay
// zero.
type Recipe struct {
	kind Kind
	op   Opcode
	ing  Ingredient

	operands []ValueID
	results  []ValueID

	// KindInstruction / KindWiden floating-point state.
	fast []enum.FastMathFlag

	// KindWidenSelect: condition known loop-invariant.
	invariantCond bool

	// KindWidenGEP per-operand invariance: index 0 is the pointer operand.
	invariant []bool

	// KindWidenMemory access shape.
	consecutive bool
	reverse     bool
	masked      bool

	// KindWidenCall resolved vector variant.
	variant *ir.Func

	// KindReduction / KindReductionPHI.
	recur   RecurKind
	ordered bool
	inLoop  bool

	// KindReplicate execution shape.
	uniform  bool
	alsoPack bool

	// KindExpandExpr payload.
	expr *Expr

	pos position.Span
}

// newRecipe allocates a detached recipe and its result values.
func (p *Plan) newRecipe(r Recipe, resultTypes ...types.Type) RecipeID {
	p.checkMutable()
	id := RecipeID(len(p.recipes))
	for _, ty := range resultTypes {
		r.results = append(r.results, p.newResult(id, ty, r.pos))
	}
	p.recipes = append(p.recipes, recipeSlot{r: r, parent: NoBlock})
	return id
}

// KindOf returns the kind tag of r.
func (p *Plan) KindOf(r RecipeID) Kind { return p.recipes[r].r.kind }

// OpcodeOf returns the opcode of r: the synthesized opcode for generic
// instructions, the underlying operation's opcode otherwise.
func (p *Plan) OpcodeOf(r RecipeID) Opcode {
	rec := &p.recipes[r].r
	if rec.kind == KindInstruction {
		return rec.op
	}
	return rec.ing.Op
}

// IngredientOf returns the underlying-operation descriptor of r.
func (p *Plan) IngredientOf(r RecipeID) *Ingredient { return &p.recipes[r].r.ing }

// Operands returns the operand values of r. The slice must not be mutated.
func (p *Plan) Operands(r RecipeID) []ValueID { return p.recipes[r].r.operands }

// Operand returns the i'th operand of r.
func (p *Plan) Operand(r RecipeID, i int) ValueID { return p.recipes[r].r.operands[i] }

// NumOperands returns the operand count of r.
func (p *Plan) NumOperands(r RecipeID) int { return len(p.recipes[r].r.operands) }

// AddOperand appends an operand to r. Header phis gain their backedge
// operand this way after the loop body is built.
func (p *Plan) AddOperand(r RecipeID, v ValueID) {
	p.checkMutable()
	p.checkAlive(r)
	rec := &p.recipes[r].r
	rec.operands = append(rec.operands, v)
}

// Result returns the single result value of r, NoValue when r defines none.
func (p *Plan) Result(r RecipeID) ValueID {
	res := p.recipes[r].r.results
	if len(res) == 0 {
		return NoValue
	}
	return res[0]
}

// Results returns all result values of r.
func (p *Plan) Results(r RecipeID) []ValueID { return p.recipes[r].r.results }

// SetSpan attaches a debug location to r and its results.
func (p *Plan) SetSpan(r RecipeID, s position.Span) {
	rec := &p.recipes[r].r
	rec.pos = s
	for _, v := range rec.results {
		p.values[v].pos = s
	}
}

// NewInstruction creates a generic-instruction recipe for op. A result value
// is allocated for opcodes producing one; ty is its scalar type and may be
// nil for result-less opcodes.
func (p *Plan) NewInstruction(op Opcode, ty types.Type, operands ...ValueID) RecipeID {
	r := Recipe{kind: KindInstruction, op: op, operands: operands}
	if op.HasResult() {
		return p.newRecipe(r, ty)
	}
	return p.newRecipe(r)
}

// NewInstructionFMF creates a generic-instruction recipe carrying fast-math
// flags. Only floating-point opcodes may carry them.
func (p *Plan) NewInstructionFMF(op Opcode, ty types.Type, fmf []enum.FastMathFlag, operands ...ValueID) RecipeID {
	if len(fmf) > 0 && !op.IsFloat() {
		panic("vecplan: fast-math flags on non-floating-point opcode")
	}
	r := Recipe{kind: KindInstruction, op: op, operands: operands, fast: fmf}
	if op.HasResult() {
		return p.newRecipe(r, ty)
	}
	return p.newRecipe(r)
}

// NewWiden creates a widening recipe for a pure scalar operation: binary
// arithmetic, unary fneg/freeze, casts and comparisons.
func (p *Plan) NewWiden(ing Ingredient, operands ...ValueID) RecipeID {
	switch {
	case ing.Op.IsBinary(), ing.Op.IsCast():
	case ing.Op == OpFNeg, ing.Op == OpFreeze, ing.Op == OpICmp, ing.Op == OpFCmp:
	default:
		panic("vecplan: opcode not widenable: " + ing.Op.Name())
	}
	resTy := ing.Type
	if ing.Op == OpICmp || ing.Op == OpFCmp {
		resTy = types.I1
	}
	return p.newRecipe(Recipe{kind: KindWiden, ing: ing, operands: operands, fast: ing.Flags.Fast, pos: ing.Pos}, resTy)
}

// NewWidenCall creates a widened call using a pre-resolved vector variant of
// the scalar callee. Call arguments are the operands.
func (p *Plan) NewWidenCall(ing Ingredient, variant *ir.Func, args ...ValueID) RecipeID {
	if ing.Op != OpCall {
		panic("vecplan: widen-call over non-call ingredient")
	}
	return p.newRecipe(Recipe{kind: KindWidenCall, ing: ing, operands: args, variant: variant, pos: ing.Pos}, ing.Type)
}

// NewWidenSelect creates a widened select. invariantCond records that the
// planner proved the condition loop-invariant, in which case it is evaluated
// once as a scalar.
func (p *Plan) NewWidenSelect(ing Ingredient, cond, ifTrue, ifFalse ValueID, invariantCond bool) RecipeID {
	return p.newRecipe(Recipe{
		kind: KindWidenSelect, ing: ing,
		operands:      []ValueID{cond, ifTrue, ifFalse},
		invariantCond: invariantCond,
		pos:           ing.Pos,
	}, ing.Type)
}

// NewWidenGEP creates a widened address computation. invariant flags one
// entry per operand (pointer first); a fully invariant GEP is computed as a
// scalar and broadcast.
func (p *Plan) NewWidenGEP(ing Ingredient, operands []ValueID, invariant []bool) RecipeID {
	if ing.Op != OpGetElementPtr {
		panic("vecplan: widen-gep over non-gep ingredient")
	}
	if len(invariant) != len(operands) {
		panic("vecplan: widen-gep invariance arity mismatch")
	}
	inv := append([]bool(nil), invariant...)
	return p.newRecipe(Recipe{kind: KindWidenGEP, ing: ing, operands: operands, invariant: inv, pos: ing.Pos}, ing.Type)
}

// NewWidenLoad creates a widened load from addr, optionally masked.
// Consecutive accesses use one wide load per part (reversed when reverse);
// non-consecutive addresses gather.
func (p *Plan) NewWidenLoad(ing Ingredient, addr ValueID, mask ValueID, consecutive, reverse bool) RecipeID {
	if ing.Op != OpLoad {
		panic("vecplan: widen-load over non-load ingredient")
	}
	r := Recipe{kind: KindWidenMemory, ing: ing, operands: []ValueID{addr}, consecutive: consecutive, reverse: reverse, pos: ing.Pos}
	if mask != NoValue {
		r.operands = append(r.operands, mask)
		r.masked = true
	}
	return p.newRecipe(r, ing.Type)
}

// NewWidenStore creates a widened store of stored to addr, optionally
// masked.
func (p *Plan) NewWidenStore(ing Ingredient, addr, stored ValueID, mask ValueID, consecutive, reverse bool) RecipeID {
	if ing.Op != OpStore {
		panic("vecplan: widen-store over non-store ingredient")
	}
	r := Recipe{kind: KindWidenMemory, ing: ing, operands: []ValueID{addr, stored}, consecutive: consecutive, reverse: reverse, pos: ing.Pos}
	if mask != NoValue {
		r.operands = append(r.operands, mask)
		r.masked = true
	}
	return p.newRecipe(r)
}

// IsStore reports whether a widen-memory or replicate recipe writes memory.
func (p *Plan) IsStore(r RecipeID) bool { return p.recipes[r].r.ing.Op == OpStore }

// IsMasked reports whether a widen-memory recipe carries a mask operand.
func (p *Plan) IsMasked(r RecipeID) bool { return p.recipes[r].r.masked }

// MaskOf returns the mask operand of a masked widen-memory recipe.
func (p *Plan) MaskOf(r RecipeID) ValueID {
	rec := &p.recipes[r].r
	if !rec.masked {
		return NoValue
	}
	return rec.operands[len(rec.operands)-1]
}

// NewWidenIntOrFpInduction creates a header phi producing the vectorized
// induction: per part, a vector of lane values start + (part*VF+lane)*step.
func (p *Plan) NewWidenIntOrFpInduction(ing Ingredient, start, step ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindWidenIntOrFpInduction, ing: ing, operands: []ValueID{start, step}, pos: ing.Pos}, ing.Type)
}

// NewWidenPointerInduction creates a header phi for a pointer induction,
// producing per-lane scalar pointers.
func (p *Plan) NewWidenPointerInduction(ing Ingredient, start, step ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindWidenPointerInduction, ing: ing, operands: []ValueID{start, step}, pos: ing.Pos}, ing.Type)
}

// NewWidenCanonicalIV creates the widened view of the canonical induction:
// per part, broadcast(civ) + (part*VF + stepvector).
func (p *Plan) NewWidenCanonicalIV(civ ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindWidenCanonicalIV, operands: []ValueID{civ}}, p.TypeOf(civ))
}

// NewWidenPHI creates a widened header phi with no recognized induction or
// recurrence structure. Incoming values alternate with AddOperand as the
// planner wires edges.
func (p *Plan) NewWidenPHI(ty types.Type, incoming ...ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindWidenPHI, operands: incoming}, ty)
}

// NewBlend creates a blend of predicated incoming values. Operands are
// (value0, mask0, value1, mask1, ...); a single pair degenerates to a copy.
func (p *Plan) NewBlend(ing Ingredient, pairs ...ValueID) RecipeID {
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		panic("vecplan: blend requires (value, mask) pairs")
	}
	return p.newRecipe(Recipe{kind: KindBlend, ing: ing, operands: pairs, pos: ing.Pos}, ing.Type)
}

// BlendPair returns the i'th (value, mask) incoming pair of a blend.
func (p *Plan) BlendPair(r RecipeID, i int) (val, mask ValueID) {
	ops := p.recipes[r].r.operands
	return ops[2*i], ops[2*i+1]
}

// BlendPairs returns the incoming-pair count of a blend.
func (p *Plan) BlendPairs(r RecipeID) int { return len(p.recipes[r].r.operands) / 2 }

// NewReduction creates an in-loop reduction step: reduce vec into the
// running scalar chain, masking inactive lanes with the identity when cond
// is supplied.
func (p *Plan) NewReduction(kind RecurKind, ing Ingredient, chain, vec, cond ValueID, ordered bool) RecipeID {
	r := Recipe{kind: KindReduction, ing: ing, recur: kind, ordered: ordered, operands: []ValueID{chain, vec}, pos: ing.Pos}
	if cond != NoValue {
		r.operands = append(r.operands, cond)
		r.masked = true
	}
	return p.newRecipe(r, ing.Type)
}

// NewReductionPHI creates a reduction header phi seeded with the identity of
// kind and the external start value. Ordered and in-loop reductions keep a
// single scalar phi shared by all parts.
func (p *Plan) NewReductionPHI(kind RecurKind, ty types.Type, start ValueID, ordered, inLoop bool) RecipeID {
	return p.newRecipe(Recipe{kind: KindReductionPHI, recur: kind, ordered: ordered, inLoop: inLoop, operands: []ValueID{start}}, ty)
}

// NewReplicate creates a per-lane clone of the underlying scalar operation.
// Uniform recipes execute lane 0 only; alsoPack additionally assembles the
// per-lane results into a vector.
func (p *Plan) NewReplicate(ing Ingredient, operands []ValueID, uniform, alsoPack bool) RecipeID {
	r := Recipe{kind: KindReplicate, ing: ing, operands: operands, uniform: uniform, alsoPack: alsoPack, pos: ing.Pos}
	if ing.Op.HasResult() {
		return p.newRecipe(r, ing.Type)
	}
	return p.newRecipe(r)
}

// IsUniform reports whether a replicate recipe runs lane 0 only.
func (p *Plan) IsUniform(r RecipeID) bool { return p.recipes[r].r.uniform }

// IsPredicated reports whether r executes under a mask.
func (p *Plan) IsPredicated(r RecipeID) bool { return p.recipes[r].r.masked }

// SetPredicated marks a replicate recipe as guarded by a branch-on-mask
// triangle around it.
func (p *Plan) SetPredicated(r RecipeID) {
	p.checkMutable()
	p.recipes[r].r.masked = true
}

// NewBranchOnMask creates the conditional entry of a predicated triangle:
// branch on the current lane of mask.
func (p *Plan) NewBranchOnMask(mask ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindBranchOnMask, operands: []ValueID{mask}})
}

// NewPredInstPHI creates the merge phi of a predicated triangle, joining the
// predicated definition with poison on the skip edge.
func (p *Plan) NewPredInstPHI(pred ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindPredInstPHI, operands: []ValueID{pred}}, p.TypeOf(pred))
}

// NewCanonicalIVPHI creates the canonical induction phi: a scalar counter
// from start, shared by all unroll parts. At most one per plan.
func (p *Plan) NewCanonicalIVPHI(start ValueID, pos position.Span) RecipeID {
	if p.canonicalIV != NoRecipe {
		panic("vecplan: plan already has a canonical induction")
	}
	id := p.newRecipe(Recipe{kind: KindCanonicalIVPHI, operands: []ValueID{start}, pos: pos}, p.TypeOf(start))
	p.canonicalIV = id
	return id
}

// CanonicalIV returns the plan's canonical induction phi, NoRecipe if none
// was created.
func (p *Plan) CanonicalIV() RecipeID { return p.canonicalIV }

// NewFirstOrderRecurrencePHI creates a first-order recurrence header phi
// carrying the previous iteration's value; init seeds the last lane of the
// preheader vector.
func (p *Plan) NewFirstOrderRecurrencePHI(init ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindFirstOrderRecurrencePHI, operands: []ValueID{init}}, p.TypeOf(init))
}

// NewScalarIVSteps creates per-lane scalar induction steps: for each (part,
// lane), iv + (part*VF+lane)*step.
func (p *Plan) NewScalarIVSteps(ing Ingredient, iv, step ValueID) RecipeID {
	return p.newRecipe(Recipe{kind: KindScalarIVSteps, ing: ing, operands: []ValueID{iv, step}, pos: ing.Pos}, ing.Type)
}

// NewExpandExpr creates a recipe materializing a loop-invariant expression
// once in the preheader.
func (p *Plan) NewExpandExpr(e *Expr, ty types.Type) RecipeID {
	return p.newRecipe(Recipe{kind: KindExpandExpr, expr: e}, ty)
}

// IsCanonicalWidenIV reports whether a widen-induction recipe describes the
// canonical induction: integer, zero start, unit step.
func (p *Plan) IsCanonicalWidenIV(r RecipeID) bool {
	rec := &p.recipes[r].r
	if rec.kind != KindWidenIntOrFpInduction {
		panic("vecplan: canonical query on non-induction recipe")
	}
	if _, ok := rec.ing.Type.(*types.IntType); !ok {
		return false
	}
	start, okS := p.liveInInt(rec.operands[0])
	step, okT := p.liveInInt(rec.operands[1])
	return okS && okT && start == 0 && step == 1
}

// IsCanonicalSteps reports whether a scalar-iv-steps recipe walks the
// canonical induction with unit step, making lane 0 of part 0 the canonical
// counter itself.
func (p *Plan) IsCanonicalSteps(r RecipeID) bool {
	rec := &p.recipes[r].r
	if rec.kind != KindScalarIVSteps {
		panic("vecplan: canonical query on non-steps recipe")
	}
	if p.canonicalIV == NoRecipe || p.Def(rec.operands[0]) != p.canonicalIV {
		return false
	}
	step, ok := p.liveInInt(rec.operands[1])
	return ok && step == 1
}

package vecplan

import (
	"fmt"
	"io"
	"strings"

	"github.com/llir/llvm/ir/constant"
)

// slotTracker numbers plan values in structural order, once per dump.
// Live-ins never get slots; they print through their backing value.
type slotTracker struct {
	slot map[ValueID]int
	next int
}

func (p *Plan) newSlotTracker() *slotTracker {
	st := &slotTracker{slot: make(map[ValueID]int)}
	p.walkBlocks(p.top, func(b BlockID) {
		for _, r := range p.blocks[b].recipes {
			for _, res := range p.recipes[r].r.results {
				st.slot[res] = st.next
				st.next++
			}
		}
	})
	return st
}

// walkBlocks visits every block under region in structural order.
func (p *Plan) walkBlocks(region RegionID, visit func(BlockID)) {
	for _, c := range p.regions[region].children {
		if c.region != NoRegion {
			p.walkBlocks(c.region, visit)
			continue
		}
		visit(c.block)
	}
}

// operand renders one value reference: vp<%N> for plan-defined values,
// ir<...> for live-ins.
func (st *slotTracker) operand(p *Plan, v ValueID) string {
	if v == NoValue {
		return "<none>"
	}
	if p.IsLiveIn(v) {
		if p.values[v].name != "" {
			return "ir<%" + p.values[v].name + ">"
		}
		val := p.values[v].live
		if c, ok := val.(*constant.Int); ok {
			return "ir<" + c.X.String() + ">"
		}
		return "ir<" + val.Ident() + ">"
	}
	n, ok := st.slot[v]
	if !ok {
		return "vp<%?>"
	}
	return fmt.Sprintf("vp<%%%d>", n)
}

func (st *slotTracker) operands(p *Plan, vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = st.operand(p, v)
	}
	return strings.Join(parts, ", ")
}

// String renders the diagnostic dump of the whole plan.
func (p *Plan) String() string {
	var sb strings.Builder
	p.Dump(&sb)
	return sb.String()
}

// Dump writes the diagnostic dump to w.
func (p *Plan) Dump(w io.Writer) {
	st := p.newSlotTracker()
	fmt.Fprintf(w, "VPlan '%s' {\n", p.name)
	p.dumpRegion(w, st, p.top, "")
	fmt.Fprintf(w, "}\n")
}

func (p *Plan) dumpRegion(w io.Writer, st *slotTracker, region RegionID, indent string) {
	reg := &p.regions[region]
	label := reg.name
	if reg.replicate {
		label += " (replicate)"
	}
	fmt.Fprintf(w, "%s%s: {\n", indent, label)
	for _, c := range reg.children {
		if c.region != NoRegion {
			p.dumpRegion(w, st, c.region, indent+"  ")
			continue
		}
		fmt.Fprintf(w, "%s  %s:\n", indent, p.blocks[c.block].name)
		for _, r := range p.blocks[c.block].recipes {
			fmt.Fprintf(w, "%s    %s\n", indent, p.formatRecipe(st, r))
		}
	}
	fmt.Fprintf(w, "%s}\n", indent)
}

// flagString renders the printable IR flags of a recipe.
func flagString(f Flags) string {
	var sb strings.Builder
	if f.NUW {
		sb.WriteString("nuw ")
	}
	if f.NSW {
		sb.WriteString("nsw ")
	}
	if f.Exact {
		sb.WriteString("exact ")
	}
	for _, fm := range f.Fast {
		fmt.Fprintf(&sb, "%v ", fm)
	}
	return sb.String()
}

// formatRecipe renders one recipe line with its kind mnemonic.
func (p *Plan) formatRecipe(st *slotTracker, r RecipeID) string {
	rec := &p.recipes[r].r
	var sb strings.Builder

	res := func() string {
		return st.operand(p, rec.results[0]) + " = "
	}

	switch rec.kind {
	case KindInstruction:
		sb.WriteString("EMIT ")
		if rec.op.HasResult() {
			sb.WriteString(res())
		}
		sb.WriteString(rec.op.Name())
		if len(rec.operands) > 0 {
			sb.WriteString(" " + st.operands(p, rec.operands))
		}

	case KindWiden:
		sb.WriteString("WIDEN " + res() + rec.ing.Op.Name() + " ")
		sb.WriteString(flagString(rec.ing.Flags))
		if rec.ing.Op == OpICmp {
			fmt.Fprintf(&sb, "%v ", rec.ing.IPred)
		}
		if rec.ing.Op == OpFCmp {
			fmt.Fprintf(&sb, "%v ", rec.ing.FPred)
		}
		sb.WriteString(st.operands(p, rec.operands))

	case KindWidenCall:
		callee := "<unknown>"
		if rec.variant != nil {
			callee = rec.variant.Name()
		}
		fmt.Fprintf(&sb, "WIDEN-CALL %scall @%s(%s)", res(), callee, st.operands(p, rec.operands))

	case KindWidenSelect:
		fmt.Fprintf(&sb, "WIDEN-SELECT %sselect %s", res(), st.operands(p, rec.operands))
		if rec.invariantCond {
			sb.WriteString(" (condition is loop invariant)")
		}

	case KindWidenGEP:
		inv := make([]string, len(rec.invariant))
		for i, b := range rec.invariant {
			if b {
				inv[i] = "Inv"
			} else {
				inv[i] = "Var"
			}
		}
		fmt.Fprintf(&sb, "WIDEN-GEP %s %sgetelementptr %s", strings.Join(inv, ""), res(), st.operands(p, rec.operands))

	case KindWidenMemory:
		if rec.ing.Op == OpStore {
			fmt.Fprintf(&sb, "WIDEN store %s", st.operands(p, rec.operands))
		} else {
			fmt.Fprintf(&sb, "WIDEN %sload %s", res(), st.operands(p, rec.operands))
		}
		if rec.reverse {
			sb.WriteString(" (reverse)")
		}

	case KindWidenIntOrFpInduction:
		fmt.Fprintf(&sb, "WIDEN-INDUCTION %sphi %s", res(), st.operands(p, rec.operands))

	case KindWidenPointerInduction:
		fmt.Fprintf(&sb, "WIDEN-POINTER-INDUCTION %sphi %s", res(), st.operands(p, rec.operands))

	case KindWidenCanonicalIV:
		fmt.Fprintf(&sb, "EMIT %sWIDEN-CANONICAL-INDUCTION %s", res(), st.operands(p, rec.operands))

	case KindWidenPHI:
		fmt.Fprintf(&sb, "WIDEN-PHI %sphi %s", res(), st.operands(p, rec.operands))

	case KindBlend:
		fmt.Fprintf(&sb, "BLEND %s%s", res(), st.operand(p, rec.operands[0]))
		for i := 1; i < len(rec.operands)/2; i++ {
			fmt.Fprintf(&sb, " %s/%s", st.operand(p, rec.operands[2*i]), st.operand(p, rec.operands[2*i+1]))
		}

	case KindReduction:
		fmt.Fprintf(&sb, "REDUCE %s%s + reduce.%s (%s", res(), st.operand(p, rec.operands[0]), rec.recur, st.operand(p, rec.operands[1]))
		if rec.masked {
			fmt.Fprintf(&sb, ", %s", st.operand(p, rec.operands[2]))
		}
		sb.WriteString(")")

	case KindReductionPHI:
		fmt.Fprintf(&sb, "WIDEN-REDUCTION-PHI %sphi %s", res(), st.operands(p, rec.operands))

	case KindReplicate:
		mnemonic := "REPLICATE"
		if rec.uniform {
			mnemonic = "CLONE"
		}
		sb.WriteString(mnemonic + " ")
		if rec.ing.Op.HasResult() {
			sb.WriteString(res())
		}
		if rec.ing.Op == OpCall {
			callee := "<unknown>"
			if rec.ing.Callee != nil {
				callee = rec.ing.Callee.Name()
			}
			fmt.Fprintf(&sb, "call @%s(%s)", callee, st.operands(p, rec.operands))
		} else {
			sb.WriteString(rec.ing.Op.Name() + " " + st.operands(p, rec.operands))
		}

	case KindBranchOnMask:
		fmt.Fprintf(&sb, "BRANCH-ON-MASK %s", st.operand(p, rec.operands[0]))

	case KindPredInstPHI:
		fmt.Fprintf(&sb, "PHI-PREDICATED-INSTRUCTION %s%s", res(), st.operand(p, rec.operands[0]))

	case KindCanonicalIVPHI:
		fmt.Fprintf(&sb, "EMIT %sCANONICAL-INDUCTION", res())

	case KindFirstOrderRecurrencePHI:
		fmt.Fprintf(&sb, "FIRST-ORDER-RECURRENCE-PHI %sphi %s", res(), st.operands(p, rec.operands))

	case KindScalarIVSteps:
		fmt.Fprintf(&sb, "SCALAR-STEPS %s%s", res(), st.operands(p, rec.operands))

	case KindExpandExpr:
		fmt.Fprintf(&sb, "EXPAND %s%s", res(), rec.expr)

	default:
		fmt.Fprintf(&sb, "<unprintable kind %v>", rec.kind)
	}

	if rec.pos.Start.IsValid() {
		fmt.Fprintf(&sb, ", !dbg %s", rec.pos)
	}
	return sb.String()
}

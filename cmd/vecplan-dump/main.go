// Command vecplan-dump builds the vectorization plan for the canonical
// c[i] = a[i] + b[i] loop, prints its diagnostic dump, and can materialize
// the plan through the instruction builder.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/nikandfor/tlog"
	"github.com/xyproto/env/v2"

	"github.com/orizon-lang/vecplan/internal/position"
	"github.com/orizon-lang/vecplan/internal/target"
	"github.com/orizon-lang/vecplan/internal/vecplan"
)

func main() {
	feats := target.Detect()

	vf := flag.Int("vf", env.Int("VECPLAN_VF", feats.NaturalVF(32)), "vectorization factor (lanes)")
	uf := flag.Int("uf", env.Int("VECPLAN_UF", feats.DefaultUF()), "unroll factor (parts)")
	emitIR := flag.Bool("emit-ir", false, "materialize the plan and print the generated IR")
	trace := flag.Bool("trace", env.Bool("VECPLAN_TRACE"), "trace codegen to stderr")
	flag.Parse()

	if err := run(*vf, *uf, *emitIR, *trace); err != nil {
		fmt.Fprintf(os.Stderr, "vecplan-dump: %v\n", err)
		os.Exit(1)
	}
}

func run(vf, uf int, emitIR, trace bool) error {
	if trace {
		tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(os.Stderr, tlog.LstdFlags))
	}

	m := ir.NewModule()
	f32ptr := types.NewPointer(types.Float)
	fn := m.NewFunc("saxpy_body",
		types.Void,
		ir.NewParam("a", f32ptr),
		ir.NewParam("b", f32ptr),
		ir.NewParam("c", f32ptr),
		ir.NewParam("n", types.I64),
	)

	plan := buildPlan(fn)
	if err := plan.Validate(); err != nil {
		return err
	}
	plan.Dump(os.Stdout)

	if !emitIR {
		return nil
	}

	preheader := fn.NewBlock("vector.ph")
	builder := vecplan.NewBuilder(m, fn)
	st := vecplan.NewState(plan, builder, vf, uf)
	st.CFG.Preheader = preheader
	if trace {
		st.Span = tlog.Start("execute", "vf", vf, "uf", uf)
		defer st.Span.Finish()
	}

	plan.Execute(st)

	preheader.Term = ir.NewBr(st.CFG.Blocks[plan.EntryBlock(plan.TopRegion())])
	middle := fn.NewBlock("middle.block")
	middle.Term = ir.NewRet(nil)
	for _, term := range st.CFG.Unresolved {
		term.TargetTrue = middle
	}
	plan.FixLiveOuts(st, middle)

	fmt.Println(m)
	return nil
}

// buildPlan assembles the plan for one iteration of c[i] = a[i] + b[i]:
// canonical counter, per-lane addresses, two wide loads, a wide fadd, a
// wide store, the counter increment and the latch branch.
func buildPlan(fn *ir.Func) *vecplan.Plan {
	p := vecplan.NewPlan("saxpy")

	a := p.NewLiveIn(fn.Params[0], "a")
	b := p.NewLiveIn(fn.Params[1], "b")
	c := p.NewLiveIn(fn.Params[2], "c")
	n := p.NewLiveIn(fn.Params[3], "n")
	zero := p.NewLiveIn(constant.NewInt(types.I64, 0), "")
	one := p.NewLiveIn(constant.NewInt(types.I64, 1), "")

	body := p.NewBlock(p.TopRegion(), "vector.body")
	p.SetExiting(p.TopRegion(), body)

	civ := p.NewCanonicalIVPHI(zero, position.Span{})
	p.AppendRecipe(body, civ)

	steps := p.NewScalarIVSteps(vecplan.Ingredient{Op: vecplan.OpAdd, Type: types.I64}, p.Result(civ), one)
	p.AppendRecipe(body, steps)

	gep := func(base vecplan.ValueID) vecplan.RecipeID {
		r := p.NewReplicate(vecplan.Ingredient{
			Op:      vecplan.OpGetElementPtr,
			Type:    types.NewPointer(types.Float),
			GEPElem: types.Float,
		}, []vecplan.ValueID{base, p.Result(steps)}, true, false)
		p.AppendRecipe(body, r)
		return r
	}
	gepA, gepB, gepC := gep(a), gep(b), gep(c)

	loadIng := vecplan.Ingredient{Op: vecplan.OpLoad, Type: types.Float}
	loadA := p.NewWidenLoad(loadIng, p.Result(gepA), vecplan.NoValue, true, false)
	p.AppendRecipe(body, loadA)
	loadB := p.NewWidenLoad(loadIng, p.Result(gepB), vecplan.NoValue, true, false)
	p.AppendRecipe(body, loadB)

	add := p.NewWiden(vecplan.Ingredient{Op: vecplan.OpFAdd, Type: types.Float},
		p.Result(loadA), p.Result(loadB))
	p.AppendRecipe(body, add)

	store := p.NewWidenStore(vecplan.Ingredient{Op: vecplan.OpStore, Type: types.Float},
		p.Result(gepC), p.Result(add), vecplan.NoValue, true, false)
	p.AppendRecipe(body, store)

	inc := p.NewInstruction(vecplan.OpCanonicalIVIncrementNUW, types.I64, p.Result(civ))
	p.AppendRecipe(body, inc)
	p.AddOperand(civ, p.Result(inc))

	latch := p.NewInstruction(vecplan.OpBranchOnCount, nil, p.Result(inc), n)
	p.AppendRecipe(body, latch)

	return p
}

package vecplan

import (
	"testing"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

func TestMemoryEffectClassification(t *testing.T) {
	p := NewPlan("effects")
	addr := p.NewLiveIn(constant.NewNull(types.NewPointer(types.I32)), "addr")
	val := p.NewLiveIn(constant.NewInt(types.I32, 7), "")
	flag := p.NewLiveIn(constant.NewInt(types.I1, 1), "")

	load := p.NewWidenLoad(Ingredient{Op: OpLoad, Type: types.I32}, addr, NoValue, true, false)
	store := p.NewWidenStore(Ingredient{Op: OpStore, Type: types.I32}, addr, val, NoValue, true, false)
	widen := p.NewWiden(Ingredient{Op: OpAdd, Type: types.I32}, val, val)
	not := p.NewInstruction(OpNot, types.I1, flag)
	branch := p.NewInstruction(OpBranchOnCond, nil, flag)
	clone := p.NewReplicate(Ingredient{Op: OpStore, Type: types.I32, Writes: true}, []ValueID{addr, val}, false, false)

	tests := []struct {
		name    string
		r       RecipeID
		reads   bool
		writes  bool
		effects bool
	}{
		{name: "widen load", r: load, reads: true},
		{name: "widen store", r: store, writes: true, effects: true},
		{name: "widen add", r: widen},
		{name: "generic not", r: not},
		{name: "branch", r: branch, effects: true},
		{name: "replicated store", r: clone, writes: true, effects: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.MayReadFromMemory(tt.r); got != tt.reads {
				t.Errorf("MayReadFromMemory = %v, want %v", got, tt.reads)
			}
			if got := p.MayWriteToMemory(tt.r); got != tt.writes {
				t.Errorf("MayWriteToMemory = %v, want %v", got, tt.writes)
			}
			if got := p.MayHaveSideEffects(tt.r); got != tt.effects {
				t.Errorf("MayHaveSideEffects = %v, want %v", got, tt.effects)
			}
		})
	}
}

func TestWidenOverEffectfulOperationPanics(t *testing.T) {
	p := NewPlan("effects")
	val := p.NewLiveIn(constant.NewInt(types.I32, 7), "")

	// A pure widen recipe whose underlying operation claims to write memory
	// is a planner bug, not a conservative answer.
	r := p.NewWiden(Ingredient{Op: OpAdd, Type: types.I32, Writes: true}, val, val)
	mustPanic(t, "memory-writing operation", func() {
		p.MayWriteToMemory(r)
	})
	mustPanic(t, "effectful operation", func() {
		p.MayHaveSideEffects(r)
	})
}

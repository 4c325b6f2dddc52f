package vecplan

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/orizon-lang/vecplan/internal/position"
)

// Value is an SSA-style node: the result of a recipe, or an externally
// supplied live-in. Values are owned by the plan and referenced, never
// owned, by the recipes using them as operands.
type Value struct {
	def  RecipeID    // defining recipe, NoRecipe for live-ins
	live value.Value // backing instruction for live-ins
	name string      // diagnostic name for live-ins
	ty   types.Type  // scalar (per-lane) type
	pos  position.Span
}

// NewLiveIn registers an externally supplied input value under a diagnostic
// name and returns its handle.
func (p *Plan) NewLiveIn(v value.Value, name string) ValueID {
	p.checkMutable()
	id := ValueID(len(p.values))
	p.values = append(p.values, Value{def: NoRecipe, live: v, name: name, ty: v.Type()})
	return id
}

// newResult allocates the result value of a recipe.
func (p *Plan) newResult(def RecipeID, ty types.Type, pos position.Span) ValueID {
	id := ValueID(len(p.values))
	p.values = append(p.values, Value{def: def, ty: ty, pos: pos})
	return id
}

// IsLiveIn reports whether v was supplied externally rather than defined by
// a recipe.
func (p *Plan) IsLiveIn(v ValueID) bool { return p.values[v].def == NoRecipe }

// LiveIn returns the backing instruction of a live-in value, nil otherwise.
func (p *Plan) LiveIn(v ValueID) value.Value { return p.values[v].live }

// Def returns the recipe defining v, or NoRecipe for live-ins.
func (p *Plan) Def(v ValueID) RecipeID { return p.values[v].def }

// TypeOf returns the scalar (per-lane) type of v.
func (p *Plan) TypeOf(v ValueID) types.Type { return p.values[v].ty }

// liveInInt returns the constant integer behind a live-in, if it is one.
func (p *Plan) liveInInt(v ValueID) (int64, bool) {
	c, ok := p.values[v].live.(*constant.Int)
	if !ok {
		return 0, false
	}
	return c.X.Int64(), true
}

package vecplan

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/nikandfor/tlog"
)

// Instance names one scalar execution point inside per-lane code: unroll
// part and vector lane.
type Instance struct {
	Part int
	Lane int
}

type valuePart struct {
	v    ValueID
	part int
}

type valuePartLane struct {
	v          ValueID
	part, lane int
}

// unresolvedEdge is a conditional branch whose taken successor leaves the
// plan's scope. The caller patches it after codegen (middle block, scalar
// epilogue).
type unresolvedEdge struct {
	Term *ir.TermCondBr
}

// CFG maps plan blocks to their emitted counterparts and collects the exit
// edges left for the caller to resolve.
type CFG struct {
	Blocks     map[BlockID]*ir.Block
	Preheader  *ir.Block
	Unresolved []*ir.TermCondBr
}

// State carries everything codegen threads through recipe execution: the
// chosen factors, the instruction builder, the value maps from plan values
// to emitted instructions, and the current insertion point.
type State struct {
	VF int
	UF int

	Plan    *Plan
	Builder *Builder
	CFG     CFG

	// Block receiving emitted instructions.
	Block *ir.Block

	// Non-nil while executing per-lane code inside a replicate region; all
	// scalar recipes then execute only this (part, lane).
	Instance *Instance

	// The plan block currently executing, for terminator synthesis.
	planBlock BlockID

	// Recipes whose poison-generating flags must be dropped because control
	// flow that guarded them was linearized away. Supplied by the planner.
	MayGeneratePoison map[RecipeID]bool

	// Optional codegen trace.
	Span tlog.Span

	perPart map[valuePart]value.Value
	perLane map[valuePartLane]value.Value

	// Header-phi backedge fixups, run with the latch as insertion block
	// once every recipe has executed.
	backpatch []func(latch *ir.Block)
}

// NewState prepares codegen state for the given factors. VF and UF must be
// positive; VF is a power of two per the planner's contract.
func NewState(p *Plan, b *Builder, vf, uf int) *State {
	if vf < 1 || uf < 1 {
		panic(fmt.Sprintf("vecplan: invalid factors VF=%d UF=%d", vf, uf))
	}
	return &State{
		VF:        vf,
		UF:        uf,
		Plan:      p,
		Builder:   b,
		CFG:       CFG{Blocks: make(map[BlockID]*ir.Block)},
		planBlock: NoBlock,
		perPart:   make(map[valuePart]value.Value),
		perLane:   make(map[valuePartLane]value.Value),
	}
}

// HasVector reports whether v already has a vector value for part.
func (s *State) HasVector(v ValueID, part int) bool {
	_, ok := s.perPart[valuePart{v, part}]
	return ok
}

// HasScalar reports whether v already has a scalar value for (part, lane).
func (s *State) HasScalar(v ValueID, part, lane int) bool {
	_, ok := s.perLane[valuePartLane{v, part, lane}]
	return ok
}

// Set records the vector value of v for part. A slot is written once;
// rewriting one is a codegen bug.
func (s *State) Set(v ValueID, part int, val value.Value) {
	k := valuePart{v, part}
	if _, ok := s.perPart[k]; ok {
		panic(fmt.Sprintf("vecplan: vector value for v%d part %d set twice", v, part))
	}
	s.perPart[k] = val
}

// SetLane records the scalar value of v for (part, lane).
func (s *State) SetLane(v ValueID, part, lane int, val value.Value) {
	k := valuePartLane{v, part, lane}
	if _, ok := s.perLane[k]; ok {
		panic(fmt.Sprintf("vecplan: scalar value for v%d part %d lane %d set twice", v, part, lane))
	}
	s.perLane[k] = val
}

// reset replaces the vector value of v for part. Only header-phi fixup may
// do this, after the backedge value becomes available.
func (s *State) reset(v ValueID, part int, val value.Value) {
	s.perPart[valuePart{v, part}] = val
}

// Get returns the vector value of v for part, materializing it if only
// scalar forms exist: live-ins and uniform values broadcast, per-lane
// definitions pack lane by lane. The materialized value is cached.
func (s *State) Get(v ValueID, part int) value.Value {
	if val, ok := s.perPart[valuePart{v, part}]; ok {
		return val
	}
	if s.Plan.IsLiveIn(v) || s.Plan.IsUniformAfterVectorization(v) {
		bc := s.Builder.Broadcast(s.Block, s.GetLane(v, part, 0), s.VF)
		s.perPart[valuePart{v, part}] = bc
		return bc
	}
	// Pack per-lane scalars into a vector.
	ty := s.Plan.TypeOf(v)
	var packed value.Value = constant.NewUndef(types.NewVector(uint64(s.VF), ty))
	for lane := 0; lane < s.VF; lane++ {
		packed = s.Block.NewInsertElement(packed, s.GetLane(v, part, lane), constant.NewInt(types.I32, int64(lane)))
	}
	s.perPart[valuePart{v, part}] = packed
	return packed
}

// GetLane returns the scalar value of v for (part, lane). Live-ins return
// their backing value; uniform values fold every lane to lane 0; otherwise
// the lane is extracted from the vector form.
func (s *State) GetLane(v ValueID, part, lane int) value.Value {
	if val, ok := s.perLane[valuePartLane{v, part, lane}]; ok {
		return val
	}
	if s.Plan.IsLiveIn(v) {
		return s.Plan.LiveIn(v)
	}
	if lane != 0 && s.Plan.IsUniformAfterVectorization(v) {
		return s.GetLane(v, part, 0)
	}
	vec, ok := s.perPart[valuePart{v, part}]
	if !ok {
		panic(fmt.Sprintf("vecplan: no value for v%d part %d lane %d", v, part, lane))
	}
	ext := s.Block.NewExtractElement(vec, constant.NewInt(types.I32, int64(lane)))
	s.perLane[valuePartLane{v, part, lane}] = ext
	return ext
}

// GetInstance returns the scalar value of v at the state's current lane
// instance. Outside per-lane execution it is (part, 0).
func (s *State) GetInstance(v ValueID, part int) value.Value {
	if s.Instance != nil {
		return s.GetLane(v, s.Instance.Part, s.Instance.Lane)
	}
	return s.GetLane(v, part, 0)
}

// mayStripPoison reports whether r's poison-generating flags must drop.
func (s *State) mayStripPoison(r RecipeID) bool {
	return s.MayGeneratePoison != nil && s.MayGeneratePoison[r]
}

// tracef logs one codegen event when tracing is enabled. Printw on a zero
// span is a no-op, so callers never guard.
func (s *State) tracef(msg string, kvs ...interface{}) {
	s.Span.Printw(msg, kvs...)
}

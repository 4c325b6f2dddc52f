// Package vecplan defines the planning IR used by the loop-vectorization
// stage. A Plan models how one scalar loop body is widened into SIMD form:
// a hierarchy of regions and blocks containing recipes, each recipe
// describing how to materialize target instructions for one operation
// across all unroll parts and vector lanes. The legality and cost analysis
// that decides the vectorization and unroll factors lives upstream; the
// instruction builder the plan emits into lives downstream.
package vecplan

import (
	"fmt"

	"github.com/nikandfor/errors"
)

// Handles into the arenas owned by a Plan. Handles stay valid across
// structural mutation; only EraseFromParent retires a recipe slot.
type (
	ValueID  int32
	RecipeID int32
	BlockID  int32
	RegionID int32
)

const (
	NoValue  ValueID  = -1
	NoRecipe RecipeID = -1
	NoBlock  BlockID  = -1
	NoRegion RegionID = -1
)

// Plan owns every value, recipe, block and region of one candidate
// vectorization. The graph is freely restructured until Execute is called;
// after that any structural mutation panics.
type Plan struct {
	name string

	values  []Value
	recipes []recipeSlot
	blocks  []blockSlot
	regions []regionSlot

	top RegionID

	// Values the planner proved uniform after vectorization. Consulted by
	// live-out fixup and the pointer-induction scalars-only path.
	uniform map[ValueID]bool

	liveOuts []LiveOut

	// The loop's canonical induction phi, registered by NewCanonicalIVPHI.
	canonicalIV RecipeID

	frozen bool
}

type recipeSlot struct {
	r      Recipe
	parent BlockID
	dead   bool
}

type blockSlot struct {
	name    string
	parent  RegionID
	recipes []RecipeID
}

// A region child is exactly one of a block or a nested region.
type regionChild struct {
	block  BlockID
	region RegionID
}

type regionSlot struct {
	name      string
	parent    RegionID
	replicate bool
	children  []regionChild
	exiting   BlockID
}

// NewPlan creates an empty plan with a single top-level loop region.
func NewPlan(name string) *Plan {
	p := &Plan{
		name:        name,
		uniform:     make(map[ValueID]bool),
		canonicalIV: NoRecipe,
	}
	p.regions = append(p.regions, regionSlot{name: "vector loop", parent: NoRegion, exiting: NoBlock})
	p.top = 0
	return p
}

// Name returns the plan's diagnostic name.
func (p *Plan) Name() string { return p.name }

// TopRegion returns the top-level vector-loop region.
func (p *Plan) TopRegion() RegionID { return p.top }

// NewRegion appends a nested region to parent. Replicate regions model
// single-entry/single-exit predicated per-lane execution.
func (p *Plan) NewRegion(parent RegionID, name string, replicate bool) RegionID {
	p.checkMutable()
	id := RegionID(len(p.regions))
	p.regions = append(p.regions, regionSlot{name: name, parent: parent, replicate: replicate, exiting: NoBlock})
	p.regions[parent].children = append(p.regions[parent].children, regionChild{block: NoBlock, region: id})
	return id
}

// NewBlock appends an empty block to region.
func (p *Plan) NewBlock(region RegionID, name string) BlockID {
	p.checkMutable()
	id := BlockID(len(p.blocks))
	p.blocks = append(p.blocks, blockSlot{name: name, parent: region})
	p.regions[region].children = append(p.regions[region].children, regionChild{block: id, region: NoRegion})
	return id
}

// SetExiting marks block as the loop-exiting block of region.
func (p *Plan) SetExiting(region RegionID, block BlockID) {
	p.checkMutable()
	if p.blocks[block].parent != region {
		panic("vecplan: exiting block not contained in region")
	}
	p.regions[region].exiting = block
}

// EntryBlock returns the first block of region, descending into a leading
// nested region if necessary.
func (p *Plan) EntryBlock(region RegionID) BlockID {
	for _, c := range p.regions[region].children {
		if c.block != NoBlock {
			return c.block
		}
		if b := p.EntryBlock(c.region); b != NoBlock {
			return b
		}
	}
	return NoBlock
}

// BlockName returns the diagnostic name of block.
func (p *Plan) BlockName(b BlockID) string { return p.blocks[b].name }

// BlockRegion returns the region containing block.
func (p *Plan) BlockRegion(b BlockID) RegionID { return p.blocks[b].parent }

// Recipes returns the ordered recipe sequence of block. The returned slice
// must not be mutated by the caller.
func (p *Plan) Recipes(b BlockID) []RecipeID { return p.blocks[b].recipes }

// Parent returns the block currently containing r, or NoBlock when r is
// detached.
func (p *Plan) Parent(r RecipeID) BlockID { return p.recipes[r].parent }

// checkMutable aborts if codegen already started: structural mutation and
// materialization are temporally disjoint phases.
func (p *Plan) checkMutable() {
	if p.frozen {
		panic("vecplan: structural mutation after codegen started")
	}
}

func (p *Plan) checkAlive(r RecipeID) {
	if p.recipes[r].dead {
		panic(fmt.Sprintf("vecplan: use of erased recipe %d", r))
	}
}

// InsertAt inserts r at the given index of block b. r must be detached.
func (p *Plan) InsertAt(b BlockID, index int, r RecipeID) {
	p.checkMutable()
	p.checkAlive(r)
	if p.recipes[r].parent != NoBlock {
		panic("vecplan: recipe already in some block")
	}
	recs := p.blocks[b].recipes
	if index < 0 || index > len(recs) {
		panic(fmt.Sprintf("vecplan: insert index %d out of range [0,%d]", index, len(recs)))
	}
	recs = append(recs, NoRecipe)
	copy(recs[index+1:], recs[index:])
	recs[index] = r
	p.blocks[b].recipes = recs
	p.recipes[r].parent = b
}

// AppendRecipe inserts r at the end of block b.
func (p *Plan) AppendRecipe(b BlockID, r RecipeID) {
	p.InsertAt(b, len(p.blocks[b].recipes), r)
}

// InsertBefore inserts r immediately before pos. pos must be attached and r
// must be detached.
func (p *Plan) InsertBefore(r, pos RecipeID) {
	b, i := p.position(pos)
	p.InsertAt(b, i, r)
}

// InsertAfter inserts r immediately after pos.
func (p *Plan) InsertAfter(r, pos RecipeID) {
	b, i := p.position(pos)
	p.InsertAt(b, i+1, r)
}

// RemoveFromParent detaches r from its block. The recipe stays alive and can
// be reinserted.
func (p *Plan) RemoveFromParent(r RecipeID) {
	p.checkMutable()
	p.checkAlive(r)
	b := p.recipes[r].parent
	if b == NoBlock {
		panic("vecplan: recipe not in any block")
	}
	recs := p.blocks[b].recipes
	for i, id := range recs {
		if id == r {
			p.blocks[b].recipes = append(recs[:i], recs[i+1:]...)
			p.recipes[r].parent = NoBlock
			return
		}
	}
	panic("vecplan: block does not contain its recipe")
}

// EraseFromParent removes r and discards it. The handle must not be used
// afterwards.
func (p *Plan) EraseFromParent(r RecipeID) {
	p.RemoveFromParent(r)
	p.recipes[r].dead = true
	p.recipes[r].r = Recipe{}
}

// MoveBefore detaches r and reattaches it immediately before pos.
func (p *Plan) MoveBefore(r, pos RecipeID) {
	p.RemoveFromParent(r)
	p.InsertBefore(r, pos)
}

// MoveAfter detaches r and reattaches it immediately after pos.
func (p *Plan) MoveAfter(r, pos RecipeID) {
	p.RemoveFromParent(r)
	p.InsertAfter(r, pos)
}

// position locates an attached recipe as (block, index).
func (p *Plan) position(r RecipeID) (BlockID, int) {
	p.checkAlive(r)
	b := p.recipes[r].parent
	if b == NoBlock {
		panic("vecplan: insertion position not in any block")
	}
	for i, id := range p.blocks[b].recipes {
		if id == r {
			return b, i
		}
	}
	panic("vecplan: block does not contain its recipe")
}

// MarkUniform records that v is uniform after vectorization.
func (p *Plan) MarkUniform(v ValueID) { p.uniform[v] = true }

// IsUniformAfterVectorization reports whether the planner marked v uniform.
func (p *Plan) IsUniformAfterVectorization(v ValueID) bool { return p.uniform[v] }

// Validate checks the structural invariants the codegen phase relies on:
// parent/containment coherence and def-before-use ordering of operands.
// Header-phi recipes may reference later-defined values through their
// backedge operands.
func (p *Plan) Validate() error {
	defined := make(map[ValueID]bool)
	for i := range p.values {
		if p.values[i].def == NoRecipe {
			defined[ValueID(i)] = true
		}
	}
	return p.validateRegion(p.top, defined)
}

func (p *Plan) validateRegion(region RegionID, defined map[ValueID]bool) error {
	for _, c := range p.regions[region].children {
		if c.region != NoRegion {
			if err := p.validateRegion(c.region, defined); err != nil {
				return err
			}
			continue
		}
		b := c.block
		for _, r := range p.blocks[b].recipes {
			if p.recipes[r].dead {
				return errors.New("block %v contains erased recipe %v", p.blocks[b].name, r)
			}
			if p.recipes[r].parent != b {
				return errors.New("recipe %v in block %v reports parent %v", r, b, p.recipes[r].parent)
			}
			rec := &p.recipes[r].r
			for i, op := range rec.operands {
				if defined[op] {
					continue
				}
				if rec.kind.backedgeOperand(i) {
					continue
				}
				return errors.New("recipe %v (%v): operand %d used before definition", r, rec.kind, i)
			}
			for _, res := range rec.results {
				defined[res] = true
			}
		}
	}
	return nil
}

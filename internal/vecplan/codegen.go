package vecplan

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
)

// LiveOut patches an external phi (middle block, scalar epilogue) with the
// value a plan value has after the final iteration of the vector loop.
type LiveOut struct {
	Phi *ir.InstPhi
	V   ValueID
}

// AddLiveOut records that phi consumes v after the loop.
func (p *Plan) AddLiveOut(phi *ir.InstPhi, v ValueID) {
	p.checkMutable()
	p.liveOuts = append(p.liveOuts, LiveOut{Phi: phi, V: v})
}

// LiveOuts returns the recorded live-outs.
func (p *Plan) LiveOuts() []LiveOut { return p.liveOuts }

// Execute materializes the whole plan through the state's builder. The
// caller supplies the preheader block; emitted loop blocks are appended to
// the builder's function in structural order. On return the plan is frozen,
// every header phi is complete, and s.CFG records the emitted blocks plus
// the exit branches left for the caller to point at the middle block.
func (p *Plan) Execute(s *State) {
	if s.CFG.Preheader == nil {
		panic("vecplan: codegen without a preheader block")
	}
	p.frozen = true
	s.tracef("execute plan", "name", p.name, "vf", s.VF, "uf", s.UF)

	p.executeRegion(p.top, s)

	// The final insertion block closed the loop; run the header-phi
	// backedge fixups with it as the latch.
	latch := s.Block
	for _, fix := range s.backpatch {
		fix(latch)
	}
	s.backpatch = nil
}

func (p *Plan) executeRegion(region RegionID, s *State) {
	for _, c := range p.regions[region].children {
		if c.region != NoRegion {
			if p.regions[c.region].replicate {
				p.executeReplicateRegion(c.region, s)
			} else {
				p.executeRegion(c.region, s)
			}
			continue
		}
		blk := s.Builder.Func.NewBlock(p.blocks[c.block].name)
		s.CFG.Blocks[c.block] = blk
		// Wire the previous block's fall-through edge: a plain branch when it
		// has no terminator yet, or the pending not-taken edge of a
		// conditional branch emitted in a non-exiting block.
		if s.Block != nil {
			if s.Block.Term == nil {
				s.Block.Term = ir.NewBr(blk)
			} else if t, ok := s.Block.Term.(*ir.TermCondBr); ok && t.TargetFalse == nil {
				t.TargetFalse = blk
			}
		}
		s.Block = blk
		s.planBlock = c.block
		for _, r := range p.blocks[c.block].recipes {
			p.executeRecipe(r, s)
		}
	}
}

// executeReplicateRegion runs a predicated single-entry/single-exit region
// once per (part, lane): the entry's branch-on-mask tests the instance's
// lane, the body blocks run the clones, the exit's predicated phis merge
// against poison on the skip edge.
func (p *Plan) executeReplicateRegion(region RegionID, s *State) {
	children := p.regions[region].children
	if len(children) < 2 {
		panic("vecplan: replicate region needs entry and exit blocks")
	}
	for _, c := range children {
		if c.block == NoBlock {
			panic("vecplan: nested region inside replicate region")
		}
	}
	entry := children[0].block
	exit := children[len(children)-1].block

	for part := 0; part < s.UF; part++ {
		for lane := 0; lane < s.VF; lane++ {
			s.Instance = &Instance{Part: part, Lane: lane}

			body := s.Builder.Func.NewBlock("")
			cont := s.Builder.Func.NewBlock("")
			from := s.Block
			for _, r := range p.blocks[entry].recipes {
				rec := &p.recipes[r].r
				if rec.kind == KindBranchOnMask {
					p.emitBranchOnMask(rec, s, body, cont)
					continue
				}
				p.executeRecipe(r, s)
			}
			if from.Term == nil {
				panic("vecplan: replicate region entry without branch-on-mask")
			}

			s.Block = body
			for _, bc := range children[1 : len(children)-1] {
				for _, r := range p.blocks[bc.block].recipes {
					p.executeRecipe(r, s)
				}
			}
			bodyEnd := s.Block
			bodyEnd.Term = ir.NewBr(cont)

			s.Block = cont
			for _, r := range p.blocks[exit].recipes {
				rec := &p.recipes[r].r
				if rec.kind != KindPredInstPHI {
					p.executeRecipe(r, s)
					continue
				}
				pred := rec.operands[0]
				in := s.GetLane(pred, part, lane)
				poison := constant.NewUndef(in.Type())
				phi := cont.NewPhi(ir.NewIncoming(in, bodyEnd), ir.NewIncoming(poison, from))
				s.SetLane(rec.results[0], part, lane, phi)
			}
			s.Instance = nil
		}
	}
}

// executeRecipe dispatches one recipe to its materialization. Predicated
// control recipes only occur inside replicate regions, where the region
// driver handles them.
func (p *Plan) executeRecipe(r RecipeID, s *State) {
	p.checkAlive(r)
	rec := &p.recipes[r].r
	switch rec.kind {
	case KindInstruction:
		p.execInstruction(r, rec, s)
	case KindWiden:
		p.execWiden(r, rec, s)
	case KindWidenCall:
		p.execWidenCall(r, rec, s)
	case KindWidenSelect:
		p.execWidenSelect(r, rec, s)
	case KindWidenGEP:
		p.execWidenGEP(r, rec, s)
	case KindWidenMemory:
		p.execWidenMemory(r, rec, s)
	case KindWidenIntOrFpInduction:
		p.execWidenIntOrFpInduction(r, rec, s)
	case KindWidenPointerInduction:
		p.execWidenPointerInduction(r, rec, s)
	case KindWidenCanonicalIV:
		p.execWidenCanonicalIV(r, rec, s)
	case KindWidenPHI:
		p.execWidenPHI(r, rec, s)
	case KindBlend:
		p.execBlend(r, rec, s)
	case KindReduction:
		p.execReduction(r, rec, s)
	case KindReductionPHI:
		p.execReductionPHI(r, rec, s)
	case KindReplicate:
		p.execReplicate(r, rec, s)
	case KindCanonicalIVPHI:
		p.execCanonicalIVPHI(r, rec, s)
	case KindFirstOrderRecurrencePHI:
		p.execFirstOrderRecurrencePHI(r, rec, s)
	case KindScalarIVSteps:
		p.execScalarIVSteps(r, rec, s)
	case KindExpandExpr:
		p.execExpandExpr(r, rec, s)
	case KindBranchOnMask, KindPredInstPHI:
		panic("vecplan: predicated control recipe outside a replicate region")
	default:
		panic(fmt.Sprintf("vecplan: cannot execute kind %v", rec.kind))
	}
}

// execWidenPHI materializes a plain widened header phi: per part, a vector
// phi seeded from the preheader and completed from the latch.
func (p *Plan) execWidenPHI(r RecipeID, rec *Recipe, s *State) {
	if len(rec.operands) < 2 {
		panic("vecplan: widened phi without a backedge operand")
	}
	header := s.Block
	for part := 0; part < s.UF; part++ {
		// The preheader incoming must dominate the header, so any
		// broadcast materializes there.
		s.Block = s.CFG.Preheader
		in0 := s.Get(rec.operands[0], part)
		s.Block = header
		phi := header.NewPhi(ir.NewIncoming(in0, s.CFG.Preheader))
		s.Set(rec.results[0], part, phi)
		backedge := rec.operands[1]
		part := part
		s.backpatch = append(s.backpatch, func(latch *ir.Block) {
			phi.Incs = append(phi.Incs, ir.NewIncoming(s.Get(backedge, part), latch))
		})
	}
}

// FixLiveOuts completes the recorded live-out phis once the caller created
// the middle block the exit edges land in. The last part's last lane leaves
// the loop, lane 0 for uniform values.
func (p *Plan) FixLiveOuts(s *State, middle *ir.Block) {
	save := s.Block
	s.Block = middle
	for _, lo := range p.liveOuts {
		lane := s.VF - 1
		if p.IsUniformAfterVectorization(lo.V) {
			lane = 0
		}
		val := s.GetLane(lo.V, s.UF-1, lane)
		lo.Phi.Incs = append(lo.Phi.Incs, ir.NewIncoming(val, middle))
	}
	s.Block = save
}

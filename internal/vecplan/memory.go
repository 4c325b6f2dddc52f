package vecplan

import (
	"fmt"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// execWidenMemory materializes a widened memory access. Consecutive
// accesses become one wide load/store per part (lane order reversed for
// reverse accesses); non-consecutive addresses become gathers/scatters on
// the vector of pointers. Masked variants go through the predicated
// intrinsics.
func (p *Plan) execWidenMemory(r RecipeID, rec *Recipe, s *State) {
	elemTy := rec.ing.Type
	vecTy := types.NewVector(uint64(s.VF), elemTy)
	isStore := rec.ing.Op == OpStore

	for part := 0; part < s.UF; part++ {
		var mask value.Value
		if rec.masked {
			mask = s.Get(rec.operands[len(rec.operands)-1], part)
			if rec.reverse {
				mask = s.Block.NewShuffleVector(mask, mask, ReverseMask(s.VF))
			}
		}

		if !rec.consecutive {
			// Vector of lane addresses: gather or scatter.
			addrs := s.Get(rec.operands[0], part)
			if mask == nil {
				mask = AllOnesMask(s.VF)
			}
			if isStore {
				stored := s.Get(rec.operands[1], part)
				name := fmt.Sprintf("llvm.masked.scatter.%s", typeSuffix(vecTy))
				scatter := s.Builder.Intrinsic(name, types.Void, vecTy, addrs.Type(), mask.Type())
				s.Block.NewCall(scatter, stored, addrs, mask)
				continue
			}
			name := fmt.Sprintf("llvm.masked.gather.%s", typeSuffix(vecTy))
			gather := s.Builder.Intrinsic(name, vecTy, addrs.Type(), mask.Type(), vecTy)
			s.Set(rec.results[0], part, s.Block.NewCall(gather, addrs, mask, constant.NewUndef(vecTy)))
			continue
		}

		// Consecutive: lane 0 address of this part, viewed as a wide slot.
		addr := s.GetLane(rec.operands[0], part, 0)
		if rec.reverse {
			addr = s.Block.NewGetElementPtr(elemTy, addr, constant.NewInt(types.I64, int64(1-s.VF)))
		}
		wide := s.Block.NewBitCast(addr, types.NewPointer(vecTy))

		if isStore {
			stored := s.Get(rec.operands[1], part)
			if rec.reverse {
				stored = s.Block.NewShuffleVector(stored, stored, ReverseMask(s.VF))
			}
			if mask != nil {
				name := fmt.Sprintf("llvm.masked.store.%s", typeSuffix(vecTy))
				mstore := s.Builder.Intrinsic(name, types.Void, vecTy, wide.Type(), mask.Type())
				s.Block.NewCall(mstore, stored, wide, mask)
			} else {
				s.Block.NewStore(stored, wide)
			}
			continue
		}

		var loaded value.Value
		if mask != nil {
			name := fmt.Sprintf("llvm.masked.load.%s", typeSuffix(vecTy))
			mload := s.Builder.Intrinsic(name, vecTy, wide.Type(), mask.Type(), vecTy)
			loaded = s.Block.NewCall(mload, wide, mask, constant.NewUndef(vecTy))
		} else {
			loaded = s.Block.NewLoad(vecTy, wide)
		}
		if rec.reverse {
			loaded = s.Block.NewShuffleVector(loaded, loaded, ReverseMask(s.VF))
		}
		s.Set(rec.results[0], part, loaded)
	}
	s.tracef("widen-memory", "store", isStore, "consecutive", rec.consecutive)
}

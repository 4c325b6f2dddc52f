package vecplan

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Builder wraps the downstream instruction module with the handful of
// emission helpers every recipe needs: splats, step vectors, and lazily
// declared target intrinsics.
type Builder struct {
	Module *ir.Module
	Func   *ir.Func

	intrinsics map[string]*ir.Func
}

// NewBuilder prepares a builder emitting into f, which must belong to m.
func NewBuilder(m *ir.Module, f *ir.Func) *Builder {
	return &Builder{Module: m, Func: f, intrinsics: make(map[string]*ir.Func)}
}

// Intrinsic declares (once) and returns the named intrinsic.
func (b *Builder) Intrinsic(name string, ret types.Type, params ...types.Type) *ir.Func {
	if f, ok := b.intrinsics[name]; ok {
		return f
	}
	var ps []*ir.Param
	for i, ty := range params {
		ps = append(ps, ir.NewParam(fmt.Sprintf("p%d", i), ty))
	}
	f := b.Module.NewFunc(name, ret, ps...)
	b.intrinsics[name] = f
	return f
}

// Broadcast splats a scalar across vf lanes: insert into lane 0, shuffle
// with an all-zero mask. Constants splat directly.
func (b *Builder) Broadcast(blk *ir.Block, v value.Value, vf int) value.Value {
	vecTy := types.NewVector(uint64(vf), v.Type())
	if c, ok := v.(constant.Constant); ok {
		elems := make([]constant.Constant, vf)
		for i := range elems {
			elems[i] = c
		}
		return constant.NewVector(vecTy, elems...)
	}
	poison := constant.NewUndef(vecTy)
	ins := blk.NewInsertElement(poison, v, constant.NewInt(types.I32, 0))
	mask := constant.NewZeroInitializer(types.NewVector(uint64(vf), types.I32))
	return blk.NewShuffleVector(ins, ins, mask)
}

// SplatInt builds the constant vector <c, c, ..., c> of vf lanes.
func SplatInt(ty *types.IntType, vf int, c int64) constant.Constant {
	vecTy := types.NewVector(uint64(vf), ty)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewInt(ty, c)
	}
	return constant.NewVector(vecTy, elems...)
}

// SplatFloat builds the constant vector <c, c, ..., c> of vf lanes.
func SplatFloat(ty *types.FloatType, vf int, c float64) constant.Constant {
	vecTy := types.NewVector(uint64(vf), ty)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewFloat(ty, c)
	}
	return constant.NewVector(vecTy, elems...)
}

// StepVector builds <0, 1, ..., vf-1>.
func StepVector(ty *types.IntType, vf int) constant.Constant {
	vecTy := types.NewVector(uint64(vf), ty)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewInt(ty, int64(i))
	}
	return constant.NewVector(vecTy, elems...)
}

// AllOnesMask builds the unpredicated <i1 true, ...> mask of vf lanes.
func AllOnesMask(vf int) constant.Constant {
	vecTy := types.NewVector(uint64(vf), types.I1)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewInt(types.I1, 1)
	}
	return constant.NewVector(vecTy, elems...)
}

// SpliceMask builds the first-order-recurrence shuffle mask
// <vf-1, vf, ..., 2*vf-2>: last lane of the previous vector followed by the
// first vf-1 lanes of the current one.
func SpliceMask(vf int) constant.Constant {
	vecTy := types.NewVector(uint64(vf), types.I32)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewInt(types.I32, int64(vf-1+i))
	}
	return constant.NewVector(vecTy, elems...)
}

// ReverseMask builds <vf-1, vf-2, ..., 0>.
func ReverseMask(vf int) constant.Constant {
	vecTy := types.NewVector(uint64(vf), types.I32)
	elems := make([]constant.Constant, vf)
	for i := range elems {
		elems[i] = constant.NewInt(types.I32, int64(vf-1-i))
	}
	return constant.NewVector(vecTy, elems...)
}

// typeSuffix renders the intrinsic-name mangling of a scalar or vector type,
// e.g. i32, f32, v4i32.
func typeSuffix(ty types.Type) string {
	switch t := ty.(type) {
	case *types.IntType:
		return fmt.Sprintf("i%d", t.BitSize)
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			return "f32"
		case types.FloatKindDouble:
			return "f64"
		case types.FloatKindHalf:
			return "f16"
		default:
			return "f?"
		}
	case *types.VectorType:
		return fmt.Sprintf("v%d%s", t.Len, typeSuffix(t.ElemType))
	case *types.PointerType:
		return "p0" + typeSuffix(t.ElemType)
	default:
		return "t?"
	}
}

package vecplan

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/orizon-lang/vecplan/internal/position"
)

// Opcode identifies one operation, either carried over from the original
// scalar loop body or synthesized by the planner. The catalog is closed;
// every dispatch site switches over it exhaustively.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Binary arithmetic, bitwise and shift operations.
	OpAdd
	OpFAdd
	OpSub
	OpFSub
	OpMul
	OpFMul
	OpUDiv
	OpSDiv
	OpFDiv
	OpURem
	OpSRem
	OpFRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor

	// Unary operations.
	OpFNeg
	OpFreeze

	// Comparisons.
	OpICmp
	OpFCmp

	// Memory and address computation.
	OpLoad
	OpStore
	OpGetElementPtr

	// Calls, selects and phis.
	OpCall
	OpSelect
	OpPHI

	// Casts.
	OpTrunc
	OpZExt
	OpSExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpFPTrunc
	OpFPExt
	OpPtrToInt
	OpIntToPtr
	OpBitCast

	// Planner-synthesized opcodes with no scalar counterpart.
	OpNot
	OpICmpULE
	OpActiveLaneMask
	OpFirstOrderRecurrenceSplice
	OpCanonicalIVIncrement
	OpCanonicalIVIncrementNUW
	OpBranchOnCond
	OpBranchOnCount
)

// IsBinary reports whether op is a two-operand arithmetic, bitwise or shift
// operation.
func (op Opcode) IsBinary() bool { return op >= OpAdd && op <= OpXor }

// IsCast reports whether op is a conversion.
func (op Opcode) IsCast() bool { return op >= OpTrunc && op <= OpBitCast }

// IsFloat reports whether op is a floating-point operation that may carry
// fast-math flags.
func (op Opcode) IsFloat() bool {
	switch op {
	case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem, OpFNeg, OpFCmp:
		return true
	}
	return false
}

// HasResult reports whether the opcode defines a value when executed as a
// generic instruction recipe.
func (op Opcode) HasResult() bool {
	switch op {
	case OpBranchOnCond, OpBranchOnCount, OpStore:
		return false
	}
	return true
}

// Name returns the dump mnemonic of op.
func (op Opcode) Name() string {
	switch op {
	case OpAdd:
		return "add"
	case OpFAdd:
		return "fadd"
	case OpSub:
		return "sub"
	case OpFSub:
		return "fsub"
	case OpMul:
		return "mul"
	case OpFMul:
		return "fmul"
	case OpUDiv:
		return "udiv"
	case OpSDiv:
		return "sdiv"
	case OpFDiv:
		return "fdiv"
	case OpURem:
		return "urem"
	case OpSRem:
		return "srem"
	case OpFRem:
		return "frem"
	case OpShl:
		return "shl"
	case OpLShr:
		return "lshr"
	case OpAShr:
		return "ashr"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpFNeg:
		return "fneg"
	case OpFreeze:
		return "freeze"
	case OpICmp:
		return "icmp"
	case OpFCmp:
		return "fcmp"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpGetElementPtr:
		return "getelementptr"
	case OpCall:
		return "call"
	case OpSelect:
		return "select"
	case OpPHI:
		return "phi"
	case OpTrunc:
		return "trunc"
	case OpZExt:
		return "zext"
	case OpSExt:
		return "sext"
	case OpFPToUI:
		return "fptoui"
	case OpFPToSI:
		return "fptosi"
	case OpUIToFP:
		return "uitofp"
	case OpSIToFP:
		return "sitofp"
	case OpFPTrunc:
		return "fptrunc"
	case OpFPExt:
		return "fpext"
	case OpPtrToInt:
		return "ptrtoint"
	case OpIntToPtr:
		return "inttoptr"
	case OpBitCast:
		return "bitcast"
	case OpNot:
		return "not"
	case OpICmpULE:
		return "icmp ule"
	case OpActiveLaneMask:
		return "active lane mask"
	case OpFirstOrderRecurrenceSplice:
		return "first-order splice"
	case OpCanonicalIVIncrement:
		return "VF * UF +"
	case OpCanonicalIVIncrementNUW:
		return "VF * UF +(nuw)"
	case OpBranchOnCond:
		return "branch-on-cond"
	case OpBranchOnCount:
		return "branch-on-count"
	default:
		return "op?"
	}
}

// Flags are the IR-level guarantees copied from the original scalar
// operation onto its widened form.
type Flags struct {
	NUW   bool
	NSW   bool
	Exact bool
	Fast  []enum.FastMathFlag
}

// stripPoison clears the poison-generating guarantees. Applied when the
// originating operation was guarded by a predicate that control-flow
// linearization eliminated.
func (f Flags) stripPoison() Flags {
	f.NUW = false
	f.NSW = false
	f.Exact = false
	return f
}

func (f Flags) overflow() []enum.OverflowFlag {
	var ofs []enum.OverflowFlag
	if f.NUW {
		ofs = append(ofs, enum.OverflowFlagNUW)
	}
	if f.NSW {
		ofs = append(ofs, enum.OverflowFlagNSW)
	}
	return ofs
}

// Ingredient describes the original scalar operation a recipe wraps: its
// opcode, type, flags, and declared memory behavior. Recipes consult it for
// effect classification and flag propagation; the planner fills it in from
// whatever frontend IR the loop came from.
type Ingredient struct {
	Op    Opcode
	Type  types.Type // scalar result type (element type for loads)
	IPred enum.IPred
	FPred enum.FPred
	Flags Flags

	// For calls and replicated opaque operations.
	Callee      *ir.Func
	Reads       bool
	Writes      bool
	SideEffects bool

	// For address computations.
	GEPElem types.Type

	Name string // source-level name, dump only
	Pos  position.Span
}

// MayReadMemory reports whether the wrapped operation may read memory.
func (ing *Ingredient) MayReadMemory() bool {
	switch ing.Op {
	case OpLoad:
		return true
	case OpCall:
		return ing.Reads
	default:
		return ing.Reads
	}
}

// MayWriteMemory reports whether the wrapped operation may write memory.
func (ing *Ingredient) MayWriteMemory() bool {
	switch ing.Op {
	case OpStore:
		return true
	case OpCall:
		return ing.Writes
	default:
		return ing.Writes
	}
}

// MayHaveSideEffects reports whether the wrapped operation has observable
// effects beyond its result.
func (ing *Ingredient) MayHaveSideEffects() bool {
	return ing.MayWriteMemory() || ing.SideEffects
}

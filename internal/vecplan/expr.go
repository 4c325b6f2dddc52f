package vecplan

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// ExprOp is the node tag of a loop-invariant expression tree.
type ExprOp uint8

const (
	ExprConst ExprOp = iota
	ExprLive
	ExprAdd
	ExprSub
	ExprMul
	ExprUDiv
	ExprUMax
)

// Expr is a small loop-invariant expression (trip counts, bounds) expanded
// once into the preheader by an expand-expr recipe.
type Expr struct {
	Op   ExprOp
	C    int64       // ExprConst
	Live value.Value // ExprLive
	L, R *Expr
}

func ConstExpr(c int64) *Expr      { return &Expr{Op: ExprConst, C: c} }
func LiveExpr(v value.Value) *Expr { return &Expr{Op: ExprLive, Live: v} }
func AddExpr(l, r *Expr) *Expr     { return &Expr{Op: ExprAdd, L: l, R: r} }
func SubExpr(l, r *Expr) *Expr     { return &Expr{Op: ExprSub, L: l, R: r} }
func MulExpr(l, r *Expr) *Expr     { return &Expr{Op: ExprMul, L: l, R: r} }
func UDivExpr(l, r *Expr) *Expr    { return &Expr{Op: ExprUDiv, L: l, R: r} }
func UMaxExpr(l, r *Expr) *Expr    { return &Expr{Op: ExprUMax, L: l, R: r} }

// emit materializes the tree as scalar instructions in blk.
func (e *Expr) emit(b *Builder, blk *ir.Block, ty *types.IntType) value.Value {
	switch e.Op {
	case ExprConst:
		return constant.NewInt(ty, e.C)
	case ExprLive:
		return e.Live
	case ExprAdd:
		return blk.NewAdd(e.L.emit(b, blk, ty), e.R.emit(b, blk, ty))
	case ExprSub:
		return blk.NewSub(e.L.emit(b, blk, ty), e.R.emit(b, blk, ty))
	case ExprMul:
		return blk.NewMul(e.L.emit(b, blk, ty), e.R.emit(b, blk, ty))
	case ExprUDiv:
		return blk.NewUDiv(e.L.emit(b, blk, ty), e.R.emit(b, blk, ty))
	case ExprUMax:
		l := e.L.emit(b, blk, ty)
		r := e.R.emit(b, blk, ty)
		cmp := blk.NewICmp(enum.IPredUGT, l, r)
		return blk.NewSelect(cmp, l, r)
	default:
		panic("vecplan: unknown expression node")
	}
}

// String renders the tree for the diagnostic dump.
func (e *Expr) String() string {
	var sb strings.Builder
	e.format(&sb)
	return sb.String()
}

func (e *Expr) format(sb *strings.Builder) {
	switch e.Op {
	case ExprConst:
		fmt.Fprintf(sb, "%d", e.C)
	case ExprLive:
		fmt.Fprintf(sb, "ir<%s>", e.Live.Ident())
	case ExprAdd:
		e.binary(sb, "+")
	case ExprSub:
		e.binary(sb, "-")
	case ExprMul:
		e.binary(sb, "*")
	case ExprUDiv:
		e.binary(sb, "/u")
	case ExprUMax:
		sb.WriteString("umax(")
		e.L.format(sb)
		sb.WriteString(", ")
		e.R.format(sb)
		sb.WriteString(")")
	}
}

func (e *Expr) binary(sb *strings.Builder, op string) {
	sb.WriteString("(")
	e.L.format(sb)
	sb.WriteString(" " + op + " ")
	e.R.format(sb)
	sb.WriteString(")")
}

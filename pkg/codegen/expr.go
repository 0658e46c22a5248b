package codegen

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/twine-lang/twine/pkg/frontend"
)

// emitExpr lowers one expression and returns its SSA value.
func (g *Generator) emitExpr(e frontend.Expr) (value.Value, error) {
	switch e := e.(type) {
	case *frontend.NumberLiteral:
		return constant.NewFloat(types.Double, e.Value), nil

	case *frontend.StringLiteral:
		return g.globalString(e.Value), nil

	case *frontend.BooleanLiteral:
		return constant.NewBool(e.Value), nil

	case *frontend.NullLiteral:
		return constant.NewNull(i8ptr), nil

	case *frontend.Identifier:
		return g.getVariable(e.Name)

	case *frontend.BinaryExpression:
		return g.emitBinary(e)

	case *frontend.UnaryExpression:
		return g.emitUnary(e)

	case *frontend.AssignmentExpression:
		val, err := g.emitExpr(e.Value)
		if err != nil {
			return nil, err
		}
		if err := g.setVariable(e.Name, val); err != nil {
			return nil, err
		}
		return val, nil

	case *frontend.CallExpression:
		return g.emitCall(e)

	case *frontend.ArrayLiteral:
		return g.emitArrayLiteral(e)

	case *frontend.IndexExpression:
		base, idx, err := g.emitIndexTarget(e.Array, e.Index)
		if err != nil {
			return nil, err
		}
		slot := g.block.NewGetElementPtr(types.Double, base, idx)
		return g.block.NewLoad(types.Double, slot), nil

	case *frontend.IndexAssignmentExpression:
		base, idx, err := g.emitIndexTarget(e.Array, e.Index)
		if err != nil {
			return nil, err
		}
		val, err := g.emitExpr(e.Value)
		if err != nil {
			return nil, err
		}
		elem := g.toDouble(val)
		slot := g.block.NewGetElementPtr(types.Double, base, idx)
		g.block.NewStore(elem, slot)
		return elem, nil
	}
	return nil, &UnknownOperatorError{Op: "unsupported expression"}
}

// emitIndexTarget evaluates an array expression and subscript, yielding the
// f64-typed element base and an i64 index.
func (g *Generator) emitIndexTarget(arrayExpr, indexExpr frontend.Expr) (value.Value, value.Value, error) {
	arr, err := g.emitExpr(arrayExpr)
	if err != nil {
		return nil, nil, err
	}
	if !isPointer(arr) {
		return nil, nil, &ArgumentTypeError{Name: "[]", Position: 0, Expected: "array"}
	}
	idx, err := g.emitExpr(indexExpr)
	if err != nil {
		return nil, nil, err
	}
	base := g.block.NewBitCast(arr, doublePtr)
	return base, g.toIndex(idx), nil
}

// emitArrayLiteral allocates n+1 contiguous f64 slots: slot 0 holds the
// element count, and the value of the expression points at slot 1.
func (g *Generator) emitArrayLiteral(e *frontend.ArrayLiteral) (value.Value, error) {
	n := len(e.Elements)
	raw := g.call("malloc", constant.NewInt(types.I64, int64((n+1)*8)))
	arr := g.block.NewBitCast(raw, doublePtr)

	countSlot := g.block.NewGetElementPtr(types.Double, arr, constant.NewInt(types.I64, 0))
	g.block.NewStore(constant.NewFloat(types.Double, float64(n)), countSlot)

	for i, elem := range e.Elements {
		v, err := g.emitExpr(elem)
		if err != nil {
			return nil, err
		}
		slot := g.block.NewGetElementPtr(types.Double, arr, constant.NewInt(types.I64, int64(i+1)))
		g.block.NewStore(g.toDouble(v), slot)
	}

	return g.block.NewGetElementPtr(types.I8, raw, constant.NewInt(types.I64, 8)), nil
}

func (g *Generator) emitBinary(e *frontend.BinaryExpression) (value.Value, error) {
	left, err := g.emitExpr(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := g.emitExpr(e.Right)
	if err != nil {
		return nil, err
	}

	eitherDouble := isDouble(left) || isDouble(right)

	switch e.Op {
	case "+":
		if isPointer(left) || isPointer(right) {
			return g.stringConcat(left, right), nil
		}
		if eitherDouble {
			return g.block.NewFAdd(g.toDouble(left), g.toDouble(right)), nil
		}
		return g.block.NewAdd(left, right), nil
	case "-":
		if eitherDouble {
			return g.block.NewFSub(g.toDouble(left), g.toDouble(right)), nil
		}
		return g.block.NewSub(left, right), nil
	case "*":
		if eitherDouble {
			return g.block.NewFMul(g.toDouble(left), g.toDouble(right)), nil
		}
		return g.block.NewMul(left, right), nil
	case "/":
		// Division is always floating point.
		return g.block.NewFDiv(g.toDouble(left), g.toDouble(right)), nil
	case "%":
		if eitherDouble {
			return g.block.NewFRem(g.toDouble(left), g.toDouble(right)), nil
		}
		return g.block.NewSRem(left, right), nil
	case "==":
		return g.emitCompare(enum.FPredOEQ, enum.IPredEQ, left, right), nil
	case "!=":
		return g.emitCompare(enum.FPredONE, enum.IPredNE, left, right), nil
	case "<":
		return g.emitCompare(enum.FPredOLT, enum.IPredSLT, left, right), nil
	case ">":
		return g.emitCompare(enum.FPredOGT, enum.IPredSGT, left, right), nil
	case "<=":
		return g.emitCompare(enum.FPredOLE, enum.IPredSLE, left, right), nil
	case ">=":
		return g.emitCompare(enum.FPredOGE, enum.IPredSGE, left, right), nil
	case "&&":
		// Both sides are evaluated; no short circuit.
		return g.block.NewAnd(g.toBool(left), g.toBool(right)), nil
	case "||":
		return g.block.NewOr(g.toBool(left), g.toBool(right)), nil
	}
	return nil, &UnknownOperatorError{Op: e.Op}
}

// emitCompare picks an ordered fp compare when either side is f64, a signed
// integer compare otherwise.
func (g *Generator) emitCompare(fp enum.FPred, ip enum.IPred, left, right value.Value) value.Value {
	if isDouble(left) || isDouble(right) {
		return g.block.NewFCmp(fp, g.toDouble(left), g.toDouble(right))
	}
	return g.block.NewICmp(ip, left, right)
}

func (g *Generator) emitUnary(e *frontend.UnaryExpression) (value.Value, error) {
	operand, err := g.emitExpr(e.Operand)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "-":
		if isInteger(operand) {
			zero := constant.NewInt(operand.Type().(*types.IntType), 0)
			return g.block.NewSub(zero, operand), nil
		}
		return g.block.NewFNeg(g.toDouble(operand)), nil
	case "!":
		return g.block.NewXor(g.toBool(operand), constant.True), nil
	}
	return nil, &UnknownOperatorError{Op: e.Op}
}

package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/twine-lang/twine/pkg/frontend"
	"github.com/twine-lang/twine/pkg/logger"
)

// emitCall lowers a call expression. Built-ins are expanded inline; anything
// else is a direct call to a user-defined function with every argument
// coerced to f64.
func (g *Generator) emitCall(e *frontend.CallExpression) (value.Value, error) {
	switch e.Name {
	case "print":
		return g.lowerPrint(e)
	case "input":
		return g.lowerInput(e)
	case "str":
		return g.lowerStr(e)
	case "num":
		return g.lowerNum(e)
	case "int":
		return g.lowerInt(e)
	case "abs":
		return g.lowerMathUnary(e, "fabs")
	case "round":
		return g.lowerRound(e)
	case "min":
		return g.lowerMinMax(e, enum.FPredOLT)
	case "max":
		return g.lowerMinMax(e, enum.FPredOGT)
	case "pow":
		return g.lowerPow(e)
	case "sqrt":
		return g.lowerMathUnary(e, "mathSqrt")
	case "random":
		return g.lowerRandom(e)
	case "len":
		return g.lowerLen(e)
	case "upper":
		return g.lowerCaseMap(e, true)
	case "lower":
		return g.lowerCaseMap(e, false)
	case "includes":
		return g.lowerIncludes(e)
	case "replace":
		return g.lowerReplace(e)
	case "append":
		return g.lowerAppend(e)
	}

	fn, ok := g.funcs[e.Name]
	if !ok {
		return nil, &UndefinedFunctionError{Name: e.Name}
	}
	args := make([]value.Value, len(e.Args))
	for i, argExpr := range e.Args {
		v, err := g.emitExpr(argExpr)
		if err != nil {
			return nil, err
		}
		args[i] = g.toDouble(v)
	}
	return g.block.NewCall(fn, args...), nil
}

// emitArgs evaluates a built-in's arguments after checking arity. want < 0
// means "at least -want".
func (g *Generator) emitArgs(e *frontend.CallExpression, want int, expected string) ([]value.Value, error) {
	ok := len(e.Args) == want
	if want < 0 {
		ok = len(e.Args) >= -want
	}
	if !ok {
		return nil, &ArityMismatchError{Name: e.Name, Expected: expected, Got: len(e.Args)}
	}
	args := make([]value.Value, len(e.Args))
	for i, argExpr := range e.Args {
		v, err := g.emitExpr(argExpr)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// lowerPrint prints each argument on its own line. Pointer arguments are
// discriminated at runtime: strings go through %s, anything else is unboxed
// and printed as %f.
func (g *Generator) lowerPrint(e *frontend.CallExpression) (value.Value, error) {
	if len(e.Args) == 0 {
		g.call("printf", g.globalString("\n"))
		return constant.NewInt(types.I32, 0), nil
	}

	for _, argExpr := range e.Args {
		v, err := g.emitExpr(argExpr)
		if err != nil {
			return nil, err
		}
		switch {
		case isPointer(v):
			cond := g.isStringPointer(v, true)
			strBlk := g.newBlock("print.str")
			numBlk := g.newBlock("print.num")
			endBlk := g.newBlock("print.end")
			g.block.NewCondBr(cond, strBlk, numBlk)

			g.block = strBlk
			g.call("printf", g.globalString("%s\n"), v)
			strBlk.NewBr(endBlk)

			g.block = numBlk
			slot := numBlk.NewBitCast(v, doublePtr)
			d := numBlk.NewLoad(types.Double, slot)
			g.call("printf", g.globalString("%f\n"), d)
			numBlk.NewBr(endBlk)

			g.block = endBlk
		case isDouble(v):
			g.call("printf", g.globalString("%f\n"), v)
		case isInteger(v):
			g.call("printf", g.globalString("%d\n"), v)
		}
	}
	return constant.NewInt(types.I32, 0), nil
}

// lowerInput reads a line from stdin into a 1024-byte stack buffer and strips
// the trailing newline. Arguments are ignored with a warning, matching the
// language's historical behavior.
func (g *Generator) lowerInput(e *frontend.CallExpression) (value.Value, error) {
	if len(e.Args) != 0 {
		logger.Warn("input() takes no arguments, ignoring provided arguments")
	}

	buf := g.entryAlloca(types.NewArray(1024, types.I8))
	zero := constant.NewInt(types.I32, 0)
	bufPtr := g.block.NewGetElementPtr(buf.ElemType, buf, zero, zero)

	stdinPtr := g.stdinValue()
	g.call("fgets", bufPtr, constant.NewInt(types.I32, 1024), stdinPtr)

	length := g.call("strlen", bufPtr)
	lastIdx := g.block.NewSub(length, constant.NewInt(types.I64, 1))
	lastPtr := g.block.NewGetElementPtr(types.I8, bufPtr, lastIdx)
	last := g.block.NewLoad(types.I8, lastPtr)
	isNewline := g.block.NewICmp(enum.IPredEQ, last, constant.NewInt(types.I8, 10))

	trimBlk := g.newBlock("input.trim")
	endBlk := g.newBlock("input.end")
	g.block.NewCondBr(isNewline, trimBlk, endBlk)

	g.block = trimBlk
	trimBlk.NewStore(constant.NewInt(types.I8, 0), lastPtr)
	trimBlk.NewBr(endBlk)

	g.block = endBlk
	return bufPtr, nil
}

// lowerStr formats a number with %g into a 32-byte stack buffer.
func (g *Generator) lowerStr(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 1, "exactly 1")
	if err != nil {
		return nil, err
	}
	d := g.toDouble(args[0])
	buf := g.entryAlloca(types.NewArray(32, types.I8))
	zero := constant.NewInt(types.I32, 0)
	bufPtr := g.block.NewGetElementPtr(buf.ElemType, buf, zero, zero)
	g.call("snprintf", bufPtr, constant.NewInt(types.I64, 32), g.globalString("%g"), d)
	return bufPtr, nil
}

func (g *Generator) lowerNum(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 1, "exactly 1")
	if err != nil {
		return nil, err
	}
	if !isPointer(args[0]) {
		return nil, &ArgumentTypeError{Name: e.Name, Position: 0, Expected: "string"}
	}
	return g.call("atof", args[0]), nil
}

func (g *Generator) lowerInt(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 1, "exactly 1")
	if err != nil {
		return nil, err
	}
	if !isPointer(args[0]) {
		return nil, &ArgumentTypeError{Name: e.Name, Position: 0, Expected: "string"}
	}
	n := g.call("atoi", args[0])
	return g.block.NewSIToFP(n, types.Double), nil
}

// lowerMathUnary handles the one-argument math built-ins backed directly by
// a libc function.
func (g *Generator) lowerMathUnary(e *frontend.CallExpression, table string) (value.Value, error) {
	args, err := g.emitArgs(e, 1, "exactly 1")
	if err != nil {
		return nil, err
	}
	return g.call(table, g.toDouble(args[0])), nil
}

// lowerRound rounds to the nearest integer, or with a second argument to d
// decimal places via round(x*10^d)/10^d.
func (g *Generator) lowerRound(e *frontend.CallExpression) (value.Value, error) {
	if len(e.Args) < 1 || len(e.Args) > 2 {
		return nil, &ArityMismatchError{Name: e.Name, Expected: "1 or 2", Got: len(e.Args)}
	}
	args, err := g.emitArgs(e, len(e.Args), "1 or 2")
	if err != nil {
		return nil, err
	}
	x := g.toDouble(args[0])
	if len(args) == 1 {
		return g.call("mathRound", x), nil
	}
	digits := g.toDouble(args[1])
	scale := g.call("mathPow", constant.NewFloat(types.Double, 10), digits)
	scaled := g.block.NewFMul(x, scale)
	rounded := g.call("mathRound", scaled)
	return g.block.NewFDiv(rounded, scale), nil
}

// lowerMinMax folds its arguments pairwise with fcmp + select.
func (g *Generator) lowerMinMax(e *frontend.CallExpression, pred enum.FPred) (value.Value, error) {
	args, err := g.emitArgs(e, -2, "at least 2")
	if err != nil {
		return nil, err
	}
	best := g.toDouble(args[0])
	for _, arg := range args[1:] {
		cur := g.toDouble(arg)
		cmp := g.block.NewFCmp(pred, cur, best)
		best = g.block.NewSelect(cmp, cur, best)
	}
	return best, nil
}

func (g *Generator) lowerPow(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 2, "exactly 2")
	if err != nil {
		return nil, err
	}
	return g.call("mathPow", g.toDouble(args[0]), g.toDouble(args[1])), nil
}

// lowerRandom emits a linear congruential generator (multiplier 1664525,
// increment 1013904223) over a 64-bit internal state. The first call seeds
// the state from time() combined with the address of a stack slot, then each
// call returns upper32(state) / 2^32 as an f64 in [0, 1).
func (g *Generator) lowerRandom(e *frontend.CallExpression) (value.Value, error) {
	if len(e.Args) != 0 {
		return nil, &ArityMismatchError{Name: e.Name, Expected: "no", Got: len(e.Args)}
	}
	g.randomGlobals()

	mul := constant.NewInt(types.I64, 1664525)
	inc := constant.NewInt(types.I64, 1013904223)

	seeded := g.block.NewLoad(types.I1, g.randSeeded)
	seedBlk := g.newBlock("rand.seed")
	contBlk := g.newBlock("rand.next")
	g.block.NewCondBr(seeded, contBlk, seedBlk)

	g.block = seedBlk
	t := g.call("time", constant.NewNull(i8ptr))
	entropy := g.entryAlloca(types.I32)
	addr := seedBlk.NewPtrToInt(entropy, types.I64)
	seed := seedBlk.NewAdd(seedBlk.NewMul(t, mul), addr)
	seedBlk.NewStore(seed, g.randState)
	seedBlk.NewStore(constant.True, g.randSeeded)
	seedBlk.NewBr(contBlk)

	g.block = contBlk
	state := contBlk.NewLoad(types.I64, g.randState)
	next := contBlk.NewAdd(contBlk.NewMul(state, mul), inc)
	contBlk.NewStore(next, g.randState)
	upper := contBlk.NewLShr(next, constant.NewInt(types.I64, 32))
	f := contBlk.NewUIToFP(upper, types.Double)
	return contBlk.NewFDiv(f, constant.NewFloat(types.Double, 4294967296)), nil
}

// lowerLen dispatches on the runtime shape: strings go through strlen,
// arrays read their count from slot -1.
func (g *Generator) lowerLen(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 1, "exactly 1")
	if err != nil {
		return nil, err
	}
	if !isPointer(args[0]) {
		return nil, &ArgumentTypeError{Name: e.Name, Position: 0, Expected: "string or array"}
	}
	v := args[0]

	cond := g.isStringPointer(v, false)
	strBlk := g.newBlock("len.str")
	arrBlk := g.newBlock("len.arr")
	endBlk := g.newBlock("len.end")
	g.block.NewCondBr(cond, strBlk, arrBlk)

	g.block = strBlk
	n := g.call("strlen", v)
	fromStr := strBlk.NewUIToFP(n, types.Double)
	strBlk.NewBr(endBlk)

	g.block = arrBlk
	base := arrBlk.NewBitCast(v, doublePtr)
	countSlot := arrBlk.NewGetElementPtr(types.Double, base, constant.NewInt(types.I64, -1))
	fromArr := arrBlk.NewLoad(types.Double, countSlot)
	arrBlk.NewBr(endBlk)

	g.block = endBlk
	return endBlk.NewPhi(ir.NewIncoming(fromStr, strBlk), ir.NewIncoming(fromArr, arrBlk)), nil
}

// lowerCaseMap copies a string through a fresh buffer, shifting ASCII
// letters by 32 in the requested direction.
func (g *Generator) lowerCaseMap(e *frontend.CallExpression, toUpper bool) (value.Value, error) {
	args, err := g.emitArgs(e, 1, "exactly 1")
	if err != nil {
		return nil, err
	}
	if !isPointer(args[0]) {
		return nil, &ArgumentTypeError{Name: e.Name, Position: 0, Expected: "string"}
	}
	s := args[0]

	n := g.call("strlen", s)
	buf := g.call("malloc", g.block.NewAdd(n, constant.NewInt(types.I64, 1)))

	iSlot := g.entryAlloca(types.I64)
	g.block.NewStore(constant.NewInt(types.I64, 0), iSlot)

	condBlk := g.newBlock("case.cond")
	bodyBlk := g.newBlock("case.body")
	endBlk := g.newBlock("case.end")
	g.block.NewBr(condBlk)

	g.block = condBlk
	i := condBlk.NewLoad(types.I64, iSlot)
	condBlk.NewCondBr(condBlk.NewICmp(enum.IPredSLT, i, n), bodyBlk, endBlk)

	lo, hi := int64('a'), int64('z')
	if !toUpper {
		lo, hi = int64('A'), int64('Z')
	}

	g.block = bodyBlk
	srcPtr := bodyBlk.NewGetElementPtr(types.I8, s, i)
	ch := bodyBlk.NewLoad(types.I8, srcPtr)
	ge := bodyBlk.NewICmp(enum.IPredSGE, ch, constant.NewInt(types.I8, lo))
	le := bodyBlk.NewICmp(enum.IPredSLE, ch, constant.NewInt(types.I8, hi))
	isLetter := bodyBlk.NewAnd(ge, le)
	var shifted value.Value
	if toUpper {
		shifted = bodyBlk.NewSub(ch, constant.NewInt(types.I8, 32))
	} else {
		shifted = bodyBlk.NewAdd(ch, constant.NewInt(types.I8, 32))
	}
	out := bodyBlk.NewSelect(isLetter, shifted, ch)
	dstPtr := bodyBlk.NewGetElementPtr(types.I8, buf, i)
	bodyBlk.NewStore(out, dstPtr)
	bodyBlk.NewStore(bodyBlk.NewAdd(i, constant.NewInt(types.I64, 1)), iSlot)
	bodyBlk.NewBr(condBlk)

	g.block = endBlk
	nulPtr := endBlk.NewGetElementPtr(types.I8, buf, n)
	endBlk.NewStore(constant.NewInt(types.I8, 0), nulPtr)
	return buf, nil
}

// lowerIncludes answers containment: substring search for strings, a linear
// f64 scan for arrays. The result is 1.0 or 0.0.
func (g *Generator) lowerIncludes(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 2, "exactly 2")
	if err != nil {
		return nil, err
	}
	if !isPointer(args[0]) {
		return nil, &ArgumentTypeError{Name: e.Name, Position: 0, Expected: "string or array"}
	}
	haystack, needle := args[0], args[1]

	if isPointer(needle) {
		res := g.call("strstr", haystack, needle)
		found := g.block.NewICmp(enum.IPredNE, res, constant.NewNull(i8ptr))
		return g.block.NewUIToFP(found, types.Double), nil
	}

	target := g.toDouble(needle)
	base := g.block.NewBitCast(haystack, doublePtr)
	countSlot := g.block.NewGetElementPtr(types.Double, base, constant.NewInt(types.I64, -1))
	count := g.block.NewFPToUI(g.block.NewLoad(types.Double, countSlot), types.I64)

	iSlot := g.entryAlloca(types.I64)
	foundSlot := g.entryAlloca(types.I1)
	g.block.NewStore(constant.NewInt(types.I64, 0), iSlot)
	g.block.NewStore(constant.False, foundSlot)

	condBlk := g.newBlock("inc.cond")
	bodyBlk := g.newBlock("inc.body")
	endBlk := g.newBlock("inc.end")
	g.block.NewBr(condBlk)

	g.block = condBlk
	i := condBlk.NewLoad(types.I64, iSlot)
	condBlk.NewCondBr(condBlk.NewICmp(enum.IPredSLT, i, count), bodyBlk, endBlk)

	g.block = bodyBlk
	elem := bodyBlk.NewLoad(types.Double, bodyBlk.NewGetElementPtr(types.Double, base, i))
	eq := bodyBlk.NewFCmp(enum.FPredOEQ, elem, target)
	seen := bodyBlk.NewLoad(types.I1, foundSlot)
	bodyBlk.NewStore(bodyBlk.NewOr(seen, eq), foundSlot)
	bodyBlk.NewStore(bodyBlk.NewAdd(i, constant.NewInt(types.I64, 1)), iSlot)
	bodyBlk.NewBr(condBlk)

	g.block = endBlk
	found := endBlk.NewLoad(types.I1, foundSlot)
	return endBlk.NewUIToFP(found, types.Double), nil
}

// lowerReplace replaces the first occurrence of old with new in a fresh
// buffer. When old is absent the haystack is copied unchanged.
func (g *Generator) lowerReplace(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 3, "exactly 3")
	if err != nil {
		return nil, err
	}
	for i := 0; i < 3; i++ {
		if !isPointer(args[i]) {
			return nil, &ArgumentTypeError{Name: e.Name, Position: i, Expected: "string"}
		}
	}
	haystack, oldStr, newStr := args[0], args[1], args[2]

	pos := g.call("strstr", haystack, oldStr)
	missing := g.block.NewICmp(enum.IPredEQ, pos, constant.NewNull(i8ptr))

	copyBlk := g.newBlock("replace.copy")
	buildBlk := g.newBlock("replace.build")
	endBlk := g.newBlock("replace.end")
	g.block.NewCondBr(missing, copyBlk, buildBlk)

	g.block = copyBlk
	hLen := g.call("strlen", haystack)
	dup := g.call("malloc", copyBlk.NewAdd(hLen, constant.NewInt(types.I64, 1)))
	g.call("strcpy", dup, haystack)
	copyBlk.NewBr(endBlk)

	g.block = buildBlk
	prefixLen := buildBlk.NewSub(
		buildBlk.NewPtrToInt(pos, types.I64),
		buildBlk.NewPtrToInt(haystack, types.I64))
	fullLen := g.call("strlen", haystack)
	oldLen := g.call("strlen", oldStr)
	newLen := g.call("strlen", newStr)
	total := buildBlk.NewAdd(
		buildBlk.NewAdd(buildBlk.NewSub(fullLen, oldLen), newLen),
		constant.NewInt(types.I64, 1))
	built := g.call("malloc", total)
	g.call("strncpy", built, haystack, prefixLen)
	nulPtr := buildBlk.NewGetElementPtr(types.I8, built, prefixLen)
	buildBlk.NewStore(constant.NewInt(types.I8, 0), nulPtr)
	g.call("strcat", built, newStr)
	suffix := buildBlk.NewGetElementPtr(types.I8, pos, oldLen)
	g.call("strcat", built, suffix)
	buildBlk.NewBr(endBlk)

	g.block = endBlk
	return endBlk.NewPhi(ir.NewIncoming(dup, copyBlk), ir.NewIncoming(built, buildBlk)), nil
}

// lowerAppend grows an array by one element into a fresh allocation; the old
// buffer is leaked.
func (g *Generator) lowerAppend(e *frontend.CallExpression) (value.Value, error) {
	args, err := g.emitArgs(e, 2, "exactly 2")
	if err != nil {
		return nil, err
	}
	if !isPointer(args[0]) {
		return nil, &ArgumentTypeError{Name: e.Name, Position: 0, Expected: "array"}
	}
	arr, val := args[0], args[1]

	base := g.block.NewBitCast(arr, doublePtr)
	countSlot := g.block.NewGetElementPtr(types.Double, base, constant.NewInt(types.I64, -1))
	count := g.block.NewLoad(types.Double, countSlot)
	countI := g.block.NewFPToUI(count, types.I64)

	slots := g.block.NewAdd(countI, constant.NewInt(types.I64, 2))
	raw := g.call("malloc", g.block.NewMul(slots, constant.NewInt(types.I64, 8)))
	dest := g.block.NewBitCast(raw, doublePtr)
	newCount := g.block.NewFAdd(count, constant.NewFloat(types.Double, 1))
	g.block.NewStore(newCount, g.block.NewGetElementPtr(types.Double, dest, constant.NewInt(types.I64, 0)))

	iSlot := g.entryAlloca(types.I64)
	g.block.NewStore(constant.NewInt(types.I64, 0), iSlot)

	condBlk := g.newBlock("append.cond")
	bodyBlk := g.newBlock("append.body")
	endBlk := g.newBlock("append.end")
	g.block.NewBr(condBlk)

	g.block = condBlk
	i := condBlk.NewLoad(types.I64, iSlot)
	condBlk.NewCondBr(condBlk.NewICmp(enum.IPredSLT, i, countI), bodyBlk, endBlk)

	g.block = bodyBlk
	elem := bodyBlk.NewLoad(types.Double, bodyBlk.NewGetElementPtr(types.Double, base, i))
	dst := bodyBlk.NewGetElementPtr(types.Double, dest, bodyBlk.NewAdd(i, constant.NewInt(types.I64, 1)))
	bodyBlk.NewStore(elem, dst)
	bodyBlk.NewStore(bodyBlk.NewAdd(i, constant.NewInt(types.I64, 1)), iSlot)
	bodyBlk.NewBr(condBlk)

	g.block = endBlk
	tail := g.toDouble(val)
	tailIdx := g.block.NewAdd(countI, constant.NewInt(types.I64, 1))
	tailSlot := g.block.NewGetElementPtr(types.Double, dest, tailIdx)
	g.block.NewStore(tail, tailSlot)

	return g.block.NewGetElementPtr(types.I8, raw, constant.NewInt(types.I64, 8)), nil
}

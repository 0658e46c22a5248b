package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// declareRuntime declares the libc functions emitted code can call. The
// stdin global (or, on Windows targets, the __acrt_iob_func helper) is not
// declared here; stdinValue declares it on first use. Math functions clash with built-in names, so they are registered in the
// function table under mathRound / mathPow / mathSqrt.
func (g *Generator) declareRuntime() {
	decl := func(table, name string, ret types.Type, variadic bool, paramTypes ...types.Type) {
		params := make([]*ir.Param, len(paramTypes))
		for i, t := range paramTypes {
			params[i] = ir.NewParam("", t)
		}
		f := g.module.NewFunc(name, ret, params...)
		f.Sig.Variadic = variadic
		g.funcs[table] = f
	}

	decl("printf", "printf", types.I32, true, i8ptr)
	decl("scanf", "scanf", types.I32, true, i8ptr)
	decl("fgets", "fgets", i8ptr, false, i8ptr, types.I32, i8ptr)
	decl("snprintf", "snprintf", types.I32, true, i8ptr, types.I64, i8ptr)
	decl("atof", "atof", types.Double, false, i8ptr)
	decl("atoi", "atoi", types.I32, false, i8ptr)
	decl("puts", "puts", types.I32, false, i8ptr)
	decl("fabs", "fabs", types.Double, false, types.Double)
	decl("mathRound", "round", types.Double, false, types.Double)
	decl("mathPow", "pow", types.Double, false, types.Double, types.Double)
	decl("mathSqrt", "sqrt", types.Double, false, types.Double)
	decl("rand", "rand", types.I32, false)
	decl("srand", "srand", types.Void, false, types.I32)
	decl("time", "time", types.I64, false, i8ptr)
	decl("strlen", "strlen", types.I64, false, i8ptr)
	decl("malloc", "malloc", i8ptr, false, types.I64)
	decl("strcpy", "strcpy", i8ptr, false, i8ptr, i8ptr)
	decl("strcat", "strcat", i8ptr, false, i8ptr, i8ptr)
	decl("strstr", "strstr", i8ptr, false, i8ptr, i8ptr)
	decl("strncpy", "strncpy", i8ptr, false, i8ptr, i8ptr, types.I64)
}

// call emits a call to a function-table entry in the current block.
func (g *Generator) call(table string, args ...value.Value) value.Value {
	return g.block.NewCall(g.funcs[table], args...)
}

// globalString emits a fresh NUL-terminated private constant (equal strings
// are not shared) and returns a pointer to its first byte.
func (g *Generator) globalString(s string) value.Value {
	name := ".str"
	if g.strCount > 0 {
		name = fmt.Sprintf(".str.%d", g.strCount)
	}
	g.strCount++

	arr := constant.NewCharArrayFromString(s + "\x00")
	gv := g.module.NewGlobalDef(name, arr)
	gv.Linkage = enum.LinkagePrivate
	gv.Immutable = true

	zero := constant.NewInt(types.I32, 0)
	return constant.NewGetElementPtr(arr.Typ, gv, zero, zero)
}

// stdinValue produces the FILE* for stdin at the current insertion point.
// On Unix targets it loads the external stdin global; MSVC runtimes have no
// stdin symbol, so a helper wrapping __acrt_iob_func(0) is emitted instead.
func (g *Generator) stdinValue() value.Value {
	if g.WindowsTarget {
		return g.block.NewCall(g.stdinHelper())
	}
	if g.stdin == nil {
		g.stdin = g.module.NewGlobal("stdin", i8ptr)
		g.stdin.Linkage = enum.LinkageExternal
	}
	return g.block.NewLoad(i8ptr, g.stdin)
}

func (g *Generator) stdinHelper() *ir.Func {
	if f, ok := g.funcs["get_stdin_ptr"]; ok {
		return f
	}
	acrt := g.module.NewFunc("__acrt_iob_func", i8ptr, ir.NewParam("", types.I32))
	f := g.module.NewFunc("get_stdin_ptr", i8ptr)
	entry := f.NewBlock("entry")
	res := entry.NewCall(acrt, constant.NewInt(types.I32, 0))
	entry.NewRet(res)
	g.funcs["get_stdin_ptr"] = f
	return f
}

// isStringPointer sniffs the first byte behind p: printable ASCII means the
// pointer is treated as a C string. This is a heuristic, not a tag; a boxed
// double whose low byte lands in [32, 126] is misclassified.
func (g *Generator) isStringPointer(p value.Value, allowEmpty bool) value.Value {
	b := g.block.NewLoad(types.I8, p)
	ge := g.block.NewICmp(enum.IPredSGE, b, constant.NewInt(types.I8, 32))
	le := g.block.NewICmp(enum.IPredSLE, b, constant.NewInt(types.I8, 126))
	printable := g.block.NewAnd(ge, le)
	if !allowEmpty {
		return printable
	}
	empty := g.block.NewICmp(enum.IPredEQ, b, constant.NewInt(types.I8, 0))
	return g.block.NewOr(printable, empty)
}

// unboxPointerToDouble turns an ambiguous pointer into an f64: strings go
// through atof, boxed numbers are loaded directly. Joins with a phi.
func (g *Generator) unboxPointerToDouble(p value.Value) value.Value {
	cond := g.isStringPointer(p, false)

	strBlk := g.newBlock("unbox.str")
	numBlk := g.newBlock("unbox.num")
	endBlk := g.newBlock("unbox.end")
	g.block.NewCondBr(cond, strBlk, numBlk)

	g.block = strBlk
	fromStr := g.call("atof", p)
	strBlk.NewBr(endBlk)

	g.block = numBlk
	slot := numBlk.NewBitCast(p, doublePtr)
	fromNum := numBlk.NewLoad(types.Double, slot)
	numBlk.NewBr(endBlk)

	g.block = endBlk
	return endBlk.NewPhi(ir.NewIncoming(fromStr, strBlk), ir.NewIncoming(fromNum, numBlk))
}

// boxDouble heap-allocates an 8-byte slot holding v and returns the pointer.
func (g *Generator) boxDouble(v value.Value) value.Value {
	raw := g.call("malloc", constant.NewInt(types.I64, 8))
	slot := g.block.NewBitCast(raw, doublePtr)
	g.block.NewStore(v, slot)
	return raw
}

// toCString renders a value as a C string. Pointers pass through; numbers
// are formatted with %g into a 32-byte stack buffer.
func (g *Generator) toCString(v value.Value) value.Value {
	if isPointer(v) {
		return v
	}
	d := g.toDouble(v)
	buf := g.entryAlloca(types.NewArray(32, types.I8))
	zero := constant.NewInt(types.I32, 0)
	ptr := g.block.NewGetElementPtr(buf.ElemType, buf, zero, zero)
	g.call("snprintf", ptr, constant.NewInt(types.I64, 32), g.globalString("%g"), d)
	return ptr
}

// stringConcat lowers `+` when either side is a pointer: both sides become
// C strings, and the result is a fresh malloc'd buffer built with
// strcpy/strcat.
func (g *Generator) stringConcat(left, right value.Value) value.Value {
	l := g.toCString(left)
	r := g.toCString(right)

	leftLen := g.call("strlen", l)
	rightLen := g.call("strlen", r)
	total := g.block.NewAdd(g.block.NewAdd(leftLen, rightLen), constant.NewInt(types.I64, 1))

	result := g.call("malloc", total)
	g.call("strcpy", result, l)
	g.call("strcat", result, r)
	return result
}

// randomGlobals creates the PRNG state on first use: the 64-bit LCG state
// and the one-shot seed flag.
func (g *Generator) randomGlobals() {
	if g.randState != nil {
		return
	}
	g.randState = g.module.NewGlobalDef("_random_state", constant.NewInt(types.I64, 0))
	g.randState.Linkage = enum.LinkageInternal
	g.randSeeded = g.module.NewGlobalDef("_random_seeded", constant.NewBool(false))
	g.randSeeded.Linkage = enum.LinkageInternal
}

// Package codegen lowers a Twine AST to LLVM IR.
//
// The source language is dynamically typed and the IR is not, so values are
// reconciled at assignment and argument boundaries: numbers are f64, booleans
// i1, and pointers carry strings, boxed numbers, or arrays, discriminated at
// use sites by sniffing the pointee's first byte.
package codegen

import (
	"fmt"
	"os"
	"strconv"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/twine-lang/twine/pkg/frontend"
	"github.com/twine-lang/twine/pkg/logger"
)

var (
	i8ptr     = types.NewPointer(types.I8)
	doublePtr = types.NewPointer(types.Double)
)

// binding is one symbol-table entry: the variable's current stack slot and
// whether the declaration kind forbids reassignment.
type binding struct {
	slot     *ir.InstAlloca
	constant bool
}

// Generator owns one compilation: the IR module, the insertion point, the
// scope stack and the function table. It is single use.
type Generator struct {
	moduleName string
	module     *ir.Module

	fn    *ir.Func  // function being emitted
	entry *ir.Block // its entry block, where all allocas live
	block *ir.Block // current insertion point

	scopes []map[string]*binding
	funcs  map[string]*ir.Func // runtime symbols and user functions, by table name
	stdin  *ir.Global

	// lazily created state for random()
	randState  *ir.Global
	randSeeded *ir.Global

	strCount int
	blockSeq map[string]int

	// WindowsTarget switches stdin access to the MSVC __acrt_iob_func helper.
	WindowsTarget bool
}

// NewGenerator creates a generator with the global scope pushed and every
// runtime-facing symbol declared.
func NewGenerator(moduleName string) *Generator {
	g := &Generator{
		moduleName: moduleName,
		module:     ir.NewModule(),
		funcs:      make(map[string]*ir.Func),
		blockSeq:   make(map[string]int),
	}
	g.module.SourceFilename = moduleName
	g.pushScope()
	g.declareRuntime()
	return g
}

// Compile emits the whole program into the module: user functions are
// pre-declared, top-level statements run in main, and the finished module is
// verified. On error no IR should be used.
func (g *Generator) Compile(program *frontend.Program) error {
	mainFn := g.module.NewFunc("main", types.I32)
	g.fn = mainFn
	g.entry = mainFn.NewBlock("entry")
	g.block = g.entry

	// Pre-declare user functions so forward references and recursion resolve.
	g.declareFunctions(program)

	for _, stmt := range program.Statements {
		if err := g.emitStmt(stmt); err != nil {
			return err
		}
	}

	if g.block.Term == nil {
		g.block.NewRet(constant.NewInt(types.I32, 0))
	}

	if err := VerifyModule(g.module); err != nil {
		return &ModuleVerificationError{Err: err}
	}

	logger.LogEmission(g.moduleName, len(g.module.Funcs))
	return nil
}

// declareFunctions creates the declaration for every top-level function so
// call sites can reference it before its body is emitted. Parameters are f64,
// the return type an opaque pointer, linkage internal.
func (g *Generator) declareFunctions(program *frontend.Program) {
	for _, stmt := range program.Statements {
		fn, ok := stmt.(*frontend.FunctionDeclaration)
		if !ok {
			continue
		}
		if _, exists := g.funcs[fn.Name]; exists {
			continue
		}
		params := make([]*ir.Param, len(fn.Parameters))
		for i, name := range fn.Parameters {
			params[i] = ir.NewParam(name, types.Double)
		}
		f := g.module.NewFunc(fn.Name, i8ptr, params...)
		f.Linkage = enum.LinkageInternal
		g.funcs[fn.Name] = f
	}
}

// IR returns the textual LLVM IR of the compiled module.
func (g *Generator) IR() string {
	return g.module.String()
}

// WriteIR serializes the module to filename.
func (g *Generator) WriteIR(filename string) error {
	if err := os.WriteFile(filename, []byte(g.IR()), 0644); err != nil {
		return fmt.Errorf("writing IR: %w", err)
	}
	return nil
}

// DumpIR prints the module to stdout.
func (g *Generator) DumpIR() {
	fmt.Print(g.IR())
}

// Module exposes the underlying IR module, mainly for the verifier tests.
func (g *Generator) Module() *ir.Module {
	return g.module
}

// Scope handling

func (g *Generator) pushScope() {
	g.scopes = append(g.scopes, make(map[string]*binding))
}

func (g *Generator) popScope() {
	if len(g.scopes) > 0 {
		g.scopes = g.scopes[:len(g.scopes)-1]
	}
}

// lookup searches innermost to outermost.
func (g *Generator) lookup(name string) *binding {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if b, ok := g.scopes[i][name]; ok {
			return b
		}
	}
	return nil
}

// entryAlloca places a stack allocation in the current function's entry
// block, so a slot outlives every reference to it regardless of where in the
// function it was requested.
func (g *Generator) entryAlloca(typ types.Type) *ir.InstAlloca {
	alloca := ir.NewAlloca(typ)
	g.entry.Insts = append(g.entry.Insts, alloca)
	return alloca
}

// getVariable loads the current value of name, or reports it undefined.
func (g *Generator) getVariable(name string) (value.Value, error) {
	b := g.lookup(name)
	if b == nil {
		return nil, &UndefinedVariableError{Name: name}
	}
	return g.block.NewLoad(b.slot.ElemType, b.slot), nil
}

// setVariable stores val into name's slot. When the incoming SSA type
// differs from the slot's allocated type, a fresh slot of the new type is
// allocated in the entry block and the symbol-table entry is redirected; the
// old slot stays valid for any loads already emitted.
func (g *Generator) setVariable(name string, val value.Value) error {
	if b := g.lookup(name); b != nil {
		if b.constant {
			return &AssignToConstError{Name: name}
		}
		if !b.slot.ElemType.Equal(val.Type()) {
			b.slot = g.entryAlloca(val.Type())
		}
		g.block.NewStore(val, b.slot)
		return nil
	}

	// Implicit declaration in the current scope.
	alloca := g.entryAlloca(val.Type())
	g.block.NewStore(val, alloca)
	g.scopes[len(g.scopes)-1][name] = &binding{slot: alloca}
	return nil
}

// newBlock appends a basic block to the current function. Base names repeat
// across control-flow constructs, so later uses get a numeric suffix to keep
// labels unique.
func (g *Generator) newBlock(base string) *ir.Block {
	n := g.blockSeq[base]
	g.blockSeq[base]++
	name := base
	if n > 0 {
		name = base + strconv.Itoa(n)
	}
	return g.fn.NewBlock(name)
}

// Type predicates and coercions

func isDouble(v value.Value) bool {
	return v.Type().Equal(types.Double)
}

func isPointer(v value.Value) bool {
	_, ok := v.Type().(*types.PointerType)
	return ok
}

func isInteger(v value.Value) bool {
	_, ok := v.Type().(*types.IntType)
	return ok
}

func isBool(v value.Value) bool {
	return v.Type().Equal(types.I1)
}

// toDouble converts integers via sitofp; doubles pass through. Pointers are
// unboxed at runtime (string → atof, boxed number → load).
func (g *Generator) toDouble(v value.Value) value.Value {
	switch {
	case isDouble(v):
		return v
	case isInteger(v):
		return g.block.NewSIToFP(v, types.Double)
	case isPointer(v):
		return g.unboxPointerToDouble(v)
	}
	return v
}

// toBool coerces to i1 with a non-zero compare against the operand type's
// natural zero.
func (g *Generator) toBool(v value.Value) value.Value {
	switch {
	case isBool(v):
		return v
	case isInteger(v):
		zero := constant.NewInt(v.Type().(*types.IntType), 0)
		return g.block.NewICmp(enum.IPredNE, v, zero)
	case isDouble(v):
		return g.block.NewFCmp(enum.FPredONE, v, constant.NewFloat(types.Double, 0))
	case isPointer(v):
		return g.block.NewICmp(enum.IPredNE, v, constant.NewNull(v.Type().(*types.PointerType)))
	}
	return v
}

// toIndex coerces an array subscript to i64.
func (g *Generator) toIndex(v value.Value) value.Value {
	switch {
	case isDouble(v):
		return g.block.NewFPToUI(v, types.I64)
	case v.Type().Equal(types.I64):
		return v
	case isInteger(v):
		return g.block.NewSExt(v, types.I64)
	}
	return v
}

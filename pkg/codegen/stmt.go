package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/twine-lang/twine/pkg/frontend"
)

func (g *Generator) emitStmt(s frontend.Stmt) error {
	switch s := s.(type) {
	case *frontend.ExpressionStatement:
		// The expression's value is discarded.
		_, err := g.emitExpr(s.Expression)
		return err

	case *frontend.VariableDeclaration:
		return g.emitVariableDeclaration(s)

	case *frontend.BlockStatement:
		g.pushScope()
		defer g.popScope()
		for _, inner := range s.Statements {
			if err := g.emitStmt(inner); err != nil {
				return err
			}
		}
		return nil

	case *frontend.IfStatement:
		return g.emitIf(s)

	case *frontend.WhileStatement:
		return g.emitWhile(s)

	case *frontend.ForStatement:
		return g.emitFor(s)

	case *frontend.ReturnStatement:
		return g.emitReturn(s)

	case *frontend.FunctionDeclaration:
		return g.emitFunction(s)
	}
	return nil
}

func (g *Generator) emitVariableDeclaration(s *frontend.VariableDeclaration) error {
	var val value.Value = constant.NewFloat(types.Double, 0)
	if s.Initializer != nil {
		v, err := g.emitExpr(s.Initializer)
		if err != nil {
			return err
		}
		val = v
	}

	slot := g.entryAlloca(val.Type())
	g.block.NewStore(val, slot)
	g.scopes[len(g.scopes)-1][s.Name] = &binding{slot: slot, constant: s.Kind == "const"}
	return nil
}

func (g *Generator) emitIf(s *frontend.IfStatement) error {
	condVal, err := g.emitExpr(s.Condition)
	if err != nil {
		return err
	}
	cond := g.toBool(condVal)

	thenBlk := g.newBlock("then")
	var elseBlk *ir.Block
	mergeBlk := g.newBlock("merge")

	if s.Else != nil {
		elseBlk = g.newBlock("else")
		g.block.NewCondBr(cond, thenBlk, elseBlk)
	} else {
		g.block.NewCondBr(cond, thenBlk, mergeBlk)
	}

	g.block = thenBlk
	if err := g.emitStmt(s.Then); err != nil {
		return err
	}
	if g.block.Term == nil {
		g.block.NewBr(mergeBlk)
	}

	if s.Else != nil {
		g.block = elseBlk
		if err := g.emitStmt(s.Else); err != nil {
			return err
		}
		if g.block.Term == nil {
			g.block.NewBr(mergeBlk)
		}
	}

	g.block = mergeBlk
	return nil
}

func (g *Generator) emitWhile(s *frontend.WhileStatement) error {
	condBlk := g.newBlock("while.cond")
	bodyBlk := g.newBlock("while.body")
	endBlk := g.newBlock("while.end")

	g.block.NewBr(condBlk)

	g.block = condBlk
	condVal, err := g.emitExpr(s.Condition)
	if err != nil {
		return err
	}
	g.block.NewCondBr(g.toBool(condVal), bodyBlk, endBlk)

	g.block = bodyBlk
	if err := g.emitStmt(s.Body); err != nil {
		return err
	}
	if g.block.Term == nil {
		g.block.NewBr(condBlk)
	}

	g.block = endBlk
	return nil
}

func (g *Generator) emitFor(s *frontend.ForStatement) error {
	if s.Init != nil {
		if err := g.emitStmt(s.Init); err != nil {
			return err
		}
	}

	condBlk := g.newBlock("for.cond")
	bodyBlk := g.newBlock("for.body")
	updateBlk := g.newBlock("for.update")
	endBlk := g.newBlock("for.end")

	g.block.NewBr(condBlk)

	g.block = condBlk
	if s.Condition != nil {
		condVal, err := g.emitExpr(s.Condition)
		if err != nil {
			return err
		}
		g.block.NewCondBr(g.toBool(condVal), bodyBlk, endBlk)
	} else {
		g.block.NewBr(bodyBlk)
	}

	g.block = bodyBlk
	if err := g.emitStmt(s.Body); err != nil {
		return err
	}
	if g.block.Term == nil {
		g.block.NewBr(updateBlk)
	}

	g.block = updateBlk
	if s.Update != nil {
		if _, err := g.emitExpr(s.Update); err != nil {
			return err
		}
	}
	g.block.NewBr(condBlk)

	g.block = endBlk
	return nil
}

// emitReturn coerces the value to the enclosing function's return type. A
// return in a block that already has a terminator is suppressed, so every
// block keeps exactly one terminator.
func (g *Generator) emitReturn(s *frontend.ReturnStatement) error {
	if g.block.Term != nil {
		return nil
	}
	retType := g.fn.Sig.RetType

	if s.Value == nil {
		if retType.Equal(types.Void) {
			g.block.NewRet(nil)
			return nil
		}
		g.block.NewRet(zeroValue(retType))
		return nil
	}

	val, err := g.emitExpr(s.Value)
	if err != nil {
		return err
	}
	g.block.NewRet(g.coerceReturn(val, retType))
	return nil
}

// coerceReturn reconciles a dynamically typed value with a static return
// type. Returning a pointer from an i32 function collapses to 0.
func (g *Generator) coerceReturn(val value.Value, retType types.Type) value.Value {
	switch {
	case val.Type().Equal(retType):
		return val
	case retType.Equal(types.I32):
		if isDouble(val) {
			return g.block.NewFPToSI(val, types.I32)
		}
		if isPointer(val) {
			return constant.NewInt(types.I32, 0)
		}
		if isInteger(val) {
			return g.block.NewSExt(val, types.I32)
		}
	case retType.Equal(i8ptr):
		if !isPointer(val) {
			return g.boxDouble(g.toDouble(val))
		}
	case retType.Equal(types.Double):
		return g.toDouble(val)
	}
	return val
}

func zeroValue(t types.Type) constant.Constant {
	switch t := t.(type) {
	case *types.IntType:
		return constant.NewInt(t, 0)
	case *types.FloatType:
		return constant.NewFloat(t, 0)
	case *types.PointerType:
		return constant.NewNull(t)
	}
	return constant.NewInt(types.I32, 0)
}

// emitFunction generates the body of a user-defined function. The outer
// insertion point and current function are restored on every path, including
// verification failure.
func (g *Generator) emitFunction(s *frontend.FunctionDeclaration) error {
	f, ok := g.funcs[s.Name]
	if !ok {
		// Non top-level declaration: create it now.
		params := make([]*ir.Param, len(s.Parameters))
		for i, name := range s.Parameters {
			params[i] = ir.NewParam(name, types.Double)
		}
		f = g.module.NewFunc(s.Name, i8ptr, params...)
		f.Linkage = enum.LinkageInternal
		g.funcs[s.Name] = f
	}

	savedFn, savedEntry, savedBlock := g.fn, g.entry, g.block
	defer func() {
		g.fn, g.entry, g.block = savedFn, savedEntry, savedBlock
	}()

	g.fn = f
	g.entry = f.NewBlock("entry")
	g.block = g.entry

	g.pushScope()
	defer g.popScope()

	for i, name := range s.Parameters {
		slot := g.entryAlloca(types.Double)
		g.block.NewStore(f.Params[i], slot)
		g.scopes[len(g.scopes)-1][name] = &binding{slot: slot}
	}

	if err := g.emitStmt(s.Body); err != nil {
		g.eraseFunction(f)
		delete(g.funcs, s.Name)
		return err
	}

	if g.block.Term == nil {
		g.block.NewRet(constant.NewNull(i8ptr))
	}

	if err := VerifyFunc(f); err != nil {
		g.eraseFunction(f)
		delete(g.funcs, s.Name)
		return &FunctionVerificationError{Name: s.Name, Err: err}
	}
	return nil
}

// eraseFunction removes f from the module.
func (g *Generator) eraseFunction(f *ir.Func) {
	for i, fn := range g.module.Funcs {
		if fn == f {
			g.module.Funcs = append(g.module.Funcs[:i], g.module.Funcs[i+1:]...)
			return
		}
	}
}

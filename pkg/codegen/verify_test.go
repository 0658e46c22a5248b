package codegen_test

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"github.com/twine-lang/twine/pkg/codegen"
)

func TestVerifyCatchesMissingTerminator(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("broken", types.Void)
	f.NewBlock("entry")

	err := codegen.VerifyFunc(f)
	if err == nil || !strings.Contains(err.Error(), "missing terminator") {
		t.Errorf("err = %v", err)
	}
	if err := codegen.VerifyModule(m); err == nil {
		t.Error("module verification must surface the broken function")
	}
}

func TestVerifyCatchesAllocaOutsideEntry(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("sloppy", types.Void)
	entry := f.NewBlock("entry")
	late := f.NewBlock("late")
	entry.NewBr(late)
	late.NewAlloca(types.Double)
	late.NewRet(nil)

	err := codegen.VerifyFunc(f)
	if err == nil || !strings.Contains(err.Error(), "alloca outside entry") {
		t.Errorf("err = %v", err)
	}
}

func TestVerifyCatchesBranchIntoEntry(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("loopy", types.Void)
	entry := f.NewBlock("entry")
	entry.NewBr(entry)

	err := codegen.VerifyFunc(f)
	if err == nil || !strings.Contains(err.Error(), "predecessors") {
		t.Errorf("err = %v", err)
	}
}

func TestVerifyAcceptsWellFormedFunction(t *testing.T) {
	m := ir.NewModule()
	f := m.NewFunc("fine", types.Double)
	entry := f.NewBlock("entry")
	slot := entry.NewAlloca(types.Double)
	entry.NewStore(constant.NewFloat(types.Double, 1), slot)
	entry.NewRet(entry.NewLoad(types.Double, slot))

	if err := codegen.VerifyFunc(f); err != nil {
		t.Errorf("err = %v", err)
	}
	if err := codegen.VerifyModule(m); err != nil {
		t.Errorf("module err = %v", err)
	}
}

package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
)

// VerifyModule checks the structural integrity of every defined function in
// the module. It returns an error describing all violations found, or nil.
func VerifyModule(m *ir.Module) error {
	var errs []string
	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			continue // declaration
		}
		if err := VerifyFunc(f); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return combineErrors(errs)
}

// VerifyFunc checks one function definition:
//
//   - every basic block ends in exactly one terminator
//   - every alloca sits in the entry block
//   - the entry block has no predecessors
//   - phi incoming edges match the block's predecessors
func VerifyFunc(f *ir.Func) error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if len(f.Blocks) == 0 {
		add("func %s: no blocks", f.Name())
		return combineErrors(errs)
	}
	entry := f.Blocks[0]

	// Collect predecessors from terminators.
	preds := make(map[*ir.Block][]*ir.Block)
	for _, b := range f.Blocks {
		switch term := b.Term.(type) {
		case *ir.TermBr:
			if target, ok := term.Target.(*ir.Block); ok {
				preds[target] = append(preds[target], b)
			}
		case *ir.TermCondBr:
			if target, ok := term.TargetTrue.(*ir.Block); ok {
				preds[target] = append(preds[target], b)
			}
			if target, ok := term.TargetFalse.(*ir.Block); ok {
				preds[target] = append(preds[target], b)
			}
		}
	}

	if len(preds[entry]) != 0 {
		add("func %s: entry block has %d predecessors, want 0", f.Name(), len(preds[entry]))
	}

	for i, b := range f.Blocks {
		if b.Term == nil {
			add("func %s, block %d: missing terminator", f.Name(), i)
		}
		for _, inst := range b.Insts {
			if _, ok := inst.(*ir.InstAlloca); ok && b != entry {
				add("func %s, block %d: alloca outside entry block", f.Name(), i)
			}
			if phi, ok := inst.(*ir.InstPhi); ok {
				if len(phi.Incs) != len(preds[b]) {
					add("func %s, block %d: phi has %d incoming edges but block has %d predecessors",
						f.Name(), i, len(phi.Incs), len(preds[b]))
				}
				for _, inc := range phi.Incs {
					isPred := false
					for _, p := range preds[b] {
						if inc.Pred == p {
							isPred = true
							break
						}
					}
					if !isPred {
						add("func %s, block %d: phi incoming block %s is not a predecessor",
							f.Name(), i, inc.Pred.Ident())
					}
				}
			}
		}
	}

	return combineErrors(errs)
}

func combineErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "\n"))
}

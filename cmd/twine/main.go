// Package main implements the Twine compiler binary.
//
// The pipeline is lexer -> parser -> IR emitter; everything downstream of
// the emitted IR (optimizing, assembling, linking) is delegated to the
// external LLVM toolchain and the system linker.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/twine-lang/twine/pkg/codegen"
	"github.com/twine-lang/twine/pkg/frontend"
	"github.com/twine-lang/twine/pkg/logger"
)

const version = "1.0.0"

type options struct {
	inputFile  string
	outputFile string
	emitIR     bool
	emitAsm    bool
	emitObj    bool
	verbose    bool
}

func usage(program string) {
	fmt.Printf(`Usage: %s <input.tw> [options]
Options:
  -o <output>    Specify output executable name
  --emit-ir      Output LLVM IR only
  --emit-asm     Output assembly only
  --emit-obj     Output object file only
  --verbose      Enable verbose output
  --version      Show version information
  --help         Show this help message
`, program)
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) < 2 {
		usage(args[0])
		return 1
	}

	var opts options
	for i := 1; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--help" || arg == "-h":
			usage(args[0])
			return 0
		case arg == "-o" && i+1 < len(args):
			i++
			opts.outputFile = args[i]
		case arg == "--emit-ir":
			opts.emitIR = true
		case arg == "--emit-asm":
			opts.emitAsm = true
		case arg == "--emit-obj":
			opts.emitObj = true
		case arg == "--verbose":
			opts.verbose = true
		case arg == "--version" || arg == "-v":
			fmt.Printf("Twine Compiler v%s\n", version)
			return 0
		case !strings.HasPrefix(arg, "-"):
			opts.inputFile = arg
		default:
			fmt.Fprintf(os.Stderr, "Unknown option: %s\n", arg)
			usage(args[0])
			return 1
		}
	}

	logger.Setup(os.Stderr, opts.verbose)
	logger.LogCompilerStart(args[1:])

	start := time.Now()
	if err := compile(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.LogCompilerComplete(false, time.Since(start).String())
		return 1
	}
	logger.LogCompilerComplete(true, time.Since(start).String())
	return 0
}

func compile(opts options) error {
	if opts.inputFile == "" {
		return fmt.Errorf("no input file specified")
	}
	if !strings.HasSuffix(opts.inputFile, ".tw") {
		return fmt.Errorf("input file must have .tw extension")
	}

	source, err := os.ReadFile(opts.inputFile)
	if err != nil {
		return fmt.Errorf("could not open file: %w", err)
	}

	// Lexical analysis
	logger.LogPhase("lex")
	lexer := frontend.NewLexer(string(source))
	tokens := lexer.Tokenize()
	for _, d := range lexer.Diagnostics() {
		fmt.Fprintf(os.Stderr, "Lexer Error at %s\n", d)
	}
	logger.LogLexing(opts.inputFile, len(tokens), len(lexer.Diagnostics()))

	// Parsing
	logger.LogPhase("parse")
	parser := frontend.NewParser(tokens)
	program := parser.Parse()
	for _, d := range parser.Diagnostics() {
		fmt.Fprintf(os.Stderr, "Parse Error at %s\n", d)
	}
	if program == nil || len(parser.Diagnostics()) > 0 {
		return fmt.Errorf("parsing failed")
	}
	logger.LogParsing(opts.inputFile, len(program.Statements), len(parser.Diagnostics()))

	// IR emission
	logger.LogPhase("emit")
	baseName := baseNameOf(opts.inputFile)
	gen := codegen.NewGenerator(baseName)
	gen.WindowsTarget = runtime.GOOS == "windows"
	if err := gen.Compile(program); err != nil {
		return fmt.Errorf("code generation failed: %w", err)
	}

	irFile := baseName + ".ll"
	if err := gen.WriteIR(irFile); err != nil {
		return err
	}
	if opts.emitIR {
		fmt.Printf("LLVM IR written to: %s\n", irFile)
		return nil
	}

	return runToolchain(opts, baseName, irFile)
}

// runToolchain optimizes, lowers, and links the emitted IR. Intermediate
// files are removed unless a partial emit was requested or verbose is set.
func runToolchain(opts options, baseName, irFile string) error {
	originalIR := irFile

	// Optimization is best effort; a missing opt binary is not fatal.
	optFile := baseName + "_opt.ll"
	if err := runCommand("opt", "-O2", "-S", irFile, "-o", optFile); err == nil {
		irFile = optFile
	} else {
		logger.Warn("optimization skipped", "error", err)
	}

	asmFile := baseName + ".s"
	if err := runCommand("llc", "-filetype=asm", irFile, "-o", asmFile); err != nil {
		return fmt.Errorf("assembly generation failed: %w", err)
	}
	if opts.emitAsm {
		fmt.Printf("Assembly written to: %s\n", asmFile)
		return nil
	}

	objFile := baseName + ".o"
	if err := runCommand("llc", "-filetype=obj", irFile, "-o", objFile); err != nil {
		return fmt.Errorf("object file generation failed: %w", err)
	}
	if opts.emitObj {
		fmt.Printf("Object file written to: %s\n", objFile)
		return nil
	}

	outputFile := opts.outputFile
	if outputFile == "" {
		outputFile = baseName
		if runtime.GOOS == "windows" {
			outputFile += ".exe"
		}
	}

	if err := runCommand("gcc", objFile, "-o", outputFile, "-lm"); err != nil {
		if err := runCommand("g++", objFile, "-o", outputFile, "-lm"); err != nil {
			return fmt.Errorf("linking failed: %w", err)
		}
	}

	fmt.Println("Compilation successful!")
	fmt.Printf("Executable: %s\n", outputFile)

	if !opts.verbose {
		os.Remove(originalIR)
		if irFile != originalIR {
			os.Remove(irFile)
		}
		os.Remove(asmFile)
		os.Remove(objFile)
	}
	return nil
}

func runCommand(name string, args ...string) error {
	logger.LogToolchain(name, args)
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func baseNameOf(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

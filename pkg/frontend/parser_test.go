package frontend

import (
	"reflect"
	"strings"
	"testing"
)

func parseSource(t *testing.T, src string) *Program {
	t.Helper()
	p := NewParser(Tokenize(src))
	program := p.Parse()
	if program == nil {
		t.Fatalf("parse returned nil; diagnostics: %v", p.Diagnostics())
	}
	if len(p.Diagnostics()) > 0 {
		t.Fatalf("unexpected diagnostics: %v", p.Diagnostics())
	}
	return program
}

func firstExpr(t *testing.T, program *Program) Expr {
	t.Helper()
	stmt, ok := program.Statements[0].(*ExpressionStatement)
	if !ok {
		t.Fatalf("statement is %T, want *ExpressionStatement", program.Statements[0])
	}
	return stmt.Expression
}

func TestPrecedenceMulBindsTighter(t *testing.T) {
	expr := firstExpr(t, parseSource(t, "1 + 2 * 3;"))
	want := &BinaryExpression{
		Left: &NumberLiteral{Value: 1},
		Op:   "+",
		Right: &BinaryExpression{
			Left:  &NumberLiteral{Value: 2},
			Op:    "*",
			Right: &NumberLiteral{Value: 3},
		},
	}
	if !reflect.DeepEqual(expr, want) {
		t.Errorf("1 + 2 * 3 parsed as %#v", expr)
	}

	expr = firstExpr(t, parseSource(t, "1 * 2 + 3;"))
	want = &BinaryExpression{
		Left: &BinaryExpression{
			Left:  &NumberLiteral{Value: 1},
			Op:    "*",
			Right: &NumberLiteral{Value: 2},
		},
		Op:    "+",
		Right: &NumberLiteral{Value: 3},
	}
	if !reflect.DeepEqual(expr, want) {
		t.Errorf("1 * 2 + 3 parsed as %#v", expr)
	}
}

func TestBinaryLeftAssociative(t *testing.T) {
	expr := firstExpr(t, parseSource(t, "1 - 2 - 3;"))
	outer, ok := expr.(*BinaryExpression)
	if !ok || outer.Op != "-" {
		t.Fatalf("outer node: %#v", expr)
	}
	if _, ok := outer.Left.(*BinaryExpression); !ok {
		t.Errorf("subtraction must associate left, got %#v", expr)
	}
}

func TestAssignmentRightAssociative(t *testing.T) {
	expr := firstExpr(t, parseSource(t, "a = b = 1;"))
	outer, ok := expr.(*AssignmentExpression)
	if !ok || outer.Name != "a" {
		t.Fatalf("outer node: %#v", expr)
	}
	inner, ok := outer.Value.(*AssignmentExpression)
	if !ok || inner.Name != "b" {
		t.Errorf("assignment must associate right, got %#v", outer.Value)
	}
}

func TestLogicalPrecedence(t *testing.T) {
	// || binds looser than &&, which binds looser than ==.
	expr := firstExpr(t, parseSource(t, "a == 1 && b == 2 || c;"))
	outer, ok := expr.(*BinaryExpression)
	if !ok || outer.Op != "||" {
		t.Fatalf("outer node: %#v", expr)
	}
	left, ok := outer.Left.(*BinaryExpression)
	if !ok || left.Op != "&&" {
		t.Errorf("left of || should be &&, got %#v", outer.Left)
	}
}

func TestUnaryChains(t *testing.T) {
	expr := firstExpr(t, parseSource(t, "!!x;"))
	outer, ok := expr.(*UnaryExpression)
	if !ok || outer.Op != "!" {
		t.Fatalf("outer node: %#v", expr)
	}
	if _, ok := outer.Operand.(*UnaryExpression); !ok {
		t.Errorf("nested unary missing: %#v", expr)
	}
}

func TestArrayLiteralAndIndex(t *testing.T) {
	program := parseSource(t, "let a = [10, 20, 30]; a[1] = 99; print(a[1]);")

	decl := program.Statements[0].(*VariableDeclaration)
	lit, ok := decl.Initializer.(*ArrayLiteral)
	if !ok || len(lit.Elements) != 3 {
		t.Fatalf("initializer: %#v", decl.Initializer)
	}

	stmt := program.Statements[1].(*ExpressionStatement)
	ia, ok := stmt.Expression.(*IndexAssignmentExpression)
	if !ok {
		t.Fatalf("expected index assignment, got %#v", stmt.Expression)
	}
	if _, ok := ia.Array.(*Identifier); !ok {
		t.Errorf("index assignment array: %#v", ia.Array)
	}

	call := program.Statements[2].(*ExpressionStatement).Expression.(*CallExpression)
	if _, ok := call.Args[0].(*IndexExpression); !ok {
		t.Errorf("call argument: %#v", call.Args[0])
	}
}

func TestEmptyArrayLiteral(t *testing.T) {
	decl := parseSource(t, "let a = [];").Statements[0].(*VariableDeclaration)
	lit, ok := decl.Initializer.(*ArrayLiteral)
	if !ok || len(lit.Elements) != 0 {
		t.Fatalf("initializer: %#v", decl.Initializer)
	}
}

func TestFunctionDeclaration(t *testing.T) {
	program := parseSource(t, "function add(a, b) { return a + b; }")
	fn, ok := program.Statements[0].(*FunctionDeclaration)
	if !ok {
		t.Fatalf("statement: %#v", program.Statements[0])
	}
	if fn.Name != "add" || !reflect.DeepEqual(fn.Parameters, []string{"a", "b"}) {
		t.Errorf("signature: %s(%v)", fn.Name, fn.Parameters)
	}
	if len(fn.Body.Statements) != 1 {
		t.Errorf("body statements: %d", len(fn.Body.Statements))
	}
}

func TestForVariants(t *testing.T) {
	program := parseSource(t, `
for (let i = 0; i < 3; i = i + 1) { print(i); }
for (;;) { return; }
for (i = 0; ; i = i + 1) print(i);
`)
	full := program.Statements[0].(*ForStatement)
	if full.Init == nil || full.Condition == nil || full.Update == nil {
		t.Errorf("full for loop lost a clause: %#v", full)
	}
	empty := program.Statements[1].(*ForStatement)
	if empty.Init != nil || empty.Condition != nil || empty.Update != nil {
		t.Errorf("empty for loop grew clauses: %#v", empty)
	}
	exprInit := program.Statements[2].(*ForStatement)
	if _, ok := exprInit.Init.(*ExpressionStatement); !ok {
		t.Errorf("expression initializer: %#v", exprInit.Init)
	}
	if exprInit.Condition != nil {
		t.Errorf("missing condition should stay nil: %#v", exprInit.Condition)
	}
}

func TestIfElseChain(t *testing.T) {
	program := parseSource(t, "if (a) { b; } else if (c) { d; }")
	outer := program.Statements[0].(*IfStatement)
	if outer.Else == nil {
		t.Fatal("else branch missing")
	}
	if _, ok := outer.Else.(*IfStatement); !ok {
		t.Errorf("else-if should nest an if statement, got %#v", outer.Else)
	}
}

func TestInvalidAssignmentTarget(t *testing.T) {
	p := NewParser(Tokenize("1 = 2;"))
	program := p.Parse()
	if program == nil {
		t.Fatal("parser must keep going after an invalid assignment target")
	}
	if len(p.Diagnostics()) != 1 {
		t.Fatalf("diagnostics: %v", p.Diagnostics())
	}
	if !strings.Contains(p.Diagnostics()[0].Message, "Invalid assignment target") {
		t.Errorf("unexpected message: %s", p.Diagnostics()[0].Message)
	}
}

func TestCanOnlyCallFunctions(t *testing.T) {
	p := NewParser(Tokenize("1(2);"))
	p.Parse()
	found := false
	for _, d := range p.Diagnostics() {
		if strings.Contains(d.Message, "Can only call functions") {
			found = true
		}
	}
	if !found {
		t.Errorf("diagnostics: %v", p.Diagnostics())
	}
}

func TestErrorRecoveryReportsMultiple(t *testing.T) {
	src := "let = 1; let a = 2; if x { } let b = 3;"
	p := NewParser(Tokenize(src))
	program := p.Parse()
	if program == nil {
		t.Fatal("recovery should still produce a program")
	}
	if len(p.Diagnostics()) < 2 {
		t.Errorf("want at least 2 diagnostics, got %v", p.Diagnostics())
	}
	// The well-formed declarations survive recovery.
	var names []string
	for _, s := range program.Statements {
		if d, ok := s.(*VariableDeclaration); ok {
			names = append(names, d.Name)
		}
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("surviving declarations: %v", names)
	}
}

func TestParseReturnsNilWhenNothingParses(t *testing.T) {
	p := NewParser(Tokenize("+ * /"))
	if program := p.Parse(); program != nil {
		t.Errorf("got %#v, want nil", program)
	}
	if len(p.Diagnostics()) == 0 {
		t.Error("expected diagnostics")
	}
}

// Printing a program and reparsing the output yields a structurally equal
// AST.
func TestPrintRoundTrip(t *testing.T) {
	sources := []string{
		"print(1 + 2 * 3);",
		`let x = "hello"; print(x + " " + "world");`,
		"function fact(n) { if (n <= 1) { return 1; } else { return n * fact(n - 1); } } print(fact(5));",
		"let a = [10, 20, 30]; print(len(a)); a[1] = 99; print(a[1]);",
		"for (let i = 0; i < 3; i = i + 1) { print(i); }",
		"while (x > 0 && y != 2) { x = x - 1; }",
		"const c = null; var v = true; let l = !false;",
		"return -x;",
	}
	for _, src := range sources {
		first := parseSource(t, src)
		printed := Print(first)
		second := parseSource(t, printed)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip changed the AST for %q:\nprinted: %s", src, printed)
		}
	}
}

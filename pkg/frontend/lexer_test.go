package frontend

import (
	"reflect"
	"strings"
	"testing"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeBasics(t *testing.T) {
	tokens := Tokenize(`let x = 1 + 2.5;`)
	want := []TokenKind{LET, IDENTIFIER, ASSIGN, NUMBER, PLUS, NUMBER, SEMICOLON, EOF}
	if !reflect.DeepEqual(kinds(tokens), want) {
		t.Errorf("got %v, want %v", kinds(tokens), want)
	}
	if tokens[3].Lexeme != "1" || tokens[5].Lexeme != "2.5" {
		t.Errorf("number lexemes wrong: %q %q", tokens[3].Lexeme, tokens[5].Lexeme)
	}
}

func TestKeywords(t *testing.T) {
	tokens := Tokenize("let var const function if else while for return true false null")
	want := []TokenKind{LET, VAR, CONST, FUNCTION, IF, ELSE, WHILE, FOR, RETURN, TRUE, FALSE, NULL, EOF}
	if !reflect.DeepEqual(kinds(tokens), want) {
		t.Errorf("got %v, want %v", kinds(tokens), want)
	}
}

func TestOperators(t *testing.T) {
	tokens := Tokenize("+ - * / % = == != < > <= >= && || ! ; , . ( ) { } [ ]")
	want := []TokenKind{
		PLUS, MINUS, MULTIPLY, DIVIDE, MODULO, ASSIGN, EQUAL, NOT_EQUAL,
		LESS_THAN, GREATER_THAN, LESS_EQUAL, GREATER_EQUAL, LOGICAL_AND,
		LOGICAL_OR, LOGICAL_NOT, SEMICOLON, COMMA, DOT, LEFT_PAREN,
		RIGHT_PAREN, LEFT_BRACE, RIGHT_BRACE, LEFT_BRACKET, RIGHT_BRACKET, EOF,
	}
	if !reflect.DeepEqual(kinds(tokens), want) {
		t.Errorf("got %v, want %v", kinds(tokens), want)
	}
}

// Concatenating the lexemes of a string-free source reproduces its
// non-whitespace, non-comment content.
func TestLexemeConcatenation(t *testing.T) {
	src := `
// leading comment
let count = 0;
while (count <= 10) { /* inner */ count = count + 1.5; }
`
	var b strings.Builder
	for _, tok := range Tokenize(src) {
		b.WriteString(tok.Lexeme)
	}

	stripped := strings.NewReplacer(" ", "", "\t", "", "\n", "").Replace(src)
	stripped = strings.ReplaceAll(stripped, "//leadingcomment", "")
	stripped = strings.ReplaceAll(stripped, "/*inner*/", "")
	if b.String() != stripped {
		t.Errorf("lexeme concatenation mismatch:\n got %q\nwant %q", b.String(), stripped)
	}
}

func TestIdempotent(t *testing.T) {
	src := `function add(a, b) { return a + b; } print(add(1, 2));`
	first := Tokenize(src)
	second := Tokenize(src)
	if !reflect.DeepEqual(first, second) {
		t.Error("lexing the same source twice produced different token streams")
	}
}

// Every token's line/column points at a byte equal to its lexeme's first byte.
func TestTokenPositions(t *testing.T) {
	src := "let x = 10;\nif (x >= 2) {\n  x = x % 3;\n}\n"
	lines := strings.Split(src, "\n")
	for _, tok := range Tokenize(src) {
		if tok.Kind == EOF || tok.Lexeme == "" {
			continue
		}
		line := lines[tok.Line-1]
		if got := line[tok.Column-1]; got != tok.Lexeme[0] {
			t.Errorf("token %v: source byte %q != lexeme start %q", tok, got, tok.Lexeme[0])
		}
	}
}

func TestStringLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"a\nb\tc"`, "a\nb\tc"},
		{`"quote: \" and \\ done"`, `quote: " and \ done`},
		{`'it\'s'`, "it's"},
		{`"unknown \q escape"`, "unknown q escape"},
		{`""`, ""},
	}
	for _, c := range cases {
		tokens := Tokenize(c.src)
		if tokens[0].Kind != STRING {
			t.Errorf("%q: kind = %v, want STRING", c.src, tokens[0].Kind)
			continue
		}
		if tokens[0].Lexeme != c.want {
			t.Errorf("%q: lexeme = %q, want %q", c.src, tokens[0].Lexeme, c.want)
		}
	}
}

func TestNumberThenDot(t *testing.T) {
	// "3." is a number followed by a dot, not a malformed literal.
	tokens := Tokenize("3.")
	want := []TokenKind{NUMBER, DOT, EOF}
	if !reflect.DeepEqual(kinds(tokens), want) {
		t.Errorf("got %v, want %v", kinds(tokens), want)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := NewLexer(`let s = "oops`)
	tokens := l.Tokenize()
	if len(l.Diagnostics()) != 1 {
		t.Fatalf("diagnostics = %v, want 1", l.Diagnostics())
	}
	if !strings.Contains(l.Diagnostics()[0].Message, "Unterminated string") {
		t.Errorf("unexpected message: %s", l.Diagnostics()[0].Message)
	}
	if tokens[len(tokens)-1].Kind != EOF {
		t.Error("token stream must still end in EOF")
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	l := NewLexer("let a = 1; /* never closed")
	l.Tokenize()
	if len(l.Diagnostics()) != 1 {
		t.Fatalf("diagnostics = %v, want 1", l.Diagnostics())
	}
	if !strings.Contains(l.Diagnostics()[0].Message, "Unterminated block comment") {
		t.Errorf("unexpected message: %s", l.Diagnostics()[0].Message)
	}
}

func TestUnexpectedCharacter(t *testing.T) {
	l := NewLexer("let a = 1; @ let b = 2;")
	tokens := l.Tokenize()
	if len(l.Diagnostics()) != 1 {
		t.Fatalf("diagnostics = %v, want 1", l.Diagnostics())
	}
	var sawUnknown, sawB bool
	for _, tok := range tokens {
		if tok.Kind == UNKNOWN && tok.Lexeme == "@" {
			sawUnknown = true
		}
		if tok.Kind == IDENTIFIER && tok.Lexeme == "b" {
			sawB = true
		}
	}
	if !sawUnknown {
		t.Error("expected an UNKNOWN token for '@'")
	}
	if !sawB {
		t.Error("lexing must continue past an unknown character")
	}
}

func TestBareAmpersandIsError(t *testing.T) {
	l := NewLexer("a & b")
	tokens := l.Tokenize()
	if len(l.Diagnostics()) != 1 {
		t.Fatalf("diagnostics = %v, want 1", l.Diagnostics())
	}
	if tokens[1].Kind != UNKNOWN {
		t.Errorf("token = %v, want UNKNOWN", tokens[1])
	}
}

func TestDollarIdentifiers(t *testing.T) {
	tokens := Tokenize("$tmp _x a1$")
	for i := 0; i < 3; i++ {
		if tokens[i].Kind != IDENTIFIER {
			t.Errorf("token %d = %v, want IDENTIFIER", i, tokens[i])
		}
	}
}

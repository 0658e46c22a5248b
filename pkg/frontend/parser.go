package frontend

import (
	"errors"
	"strconv"
)

// errParse signals panic-mode recovery: the diagnostic has already been
// recorded by the time it is returned, and the program loop synchronizes.
var errParse = errors.New("parse error")

// Parser consumes a token stream and produces a Program. Parse errors are
// recorded as diagnostics; the parser synchronizes to the next statement
// boundary and keeps going, so a single pass can report many errors.
type Parser struct {
	tokens []Token
	pos    int
	diags  []Diagnostic
}

// NewParser wraps a token stream ending in EOF.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses the whole stream. It returns nil when no complete statement
// could be parsed and at least one error was reported.
func (p *Parser) Parse() *Program {
	program := &Program{}

	for !p.isAtEnd() {
		stmt, err := p.parseStatement()
		if err != nil {
			p.synchronize()
			continue
		}
		program.Statements = append(program.Statements, stmt)
	}

	if len(program.Statements) == 0 && len(p.diags) > 0 {
		return nil
	}
	return program
}

// Diagnostics returns the parse errors recorded so far, in source order.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diags
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF token
	}
	return p.tokens[p.pos]
}

func (p *Parser) previous() Token {
	return p.tokens[p.pos-1]
}

func (p *Parser) advance() Token {
	if !p.isAtEnd() {
		p.pos++
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Kind == EOF
}

func (p *Parser) check(kind TokenKind) bool {
	return !p.isAtEnd() && p.peek().Kind == kind
}

func (p *Parser) match(kinds ...TokenKind) bool {
	for _, kind := range kinds {
		if p.check(kind) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(kind TokenKind, message string) (Token, error) {
	if p.check(kind) {
		return p.advance(), nil
	}
	return Token{}, p.errorAt(p.peek(), message)
}

// errorAt records a diagnostic against tok and returns errParse.
func (p *Parser) errorAt(tok Token, message string) error {
	lexeme := tok.Lexeme
	if tok.Kind == EOF {
		lexeme = "end of file"
	}
	p.diags = append(p.diags, Diagnostic{
		Line:    tok.Line,
		Column:  tok.Column,
		Lexeme:  lexeme,
		Message: message,
	})
	return errParse
}

// synchronize discards tokens until just past a ';' or just before a token
// that can begin a statement.
func (p *Parser) synchronize() {
	p.advance()

	for !p.isAtEnd() {
		if p.previous().Kind == SEMICOLON {
			return
		}
		switch p.peek().Kind {
		case FUNCTION, VAR, LET, CONST, FOR, IF, WHILE, RETURN:
			return
		}
		p.advance()
	}
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch {
	case p.match(FUNCTION):
		return p.parseFunctionDeclaration()
	case p.match(VAR, LET, CONST):
		return p.parseVariableDeclaration()
	case p.match(IF):
		return p.parseIfStatement()
	case p.match(WHILE):
		return p.parseWhileStatement()
	case p.match(FOR):
		return p.parseForStatement()
	case p.match(RETURN):
		return p.parseReturnStatement()
	case p.match(LEFT_BRACE):
		return p.parseBlockStatement()
	}
	return p.parseExpressionStatement()
}

// parseVariableDeclaration is entered with the let/var/const keyword consumed.
func (p *Parser) parseVariableDeclaration() (Stmt, error) {
	kind := p.previous()
	name, err := p.consume(IDENTIFIER, "Expected variable name")
	if err != nil {
		return nil, err
	}

	var initializer Expr
	if p.match(ASSIGN) {
		initializer, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.consume(SEMICOLON, "Expected ';' after variable declaration"); err != nil {
		return nil, err
	}
	return &VariableDeclaration{Kind: kind.Lexeme, Name: name.Lexeme, Initializer: initializer}, nil
}

func (p *Parser) parseFunctionDeclaration() (Stmt, error) {
	name, err := p.consume(IDENTIFIER, "Expected function name")
	if err != nil {
		return nil, err
	}

	if _, err := p.consume(LEFT_PAREN, "Expected '(' after function name"); err != nil {
		return nil, err
	}
	var parameters []string
	if !p.check(RIGHT_PAREN) {
		for {
			param, err := p.consume(IDENTIFIER, "Expected parameter name")
			if err != nil {
				return nil, err
			}
			parameters = append(parameters, param.Lexeme)
			if !p.match(COMMA) {
				break
			}
		}
	}
	if _, err := p.consume(RIGHT_PAREN, "Expected ')' after parameters"); err != nil {
		return nil, err
	}

	if _, err := p.consume(LEFT_BRACE, "Expected '{' before function body"); err != nil {
		return nil, err
	}
	body, err := p.parseBlockStatement()
	if err != nil {
		return nil, err
	}

	return &FunctionDeclaration{Name: name.Lexeme, Parameters: parameters, Body: body.(*BlockStatement)}, nil
}

func (p *Parser) parseIfStatement() (Stmt, error) {
	if _, err := p.consume(LEFT_PAREN, "Expected '(' after 'if'"); err != nil {
		return nil, err
	}
	condition, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(RIGHT_PAREN, "Expected ')' after if condition"); err != nil {
		return nil, err
	}

	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var elseStmt Stmt
	if p.match(ELSE) {
		elseStmt, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}

	return &IfStatement{Condition: condition, Then: then, Else: elseStmt}, nil
}

func (p *Parser) parseWhileStatement() (Stmt, error) {
	if _, err := p.consume(LEFT_PAREN, "Expected '(' after 'while'"); err != nil {
		return nil, err
	}
	condition, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(RIGHT_PAREN, "Expected ')' after while condition"); err != nil {
		return nil, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStatement{Condition: condition, Body: body}, nil
}

func (p *Parser) parseForStatement() (Stmt, error) {
	if _, err := p.consume(LEFT_PAREN, "Expected '(' after 'for'"); err != nil {
		return nil, err
	}

	var init Stmt
	var err error
	switch {
	case p.match(SEMICOLON):
		// no initializer
	case p.match(VAR, LET, CONST):
		init, err = p.parseVariableDeclaration()
		if err != nil {
			return nil, err
		}
	default:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(SEMICOLON, "Expected ';' after for loop initializer"); err != nil {
			return nil, err
		}
		init = &ExpressionStatement{Expression: expr}
	}

	var condition Expr
	if !p.check(SEMICOLON) {
		condition, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(SEMICOLON, "Expected ';' after for loop condition"); err != nil {
		return nil, err
	}

	var update Expr
	if !p.check(RIGHT_PAREN) {
		update, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(RIGHT_PAREN, "Expected ')' after for clauses"); err != nil {
		return nil, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ForStatement{Init: init, Condition: condition, Update: update, Body: body}, nil
}

func (p *Parser) parseReturnStatement() (Stmt, error) {
	var value Expr
	var err error
	if !p.check(SEMICOLON) {
		value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(SEMICOLON, "Expected ';' after return value"); err != nil {
		return nil, err
	}
	return &ReturnStatement{Value: value}, nil
}

// parseBlockStatement is entered with the '{' consumed.
func (p *Parser) parseBlockStatement() (Stmt, error) {
	block := &BlockStatement{}
	for !p.check(RIGHT_BRACE) && !p.isAtEnd() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	if _, err := p.consume(RIGHT_BRACE, "Expected '}' after block"); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseExpressionStatement() (Stmt, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(SEMICOLON, "Expected ';' after expression"); err != nil {
		return nil, err
	}
	return &ExpressionStatement{Expression: expr}, nil
}

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseAssignment()
}

// parseAssignment handles the right-associative '=' level. The left-hand
// side must be an identifier or an index expression; anything else reports
// InvalidAssignmentTarget, and the right-hand side is still consumed so
// parsing can continue from a sane position.
func (p *Parser) parseAssignment() (Expr, error) {
	expr, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}

	if p.match(ASSIGN) {
		equals := p.previous()
		value, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		switch target := expr.(type) {
		case *Identifier:
			return &AssignmentExpression{Name: target.Name, Value: value}, nil
		case *IndexExpression:
			return &IndexAssignmentExpression{Array: target.Array, Index: target.Index, Value: value}, nil
		}
		p.errorAt(equals, "Invalid assignment target")
	}

	return expr, nil
}

func (p *Parser) parseLogicalOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseLogicalAnd, LOGICAL_OR)
}

func (p *Parser) parseLogicalAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, LOGICAL_AND)
}

func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinaryLevel(p.parseComparison, EQUAL, NOT_EQUAL)
}

func (p *Parser) parseComparison() (Expr, error) {
	return p.parseBinaryLevel(p.parseAddition, GREATER_THAN, GREATER_EQUAL, LESS_THAN, LESS_EQUAL)
}

func (p *Parser) parseAddition() (Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplication, PLUS, MINUS)
}

func (p *Parser) parseMultiplication() (Expr, error) {
	return p.parseBinaryLevel(p.parseUnary, MULTIPLY, DIVIDE, MODULO)
}

// parseBinaryLevel parses one left-associative precedence level.
func (p *Parser) parseBinaryLevel(next func() (Expr, error), kinds ...TokenKind) (Expr, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}
	for p.match(kinds...) {
		op := p.previous().Lexeme
		right, err := next()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpression{Left: expr, Op: op, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.match(LOGICAL_NOT, MINUS) {
		op := p.previous().Lexeme
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Op: op, Operand: operand}, nil
	}
	return p.parseCall()
}

// parseCall parses postfix call and subscript chains.
func (p *Parser) parseCall() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.match(LEFT_PAREN):
			id, ok := expr.(*Identifier)
			if !ok {
				return nil, p.errorAt(p.previous(), "Can only call functions")
			}
			var args []Expr
			if !p.check(RIGHT_PAREN) {
				for {
					arg, err := p.parseExpression()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if !p.match(COMMA) {
						break
					}
				}
			}
			if _, err := p.consume(RIGHT_PAREN, "Expected ')' after arguments"); err != nil {
				return nil, err
			}
			expr = &CallExpression{Name: id.Name, Args: args}
		case p.match(LEFT_BRACKET):
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(RIGHT_BRACKET, "Expected ']' after index"); err != nil {
				return nil, err
			}
			expr = &IndexExpression{Array: expr, Index: index}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.match(TRUE):
		return &BooleanLiteral{Value: true}, nil
	case p.match(FALSE):
		return &BooleanLiteral{Value: false}, nil
	case p.match(NULL):
		return &NullLiteral{}, nil
	case p.match(NUMBER):
		value, err := strconv.ParseFloat(p.previous().Lexeme, 64)
		if err != nil {
			return nil, p.errorAt(p.previous(), "Invalid number literal")
		}
		return &NumberLiteral{Value: value}, nil
	case p.match(STRING):
		return &StringLiteral{Value: p.previous().Lexeme}, nil
	case p.match(IDENTIFIER):
		return &Identifier{Name: p.previous().Lexeme}, nil
	case p.match(LEFT_BRACKET):
		var elements []Expr
		if !p.check(RIGHT_BRACKET) {
			for {
				elem, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				elements = append(elements, elem)
				if !p.match(COMMA) {
					break
				}
			}
		}
		if _, err := p.consume(RIGHT_BRACKET, "Expected ']' after array elements"); err != nil {
			return nil, err
		}
		return &ArrayLiteral{Elements: elements}, nil
	case p.match(LEFT_PAREN):
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(RIGHT_PAREN, "Expected ')' after expression"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.errorAt(p.peek(), "Expected expression")
}

package compiler

import (
	"github.com/chazu/jsbc/pkg/diag"
)

// ---------------------------------------------------------------------------
// Parser: recursive-descent parser for the JS-like textual front end
// ---------------------------------------------------------------------------

// Parser parses a token stream into a Program. The parser never
// attempts error recovery: it reports the first failure and stops.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	input     string
}

// parseError is panicked internally to unwind to Parse without manual
// error threading through every recursive call; Parse recovers it.
type parseError struct{ err *diag.Error }

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input), input: input}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curIs(t TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekIs(t TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) curIsKeyword(kw string) bool {
	return p.curToken.Type == TokenKeyword && p.curToken.Literal == kw
}

func (p *Parser) curIsOp(op string) bool {
	return (p.curToken.Type == TokenOperator || p.curToken.Type == TokenArrow || p.curToken.Type == TokenOptionalDot) && p.curToken.Literal == op
}

func (p *Parser) fail(format string, args ...interface{}) {
	pos := diag.Position{Offset: p.curToken.Pos.Offset, Line: p.curToken.Pos.Line, Column: p.curToken.Pos.Column}
	panic(parseError{err: diag.Parse(pos, format, args...)})
}

func (p *Parser) expect(t TokenType) Token {
	if !p.curIs(t) {
		p.fail("expected %s, got %s %q", t, p.curToken.Type, p.curToken.Literal)
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

func (p *Parser) expectKeyword(kw string) Token {
	if !p.curIsKeyword(kw) {
		p.fail("expected keyword %q, got %q", kw, p.curToken.Literal)
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

func (p *Parser) expectOp(op string) Token {
	if !p.curIsOp(op) {
		p.fail("expected %q, got %q", op, p.curToken.Literal)
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

func (p *Parser) pos() Position { return p.curToken.Pos }

func (p *Parser) span(start Position) Span {
	return MakeSpan(start, p.curToken.Pos)
}

// consumeSemicolon implements automatic-semicolon-insertion-lite: a
// trailing `;` is consumed if present, otherwise statements are
// terminated by a following `}`, EOF, or newline already skipped by
// the lexer. The grammar here requires explicit semicolons in the
// ambiguous cases (for-header, multiple declarators).
func (p *Parser) consumeSemicolon() {
	if p.curIs(TokenSemicolon) {
		p.nextToken()
	}
}

// Parse parses the full token stream into a Program. On the first
// error, it returns a non-nil error describing it.
func Parse(source string) (prog *Program, err error) {
	p := NewParser(source)
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(parseError); ok {
				err = pe.err
				return
			}
			panic(r)
		}
	}()
	prog = p.parseProgram()
	return prog, nil
}

func (p *Parser) parseProgram() *Program {
	start := p.pos()
	var body []Stmt
	for !p.curIs(TokenEOF) {
		body = append(body, p.parseStatement())
	}
	return &Program{SpanVal: p.span(start), Body: body}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	switch {
	case p.curIs(TokenLBrace):
		return p.parseBlock()
	case p.curIsKeyword("var") || p.curIsKeyword("let") || p.curIsKeyword("const"):
		decl := p.parseVarDecl()
		p.consumeSemicolon()
		return decl
	case p.curIsKeyword("function"):
		return p.parseFunctionDecl()
	case p.curIsKeyword("async") && p.peekIs(TokenKeyword) && p.peekToken.Literal == "function":
		return p.parseFunctionDecl()
	case p.curIsKeyword("class"):
		return p.parseClassDecl()
	case p.curIsKeyword("if"):
		return p.parseIf()
	case p.curIsKeyword("while"):
		return p.parseWhile()
	case p.curIsKeyword("for"):
		return p.parseFor()
	case p.curIsKeyword("return"):
		return p.parseReturn()
	case p.curIsKeyword("break"):
		start := p.pos()
		p.nextToken()
		p.consumeSemicolon()
		return &BreakStmt{SpanVal: p.span(start)}
	case p.curIsKeyword("continue"):
		start := p.pos()
		p.nextToken()
		p.consumeSemicolon()
		return &ContinueStmt{SpanVal: p.span(start)}
	case p.curIsKeyword("throw"):
		return p.parseThrow()
	case p.curIsKeyword("try"):
		return p.parseTry()
	case p.curIsKeyword("switch"):
		return p.parseSwitch()
	case p.curIsKeyword("import"):
		return p.parseImport()
	case p.curIsKeyword("export"):
		return p.parseExport()
	case p.curIs(TokenSemicolon):
		start := p.pos()
		p.nextToken()
		return &ExprStmt{SpanVal: p.span(start), Expr: &UndefinedLiteral{SpanVal: p.span(start)}}
	default:
		start := p.pos()
		expr := p.parseExpression()
		p.consumeSemicolon()
		return &ExprStmt{SpanVal: p.span(start), Expr: expr}
	}
}

func (p *Parser) parseBlock() *BlockStmt {
	start := p.pos()
	p.expect(TokenLBrace)
	var body []Stmt
	for !p.curIs(TokenRBrace) && !p.curIs(TokenEOF) {
		body = append(body, p.parseStatement())
	}
	p.expect(TokenRBrace)
	return &BlockStmt{SpanVal: p.span(start), Body: body}
}

func declKindFor(kw string) DeclKind {
	switch kw {
	case "let":
		return DeclLet
	case "const":
		return DeclConst
	default:
		return DeclVar
	}
}

func (p *Parser) parseVarDecl() *VarDecl {
	start := p.pos()
	kind := declKindFor(p.curToken.Literal)
	p.nextToken()
	var decls []Declarator
	for {
		target := p.parseBindingTarget()
		var init Expr
		if p.curIsOp("=") {
			p.nextToken()
			init = p.parseAssignmentExpr()
		}
		decls = append(decls, Declarator{Target: target, Init: init})
		if p.curIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}
	return &VarDecl{SpanVal: p.span(start), Kind: kind, Declarators: decls}
}

// parseBindingTarget parses an identifier, object pattern, or array
// pattern usable as a declaration/parameter/catch-clause target.
func (p *Parser) parseBindingTarget() Pattern {
	switch {
	case p.curIs(TokenLBrace):
		return p.parseObjectPattern()
	case p.curIs(TokenLBracket):
		return p.parseArrayPattern()
	default:
		tok := p.expect(TokenIdent)
		return &IdentPattern{SpanVal: MakeSpan(tok.Pos, tok.End), Name: tok.Literal}
	}
}

func (p *Parser) parseObjectPattern() *ObjectPattern {
	start := p.pos()
	p.expect(TokenLBrace)
	var props []ObjectPatternProp
	var rest Pattern
	for !p.curIs(TokenRBrace) {
		if p.curIs(TokenEllipsis) {
			p.nextToken()
			rest = p.parseBindingTarget()
			break
		}
		keyTok := p.expect(TokenIdent)
		prop := ObjectPatternProp{Key: keyTok.Literal, Value: &IdentPattern{SpanVal: MakeSpan(keyTok.Pos, keyTok.End), Name: keyTok.Literal}}
		if p.curIs(TokenColon) {
			p.nextToken()
			prop.Value = p.parseBindingTarget()
		}
		if p.curIsOp("=") {
			p.nextToken()
			prop.Default = p.parseAssignmentExpr()
		}
		props = append(props, prop)
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBrace)
	return &ObjectPattern{SpanVal: p.span(start), Properties: props, Rest: rest}
}

func (p *Parser) parseArrayPattern() *ArrayPattern {
	start := p.pos()
	p.expect(TokenLBracket)
	var elems []ArrayPatternElem
	var rest Pattern
	for !p.curIs(TokenRBracket) {
		if p.curIs(TokenComma) {
			elems = append(elems, ArrayPatternElem{})
			p.nextToken()
			continue
		}
		if p.curIs(TokenEllipsis) {
			p.nextToken()
			rest = p.parseBindingTarget()
			break
		}
		target := p.parseBindingTarget()
		elem := ArrayPatternElem{Pattern: target}
		if p.curIsOp("=") {
			p.nextToken()
			elem.Default = p.parseAssignmentExpr()
		}
		elems = append(elems, elem)
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBracket)
	return &ArrayPattern{SpanVal: p.span(start), Elements: elems, Rest: rest}
}

func (p *Parser) parseFunctionDecl() *FunctionDecl {
	start := p.pos()
	fn := p.parseFunctionExpr()
	return &FunctionDecl{SpanVal: p.span(start), Function: fn}
}

func (p *Parser) parseFunctionExpr() *FunctionExpr {
	start := p.pos()
	async := false
	if p.curIsKeyword("async") {
		async = true
		p.nextToken()
	}
	p.expectKeyword("function")
	generator := false
	if p.curIsOp("*") {
		generator = true
		p.nextToken()
	}
	name := ""
	if p.curIs(TokenIdent) {
		name = p.curToken.Literal
		p.nextToken()
	}
	params, defaults := p.parseParamList()
	body := p.parseBlock()
	return &FunctionExpr{SpanVal: p.span(start), Name: name, Params: params, Defaults: defaults, Body: body, Async: async, Generator: generator}
}

func (p *Parser) parseParamList() ([]Pattern, []Expr) {
	p.expect(TokenLParen)
	var params []Pattern
	var defaults []Expr
	for !p.curIs(TokenRParen) {
		if p.curIs(TokenEllipsis) {
			p.nextToken()
		}
		target := p.parseBindingTarget()
		var def Expr
		if p.curIsOp("=") {
			p.nextToken()
			def = p.parseAssignmentExpr()
		}
		params = append(params, target)
		defaults = append(defaults, def)
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRParen)
	return params, defaults
}

func (p *Parser) parseClassDecl() *ClassDecl {
	start := p.pos()
	cls := p.parseClassExpr()
	return &ClassDecl{SpanVal: p.span(start), Class: cls}
}

func (p *Parser) parseClassExpr() *ClassExpr {
	start := p.pos()
	p.expectKeyword("class")
	name := ""
	if p.curIs(TokenIdent) {
		name = p.curToken.Literal
		p.nextToken()
	}
	var super Expr
	if p.curIsKeyword("extends") {
		p.nextToken()
		super = p.parseLeftHandSideExpr()
	}
	p.expect(TokenLBrace)
	var methods []MethodDef
	for !p.curIs(TokenRBrace) {
		if p.curIs(TokenSemicolon) {
			p.nextToken()
			continue
		}
		methods = append(methods, p.parseMethodDef())
	}
	p.expect(TokenRBrace)
	return &ClassExpr{SpanVal: p.span(start), Name: name, Superclass: super, Methods: methods}
}

func (p *Parser) parseMethodDef() MethodDef {
	start := p.pos()
	static := false
	if p.curIsKeyword("static") {
		static = true
		p.nextToken()
	}
	async := false
	if p.curIsKeyword("async") {
		async = true
		p.nextToken()
	}
	generator := false
	if p.curIsOp("*") {
		generator = true
		p.nextToken()
	}
	kind := "method"
	if (p.curIsKeyword("get") || p.curIsKeyword("set")) && !p.peekIs(TokenLParen) {
		kind = p.curToken.Literal
		p.nextToken()
	}
	computed := false
	var keyExpr Expr
	key := ""
	if p.curIs(TokenLBracket) {
		computed = true
		p.nextToken()
		keyExpr = p.parseAssignmentExpr()
		p.expect(TokenRBracket)
	} else {
		tok := p.curToken
		p.nextToken()
		key = tok.Literal
		if key == "constructor" && kind == "method" {
			kind = "constructor"
		}
	}
	params, defaults := p.parseParamList()
	body := p.parseBlock()
	fn := &FunctionExpr{SpanVal: p.span(start), Params: params, Defaults: defaults, Body: body, Async: async, Generator: generator}
	return MethodDef{SpanVal: p.span(start), Key: key, Computed: computed, KeyExpr: keyExpr, Kind: kind, Static: static, Async: async, Generator: generator, Function: fn}
}

func (p *Parser) parseIf() *IfStmt {
	start := p.pos()
	p.expectKeyword("if")
	p.expect(TokenLParen)
	test := p.parseExpression()
	p.expect(TokenRParen)
	cons := p.parseStatement()
	var alt Stmt
	if p.curIsKeyword("else") {
		p.nextToken()
		alt = p.parseStatement()
	}
	return &IfStmt{SpanVal: p.span(start), Test: test, Consequent: cons, Alternate: alt}
}

func (p *Parser) parseWhile() *WhileStmt {
	start := p.pos()
	p.expectKeyword("while")
	p.expect(TokenLParen)
	test := p.parseExpression()
	p.expect(TokenRParen)
	body := p.parseStatement()
	return &WhileStmt{SpanVal: p.span(start), Test: test, Body: body}
}

// parseFor disambiguates the C-style, for-in, and for-of forms by
// looking ahead past an optional declaration/expression for the `in`
// or `of` keyword.
func (p *Parser) parseFor() Stmt {
	start := p.pos()
	p.expectKeyword("for")
	p.expect(TokenLParen)

	declared := false
	var kind DeclKind
	if p.curIsKeyword("var") || p.curIsKeyword("let") || p.curIsKeyword("const") {
		declared = true
		kind = declKindFor(p.curToken.Literal)
		p.nextToken()
	}

	if p.curIs(TokenSemicolon) {
		return p.finishCFor(start, nil)
	}

	// Try to parse a binding target / left-hand expression, then check
	// for `in`/`of`.
	if declared || p.curIs(TokenIdent) || p.curIs(TokenLBrace) || p.curIs(TokenLBracket) {
		target := p.parseBindingTarget()
		if p.curIsKeyword("in") {
			p.nextToken()
			right := p.parseExpression()
			p.expect(TokenRParen)
			body := p.parseStatement()
			return &ForInStmt{SpanVal: p.span(start), DeclKind: kind, Declared: declared, Left: target, Right: right, Body: body}
		}
		if p.curIsKeyword("of") {
			p.nextToken()
			right := p.parseAssignmentExpr()
			p.expect(TokenRParen)
			body := p.parseStatement()
			return &ForOfStmt{SpanVal: p.span(start), DeclKind: kind, Declared: declared, Left: target, Right: right, Body: body}
		}
		// Fall back to C-style: target was a declarator or an lvalue expr.
		if declared {
			var init Expr
			if p.curIsOp("=") {
				p.nextToken()
				init = p.parseAssignmentExpr()
			}
			decl := &VarDecl{SpanVal: p.span(start), Kind: kind, Declarators: []Declarator{{Target: target, Init: init}}}
			for p.curIs(TokenComma) {
				p.nextToken()
				t2 := p.parseBindingTarget()
				var i2 Expr
				if p.curIsOp("=") {
					p.nextToken()
					i2 = p.parseAssignmentExpr()
				}
				decl.Declarators = append(decl.Declarators, Declarator{Target: t2, Init: i2})
			}
			return p.finishCFor(start, decl)
		}
	}
	expr := p.parseExpression()
	return p.finishCFor(start, &ExprStmt{SpanVal: expr.Span(), Expr: expr})
}

func (p *Parser) finishCFor(start Position, init Node) *ForStmt {
	p.expect(TokenSemicolon)
	var test Expr
	if !p.curIs(TokenSemicolon) {
		test = p.parseExpression()
	}
	p.expect(TokenSemicolon)
	var update Expr
	if !p.curIs(TokenRParen) {
		update = p.parseExpression()
	}
	p.expect(TokenRParen)
	body := p.parseStatement()
	return &ForStmt{SpanVal: p.span(start), Init: init, Test: test, Update: update, Body: body}
}

func (p *Parser) parseReturn() *ReturnStmt {
	start := p.pos()
	p.expectKeyword("return")
	var arg Expr
	if !p.curIs(TokenSemicolon) && !p.curIs(TokenRBrace) && !p.curIs(TokenEOF) {
		arg = p.parseExpression()
	}
	p.consumeSemicolon()
	return &ReturnStmt{SpanVal: p.span(start), Argument: arg}
}

func (p *Parser) parseThrow() *ThrowStmt {
	start := p.pos()
	p.expectKeyword("throw")
	arg := p.parseExpression()
	p.consumeSemicolon()
	return &ThrowStmt{SpanVal: p.span(start), Argument: arg}
}

func (p *Parser) parseTry() *TryStmt {
	start := p.pos()
	p.expectKeyword("try")
	block := p.parseBlock()
	t := &TryStmt{Block: block}
	if p.curIsKeyword("catch") {
		t.HasCatch = true
		p.nextToken()
		if p.curIs(TokenLParen) {
			p.nextToken()
			t.Param = p.parseBindingTarget()
			p.expect(TokenRParen)
		}
		t.Handler = p.parseBlock()
	}
	if p.curIsKeyword("finally") {
		p.nextToken()
		t.Finalizer = p.parseBlock()
	}
	t.SpanVal = p.span(start)
	return t
}

func (p *Parser) parseSwitch() *SwitchStmt {
	start := p.pos()
	p.expectKeyword("switch")
	p.expect(TokenLParen)
	disc := p.parseExpression()
	p.expect(TokenRParen)
	p.expect(TokenLBrace)
	var cases []SwitchCase
	for !p.curIs(TokenRBrace) {
		var c SwitchCase
		if p.curIsKeyword("case") {
			p.nextToken()
			c.Test = p.parseExpression()
		} else {
			p.expectKeyword("default")
		}
		p.expect(TokenColon)
		for !p.curIsKeyword("case") && !p.curIsKeyword("default") && !p.curIs(TokenRBrace) {
			c.Body = append(c.Body, p.parseStatement())
		}
		cases = append(cases, c)
	}
	p.expect(TokenRBrace)
	return &SwitchStmt{SpanVal: p.span(start), Discriminant: disc, Cases: cases}
}

func (p *Parser) parseImport() *ImportDecl {
	start := p.pos()
	p.expectKeyword("import")
	decl := &ImportDecl{}
	if p.curIs(TokenString) {
		decl.Source = p.curToken.Literal
		p.nextToken()
		p.consumeSemicolon()
		decl.SpanVal = p.span(start)
		return decl
	}
	if p.curIs(TokenIdent) {
		decl.Specifiers = append(decl.Specifiers, ImportSpecifier{Kind: "default", Local: p.curToken.Literal})
		p.nextToken()
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	if p.curIsOp("*") {
		p.nextToken()
		p.expectKeyword("as")
		local := p.expect(TokenIdent).Literal
		decl.Specifiers = append(decl.Specifiers, ImportSpecifier{Kind: "namespace", Local: local})
	} else if p.curIs(TokenLBrace) {
		p.nextToken()
		for !p.curIs(TokenRBrace) {
			imported := p.expect(TokenIdent).Literal
			local := imported
			if p.curIsKeyword("as") {
				p.nextToken()
				local = p.expect(TokenIdent).Literal
			}
			decl.Specifiers = append(decl.Specifiers, ImportSpecifier{Kind: "named", Imported: imported, Local: local})
			if p.curIs(TokenComma) {
				p.nextToken()
			}
		}
		p.expect(TokenRBrace)
	}
	if len(decl.Specifiers) > 0 {
		p.expectKeyword("from")
	}
	decl.Source = p.expect(TokenString).Literal
	p.consumeSemicolon()
	decl.SpanVal = p.span(start)
	return decl
}

func (p *Parser) parseExport() Stmt {
	start := p.pos()
	p.expectKeyword("export")
	if p.curIsKeyword("default") {
		p.nextToken()
		var decl Node
		switch {
		case p.curIsKeyword("function") || (p.curIsKeyword("async") && p.peekToken.Literal == "function"):
			decl = p.parseFunctionDecl()
		case p.curIsKeyword("class"):
			decl = p.parseClassDecl()
		default:
			decl = p.parseAssignmentExpr()
			p.consumeSemicolon()
		}
		return &ExportDefaultDecl{SpanVal: p.span(start), Declaration: decl}
	}
	if p.curIs(TokenLBrace) {
		p.nextToken()
		var specs []ExportSpecifier
		for !p.curIs(TokenRBrace) {
			local := p.expect(TokenIdent).Literal
			exported := local
			if p.curIsKeyword("as") {
				p.nextToken()
				exported = p.expect(TokenIdent).Literal
			}
			specs = append(specs, ExportSpecifier{Local: local, Exported: exported})
			if p.curIs(TokenComma) {
				p.nextToken()
			}
		}
		p.expect(TokenRBrace)
		source := ""
		if p.curIsKeyword("from") {
			p.nextToken()
			source = p.expect(TokenString).Literal
		}
		p.consumeSemicolon()
		return &ExportDecl{SpanVal: p.span(start), Specifiers: specs, Source: source}
	}
	decl := p.parseStatement()
	return &ExportDecl{SpanVal: p.span(start), Declaration: decl}
}

// ---------------------------------------------------------------------------
// Expressions: precedence climbing, lowest to highest
// ---------------------------------------------------------------------------

// parseExpression is the statement-level entry point (no comma
// operator in this grammar, so it is an alias for assignment).
func (p *Parser) parseExpression() Expr {
	return p.parseAssignmentExpr()
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"<<=": true, ">>=": true, ">>>=": true, "&=": true, "|=": true, "^=": true,
	"**=": true, "&&=": true, "||=": true, "??=": true,
}

func (p *Parser) parseAssignmentExpr() Expr {
	left := p.parseConditionalExpr()
	if p.curToken.Type == TokenOperator && assignOps[p.curToken.Literal] {
		op := p.curToken.Literal
		start := left.Span().Start
		p.nextToken()
		value := p.parseAssignmentExpr()
		assign := &AssignExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: op, Target: left, Value: value}
		if op == "=" {
			if pat := exprToPattern(left); pat != nil {
				if _, isIdent := pat.(*IdentPattern); !isIdent {
					assign.Pattern = pat
				}
			}
		}
		return assign
	}
	return left
}

// exprToPattern reinterprets an already-parsed expression as a
// destructuring pattern for assignment targets like `[a, b] = x`.
func exprToPattern(e Expr) Pattern {
	switch v := e.(type) {
	case *Identifier:
		return &IdentPattern{SpanVal: v.SpanVal, Name: v.Name}
	case *ArrayExpr:
		pat := &ArrayPattern{SpanVal: v.SpanVal}
		for _, el := range v.Elements {
			if el == nil {
				pat.Elements = append(pat.Elements, ArrayPatternElem{})
				continue
			}
			pat.Elements = append(pat.Elements, ArrayPatternElem{Pattern: exprToPattern(el)})
		}
		return pat
	case *ObjectExpr:
		pat := &ObjectPattern{SpanVal: v.SpanVal}
		for _, prop := range v.Properties {
			pat.Properties = append(pat.Properties, ObjectPatternProp{
				Key: prop.Key, Computed: prop.Computed, KeyExpr: prop.KeyExpr,
				Value: exprToPattern(prop.Value),
			})
		}
		return pat
	default:
		return nil
	}
}

func (p *Parser) parseConditionalExpr() Expr {
	test := p.parseNullishExpr()
	if p.curIsOp("?") {
		start := test.Span().Start
		p.nextToken()
		cons := p.parseAssignmentExpr()
		p.expect(TokenColon)
		alt := p.parseAssignmentExpr()
		return &ConditionalExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Test: test, Consequent: cons, Alternate: alt}
	}
	return test
}

func (p *Parser) parseNullishExpr() Expr {
	left := p.parseLogicalOrExpr()
	for p.curIsOp("??") {
		start := left.Span().Start
		p.nextToken()
		right := p.parseLogicalOrExpr()
		left = &LogicalExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: "??", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseLogicalOrExpr() Expr {
	left := p.parseLogicalAndExpr()
	for p.curIsOp("||") {
		start := left.Span().Start
		p.nextToken()
		right := p.parseLogicalAndExpr()
		left = &LogicalExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: "||", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseLogicalAndExpr() Expr {
	left := p.parseBitOrExpr()
	for p.curIsOp("&&") {
		start := left.Span().Start
		p.nextToken()
		right := p.parseBitOrExpr()
		left = &LogicalExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: "&&", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitOrExpr() Expr  { return p.parseBinaryLevel([]string{"|"}, p.parseBitXorExpr) }
func (p *Parser) parseBitXorExpr() Expr { return p.parseBinaryLevel([]string{"^"}, p.parseBitAndExpr) }
func (p *Parser) parseBitAndExpr() Expr { return p.parseBinaryLevel([]string{"&"}, p.parseEqualityExpr) }
func (p *Parser) parseEqualityExpr() Expr {
	return p.parseBinaryLevel([]string{"==", "===", "!=", "!=="}, p.parseRelationalExpr)
}
func (p *Parser) parseRelationalExpr() Expr {
	left := p.parseShiftExpr()
	for {
		if p.curToken.Type == TokenOperator && (p.curToken.Literal == "<" || p.curToken.Literal == ">" ||
			p.curToken.Literal == "<=" || p.curToken.Literal == ">=") {
			op := p.curToken.Literal
			start := left.Span().Start
			p.nextToken()
			right := p.parseShiftExpr()
			left = &BinaryExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: op, Left: left, Right: right}
			continue
		}
		if p.curIsKeyword("in") || p.curIsKeyword("instanceof") {
			op := p.curToken.Literal
			start := left.Span().Start
			p.nextToken()
			right := p.parseShiftExpr()
			left = &BinaryExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: op, Left: left, Right: right}
			continue
		}
		break
	}
	return left
}
func (p *Parser) parseShiftExpr() Expr {
	return p.parseBinaryLevel([]string{"<<", ">>", ">>>"}, p.parseAdditiveExpr)
}
func (p *Parser) parseAdditiveExpr() Expr {
	return p.parseBinaryLevel([]string{"+", "-"}, p.parseMultiplicativeExpr)
}
func (p *Parser) parseMultiplicativeExpr() Expr {
	return p.parseBinaryLevel([]string{"*", "/", "%"}, p.parseExponentExpr)
}

func (p *Parser) parseExponentExpr() Expr {
	left := p.parseUnaryExpr()
	if p.curIsOp("**") {
		start := left.Span().Start
		p.nextToken()
		right := p.parseExponentExpr() // right-associative
		return &BinaryExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: "**", Left: left, Right: right}
	}
	return left
}

// parseBinaryLevel is a shared left-associative binary-operator
// climbing step parameterized by the operator set and the next
// tighter-binding production.
func (p *Parser) parseBinaryLevel(ops []string, next func() Expr) Expr {
	left := next()
	for {
		matched := ""
		if p.curToken.Type == TokenOperator {
			for _, op := range ops {
				if p.curToken.Literal == op {
					matched = op
					break
				}
			}
		}
		if matched == "" {
			return left
		}
		start := left.Span().Start
		p.nextToken()
		right := next()
		left = &BinaryExpr{SpanVal: MakeSpan(start, p.curToken.Pos), Operator: matched, Left: left, Right: right}
	}
}

var unaryOps = map[string]bool{"!": true, "-": true, "+": true, "~": true}

func (p *Parser) parseUnaryExpr() Expr {
	start := p.pos()
	if p.curToken.Type == TokenOperator && unaryOps[p.curToken.Literal] {
		op := p.curToken.Literal
		p.nextToken()
		arg := p.parseUnaryExpr()
		return &UnaryExpr{SpanVal: p.span(start), Operator: op, Argument: arg}
	}
	if p.curIsKeyword("typeof") || p.curIsKeyword("void") || p.curIsKeyword("delete") || p.curIsKeyword("await") {
		op := p.curToken.Literal
		p.nextToken()
		arg := p.parseUnaryExpr()
		return &UnaryExpr{SpanVal: p.span(start), Operator: op, Argument: arg}
	}
	if p.curIsOp("++") || p.curIsOp("--") {
		op := p.curToken.Literal
		p.nextToken()
		arg := p.parseUnaryExpr()
		return &UpdateExpr{SpanVal: p.span(start), Operator: op, Argument: arg, Prefix: true}
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parsePostfixExpr() Expr {
	start := p.pos()
	expr := p.parseLeftHandSideExpr()
	if p.curIsOp("++") || p.curIsOp("--") {
		op := p.curToken.Literal
		p.nextToken()
		return &UpdateExpr{SpanVal: p.span(start), Operator: op, Argument: expr, Prefix: false}
	}
	return expr
}

func (p *Parser) parseLeftHandSideExpr() Expr {
	var expr Expr
	if p.curIsKeyword("new") {
		expr = p.parseNewExpr()
	} else {
		expr = p.parsePrimaryExpr()
	}
	for {
		start := expr.Span().Start
		switch {
		case p.curIs(TokenDot):
			p.nextToken()
			name := p.curToken.Literal
			p.nextToken()
			expr = &MemberExpr{SpanVal: p.span(start), Object: expr, Property: &Identifier{Name: name}, Computed: false}
		case p.curIs(TokenOptionalDot):
			p.nextToken()
			name := p.curToken.Literal
			p.nextToken()
			expr = &MemberExpr{SpanVal: p.span(start), Object: expr, Property: &Identifier{Name: name}, Computed: false, Optional: true}
		case p.curIs(TokenLBracket):
			p.nextToken()
			idx := p.parseExpression()
			p.expect(TokenRBracket)
			expr = &MemberExpr{SpanVal: p.span(start), Object: expr, Property: idx, Computed: true}
		case p.curIs(TokenLParen):
			args := p.parseArgs()
			expr = &CallExpr{SpanVal: p.span(start), Callee: expr, Args: args}
		default:
			return expr
		}
	}
}

func (p *Parser) parseNewExpr() Expr {
	start := p.pos()
	p.expectKeyword("new")
	callee := p.parseLeftHandSideExprNoCall()
	var args []Expr
	if p.curIs(TokenLParen) {
		args = p.parseArgs()
	}
	return &NewExpr{SpanVal: p.span(start), Callee: callee, Args: args}
}

// parseLeftHandSideExprNoCall parses member access but stops before
// consuming a call, since `new Foo(args)` binds `(args)` to `new`.
func (p *Parser) parseLeftHandSideExprNoCall() Expr {
	var expr Expr
	if p.curIsKeyword("new") {
		expr = p.parseNewExpr()
	} else {
		expr = p.parsePrimaryExpr()
	}
	for {
		start := expr.Span().Start
		switch {
		case p.curIs(TokenDot):
			p.nextToken()
			name := p.curToken.Literal
			p.nextToken()
			expr = &MemberExpr{SpanVal: p.span(start), Object: expr, Property: &Identifier{Name: name}, Computed: false}
		case p.curIs(TokenLBracket):
			p.nextToken()
			idx := p.parseExpression()
			p.expect(TokenRBracket)
			expr = &MemberExpr{SpanVal: p.span(start), Object: expr, Property: idx, Computed: true}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() []Expr {
	p.expect(TokenLParen)
	var args []Expr
	for !p.curIs(TokenRParen) {
		if p.curIs(TokenEllipsis) {
			p.nextToken()
		}
		args = append(args, p.parseAssignmentExpr())
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimaryExpr() Expr {
	start := p.pos()
	tok := p.curToken
	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		return &NumberLiteral{SpanVal: MakeSpan(start, tok.End), Value: ParseNumberLiteral(tok.Literal)}
	case TokenBigInt:
		p.nextToken()
		return &BigIntLiteral{SpanVal: MakeSpan(start, tok.End), Value: int64(ParseNumberLiteral(tok.Literal))}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: MakeSpan(start, tok.End), Value: tok.Literal}
	case TokenTemplate:
		p.nextToken()
		return &TemplateExpr{SpanVal: MakeSpan(start, tok.End), Quasis: []string{tok.Literal}}
	case TokenTemplateHead:
		return p.parseTemplateRemainder(start, tok.Literal)
	case TokenIdent:
		p.nextToken()
		return &Identifier{SpanVal: MakeSpan(start, tok.End), Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		inner := p.parseExpression()
		p.expect(TokenRParen)
		return &SeqExpr{SpanVal: p.span(start), Inner: inner}
	case TokenLBracket:
		return p.parseArrayExpr()
	case TokenLBrace:
		return p.parseObjectExpr()
	case TokenKeyword:
		return p.parseKeywordPrimary(start, tok)
	default:
		p.fail("unexpected token %s %q", tok.Type, tok.Literal)
		return nil
	}
}

func (p *Parser) parseKeywordPrimary(start Position, tok Token) Expr {
	switch tok.Literal {
	case "true":
		p.nextToken()
		return &BoolLiteral{SpanVal: MakeSpan(start, tok.End), Value: true}
	case "false":
		p.nextToken()
		return &BoolLiteral{SpanVal: MakeSpan(start, tok.End), Value: false}
	case "null":
		p.nextToken()
		return &NullLiteral{SpanVal: MakeSpan(start, tok.End)}
	case "undefined":
		p.nextToken()
		return &UndefinedLiteral{SpanVal: MakeSpan(start, tok.End)}
	case "this":
		p.nextToken()
		return &ThisExpr{SpanVal: MakeSpan(start, tok.End)}
	case "super":
		p.nextToken()
		return &SuperExpr{SpanVal: MakeSpan(start, tok.End)}
	case "function":
		return p.parseFunctionExpr()
	case "async":
		return p.parseFunctionExpr()
	case "class":
		return p.parseClassExpr()
	case "new":
		return p.parseNewExpr()
	case "yield":
		p.nextToken()
		delegate := false
		if p.curIsOp("*") {
			delegate = true
			p.nextToken()
		}
		var arg Expr
		if !p.curIs(TokenSemicolon) && !p.curIs(TokenRParen) && !p.curIs(TokenRBrace) &&
			!p.curIs(TokenComma) && !p.curIs(TokenRBracket) && !p.curIs(TokenEOF) {
			arg = p.parseAssignmentExpr()
		}
		return &YieldExpr{SpanVal: p.span(start), Argument: arg, Delegate: delegate}
	case "import":
		p.nextToken()
		p.expect(TokenLParen)
		src := p.parseAssignmentExpr()
		p.expect(TokenRParen)
		return &ImportExpr{SpanVal: p.span(start), Source: src}
	default:
		p.fail("unexpected keyword %q in expression position", tok.Literal)
		return nil
	}
}

// parseTemplateRemainder consumes TEMPLATE_HEAD (already read) through
// zero or more TEMPLATE_MID+expr and a final TEMPLATE_TAIL.
func (p *Parser) parseTemplateRemainder(start Position, head string) *TemplateExpr {
	p.nextToken() // consume TEMPLATE_HEAD
	quasis := []string{head}
	var exprs []Expr
	for {
		exprs = append(exprs, p.parseExpression())
		if p.curIs(TokenTemplateMid) {
			quasis = append(quasis, p.curToken.Literal)
			p.nextToken()
			continue
		}
		tail := p.expect(TokenTemplateTail)
		quasis = append(quasis, tail.Literal)
		break
	}
	return &TemplateExpr{SpanVal: p.span(start), Quasis: quasis, Expressions: exprs}
}

func (p *Parser) parseArrayExpr() *ArrayExpr {
	start := p.pos()
	p.expect(TokenLBracket)
	var elems []Expr
	for !p.curIs(TokenRBracket) {
		if p.curIs(TokenComma) {
			elems = append(elems, nil) // hole
			p.nextToken()
			continue
		}
		if p.curIs(TokenEllipsis) {
			p.nextToken()
		}
		elems = append(elems, p.parseAssignmentExpr())
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBracket)
	return &ArrayExpr{SpanVal: p.span(start), Elements: elems}
}

func (p *Parser) parseObjectExpr() *ObjectExpr {
	start := p.pos()
	p.expect(TokenLBrace)
	var props []ObjectProp
	for !p.curIs(TokenRBrace) {
		props = append(props, p.parseObjectProp())
		if p.curIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBrace)
	return &ObjectExpr{SpanVal: p.span(start), Properties: props}
}

func (p *Parser) parseObjectProp() ObjectProp {
	start := p.pos()
	kind := "init"
	if (p.curIsKeyword("get") || p.curIsKeyword("set")) && !p.peekIs(TokenColon) && !p.peekIs(TokenComma) && !p.peekIs(TokenRBrace) && !p.peekIs(TokenLParen) {
		kind = p.curToken.Literal
		p.nextToken()
	}
	computed := false
	var keyExpr Expr
	key := ""
	switch {
	case p.curIs(TokenLBracket):
		computed = true
		p.nextToken()
		keyExpr = p.parseAssignmentExpr()
		p.expect(TokenRBracket)
	case p.curIs(TokenString):
		key = p.curToken.Literal
		p.nextToken()
	case p.curIs(TokenNumber):
		key = p.curToken.Literal
		p.nextToken()
	default:
		key = p.curToken.Literal
		p.nextToken()
	}

	if p.curIs(TokenLParen) {
		params, defaults := p.parseParamList()
		body := p.parseBlock()
		fn := &FunctionExpr{SpanVal: p.span(start), Params: params, Defaults: defaults, Body: body}
		k := kind
		if k == "init" {
			k = "method"
		}
		return ObjectProp{Key: key, Computed: computed, KeyExpr: keyExpr, Value: fn, Kind: k}
	}
	if p.curIs(TokenColon) {
		p.nextToken()
		value := p.parseAssignmentExpr()
		return ObjectProp{Key: key, Computed: computed, KeyExpr: keyExpr, Value: value, Kind: "init"}
	}
	// Shorthand { a }
	return ObjectProp{Key: key, Value: &Identifier{SpanVal: p.span(start), Name: key}, Kind: "init", Shorthand: true}
}

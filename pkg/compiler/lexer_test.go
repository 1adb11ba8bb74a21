package compiler

import "testing"

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := NewLexer(src)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenError {
			t.Fatalf("lex error: %v", l.Err())
		}
	}
	return toks
}

func TestLexerBasicTokens(t *testing.T) {
	toks := lexAll(t, "( ) [ ] { } ; : , . ...")
	want := []TokenType{
		TokenLParen, TokenRParen, TokenLBracket, TokenRBracket,
		TokenLBrace, TokenRBrace, TokenSemicolon, TokenColon,
		TokenComma, TokenDot, TokenEllipsis, TokenEOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d: expected %s, got %s", i, w, toks[i].Type)
		}
	}
}

func TestLexerAlwaysEndsWithEOF(t *testing.T) {
	toks := lexAll(t, "let x = 1;")
	if toks[len(toks)-1].Type != TokenEOF {
		t.Fatalf("expected stream to end with EOF, got %s", toks[len(toks)-1].Type)
	}
}

func TestLexerIdentVsKeyword(t *testing.T) {
	toks := lexAll(t, "let letter")
	if toks[0].Type != TokenKeyword {
		t.Errorf("expected %q to lex as KEYWORD, got %s", "let", toks[0].Type)
	}
	if toks[1].Type != TokenIdent {
		t.Errorf("expected %q to lex as IDENT, got %s", "letter", toks[1].Type)
	}
}

func TestLexerNumberForms(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenNumber},
		{"3.14", TokenNumber},
		{"1e10", TokenNumber},
		{"0x2a", TokenNumber},
		{"0b101", TokenNumber},
		{"0o17", TokenNumber},
		{"42n", TokenBigInt},
	}
	for _, tc := range tests {
		toks := lexAll(t, tc.input)
		if toks[0].Type != tc.typ {
			t.Errorf("%q: expected %s, got %s", tc.input, tc.typ, toks[0].Type)
		}
	}
}

func TestLexerStringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\nb\tc\"d"`)
	if toks[0].Type != TokenString {
		t.Fatalf("expected STRING, got %s", toks[0].Type)
	}
	if toks[0].Literal != "a\nb\tc\"d" {
		t.Fatalf("unexpected escape decoding: %q", toks[0].Literal)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	l := NewLexer(`"unterminated`)
	var last Token
	for {
		tok := l.NextToken()
		last = tok
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	if last.Type != TokenError {
		t.Fatalf("expected a lex error for an unterminated string, got %s", last.Type)
	}
	if l.Err() == nil {
		t.Fatal("expected Err() to report the unterminated string")
	}
}

func TestLexerTemplateNoInterpolation(t *testing.T) {
	toks := lexAll(t, "`hello`")
	if toks[0].Type != TokenTemplate {
		t.Fatalf("expected TEMPLATE, got %s", toks[0].Type)
	}
	if toks[0].Literal != "hello" {
		t.Fatalf("unexpected quasi text: %q", toks[0].Literal)
	}
}

func TestLexerTemplateWithInterpolation(t *testing.T) {
	toks := lexAll(t, "`a${x}b`")
	want := []TokenType{TokenTemplateHead, TokenIdent, TokenTemplateTail, TokenEOF}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
	for i, w := range want {
		if toks[i].Type != w {
			t.Errorf("token %d: expected %s, got %s", i, w, toks[i].Type)
		}
	}
}

func TestLexerNestedBracesInInterpolation(t *testing.T) {
	// The '{' and '}' inside the interpolation's object literal must
	// not be mistaken for the closing brace of the template.
	toks := lexAll(t, "`${ {a:1}.a }`")
	if toks[0].Type != TokenTemplateHead {
		t.Fatalf("expected TEMPLATE_HEAD, got %s", toks[0].Type)
	}
	foundTail := false
	for _, tok := range toks {
		if tok.Type == TokenTemplateTail {
			foundTail = true
		}
	}
	if !foundTail {
		t.Fatal("expected a TEMPLATE_TAIL closing the template after the nested braces")
	}
}

func TestLexerMultiCharOperatorsLongestFirst(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"===", "==="},
		{"==", "=="},
		{"=", "="},
		{">>>=", ">>>="},
		{">>>", ">>>"},
		{">>", ">>"},
		{"??=", "??="},
		{"??", "??"},
		{"?.", "?."},
	}
	for _, tc := range tests {
		if tc.want == "?." {
			toks := lexAll(t, tc.input)
			if toks[0].Type != TokenOptionalDot {
				t.Errorf("%q: expected optional-dot token, got %s", tc.input, toks[0].Type)
			}
			continue
		}
		toks := lexAll(t, tc.input)
		if toks[0].Literal != tc.want {
			t.Errorf("%q: expected operator %q, got %q", tc.input, tc.want, toks[0].Literal)
		}
	}
}

func TestLexerUnknownCharacter(t *testing.T) {
	l := NewLexer("@")
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("expected ERROR for unknown character, got %s", tok.Type)
	}
	if l.Err() == nil {
		t.Fatal("expected Err() to be set")
	}
}

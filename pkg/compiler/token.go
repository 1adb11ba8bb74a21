package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the textual front end's lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber       // 42, 3.14, 0x2a, 0b101, 0o17, 1e10
	TokenBigInt       // 42n
	TokenString       // "hello", 'hello'
	TokenTemplate     // `no interpolation`
	TokenTemplateHead // `head${
	TokenTemplateMid  // }mid${
	TokenTemplateTail // }tail`

	TokenIdent   // foo, Bar
	TokenKeyword // if, while, class, ...

	// Delimiters and operators
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenSemicolon
	TokenColon
	TokenComma
	TokenDot
	TokenOptionalDot // ?.
	TokenArrow       // =>
	TokenEllipsis    // ...
	TokenOperator    // +, -, &&, ===, ??=, ...
)

var tokenNames = map[TokenType]string{
	TokenEOF:           "EOF",
	TokenError:         "ERROR",
	TokenNumber:        "NUMBER",
	TokenBigInt:        "BIGINT",
	TokenString:        "STRING",
	TokenTemplate:      "TEMPLATE",
	TokenTemplateHead:  "TEMPLATE_HEAD",
	TokenTemplateMid:   "TEMPLATE_MID",
	TokenTemplateTail:  "TEMPLATE_TAIL",
	TokenIdent:         "IDENT",
	TokenKeyword:       "KEYWORD",
	TokenLParen:        "(",
	TokenRParen:        ")",
	TokenLBracket:      "[",
	TokenRBracket:      "]",
	TokenLBrace:        "{",
	TokenRBrace:        "}",
	TokenSemicolon:     ";",
	TokenColon:         ":",
	TokenComma:         ",",
	TokenDot:           ".",
	TokenOptionalDot:   "?.",
	TokenArrow:         "=>",
	TokenEllipsis:      "...",
	TokenOperator:      "OPERATOR",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (for OPERATOR/KEYWORD, the surface spelling)
	Pos     Position // start position
	End     Position // end position (exclusive)
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// reservedWords is the fixed keyword set from the glossary. Anything
// matching an identifier pattern that is not in this set lexes as
// TokenIdent.
var reservedWords = map[string]bool{
	"var": true, "let": true, "const": true, "function": true, "return": true,
	"if": true, "else": true, "while": true, "for": true, "in": true, "of": true,
	"break": true, "continue": true, "throw": true, "try": true, "catch": true,
	"finally": true, "switch": true, "case": true, "default": true,
	"class": true, "extends": true, "super": true, "this": true, "new": true,
	"static": true, "get": true, "set": true, "async": true, "await": true,
	"yield": true, "import": true, "export": true, "from": true, "as": true,
	"true": true, "false": true, "null": true, "undefined": true,
	"typeof": true, "void": true, "delete": true, "instanceof": true,
}

// isReserved reports whether text is a reserved keyword.
func isReserved(text string) bool {
	return reservedWords[text]
}

// isOperatorChar reports whether r can participate in a multi-char
// operator token.
func isOperatorChar(r rune) bool {
	switch r {
	case '+', '-', '*', '/', '%', '<', '>', '=', '!', '&', '|', '^', '~', '?':
		return true
	}
	return false
}

package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextToken_BasicTokens(t *testing.T) {
	input := `(){};,.-+/* `

	tests := []struct {
		expectedType   TokenType
		expectedLexeme string
	}{
		{TokenLeftParen, "("},
		{TokenRightParen, ")"},
		{TokenLeftBrace, "{"},
		{TokenRightBrace, "}"},
		{TokenSemicolon, ";"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenMinus, "-"},
		{TokenPlus, "+"},
		{TokenSlash, "/"},
		{TokenStar, "*"},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		assert.Equalf(t, tt.expectedType, tok.Type, "tests[%d]: type", i)
		assert.Equalf(t, tt.expectedLexeme, tok.Lexeme, "tests[%d]: lexeme", i)
	}
}

func TestNextToken_TwoCharOperators(t *testing.T) {
	input := `! != = == > >= < <=`

	tests := []TokenType{
		TokenBang, TokenBangEqual, TokenEqual, TokenEqualEqual,
		TokenGreater, TokenGreaterEqual, TokenLess, TokenLessEqual, TokenEOF,
	}

	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		assert.Equalf(t, want, tok.Type, "tests[%d]", i)
	}
}

func TestNextToken_Keywords(t *testing.T) {
	input := "and class else false for fun if nil or print return super this true var while notakeyword"

	tests := []TokenType{
		TokenAnd, TokenClass, TokenElse, TokenFalse, TokenFor, TokenFun,
		TokenIf, TokenNil, TokenOr, TokenPrint, TokenReturn, TokenSuper,
		TokenThis, TokenTrue, TokenVar, TokenWhile, TokenIdentifier, TokenEOF,
	}

	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		require.Equalf(t, want, tok.Type, "tests[%d]", i)
	}
}

func TestNextToken_NumbersAndStrings(t *testing.T) {
	input := `123 3.14 "hello world"`

	l := New(input)

	tok := l.NextToken()
	require.Equal(t, TokenNumber, tok.Type)
	assert.Equal(t, "123", tok.Lexeme)

	tok = l.NextToken()
	require.Equal(t, TokenNumber, tok.Type)
	assert.Equal(t, "3.14", tok.Lexeme)

	tok = l.NextToken()
	require.Equal(t, TokenString, tok.Type)
	assert.Equal(t, `"hello world"`, tok.Lexeme)
}

func TestNextToken_UnterminatedString(t *testing.T) {
	l := New(`"oops`)
	tok := l.NextToken()
	require.Equal(t, TokenError, tok.Type)
	assert.Contains(t, tok.Lexeme, "Unterminated string")
}

func TestNextToken_UnexpectedCharacter(t *testing.T) {
	l := New(`@`)
	tok := l.NextToken()
	require.Equal(t, TokenError, tok.Type)
	assert.Contains(t, tok.Lexeme, "Unexpected character")
}

func TestNextToken_LineCountingAndComments(t *testing.T) {
	input := "var a = 1; // comment\nvar b = 2;"
	l := New(input)

	var last Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			last = tok
			break
		}
		if tok.Lexeme == "b" {
			assert.Equal(t, 2, tok.Line)
		}
	}
	assert.Equal(t, 2, last.Line)
}

func TestNextToken_IdentifierWithDigitsAndUnderscore(t *testing.T) {
	l := New("_foo_bar123")
	tok := l.NextToken()
	require.Equal(t, TokenIdentifier, tok.Type)
	assert.Equal(t, "_foo_bar123", tok.Lexeme)
}

package pixelexpr

import (
	"fmt"
	"strconv"
	"strings"
)

type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: TokEOF}, nil
	}

	c := l.src[l.pos]
	switch {
	case c >= '0' && c <= '9' || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	}

	two := ""
	if l.pos+1 < len(l.src) {
		two = string(l.src[l.pos : l.pos+2])
	}
	switch two {
	case "==":
		l.pos += 2
		return token{kind: TokEq, text: "=="}, nil
	case "!=":
		l.pos += 2
		return token{kind: TokNe, text: "!="}, nil
	case "<=":
		l.pos += 2
		return token{kind: TokLe, text: "<="}, nil
	case ">=":
		l.pos += 2
		return token{kind: TokGe, text: ">="}, nil
	case "&&":
		l.pos += 2
		return token{kind: TokAnd, text: "&&"}, nil
	case "||":
		l.pos += 2
		return token{kind: TokOr, text: "||"}, nil
	}

	l.pos++
	switch c {
	case '+':
		return token{kind: TokPlus, text: "+"}, nil
	case '-':
		return token{kind: TokMinus, text: "-"}, nil
	case '*':
		return token{kind: TokStar, text: "*"}, nil
	case '/':
		return token{kind: TokSlash, text: "/"}, nil
	case '(':
		return token{kind: TokLParen, text: "("}, nil
	case ')':
		return token{kind: TokRParen, text: ")"}, nil
	case ',':
		return token{kind: TokComma, text: ","}, nil
	case '<':
		return token{kind: TokLt, text: "<"}, nil
	case '>':
		return token{kind: TokGt, text: ">"}, nil
	case '!':
		return token{kind: TokNot, text: "!"}, nil
	default:
		return token{}, fmt.Errorf("pixelexpr: unexpected character %q", c)
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	// Allow exponent suffix (e.g. 1e-3).
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := string(l.src[start:l.pos])
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("pixelexpr: invalid number %q", text)
	}
	return token{kind: TokNumber, text: text, num: v}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	text := strings.ToLower(string(l.src[start:l.pos]))
	return token{kind: TokIdent, text: text}, nil
}

func isDigit(c rune) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c rune) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c rune) bool  { return isIdentStart(c) || isDigit(c) }

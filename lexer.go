package excellent

import (
	"strings"
	"unicode"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenDecimal
	tokenString
	tokenTrue
	tokenFalse
	tokenName
	tokenLParen
	tokenRParen
	tokenComma
	tokenPlus
	tokenMinus
	tokenTimes
	tokenDivide
	tokenExponent
	tokenAmpersand
	tokenEquals
	tokenNotEquals
	tokenLessThan
	tokenLessThanOrEqual
	tokenGreaterThan
	tokenGreaterThanOrEqual
)

// token is a lexed piece of an expression. Text is the raw text as it
// appeared in the input so that partially resolved expressions can be
// reassembled.
type token struct {
	typ  tokenType
	text string
	pos  int
}

// tokenize lexes an entire expression, returning an EvaluationError if it
// contains a character which can't start a token.
func tokenize(input string) ([]token, error) {
	runes := []rune(input)
	tokens := make([]token, 0, 16)
	pos := 0

	for pos < len(runes) {
		ch := runes[pos]

		if unicode.IsSpace(ch) {
			pos++
			continue
		}

		start := pos
		switch {
		case ch >= '0' && ch <= '9':
			pos = scanDecimal(runes, pos)
			tokens = append(tokens, token{tokenDecimal, string(runes[start:pos]), start})

		case ch == '"':
			end, ok := scanString(runes, pos)
			if !ok {
				return nil, evalErrorf("Expression error at: %s", string(runes[start:]))
			}
			pos = end
			tokens = append(tokens, token{tokenString, string(runes[start:pos]), start})

		case isNameStart(ch):
			for pos < len(runes) && isNameChar(runes[pos]) {
				pos++
			}
			text := string(runes[start:pos])
			switch strings.ToLower(text) {
			case "true":
				tokens = append(tokens, token{tokenTrue, text, start})
			case "false":
				tokens = append(tokens, token{tokenFalse, text, start})
			default:
				tokens = append(tokens, token{tokenName, text, start})
			}

		default:
			typ, width, ok := scanOperator(runes, pos)
			if !ok {
				return nil, evalErrorf("Expression error at: %s", string(runes[start:]))
			}
			pos += width
			tokens = append(tokens, token{typ, string(runes[start:pos]), start})
		}
	}
	return tokens, nil
}

func scanDecimal(runes []rune, pos int) int {
	for pos < len(runes) && runes[pos] >= '0' && runes[pos] <= '9' {
		pos++
	}
	if pos+1 < len(runes) && runes[pos] == '.' && runes[pos+1] >= '0' && runes[pos+1] <= '9' {
		pos++
		for pos < len(runes) && runes[pos] >= '0' && runes[pos] <= '9' {
			pos++
		}
	}
	return pos
}

// scanString scans a double-quoted string literal in which a double quote is
// escaped by doubling it. Returns the position just past the closing quote.
func scanString(runes []rune, pos int) (int, bool) {
	pos++ // opening quote
	for pos < len(runes) {
		if runes[pos] == '"' {
			if pos+1 < len(runes) && runes[pos+1] == '"' {
				pos += 2 // escaped quote
				continue
			}
			return pos + 1, true
		}
		pos++
	}
	return pos, false // unterminated
}

func scanOperator(runes []rune, pos int) (tokenType, int, bool) {
	switch runes[pos] {
	case '(':
		return tokenLParen, 1, true
	case ')':
		return tokenRParen, 1, true
	case ',':
		return tokenComma, 1, true
	case '+':
		return tokenPlus, 1, true
	case '-':
		return tokenMinus, 1, true
	case '*':
		return tokenTimes, 1, true
	case '/':
		return tokenDivide, 1, true
	case '^':
		return tokenExponent, 1, true
	case '&':
		return tokenAmpersand, 1, true
	case '=':
		return tokenEquals, 1, true
	case '<':
		if pos+1 < len(runes) {
			switch runes[pos+1] {
			case '>':
				return tokenNotEquals, 2, true
			case '=':
				return tokenLessThanOrEqual, 2, true
			}
		}
		return tokenLessThan, 1, true
	case '>':
		if pos+1 < len(runes) && runes[pos+1] == '=' {
			return tokenGreaterThanOrEqual, 2, true
		}
		return tokenGreaterThan, 1, true
	}
	return tokenEOF, 0, false
}

func isNameStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isNameChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

// unquoteString converts a string literal's raw text to its value.
func unquoteString(raw string) string {
	unquoted := strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`)
	return strings.ReplaceAll(unquoted, `""`, `"`)
}

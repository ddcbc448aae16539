package excellent

import (
	"github.com/shopspring/decimal"
)

// parser builds an expression tree from a token stream by recursive descent.
// Binding, loosest to tightest: concatenation, equality, comparison,
// addition/subtraction, multiplication/division, exponentiation, unary
// minus, primary.
type parser struct {
	tokens []token
	pos    int
}

// parseExpression parses a complete expression string into a tree.
func parseExpression(input string) (expression, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, evalErrorf("Expression error at: %s", p.tokens[p.pos].text)
	}
	return expr, nil
}

func (p *parser) current() (token, bool) {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos], true
	}
	return token{}, false
}

func (p *parser) accept(typ tokenType) (token, bool) {
	if tok, ok := p.current(); ok && tok.typ == typ {
		p.pos++
		return tok, true
	}
	return token{}, false
}

func (p *parser) expect(typ tokenType) (token, error) {
	if tok, ok := p.accept(typ); ok {
		return tok, nil
	}
	if tok, ok := p.current(); ok {
		return token{}, evalErrorf("Expression error at: %s", tok.text)
	}
	return token{}, evalErrorf("Expression is invalid")
}

func (p *parser) parseConcatenation() (expression, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokenAmpersand); !ok {
			return left, nil
		}
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &concatenationOp{left: left, right: right}
	}
}

func (p *parser) parseEquality() (expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.current()
		if !ok || (tok.typ != tokenEquals && tok.typ != tokenNotEquals) {
			return left, nil
		}
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &equalityOp{left: left, right: right, negated: tok.typ == tokenNotEquals}
	}
}

func (p *parser) parseComparison() (expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.current()
		if !ok || !isComparisonOperator(tok.typ) {
			return left, nil
		}
		p.pos++
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &comparisonOp{left: left, right: right, operator: tok.typ}
	}
}

func (p *parser) parseAdditive() (expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.current()
		if !ok || (tok.typ != tokenPlus && tok.typ != tokenMinus) {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &additionOp{left: left, right: right, subtract: tok.typ == tokenMinus}
	}
}

func (p *parser) parseMultiplicative() (expression, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.current()
		if !ok || (tok.typ != tokenTimes && tok.typ != tokenDivide) {
			return left, nil
		}
		p.pos++
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = &multiplicationOp{left: left, right: right, divide: tok.typ == tokenDivide}
	}
}

func (p *parser) parseExponent() (expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(tokenExponent); !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &exponentOp{left: left, right: right}
	}
}

func (p *parser) parseUnary() (expression, error) {
	if _, ok := p.accept(tokenMinus); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negation{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expression, error) {
	tok, ok := p.current()
	if !ok {
		return nil, evalErrorf("Expression is invalid")
	}

	switch tok.typ {
	case tokenDecimal:
		p.pos++
		value, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, evalErrorf("Expression error at: %s", tok.text)
		}
		return &decimalLiteral{value: value}, nil

	case tokenString:
		p.pos++
		return &stringLiteral{value: unquoteString(tok.text)}, nil

	case tokenTrue:
		p.pos++
		return &boolLiteral{value: true}, nil

	case tokenFalse:
		p.pos++
		return &boolLiteral{value: false}, nil

	case tokenName:
		p.pos++
		if _, ok := p.accept(tokenLParen); ok {
			return p.parseFunctionArgs(tok.text)
		}
		return &contextRef{path: tok.text}, nil

	case tokenLParen:
		p.pos++
		expr, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	}

	return nil, evalErrorf("Expression error at: %s", tok.text)
}

func (p *parser) parseFunctionArgs(name string) (expression, error) {
	call := &functionCall{name: name}

	if _, ok := p.accept(tokenRParen); ok {
		return call, nil
	}
	for {
		arg, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)

		if _, ok := p.accept(tokenComma); ok {
			continue
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return call, nil
	}
}

func isComparisonOperator(typ tokenType) bool {
	switch typ {
	case tokenLessThan, tokenLessThanOrEqual, tokenGreaterThan, tokenGreaterThanOrEqual:
		return true
	}
	return false
}

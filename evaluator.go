package excellent

import (
	"net/url"
	"strings"
)

// EvaluationStrategy controls how expressions with missing context
// references are handled.
type EvaluationStrategy int

const (
	// ResolveComplete evaluates all expressions completely.
	ResolveComplete EvaluationStrategy = iota

	// ResolveAvailable substitutes the context references which resolve and
	// re-renders the expression so it can be evaluated later when the rest
	// are available.
	ResolveAvailable
)

// EvaluatedTemplate is the result of evaluating a template: the output text
// and the errors of any expressions which could not be evaluated.
type EvaluatedTemplate struct {
	Output string
	Errors []string
}

// HasErrors returns whether any expression in the template failed to
// evaluate.
func (t *EvaluatedTemplate) HasErrors() bool {
	return len(t.Errors) > 0
}

// Evaluator evaluates templates containing embedded expressions, e.g.
// "Hello @contact.name you have @(contact.reports * 2) reports".
type Evaluator struct {
	expressionPrefix rune
	allowedTopLevels map[string]bool
	functions        *FunctionManager
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExpressionPrefix sets the character that marks the start of an
// expression. The default is '@'.
func WithExpressionPrefix(prefix rune) Option {
	return func(e *Evaluator) { e.expressionPrefix = prefix }
}

// WithAllowedTopLevels sets the top-level context names which may be
// referenced outside of parentheses, e.g. "contact" to allow @contact.name.
func WithAllowedTopLevels(names ...string) Option {
	return func(e *Evaluator) {
		e.allowedTopLevels = make(map[string]bool, len(names))
		for _, name := range names {
			e.allowedTopLevels[strings.ToLower(name)] = true
		}
	}
}

// WithFunctions sets the function manager used to invoke functions.
func WithFunctions(functions *FunctionManager) Option {
	return func(e *Evaluator) { e.functions = functions }
}

// NewEvaluator creates a new template evaluator. Unless configured
// otherwise, it uses the '@' prefix, allows no top-level references outside
// parentheses and carries the default function library.
func NewEvaluator(options ...Option) *Evaluator {
	evaluator := &Evaluator{
		expressionPrefix: '@',
		allowedTopLevels: map[string]bool{},
		functions:        DefaultFunctions(),
	}
	for _, option := range options {
		option(evaluator)
	}
	return evaluator
}

// scanner states. Templates support two forms of embedded expression:
//  1. single variable, e.g. @contact, @contact.name (delimited by character
//     type or end of input)
//  2. contained expression, e.g. @(SUM(1, 2) + 2) (delimited by balanced
//     parentheses)
type scanState int

const (
	stateBody          scanState = iota // not in an expression
	statePrefix                         // prefix that denotes the start of an expression
	stateIdentifier                     // the identifier part, e.g. 'SUM' in '@SUM(1, 2)' or 'contact.age' in '@contact.age'
	stateBalanced                       // the balanced parentheses delimited part, e.g. '(1 + 2)' in '@(1 + 2)'
	stateStringLiteral                  // a string literal which could contain )
	stateEscapedPrefix                  // a prefix preceded by another prefix
)

// isWordChar determines whether the given character is a word character,
// i.e. \w in a regex.
func isWordChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}

// EvaluateTemplate evaluates a template string against the given context,
// collecting the errors of expressions which couldn't be evaluated rather
// than failing the whole template.
func (e *Evaluator) EvaluateTemplate(template string, context *EvaluationContext, urlEncode bool, strategy EvaluationStrategy) *EvaluatedTemplate {
	input := []rune(template)
	var output strings.Builder
	var errors []string

	state := stateBody
	var currentExpression []rune
	currentExpressionTerminated := false
	parenthesesLevel := 0

	for pos := 0; pos < len(input); pos++ {
		ch := input[pos]

		// in order to determine if the b in a.b terminates an identifier, we
		// have to peek two characters ahead as it could be a.b. (b
		// terminates) or a.b.c (b doesn't terminate)
		var nextCh, nextNextCh rune
		if pos < len(input)-1 {
			nextCh = input[pos+1]
		}
		if pos < len(input)-2 {
			nextNextCh = input[pos+2]
		}

		switch state {
		case stateBody:
			if ch == e.expressionPrefix && (isWordChar(nextCh) || nextCh == '(') {
				state = statePrefix
				currentExpression = []rune{ch}
			} else if ch == e.expressionPrefix && nextCh == e.expressionPrefix {
				state = stateEscapedPrefix
			} else {
				output.WriteRune(ch)
			}

		case statePrefix:
			if isWordChar(ch) {
				state = stateIdentifier // we're parsing an expression like @XXX
			} else if ch == '(' {
				// we're parsing an expression like @(1 + 2)
				state = stateBalanced
				parenthesesLevel++
			}
			currentExpression = append(currentExpression, ch)

		case stateIdentifier:
			currentExpression = append(currentExpression, ch)

		case stateBalanced:
			if ch == '(' {
				parenthesesLevel++
			} else if ch == ')' {
				parenthesesLevel--
			} else if ch == '"' {
				state = stateStringLiteral
			}
			currentExpression = append(currentExpression, ch)

			// expression terminates if parentheses balance
			if parenthesesLevel == 0 {
				currentExpressionTerminated = true
			}

		case stateStringLiteral:
			if ch == '"' {
				state = stateBalanced
			}
			currentExpression = append(currentExpression, ch)

		case stateEscapedPrefix:
			state = stateBody
			output.WriteRune(ch)
		}

		// an identifier can terminate an expression in 3 ways:
		//  1. next char is null (i.e. end of the input)
		//  2. next char is not a word character or period
		//  3. next char is a period, but it's not followed by a word character
		if state == stateIdentifier {
			if nextCh == 0 || (!isWordChar(nextCh) && nextCh != '.') || (nextCh == '.' && !isWordChar(nextNextCh)) {
				currentExpressionTerminated = true
			}
		}

		if currentExpressionTerminated {
			output.WriteString(e.resolveExpressionBlock(string(currentExpression), context, urlEncode, strategy, &errors))
			currentExpression = nil
			currentExpressionTerminated = false
			state = stateBody
		}
	}

	// if last expression didn't terminate - add to output as is
	if !currentExpressionTerminated && len(currentExpression) > 0 {
		output.WriteString(string(currentExpression))
	}

	return &EvaluatedTemplate{Output: output.String(), Errors: errors}
}

// resolveExpressionBlock resolves an expression block found in the template,
// e.g. @(...). If an evaluation error occurs, the expression is returned
// as-is.
func (e *Evaluator) resolveExpressionBlock(expression string, context *EvaluationContext, urlEncode bool, strategy EvaluationStrategy, errors *[]string) string {
	body := expression[1:] // strip prefix

	// if the expression doesn't start with ( then check it's an allowed
	// top-level context reference
	if !strings.HasPrefix(body, "(") {
		topLevel := strings.ToLower(strings.SplitN(body, ".", 2)[0])
		if !e.allowedTopLevels[topLevel] {
			return expression
		}
	}

	evaluated, err := e.EvaluateExpression(body, context, strategy)
	if err != nil {
		*errors = append(*errors, err.Error())
		return expression // if we can't evaluate the expression, include it as-is in the output
	}

	rendered, err := ToString(evaluated, context)
	if err != nil {
		*errors = append(*errors, err.Error())
		return expression
	}

	if urlEncode {
		return urlQuote(rendered)
	}
	return rendered
}

// EvaluateExpression evaluates a single expression, e.g.
// "contact.reports * 2".
func (e *Evaluator) EvaluateExpression(expression string, context *EvaluationContext, strategy EvaluationStrategy) (any, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	tree, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, evalErrorf("Expression error at: %s", p.tokens[p.pos].text)
	}

	if strategy == ResolveAvailable {
		if resolved, ok := e.resolveAvailable(tokens, context); ok {
			return resolved, nil
		}
	}

	return tree.evaluate(context, e.functions)
}

// resolveAvailable checks the token stream for context references, and if
// any are missing, substitutes the available ones and returns the partially
// evaluated expression. Returns false if the expression can be fully
// evaluated.
func (e *Evaluator) resolveAvailable(tokens []token, context *EvaluationContext) (string, bool) {
	hasMissing := false
	components := make([]string, 0, len(tokens))

	for t := 0; t < len(tokens); t++ {
		tok := tokens[t]

		// a name token not followed by ( is a context reference
		isRef := tok.typ == tokenName && (t+1 >= len(tokens) || tokens[t+1].typ != tokenLParen)
		if isRef {
			value, err := context.Resolve(tok.text)
			if err == nil {
				if repr, err := ToRepr(value, context); err == nil {
					components = append(components, repr)
					continue
				}
			}
			hasMissing = true
		}
		components = append(components, tok.text)
	}

	// if there are no missing context references, evaluation proceeds as
	// normal
	if !hasMissing {
		return "", false
	}

	// re-combine the tokens and context values back into an expression
	return string(e.expressionPrefix) + strings.Join(components, ""), true
}

// urlQuote percent-encodes a substituted value for use in a URL.
func urlQuote(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

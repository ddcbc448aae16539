package excellent

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/excellent-lang/excellent/pkg/dates"
)

func newEvalContext(t *testing.T) *EvaluationContext {
	t.Helper()
	tz, err := time.LoadLocation("Africa/Kigali")
	require.NoError(t, err)

	variables := map[string]any{
		"foo": 5,
		"bar": "x",
		"contact": map[string]any{
			"*":    "Bob",
			"name": "Joe",
			"age":  32,
		},
	}
	return NewEvaluationContext(variables, tz, dates.DayFirst)
}

// assertValue compares values the way expressions do, i.e. 2 and 2.00 are the
// same decimal.
func assertValue(t *testing.T, expected, actual any, expression string) {
	t.Helper()
	if expDec, ok := expected.(decimal.Decimal); ok {
		actDec, ok := actual.(decimal.Decimal)
		if assert.True(t, ok, "expected decimal for %s but got %T", expression, actual) {
			assert.True(t, expDec.Equal(actDec), "mismatch for %s: expected %s, got %s", expression, expDec, actDec)
		}
		return
	}
	assert.Equal(t, expected, actual, "mismatch for %s", expression)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEvaluateExpression(t *testing.T) {
	context := newEvalContext(t)
	evaluator := NewEvaluator()

	tests := []struct {
		expression string
		expected   any
	}{
		// literals
		{`true`, true},
		{`FALSE`, false},
		{`10`, dec("10")},
		{`1234567890`, dec("1234567890")},
		{`""`, ""},
		{`"Hello"`, "Hello"},
		{`"He said ""hi"""`, `He said "hi"`},

		// arithmetic
		{`-10`, dec("-10")},
		{`1 + 2`, dec("3")},
		{`1.3 + 2.2`, dec("3.5")},
		{`1.3 - 2.2`, dec("-0.9")},
		{`4 * 2`, dec("8")},
		{`4 / 2`, dec("2")},
		{`4 ^ 2`, dec("16")},
		{`4 ^ 0.5`, dec("2")},
		{`4 ^ -1`, dec("0.25")},

		// concatenation
		{`"2" & 3 & 4`, "234"},

		// precedence and associativity
		{`2 + 3 / 4 - 5 * 6`, dec("-27.25")},
		{`2 & 3 + 4 & 5`, "275"},
		{`2 + 3 ^ 2`, dec("11")},
		{`2 ^ 3 ^ 4`, dec("4096")},
		{`(2 + 3) * 4`, dec("20")},

		// comparisons
		{`2 = 2.0`, true},
		{`"a" = "A"`, true},
		{`2 <> 3`, true},
		{`2 > 3`, false},
		{`3 >= 3`, true},
		{`"a" < "b"`, true},
		{`"A" < "b"`, true},

		// context references
		{`foo`, 5},
		{`FOO`, 5},
		{`foo + 1`, dec("6")},
		{`contact.name`, "Joe"},
		{`Contact.Name`, "Joe"},
		{`contact`, "Bob"},

		// function calls
		{`LEN("abc")`, 3},
		{`SUM(1, 2, 3)`, dec("6")},
		{`FIXED(1234.5678)`, "1,234.57"},
		{`IF(foo > 4, "big", "small")`, "big"},
	}
	for _, tc := range tests {
		actual, err := evaluator.EvaluateExpression(tc.expression, context, ResolveComplete)
		require.NoError(t, err, "unexpected error for %s", tc.expression)
		assertValue(t, tc.expected, actual, tc.expression)
	}

	// division keeps a fixed scale
	actual, err := evaluator.EvaluateExpression(`4 / 2`, context, ResolveComplete)
	require.NoError(t, err)
	assert.Equal(t, "2.0000000000", actual.(decimal.Decimal).String())
}

func TestEvaluateExpressionErrors(t *testing.T) {
	context := newEvalContext(t)
	evaluator := NewEvaluator()

	tests := []struct {
		expression string
		message    string
	}{
		{`2 +`, "Expression is invalid"},
		{`(2 + 3`, "Expression is invalid"},
		{`2 + 3 )`, "Expression error at: )"},
		{`"abc`, `Expression error at: "abc`},
		{`XXX(1)`, "Undefined function: XXX"},
		{`ABS()`, "Too few arguments provided for function ABS"},
		{`ABS(1, 2)`, "Too many arguments provided for function ABS"},
		{`ABS("x")`, `Error calling function ABS with arguments "x"`},
		{`doesnt.exist`, "No item called doesnt.exist in context"},
		{`2 / 0`, "Division by zero"},
		{`TRUE > FALSE`, "Can't compare 'TRUE' and 'FALSE'"},
	}
	for _, tc := range tests {
		_, err := evaluator.EvaluateExpression(tc.expression, context, ResolveComplete)
		assert.EqualError(t, err, tc.message, "mismatch for %s", tc.expression)
	}
}

func TestEvaluateTemplate(t *testing.T) {
	context := newEvalContext(t)
	evaluator := NewEvaluator(WithAllowedTopLevels("contact", "foo"))

	tests := []struct {
		template string
		expected string
		errors   []string
	}{
		{"Answer is @(2 + 3)", "Answer is 5", nil},
		{"Answer is @(2 + 3", "Answer is @(2 + 3", nil}, // unterminated expression
		{"Hi @contact.name", "Hi Joe", nil},
		{"Hi @contact.name.", "Hi Joe.", nil},
		{"@contact is @contact.age", "Bob is 32", nil},
		{"@foo @FOO", "5 5", nil},
		{"@bar is not allowed", "@bar is not allowed", nil},
		{"@@foo is escaped", "@foo is escaped", nil},
		{"My email is foo@bar.com", "My email is foo@bar.com", nil},
		{"Concat is @(\"(\" & \")\")", "Concat is ()", nil},
		{"Two @(1 + 1) and four @(2 * 2)", "Two 2 and four 4", nil},
		{"@('x')", "@('x')", []string{"Expression error at: 'x')"}},
		{"@(doesnt.exist)", "@(doesnt.exist)", []string{"No item called doesnt.exist in context"}},
	}
	for _, tc := range tests {
		result := evaluator.EvaluateTemplate(tc.template, context, false, ResolveComplete)
		assert.Equal(t, tc.expected, result.Output, "output mismatch for %s", tc.template)
		assert.Equal(t, tc.errors, result.Errors, "errors mismatch for %s", tc.template)
		assert.Equal(t, len(tc.errors) > 0, result.HasErrors())
	}
}

func TestEvaluateTemplateWithURLEncoding(t *testing.T) {
	context := newEvalContext(t)
	evaluator := NewEvaluator()

	result := evaluator.EvaluateTemplate(`http://x.com?q=@("a b & c")`, context, true, ResolveComplete)
	assert.Equal(t, "http://x.com?q=a%20b%20%26%20c", result.Output)
	assert.False(t, result.HasErrors())
}

func TestEvaluateTemplateWithResolveAvailable(t *testing.T) {
	context := newEvalContext(t)
	evaluator := NewEvaluator()

	tests := []struct {
		template string
		expected string
	}{
		{"@(1 + 2)", "3"},
		{"Hi @contact.name", "Hi @contact.name"}, // not an allowed top level
		{"@(foo + step.value + bar)", `@(5+step.value+"x")`},
		{"@(FLOW(step.value))", "@(FLOW(step.value))"},
	}
	for _, tc := range tests {
		result := evaluator.EvaluateTemplate(tc.template, context, false, ResolveAvailable)
		assert.Equal(t, tc.expected, result.Output, "output mismatch for %s", tc.template)
	}
}

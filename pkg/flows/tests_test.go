package flows

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	excellent "github.com/excellent-lang/excellent"
	"github.com/excellent-lang/excellent/pkg/dates"
)

func newTestEvalSetup(t *testing.T) (*Runner, *RunState, *excellent.EvaluationContext) {
	t.Helper()
	runner := NewRunner(
		WithLocationResolver(testLocationResolver{}),
		WithNow(time.Date(2015, 10, 15, 7, 48, 30, 0, time.UTC)),
	)
	flow := readTestFlow(t, colorFlow)
	run := newTestRunState(t, flow)
	input := NewInputAt("red", time.Date(2015, 10, 15, 7, 48, 30, 0, time.UTC))
	return runner, run, run.BuildContext(runner, input)
}

func assertTest(t *testing.T, runner *Runner, run *RunState, context *excellent.EvaluationContext, test Test, text string, value any) {
	t.Helper()
	result := test.Evaluate(runner, run, context, text)
	require.True(t, result.Matched, "expected match for input %q", text)
	assert.Equal(t, value, result.Value)
}

func assertNoMatch(t *testing.T, runner *Runner, run *RunState, context *excellent.EvaluationContext, test Test, text string) {
	t.Helper()
	result := test.Evaluate(runner, run, context, text)
	assert.False(t, result.Matched, "expected no match for input %q", text)
}

func TestReadTest(t *testing.T) {
	tests := []struct {
		definition string
		expected   Test
	}{
		{`{"type": "true"}`, &TrueTest{}},
		{`{"type": "false"}`, &FalseTest{}},
		{`{"type": "not_empty"}`, &NotEmptyTest{}},
		{`{"type": "contains", "test": "red"}`, &ContainsTest{test: NewText("red")}},
		{`{"type": "contains_any", "test": "red blue"}`, &ContainsAnyTest{test: NewText("red blue")}},
		{`{"type": "starts", "test": "hello"}`, &StartsWithTest{test: NewText("hello")}},
		{`{"type": "regex", "test": "\\d+"}`, &RegexTest{test: NewText(`\d+`)}},
		{`{"type": "number"}`, &HasNumberTest{}},
		{`{"type": "between", "min": "1", "max": "10"}`, &BetweenTest{min: "1", max: "10"}},
		{`{"type": "eq", "test": "5"}`, &NumericComparisonTest{test: "5", op: "eq"}},
		{`{"type": "gt", "test": "5"}`, &NumericComparisonTest{test: "5", op: "gt"}},
		{`{"type": "date"}`, &HasDateTest{}},
		{`{"type": "date_before", "test": "@date.today"}`, &DateComparisonTest{test: "@date.today", op: "date_before"}},
		{`{"type": "phone"}`, &HasPhoneTest{}},
		{`{"type": "state"}`, &HasStateTest{}},
		{`{"type": "district", "test": "Kigali"}`, &HasDistrictTest{state: "Kigali"}},
		{`{"type": "ward", "state": "Kigali", "district": "Gasabo"}`, &HasWardTest{state: "Kigali", district: "Gasabo"}},
		{`{"type": "in_group", "test": {"id": 123, "name": "Testers"}}`, &InGroupTest{group: "Testers"}},
	}

	for _, tc := range tests {
		test, err := readTest(parseJSON(t, tc.definition))
		require.NoError(t, err, "unexpected error reading %s", tc.definition)
		assert.Equal(t, tc.expected, test, "test mismatch for %s", tc.definition)
	}

	_, err := readTest(parseJSON(t, `{"type": "airtime_status"}`))
	assert.EqualError(t, err, "Unknown test type: airtime_status")
}

func TestLogicTests(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	assertTest(t, runner, run, ctx, &TrueTest{}, "huh?", "huh?")
	assertNoMatch(t, runner, run, ctx, &FalseTest{}, "huh?")

	and := &AndTest{tests: []Test{
		&ContainsTest{test: NewText("upon")},
		&StartsWithTest{test: NewText("once")},
	}}
	assertTest(t, runner, run, ctx, and, "Once upon a time", "upon Once")
	assertNoMatch(t, runner, run, ctx, and, "Once a time")

	or := &OrTest{tests: []Test{
		&ContainsTest{test: NewText("upon")},
		&StartsWithTest{test: NewText("once")},
	}}
	assertTest(t, runner, run, ctx, or, "Once a time", "Once")

	assertTest(t, runner, run, ctx, &NotEmptyTest{}, " something ", "something")
	assertNoMatch(t, runner, run, ctx, &NotEmptyTest{}, "  ")
}

func TestTextTests(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	contains := &ContainsTest{test: NewTranslations(map[string]string{"eng": "red", "fra": "rouge"})}
	assertTest(t, runner, run, ctx, contains, "Color is RED", "RED")
	assertNoMatch(t, runner, run, ctx, contains, "Color is blue")

	// contact language is eng so the fra translation isn't used
	assertNoMatch(t, runner, run, ctx, contains, "Couleur est rouge")

	// words over 4 characters allow an edit distance of 1
	assertTest(t, runner, run, ctx, &ContainsTest{test: NewText("rapids")}, "the rapid was fast", "rapid")
	assertNoMatch(t, runner, run, ctx, &ContainsTest{test: NewText("red")}, "I said reds")

	// all words must be present, in any order
	multi := &ContainsTest{test: NewText("red cat")}
	assertTest(t, runner, run, ctx, multi, "my cat is red", "red cat")
	assertNoMatch(t, runner, run, ctx, multi, "my cat is blue")

	any := &ContainsAnyTest{test: NewText("red blue")}
	assertTest(t, runner, run, ctx, any, "the sky is Blue", "Blue")
	assertNoMatch(t, runner, run, ctx, any, "the grass is green")

	starts := &StartsWithTest{test: NewText("once")}
	assertTest(t, runner, run, ctx, starts, "  ONCE upon a time", "ONCE")
	assertNoMatch(t, runner, run, ctx, starts, "upon a time, once")
	assertNoMatch(t, runner, run, ctx, &StartsWithTest{test: NewText("")}, "anything")
}

func TestRegexTest(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	regex := &RegexTest{test: NewText(`(?P<first_name>\w+) (\w+)`)}
	assertTest(t, runner, run, ctx, regex, "Isaac Newton", "Isaac Newton")

	// match groups are saved to @extra by number and name
	assert.Equal(t, "Isaac Newton", run.Extra()["0"])
	assert.Equal(t, "Isaac", run.Extra()["1"])
	assert.Equal(t, "Newton", run.Extra()["2"])
	assert.Equal(t, "Isaac", run.Extra()["first_name"])

	assertNoMatch(t, runner, run, ctx, &RegexTest{test: NewText(`\d{4}`)}, "no digits here")
	assertNoMatch(t, runner, run, ctx, &RegexTest{test: NewText(`[unbalanced`)}, "anything")
}

func assertNumericTest(t *testing.T, runner *Runner, run *RunState, ctx *excellent.EvaluationContext, test Test, text, value string) {
	t.Helper()
	result := test.Evaluate(runner, run, ctx, text)
	require.True(t, result.Matched, "expected match for input %q", text)
	parsed, ok := result.Value.(decimal.Decimal)
	require.True(t, ok, "expected decimal value for input %q", text)
	assert.Equal(t, value, parsed.String())
}

func TestNumericTests(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	number := &HasNumberTest{}
	assertNumericTest(t, runner, run, ctx, number, "I have 32 cats", "32")
	assertNumericTest(t, runner, run, ctx, number, "6,000 people", "6000")

	// common lookalike characters are tolerated
	assertNumericTest(t, runner, run, ctx, number, "l4", "14")
	assertNumericTest(t, runner, run, ctx, number, "4d", "4")
	assertNoMatch(t, runner, run, ctx, number, "l4d")
	assertNoMatch(t, runner, run, ctx, number, "no numbers")

	between := &BetweenTest{min: "1", max: "10"}
	assertNumericTest(t, runner, run, ctx, between, "5 times", "5")
	assertNumericTest(t, runner, run, ctx, between, "10", "10")
	assertNoMatch(t, runner, run, ctx, between, "12")
	assertNoMatch(t, runner, run, ctx, &BetweenTest{min: "@nonexistent", max: "10"}, "5")

	assertNumericTest(t, runner, run, ctx, &NumericComparisonTest{test: "32", op: "eq"}, "32 degrees", "32")
	assertNoMatch(t, runner, run, ctx, &NumericComparisonTest{test: "32", op: "eq"}, "33")
	assertNumericTest(t, runner, run, ctx, &NumericComparisonTest{test: "32", op: "gt"}, "33", "33")
	assertNumericTest(t, runner, run, ctx, &NumericComparisonTest{test: "32", op: "lte"}, "32", "32")
	assertNoMatch(t, runner, run, ctx, &NumericComparisonTest{test: "32", op: "lt"}, "32")

	// comparison against a contact field
	assertNumericTest(t, runner, run, ctx, &NumericComparisonTest{test: "@contact.age", op: "gte"}, "34", "34")
}

func TestDateTests(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	date := &HasDateTest{}
	assertTest(t, runner, run, ctx, date, "14/8/2015", dates.NewDate(2015, 8, 14))
	assertNoMatch(t, runner, run, ctx, date, "not a date")

	// before and after both include the test date itself
	before := &DateComparisonTest{test: "14/8/2015", op: "date_before"}
	assertTest(t, runner, run, ctx, before, "13/8/2015", dates.NewDate(2015, 8, 13))
	assertTest(t, runner, run, ctx, before, "14/8/2015", dates.NewDate(2015, 8, 14))
	assertNoMatch(t, runner, run, ctx, before, "15/8/2015")

	equal := &DateComparisonTest{test: "14/8/2015", op: "date_equal"}
	assertTest(t, runner, run, ctx, equal, "14/8/2015", dates.NewDate(2015, 8, 14))

	after := &DateComparisonTest{test: "14/8/2015", op: "date_after"}
	assertTest(t, runner, run, ctx, after, "15/8/2015", dates.NewDate(2015, 8, 15))
	assertTest(t, runner, run, ctx, after, "14/8/2015", dates.NewDate(2015, 8, 14))
	assertNoMatch(t, runner, run, ctx, after, "13/8/2015")
}

func TestPhoneAndGroupTests(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	phone := &HasPhoneTest{}
	assertTest(t, runner, run, ctx, phone, "my number is 0788 383 383", "+250788383383")
	assertNoMatch(t, runner, run, ctx, phone, "no number here")

	assertTest(t, runner, run, ctx, &InGroupTest{group: "Testers"}, "", "Testers")
	assertNoMatch(t, runner, run, ctx, &InGroupTest{group: "Managers"}, "")
}

func TestLocationTests(t *testing.T) {
	runner, run, ctx := newTestEvalSetup(t)

	state := &HasStateTest{}
	assertTest(t, runner, run, ctx, state, " kigali ", "Kigali")
	assertNoMatch(t, runner, run, ctx, state, "kampala")

	district := &HasDistrictTest{state: "Kigali"}
	assertTest(t, runner, run, ctx, district, "Gasabo", "Gasabo")
	assertNoMatch(t, runner, run, ctx, district, "Nyarugenge")
	assertNoMatch(t, runner, run, ctx, &HasDistrictTest{state: "Kampala"}, "Gasabo")

	ward := &HasWardTest{state: "Kigali", district: "Gasabo"}
	assertTest(t, runner, run, ctx, ward, "jali", "Jali")
	assertNoMatch(t, runner, run, ctx, ward, "Remera")

	// location tests never match without an org country
	run.org.Country = ""
	assertNoMatch(t, runner, run, ctx, state, "kigali")
}

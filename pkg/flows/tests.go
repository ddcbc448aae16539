package flows

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	excellent "github.com/excellent-lang/excellent"
	"github.com/excellent-lang/excellent/pkg/dates"
)

// Test decides whether a rule matches the given input text.
type Test interface {
	// Evaluate returns whether the test matched and the value to save.
	Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult
}

// TestResult is the result of evaluating a rule test.
type TestResult struct {
	Matched bool
	Value   any
}

var testFailure = TestResult{}

func testMatch(value any) TestResult {
	return TestResult{Matched: true, Value: value}
}

// readTest reads a test from its JSON form, dispatching on the type tag.
func readTest(elem gjson.Result) (Test, error) {
	testType := elem.Get("type").String()

	switch testType {
	case "true":
		return &TrueTest{}, nil
	case "false":
		return &FalseTest{}, nil
	case "and":
		tests, err := readTests(elem.Get("tests"))
		if err != nil {
			return nil, err
		}
		return &AndTest{tests: tests}, nil
	case "or":
		tests, err := readTests(elem.Get("tests"))
		if err != nil {
			return nil, err
		}
		return &OrTest{tests: tests}, nil
	case "not_empty":
		return &NotEmptyTest{}, nil
	case "contains":
		return &ContainsTest{test: translatableFromJSON(elem.Get("test"))}, nil
	case "contains_any":
		return &ContainsAnyTest{test: translatableFromJSON(elem.Get("test"))}, nil
	case "starts":
		return &StartsWithTest{test: translatableFromJSON(elem.Get("test"))}, nil
	case "regex":
		return &RegexTest{test: translatableFromJSON(elem.Get("test"))}, nil
	case "number":
		return &HasNumberTest{}, nil
	case "between":
		return &BetweenTest{min: elem.Get("min").String(), max: elem.Get("max").String()}, nil
	case "eq", "lt", "lte", "gt", "gte":
		return &NumericComparisonTest{test: elem.Get("test").String(), op: testType}, nil
	case "date":
		return &HasDateTest{}, nil
	case "date_equal", "date_before", "date_after":
		return &DateComparisonTest{test: elem.Get("test").String(), op: testType}, nil
	case "phone":
		return &HasPhoneTest{}, nil
	case "state":
		return &HasStateTest{}, nil
	case "district":
		return &HasDistrictTest{state: elem.Get("test").String()}, nil
	case "ward":
		return &HasWardTest{state: elem.Get("state").String(), district: elem.Get("district").String()}, nil
	case "in_group":
		return &InGroupTest{group: elem.Get("test.name").String()}, nil
	}
	return nil, parseErrorf("Unknown test type: %s", testType)
}

func readTests(elem gjson.Result) ([]Test, error) {
	var tests []Test
	for _, testElem := range elem.Array() {
		test, err := readTest(testElem)
		if err != nil {
			return nil, err
		}
		tests = append(tests, test)
	}
	return tests, nil
}

// TrueTest always matches.
type TrueTest struct{}

func (t *TrueTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	return testMatch(text)
}

// FalseTest never matches.
type FalseTest struct{}

func (t *FalseTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	return TestResult{Matched: false, Value: text}
}

// AndTest matches if all of its child tests match.
type AndTest struct {
	tests []Test
}

func (t *AndTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	var values []string
	for _, test := range t.tests {
		result := test.Evaluate(runner, run, context, text)
		if !result.Matched {
			return testFailure
		}
		asText, _ := excellent.ToString(result.Value, context)
		values = append(values, asText)
	}
	return testMatch(strings.Join(values, " "))
}

// OrTest matches if any of its child tests match.
type OrTest struct {
	tests []Test
}

func (t *OrTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	for _, test := range t.tests {
		if result := test.Evaluate(runner, run, context, text); result.Matched {
			return result
		}
	}
	return testFailure
}

// NotEmptyTest matches if the input isn't empty after trimming whitespace.
type NotEmptyTest struct{}

func (t *NotEmptyTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	text = strings.TrimSpace(text)
	if len(text) > 0 {
		return testMatch(text)
	}
	return testFailure
}

var wordTokenRegex = regexp.MustCompile(`\W+`)

// tokenize splits text into words, dropping punctuation.
func tokenize(text string) []string {
	splits := wordTokenRegex.Split(text, -1)
	words := make([]string, 0, len(splits))
	for _, split := range splits {
		if split != "" {
			words = append(words, split)
		}
	}
	return words
}

// isWordMatch returns whether a word is close enough to a test word: an
// exact match, or both longer than 4 characters with the same first letter
// and an edit distance of at most 1.
func isWordMatch(test, word string) bool {
	if test == word {
		return true
	}
	return len(test) > 4 && len(word) > 4 && test[0] == word[0] && fuzzy.LevenshteinDistance(test, word) <= 1
}

// localizedText is the substituted test text for tests whose operand is a
// translatable template.
func localizedText(runner *Runner, run *RunState, context *excellent.EvaluationContext, text TranslatableText) string {
	localized := run.localize(text, "")
	return runner.SubstituteVariables(localized, context).Output
}

// ContainsTest matches if all the test words appear as words in the input.
type ContainsTest struct {
	test TranslatableText
}

func (t *ContainsTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	test := localizedText(runner, run, context, t.test)

	tests := tokenize(strings.ToLower(test))
	words := tokenize(strings.ToLower(text))
	rawWords := tokenize(text)

	matches := make([]string, 0, len(tests))
	for _, testWord := range tests {
		matched := false
		for w, word := range words {
			if isWordMatch(testWord, word) {
				matches = append(matches, rawWords[w])
				matched = true
				break
			}
		}
		if !matched {
			return testFailure
		}
	}
	if len(tests) == 0 {
		return testFailure
	}
	return testMatch(strings.Join(matches, " "))
}

// ContainsAnyTest matches if any of the test words appear as words in the
// input.
type ContainsAnyTest struct {
	test TranslatableText
}

func (t *ContainsAnyTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	test := localizedText(runner, run, context, t.test)

	tests := tokenize(strings.ToLower(test))
	words := tokenize(strings.ToLower(text))
	rawWords := tokenize(text)

	var matches []string
	for _, testWord := range tests {
		for w, word := range words {
			if isWordMatch(testWord, word) {
				matches = append(matches, rawWords[w])
				break
			}
		}
	}
	if len(matches) > 0 {
		return testMatch(strings.Join(matches, " "))
	}
	return testFailure
}

// StartsWithTest matches if the input starts with the test text, ignoring
// case and leading whitespace.
type StartsWithTest struct {
	test TranslatableText
}

func (t *StartsWithTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	test := localizedText(runner, run, context, t.test)
	text = strings.TrimSpace(text)

	if test != "" && len(text) >= len(test) && strings.EqualFold(text[:len(test)], test) {
		return testMatch(text[:len(test)])
	}
	return testFailure
}

// RegexTest matches if the pattern is found in the input. Match groups are
// published to @extra by number and by name.
type RegexTest struct {
	test TranslatableText
}

func (t *RegexTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	pattern := localizedText(runner, run, context, t.test)

	compiled, err := regexp.Compile(`(?im)` + pattern)
	if err != nil {
		return testFailure
	}

	match := compiled.FindStringSubmatch(text)
	if match == nil {
		return testFailure
	}

	groupValues := map[string]string{}
	for g, group := range match {
		groupValues[strconv.Itoa(g)] = group
	}
	for g, name := range compiled.SubexpNames() {
		if name != "" {
			groupValues[name] = match[g]
		}
	}
	runner.UpdateExtra(run, groupValues)

	return testMatch(match[0])
}

var leadingDigitsRegex = regexp.MustCompile(`^\d+`)
var wordSplitRegex = regexp.MustCompile(`\s+`)
var digitSubstitutions = strings.NewReplacer("l", "1", "o", "0", "O", "0")

// extractDecimal reads a decimal from a word, tolerating common lookalike
// characters. The leading digits fallback only applies when no substitution
// occurred, so "4d" parses but "l4d" doesn't.
func extractDecimal(word string) (decimal.Decimal, bool) {
	cleaned := digitSubstitutions.Replace(word)

	if parsed, err := decimal.NewFromString(cleaned); err == nil {
		return parsed, true
	}
	if cleaned == word {
		if digits := leadingDigitsRegex.FindString(word); digits != "" {
			if parsed, err := decimal.NewFromString(digits); err == nil {
				return parsed, true
			}
		}
	}
	return decimal.Zero, false
}

// evaluateNumeric finds the first word in the input which parses as a
// decimal and passes the check.
func evaluateNumeric(text string, check func(decimal.Decimal) bool) TestResult {
	text = strings.ReplaceAll(text, ",", "")

	for _, word := range wordSplitRegex.Split(text, -1) {
		if parsed, ok := extractDecimal(word); ok && check(parsed) {
			return testMatch(parsed)
		}
	}
	return testFailure
}

// HasNumberTest matches if the input contains any number.
type HasNumberTest struct{}

func (t *HasNumberTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	return evaluateNumeric(text, func(decimal.Decimal) bool { return true })
}

// BetweenTest matches if the input contains a number between two template
// bounds, inclusive.
type BetweenTest struct {
	min string
	max string
}

func (t *BetweenTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	minTpl := runner.SubstituteVariables(t.min, context)
	maxTpl := runner.SubstituteVariables(t.max, context)
	if minTpl.HasErrors() || maxTpl.HasErrors() {
		return testFailure
	}

	minVal, err := excellent.ToDecimal(minTpl.Output, context)
	if err != nil {
		return testFailure
	}
	maxVal, err := excellent.ToDecimal(maxTpl.Output, context)
	if err != nil {
		return testFailure
	}

	return evaluateNumeric(text, func(value decimal.Decimal) bool {
		return value.GreaterThanOrEqual(minVal) && value.LessThanOrEqual(maxVal)
	})
}

// NumericComparisonTest matches if the input contains a number with the
// given relation to the template operand, e.g. gt 32.
type NumericComparisonTest struct {
	test string
	op   string
}

func (t *NumericComparisonTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	testTpl := runner.SubstituteVariables(t.test, context)
	if testTpl.HasErrors() {
		return testFailure
	}
	testVal, err := excellent.ToDecimal(testTpl.Output, context)
	if err != nil {
		return testFailure
	}

	return evaluateNumeric(text, func(value decimal.Decimal) bool {
		switch t.op {
		case "eq":
			return value.Equal(testVal)
		case "lt":
			return value.LessThan(testVal)
		case "lte":
			return value.LessThanOrEqual(testVal)
		case "gt":
			return value.GreaterThan(testVal)
		case "gte":
			return value.GreaterThanOrEqual(testVal)
		}
		return false
	})
}

// evaluateDate parses the whole input as a date and checks it.
func evaluateDate(context *excellent.EvaluationContext, text string, check func(dates.Date) bool) TestResult {
	date, err := excellent.ToDate(text, context)
	if err != nil {
		return testFailure
	}
	if check(date) {
		return testMatch(date)
	}
	return testFailure
}

// HasDateTest matches if the input contains a valid date.
type HasDateTest struct{}

func (t *HasDateTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	return evaluateDate(context, text, func(dates.Date) bool { return true })
}

// DateComparisonTest matches if the input contains a date with the given
// relation to the template operand, e.g. date_before @date.today.
type DateComparisonTest struct {
	test string
	op   string
}

func (t *DateComparisonTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	testTpl := runner.SubstituteVariables(t.test, context)
	if testTpl.HasErrors() {
		return testFailure
	}
	testDate, err := excellent.ToDate(testTpl.Output, context)
	if err != nil {
		return testFailure
	}

	return evaluateDate(context, text, func(date dates.Date) bool {
		switch t.op {
		case "date_equal":
			return date.Compare(testDate) == 0
		case "date_before":
			return date.Compare(testDate) <= 0
		case "date_after":
			return date.Compare(testDate) >= 0
		}
		return false
	})
}

// HasPhoneTest matches if the input contains a valid phone number for the
// org country, saved in E.164 format.
type HasPhoneTest struct{}

func (t *HasPhoneTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	if number, found := runner.FindNumber(text, run.org.Country); found {
		return testMatch(number)
	}
	return testFailure
}

// InGroupTest matches if the contact belongs to the given group.
type InGroupTest struct {
	group string
}

func (t *InGroupTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	if run.contact.InGroup(t.group) {
		return testMatch(t.group)
	}
	return testFailure
}

// HasStateTest matches if the input contains a valid state for the org
// country.
type HasStateTest struct{}

func (t *HasStateTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	country := run.org.Country
	if country == "" {
		return testFailure
	}
	if state := runner.ParseLocation(text, country, LevelState, nil); state != nil {
		return testMatch(state.Name)
	}
	return testFailure
}

// HasDistrictTest matches if the input contains a valid district in the
// given state, whose name may itself be a template.
type HasDistrictTest struct {
	state string
}

func (t *HasDistrictTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	country := run.org.Country
	if country == "" {
		return testFailure
	}

	stateTpl := runner.SubstituteVariables(t.state, context)
	if stateTpl.HasErrors() {
		return testFailure
	}
	state := runner.ParseLocation(stateTpl.Output, country, LevelState, nil)
	if state == nil {
		return testFailure
	}
	if district := runner.ParseLocation(text, country, LevelDistrict, state); district != nil {
		return testMatch(district.Name)
	}
	return testFailure
}

// HasWardTest matches if the input contains a valid ward in the given state
// and district.
type HasWardTest struct {
	state    string
	district string
}

func (t *HasWardTest) Evaluate(runner *Runner, run *RunState, context *excellent.EvaluationContext, text string) TestResult {
	country := run.org.Country
	if country == "" {
		return testFailure
	}

	stateTpl := runner.SubstituteVariables(t.state, context)
	districtTpl := runner.SubstituteVariables(t.district, context)
	if stateTpl.HasErrors() || districtTpl.HasErrors() {
		return testFailure
	}

	state := runner.ParseLocation(stateTpl.Output, country, LevelState, nil)
	if state == nil {
		return testFailure
	}
	district := runner.ParseLocation(districtTpl.Output, country, LevelDistrict, state)
	if district == nil {
		return testFailure
	}
	if ward := runner.ParseLocation(text, country, LevelWard, district); ward != nil {
		return testMatch(ward.Name)
	}
	return testFailure
}

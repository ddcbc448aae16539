package excellent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var decimalHundred = decimal.New(100, 0)

// The domain-specific text-splitting helpers which aren't part of Excel.

func registerCustomFunctions(m *FunctionManager) {
	m.Register("field", []parameter{param("text"), param("index"), paramOpt("delimiter", " ")}, false, fnField)
	m.Register("first_word", []parameter{param("text")}, false, fnFirstWord)
	m.Register("percent", []parameter{param("number")}, false, fnPercent)
	m.Register("read_digits", []parameter{param("text")}, false, fnReadDigits)
	m.Register("remove_first_word", []parameter{param("text")}, false, fnRemoveFirstWord)
	m.Register("word", []parameter{param("text"), param("number"), paramOpt("by_spaces", false)}, false, fnWord)
	m.Register("word_count", []parameter{param("text"), paramOpt("by_spaces", false)}, false, fnWordCount)
	m.Register("word_slice", []parameter{param("text"), param("start"), paramOpt("stop", 0), paramOpt("by_spaces", false)}, false, fnWordSlice)
}

var spacesRegex = regexp.MustCompile(`\s+`)
var punctuationRegex = regexp.MustCompile(`\W+`)

// FIELD references a field in a string separated by a delimiter, e.g.
// FIELD("a,b,c", 2, ",") is "b". Fields are 1-based and out of range gives
// the empty string.
func fnField(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	index, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	delimiter, err := ToString(args[2], env)
	if err != nil {
		return nil, err
	}

	var fields []string
	for _, split := range strings.Split(text, delimiter) {
		if split != delimiter && strings.TrimSpace(split) != "" {
			fields = append(fields, split)
		}
	}

	if index < 1 {
		return nil, errors.New("field index cannot be less than 1")
	}
	if index <= len(fields) {
		return fields[index-1], nil
	}
	return "", nil
}

// FIRST_WORD returns the first word in the given text string.
func fnFirstWord(env *EvaluationContext, args []any) (any, error) {
	return fnWord(env, []any{args[0], 1, false})
}

// PERCENT formats a number as a percentage, e.g. PERCENT(0.2) is "20%".
func fnPercent(env *EvaluationContext, args []any) (any, error) {
	number, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	rounded := number.Mul(decimalHundred).Round(0)
	return fmt.Sprintf("%s%%", rounded.String()), nil
}

// READ_DIGITS formats digits in text for reading aloud by TTS, inserting
// pauses for SSN, phone number and credit card style groupings.
func fnReadDigits(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	// trim off the plus for phone numbers
	text = strings.TrimPrefix(text, "+")
	length := len(text)

	// ssn
	if length == 9 {
		result := spaceOut(text[:3])
		result += " , " + spaceOut(text[3:5])
		result += " , " + spaceOut(text[5:])
		return result, nil
	}

	// triplets, most international phone numbers
	if length%3 == 0 && length > 3 {
		return spaceOut(strings.Join(chunk(text, 3), ",")), nil
	}

	// quads, credit cards
	if length%4 == 0 {
		return spaceOut(strings.Join(chunk(text, 4), ",")), nil
	}

	// otherwise, just put a comma between each number
	return strings.Join(strings.Split(text, ""), ","), nil
}

func chunk(value string, size int) []string {
	chunks := make([]string, 0, (len(value)+size-1)/size)
	for i := 0; i < len(value); i += size {
		end := min(i+size, len(value))
		chunks = append(chunks, value[i:end])
	}
	return chunks
}

func spaceOut(value string) string {
	return strings.Join(strings.Split(value, ""), " ")
}

// REMOVE_FIRST_WORD removes the first word from the given text string.
func fnRemoveFirstWord(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	text = strings.TrimLeft(text, " \t\n\r")

	first, err := fnFirstWord(env, []any{text})
	if err != nil {
		return nil, err
	}
	firstStr := first.(string)
	if firstStr == "" {
		return "", nil
	}
	return strings.TrimLeft(text[len(firstStr):], " \t\n\r"), nil
}

// WORD extracts the nth word from the given text string.
func fnWord(env *EvaluationContext, args []any) (any, error) {
	number, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	return fnWordSlice(env, []any{args[0], args[1], number + 1, args[2]})
}

// WORD_COUNT returns the number of words in the given text string.
func fnWordCount(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	bySpaces, err := ToBoolean(args[1], env)
	if err != nil {
		return nil, err
	}
	return len(getWords(text, bySpaces)), nil
}

// WORD_SLICE extracts a substring of words spanning from start up to but not
// including stop. Indices are 1-based, negative counts from the end, and a
// stop of zero means the end of the text.
func fnWordSlice(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	start, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	stop, err := ToInteger(args[2], env)
	if err != nil {
		return nil, err
	}
	bySpaces, err := ToBoolean(args[3], env)
	if err != nil {
		return nil, err
	}

	if start == 0 {
		return nil, errors.New("start word cannot be zero")
	}
	if start > 0 {
		start-- // to a zero-based offset
	}

	hasStop := stop != 0 // zero is treated as no end
	if stop > 0 {
		stop--
	}

	words := getWords(text, bySpaces)

	var selection []string
	if hasStop {
		selection = sliceWords(words, &start, &stop)
	} else {
		selection = sliceWords(words, &start, nil)
	}
	return strings.Join(selection, " "), nil
}

// getWords splits the given text into words. If bySpaces is false, then text
// like "01-02-2014" splits into three separate words.
func getWords(text string, bySpaces bool) []string {
	splitter := punctuationRegex
	if bySpaces {
		splitter = spacesRegex
	}
	splits := splitter.Split(text, -1)
	words := make([]string, 0, len(splits))
	for _, split := range splits {
		if split != "" {
			words = append(words, split)
		}
	}
	return words
}

// sliceWords slices with negative indices counting from the end and out of
// range indices clamping.
func sliceWords(words []string, start, stop *int) []string {
	size := len(words)

	from := 0
	if start != nil {
		from = *start
		if from < 0 {
			from += size
		}
	}
	to := size
	if stop != nil {
		to = *stop
		if to < 0 {
			to += size
		}
	}

	if from >= size || to <= 0 || from >= to {
		return nil
	}
	from = max(from, 0)
	to = min(to, size)
	return words[from:to]
}

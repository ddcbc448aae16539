package excellent

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/excellent-lang/excellent/pkg/dates"
)

// The standard function library modelled on Excel's.

func registerExcelFunctions(m *FunctionManager) {
	// text
	m.Register("char", []parameter{param("number")}, false, fnChar)
	m.Register("clean", []parameter{param("text")}, false, fnClean)
	m.Register("code", []parameter{param("text")}, false, fnUnicode)
	m.Register("concatenate", nil, true, fnConcatenate)
	m.Register("fixed", []parameter{param("number"), paramOpt("decimals", 2), paramOpt("no_commas", false)}, false, fnFixed)
	m.Register("left", []parameter{param("text"), param("num_chars")}, false, fnLeft)
	m.Register("_len", []parameter{param("text")}, false, fnLen)
	m.Register("lower", []parameter{param("text")}, false, fnLower)
	m.Register("proper", []parameter{param("text")}, false, fnProper)
	m.Register("rept", []parameter{param("text"), param("number_times")}, false, fnRept)
	m.Register("right", []parameter{param("text"), param("num_chars")}, false, fnRight)
	m.Register("substitute", []parameter{param("text"), param("old_text"), param("new_text"), paramOpt("instance_num", -1)}, false, fnSubstitute)
	m.Register("unichar", []parameter{param("number")}, false, fnChar)
	m.Register("_unicode", []parameter{param("text")}, false, fnUnicode)
	m.Register("upper", []parameter{param("text")}, false, fnUpper)

	// date and time
	m.Register("date", []parameter{param("year"), param("month"), param("day")}, false, fnDate)
	m.Register("datevalue", []parameter{param("text")}, false, fnDateValue)
	m.Register("day", []parameter{param("date")}, false, fnDay)
	m.Register("edate", []parameter{param("date"), param("months")}, false, fnEDate)
	m.Register("hour", []parameter{param("datetime")}, false, fnHour)
	m.Register("minute", []parameter{param("datetime")}, false, fnMinute)
	m.Register("month", []parameter{param("date")}, false, fnMonth)
	m.Register("now", nil, false, fnNow)
	m.Register("second", []parameter{param("datetime")}, false, fnSecond)
	m.Register("time", []parameter{param("hours"), param("minutes"), param("seconds")}, false, fnTime)
	m.Register("timevalue", []parameter{param("text")}, false, fnTimeValue)
	m.Register("today", nil, false, fnToday)
	m.Register("weekday", []parameter{param("date")}, false, fnWeekday)
	m.Register("year", []parameter{param("date")}, false, fnYear)

	// math
	m.Register("_abs", []parameter{param("number")}, false, fnAbs)
	m.Register("_int", []parameter{param("number")}, false, fnInt)
	m.Register("_max", nil, true, fnMax)
	m.Register("_min", nil, true, fnMin)
	m.Register("mod", []parameter{param("number"), param("divisor")}, false, fnMod)
	m.Register("power", []parameter{param("number"), param("power")}, false, fnPower)
	m.Register("rand", nil, false, fnRand)
	m.Register("randbetween", []parameter{param("bottom"), param("top")}, false, fnRandBetween)
	m.Register("_sum", nil, true, fnSum)

	// logical
	m.Register("_and", nil, true, fnAnd)
	m.Register("false", nil, false, fnFalse)
	m.Register("_if", []parameter{param("logical_test"), paramOpt("value_if_true", 0), paramOpt("value_if_false", false)}, false, fnIf)
	m.Register("_or", nil, true, fnOr)
	m.Register("true", nil, false, fnTrue)
}

// CHAR returns the character specified by a number.
func fnChar(env *EvaluationContext, args []any) (any, error) {
	number, err := ToInteger(args[0], env)
	if err != nil {
		return nil, err
	}
	return string(rune(number)), nil
}

// CLEAN removes all non-printable characters from a text string.
func fnClean(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	var cleaned strings.Builder
	for _, ch := range text {
		if ch >= 32 {
			cleaned.WriteRune(ch)
		}
	}
	return cleaned.String(), nil
}

// CODE and UNICODE return a numeric code for the first character in a text
// string.
func fnUnicode(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, errors.New("text can't be empty")
	}
	return int(runes[0]), nil
}

// CONCATENATE joins text strings into one text string.
func fnConcatenate(env *EvaluationContext, args []any) (any, error) {
	var result strings.Builder
	for _, arg := range args {
		asString, err := ToString(arg, env)
		if err != nil {
			return nil, err
		}
		result.WriteString(asString)
	}
	return result.String(), nil
}

// FIXED formats the given number in decimal format using a period and commas.
func fnFixed(env *EvaluationContext, args []any) (any, error) {
	number, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	decimals, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	noCommas, err := ToBoolean(args[2], env)
	if err != nil {
		return nil, err
	}

	if decimals < 0 {
		number = number.Round(int32(decimals))
		decimals = 0
	}

	fixed := number.StringFixed(int32(decimals))
	if noCommas {
		return fixed, nil
	}
	return groupThousands(fixed), nil
}

// groupThousands inserts commas into the integer part of an already fixed
// decimal string.
func groupThousands(fixed string) string {
	intPart, fracPart, hasFrac := strings.Cut(fixed, ".")

	sign := ""
	if strings.HasPrefix(intPart, "-") {
		sign, intPart = "-", intPart[1:]
	}

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	result := sign + grouped.String()
	if hasFrac {
		result += "." + fracPart
	}
	return result
}

// LEFT returns the first characters in a text string.
func fnLeft(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	numChars, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	if numChars < 0 {
		return nil, errors.New("number of chars can't be negative")
	}
	runes := []rune(text)
	if numChars > len(runes) {
		numChars = len(runes)
	}
	return string(runes[:numChars]), nil
}

// LEN returns the number of characters in a text string.
func fnLen(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	return len([]rune(text)), nil
}

// LOWER converts a text string to lowercase.
func fnLower(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(text), nil
}

// PROPER capitalizes the first letter of every word in a text string.
func fnProper(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	var result strings.Builder
	prevLetter := false
	for _, ch := range text {
		isLetter := isCased(ch)
		if isLetter && !prevLetter {
			result.WriteString(strings.ToUpper(string(ch)))
		} else if isLetter {
			result.WriteString(strings.ToLower(string(ch)))
		} else {
			result.WriteRune(ch)
		}
		prevLetter = isLetter
	}
	return result.String(), nil
}

func isCased(ch rune) bool {
	return strings.ToUpper(string(ch)) != strings.ToLower(string(ch))
}

// REPT repeats text a given number of times.
func fnRept(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	numberTimes, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	if numberTimes < 0 {
		return nil, errors.New("number of times can't be negative")
	}
	return strings.Repeat(text, numberTimes), nil
}

// RIGHT returns the last characters in a text string.
func fnRight(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	numChars, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	if numChars < 0 {
		return nil, errors.New("number of chars can't be negative")
	}
	if numChars == 0 {
		return "", nil
	}
	runes := []rune(text)
	if numChars > len(runes) {
		numChars = len(runes)
	}
	return string(runes[len(runes)-numChars:]), nil
}

// SUBSTITUTE substitutes new_text for old_text in a text string.
func fnSubstitute(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	oldText, err := ToString(args[1], env)
	if err != nil {
		return nil, err
	}
	newText, err := ToString(args[2], env)
	if err != nil {
		return nil, err
	}
	instanceNum, err := ToInteger(args[3], env)
	if err != nil {
		return nil, err
	}

	if instanceNum < 0 {
		return strings.ReplaceAll(text, oldText, newText), nil
	}

	splits := strings.Split(text, oldText)
	var output strings.Builder
	output.WriteString(splits[0])
	for instance, split := range splits[1:] {
		if instance+1 == instanceNum {
			output.WriteString(newText)
		} else {
			output.WriteString(oldText)
		}
		output.WriteString(split)
	}
	return output.String(), nil
}

// UPPER converts a text string to uppercase.
func fnUpper(env *EvaluationContext, args []any) (any, error) {
	text, err := ToString(args[0], env)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(text), nil
}

// DATE defines a date value.
func fnDate(env *EvaluationContext, args []any) (any, error) {
	year, err := ToInteger(args[0], env)
	if err != nil {
		return nil, err
	}
	month, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	day, err := ToInteger(args[2], env)
	if err != nil {
		return nil, err
	}
	result := dates.NewDate(year, time.Month(month), day)
	if !result.Valid() {
		return nil, errors.New("not a valid date")
	}
	return result, nil
}

// DATEVALUE converts a date stored in text to an actual date.
func fnDateValue(env *EvaluationContext, args []any) (any, error) {
	return ToDate(args[0], env)
}

// DAY returns only the day of the month of a date (1 to 31).
func fnDay(env *EvaluationContext, args []any) (any, error) {
	date, err := temporalDate(args[0], env)
	if err != nil {
		return nil, err
	}
	return date.Day, nil
}

// EDATE moves a date by the given number of months, clamping to the last day
// of the month.
func fnEDate(env *EvaluationContext, args []any) (any, error) {
	temporal, err := ToDateOrDateTime(args[0], env)
	if err != nil {
		return nil, err
	}
	months, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	switch typed := temporal.(type) {
	case dates.Date:
		return addMonths(typed, months), nil
	case time.Time:
		moved := addMonths(dates.DateFromTime(typed), months)
		return time.Date(moved.Year, moved.Month, moved.Day, typed.Hour(), typed.Minute(), typed.Second(), 0, typed.Location()), nil
	}
	return nil, errors.New("not a date or datetime")
}

func addMonths(date dates.Date, months int) dates.Date {
	firstOfMonth := time.Date(date.Year, date.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	day := date.Day
	if last := daysInMonth(firstOfMonth.Year(), firstOfMonth.Month()); day > last {
		day = last
	}
	return dates.NewDate(firstOfMonth.Year(), firstOfMonth.Month(), day)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// HOUR returns only the hour of a datetime (0 to 23).
func fnHour(env *EvaluationContext, args []any) (any, error) {
	datetime, err := ToDateTime(args[0], env)
	if err != nil {
		return nil, err
	}
	return datetime.Hour(), nil
}

// MINUTE returns only the minute of a datetime (0 to 59).
func fnMinute(env *EvaluationContext, args []any) (any, error) {
	datetime, err := ToDateTime(args[0], env)
	if err != nil {
		return nil, err
	}
	return datetime.Minute(), nil
}

// MONTH returns only the month of a date (1 to 12).
func fnMonth(env *EvaluationContext, args []any) (any, error) {
	date, err := temporalDate(args[0], env)
	if err != nil {
		return nil, err
	}
	return int(date.Month), nil
}

// NOW returns the current date and time, preferring date.now from the
// context so all expressions in a step agree on it.
func fnNow(env *EvaluationContext, args []any) (any, error) {
	if fromContext, err := env.Resolve("date.now"); err == nil {
		return ToDateTime(fromContext, env)
	}
	return env.Now(), nil
}

// SECOND returns only the second of a datetime (0 to 59).
func fnSecond(env *EvaluationContext, args []any) (any, error) {
	datetime, err := ToDateTime(args[0], env)
	if err != nil {
		return nil, err
	}
	return datetime.Second(), nil
}

// TIME defines a time value.
func fnTime(env *EvaluationContext, args []any) (any, error) {
	hours, err := ToInteger(args[0], env)
	if err != nil {
		return nil, err
	}
	minutes, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	seconds, err := ToInteger(args[2], env)
	if err != nil {
		return nil, err
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return nil, errors.New("not a valid time")
	}
	return dates.NewTimeOfDay(hours, minutes, seconds), nil
}

// TIMEVALUE converts a time stored in text to an actual time.
func fnTimeValue(env *EvaluationContext, args []any) (any, error) {
	return ToTime(args[0], env)
}

// TODAY returns the current date, preferring date.today from the context.
func fnToday(env *EvaluationContext, args []any) (any, error) {
	if fromContext, err := env.Resolve("date.today"); err == nil {
		return ToDate(fromContext, env)
	}
	return dates.DateFromTime(env.Now()), nil
}

// WEEKDAY returns the day of the week of a date (1 for Sunday to 7 for
// Saturday).
func fnWeekday(env *EvaluationContext, args []any) (any, error) {
	date, err := temporalDate(args[0], env)
	if err != nil {
		return nil, err
	}
	return int(date.Weekday()) + 1, nil
}

// YEAR returns only the year of a date.
func fnYear(env *EvaluationContext, args []any) (any, error) {
	date, err := temporalDate(args[0], env)
	if err != nil {
		return nil, err
	}
	return date.Year, nil
}

// ABS returns the absolute value of a number.
func fnAbs(env *EvaluationContext, args []any) (any, error) {
	number, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	return number.Abs(), nil
}

// INT rounds a number down to the nearest integer.
func fnInt(env *EvaluationContext, args []any) (any, error) {
	number, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	return ToInteger(number.Floor(), env)
}

// MAX returns the maximum value of all arguments.
func fnMax(env *EvaluationContext, args []any) (any, error) {
	return foldDecimals(env, args, func(best, next decimal.Decimal) bool { return next.GreaterThan(best) })
}

// MIN returns the minimum value of all arguments.
func fnMin(env *EvaluationContext, args []any) (any, error) {
	return foldDecimals(env, args, func(best, next decimal.Decimal) bool { return next.LessThan(best) })
}

func foldDecimals(env *EvaluationContext, args []any, better func(best, next decimal.Decimal) bool) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("no arguments")
	}
	result, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		next, err := ToDecimal(arg, env)
		if err != nil {
			return nil, err
		}
		if better(result, next) {
			result = next
		}
	}
	return result, nil
}

// MOD returns the remainder after number is divided by divisor. The sign
// follows the divisor.
func fnMod(env *EvaluationContext, args []any) (any, error) {
	number, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	divisor, err := ToDecimal(args[1], env)
	if err != nil {
		return nil, err
	}
	if divisor.IsZero() {
		return nil, errors.New("division by zero")
	}
	quotient := number.DivRound(divisor, divisionPrecision).Floor()
	return number.Sub(divisor.Mul(quotient)), nil
}

// POWER returns the result of a number raised to a power.
func fnPower(env *EvaluationContext, args []any) (any, error) {
	number, err := ToDecimal(args[0], env)
	if err != nil {
		return nil, err
	}
	power, err := ToDecimal(args[1], env)
	if err != nil {
		return nil, err
	}
	return decimalPow(number, power), nil
}

// RAND returns an evenly distributed random real number greater than or
// equal to 0 and less than 1.
func fnRand(env *EvaluationContext, args []any) (any, error) {
	return decimal.NewFromFloat(rand.Float64()), nil
}

// RANDBETWEEN returns a random integer number between the numbers you
// specify, inclusive.
func fnRandBetween(env *EvaluationContext, args []any) (any, error) {
	bottom, err := ToInteger(args[0], env)
	if err != nil {
		return nil, err
	}
	top, err := ToInteger(args[1], env)
	if err != nil {
		return nil, err
	}
	if top < bottom {
		return nil, errors.New("top must not be less than bottom")
	}
	return bottom + rand.Intn(top-bottom+1), nil
}

// SUM returns the sum of all arguments.
func fnSum(env *EvaluationContext, args []any) (any, error) {
	result := decimal.Zero
	for _, arg := range args {
		next, err := ToDecimal(arg, env)
		if err != nil {
			return nil, err
		}
		result = result.Add(next)
	}
	return result, nil
}

// AND returns TRUE if and only if all its arguments evaluate to TRUE.
func fnAnd(env *EvaluationContext, args []any) (any, error) {
	for _, arg := range args {
		asBool, err := ToBoolean(arg, env)
		if err != nil {
			return nil, err
		}
		if !asBool {
			return false, nil
		}
	}
	return true, nil
}

// FALSE returns the logical value FALSE.
func fnFalse(env *EvaluationContext, args []any) (any, error) {
	return false, nil
}

// IF returns one value if the condition evaluates to TRUE, and another value
// if it evaluates to FALSE.
func fnIf(env *EvaluationContext, args []any) (any, error) {
	logicalTest, err := ToBoolean(args[0], env)
	if err != nil {
		return nil, err
	}
	if logicalTest {
		return args[1], nil
	}
	return args[2], nil
}

// OR returns TRUE if any argument is TRUE.
func fnOr(env *EvaluationContext, args []any) (any, error) {
	for _, arg := range args {
		asBool, err := ToBoolean(arg, env)
		if err != nil {
			return nil, err
		}
		if asBool {
			return true, nil
		}
	}
	return false, nil
}

// TRUE returns the logical value TRUE.
func fnTrue(env *EvaluationContext, args []any) (any, error) {
	return true, nil
}

// temporalDate gets the calendar date of a value which may be a date or a
// datetime.
func temporalDate(value any, env *EvaluationContext) (dates.Date, error) {
	temporal, err := ToDateOrDateTime(value, env)
	if err != nil {
		return dates.Date{}, err
	}
	if asDate, ok := temporal.(dates.Date); ok {
		return asDate, nil
	}
	return dates.DateFromTime(temporal.(time.Time)), nil
}

package excellent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/excellent-lang/excellent/pkg/dates"
)

// The coercion layer between the types expressions operate on. All functions
// here return an EvaluationError when a value can't sensibly become the
// requested type.

// ToBoolean tries conversion of any value to a boolean.
func ToBoolean(value any, env *EvaluationContext) (bool, error) {
	switch typed := value.(type) {
	case bool:
		return typed, nil
	case int:
		return typed != 0, nil
	case decimal.Decimal:
		return !typed.IsZero(), nil
	case string:
		switch strings.ToLower(typed) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	case dates.Date, dates.TimeOfDay, time.Time:
		return true, nil
	}
	return false, evalErrorf("Can't convert '%s' to a boolean", describe(value, env))
}

// ToInteger tries conversion of any value to an integer, rounding decimals
// half away from zero.
func ToInteger(value any, env *EvaluationContext) (int, error) {
	switch typed := value.(type) {
	case bool:
		if typed {
			return 1, nil
		}
		return 0, nil
	case int:
		return typed, nil
	case decimal.Decimal:
		rounded := typed.Round(0)
		if bigInt := rounded.BigInt(); bigInt.IsInt64() {
			asInt64 := bigInt.Int64()
			if int64(int(asInt64)) == asInt64 {
				return int(asInt64), nil
			}
		}
	case string:
		if asInt, err := strconv.Atoi(typed); err == nil {
			return asInt, nil
		}
	}
	return 0, evalErrorf("Can't convert '%s' to an integer", describe(value, env))
}

// ToDecimal tries conversion of any value to a decimal.
func ToDecimal(value any, env *EvaluationContext) (decimal.Decimal, error) {
	switch typed := value.(type) {
	case bool:
		if typed {
			return decimal.New(1, 0), nil
		}
		return decimal.Zero, nil
	case int:
		return decimal.New(int64(typed), 0), nil
	case decimal.Decimal:
		return typed, nil
	case string:
		if asDecimal, err := decimal.NewFromString(typed); err == nil {
			return asDecimal, nil
		}
	}
	return decimal.Zero, evalErrorf("Can't convert '%s' to a decimal", describe(value, env))
}

// ToString tries conversion of any value to a string, rendering dates and
// times according to the context.
func ToString(value any, env *EvaluationContext) (string, error) {
	switch typed := value.(type) {
	case bool:
		if typed {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(typed), nil
	case decimal.Decimal:
		return FormatDecimal(typed), nil
	case string:
		return typed, nil
	case dates.Date:
		return typed.In(env.Timezone()).Format(env.DateFormat(false)), nil
	case dates.TimeOfDay:
		return typed.On(dates.Date{Year: 2000, Month: 1, Day: 1}, time.UTC).Format("15:04"), nil
	case time.Time:
		return typed.In(env.Timezone()).Format(env.DateFormat(true)), nil
	}
	return "", evalErrorf("Can't convert '%s' to a string", describe(value, env))
}

// ToDate tries conversion of any value to a date, discarding any time
// component.
func ToDate(value any, env *EvaluationContext) (dates.Date, error) {
	switch typed := value.(type) {
	case string:
		if temporal := env.DateParser().Auto(typed); temporal != nil {
			return ToDate(temporal, env)
		}
	case dates.Date:
		return typed, nil
	case time.Time:
		return dates.DateFromTime(typed.In(env.Timezone())), nil
	}
	return dates.Date{}, evalErrorf("Can't convert '%s' to a date", describe(value, env))
}

// ToDateTime tries conversion of any value to a datetime, promoting dates to
// midnight in the context timezone.
func ToDateTime(value any, env *EvaluationContext) (time.Time, error) {
	switch typed := value.(type) {
	case string:
		if temporal := env.DateParser().Auto(typed); temporal != nil {
			return ToDateTime(temporal, env)
		}
	case dates.Date:
		return typed.In(env.Timezone()), nil
	case time.Time:
		return typed.In(env.Timezone()), nil
	}
	return time.Time{}, evalErrorf("Can't convert '%s' to a datetime", describe(value, env))
}

// ToDateOrDateTime tries conversion of any value to a date or datetime,
// keeping whichever the value already carries.
func ToDateOrDateTime(value any, env *EvaluationContext) (any, error) {
	switch typed := value.(type) {
	case string:
		if temporal := env.DateParser().Auto(typed); temporal != nil {
			return temporal, nil
		}
	case dates.Date:
		return typed, nil
	case time.Time:
		return typed.In(env.Timezone()), nil
	}
	return nil, evalErrorf("Can't convert '%s' to a date or datetime", describe(value, env))
}

// ToTime tries conversion of any value to a wall-clock time.
func ToTime(value any, env *EvaluationContext) (dates.TimeOfDay, error) {
	switch typed := value.(type) {
	case string:
		if asTime, ok := env.DateParser().Time(typed); ok {
			return asTime, nil
		}
	case dates.TimeOfDay:
		return typed, nil
	case time.Time:
		return dates.TimeOfDayFromTime(typed.In(env.Timezone())), nil
	}
	return dates.TimeOfDay{}, evalErrorf("Can't convert '%s' to a time", describe(value, env))
}

// ToSame converts a pair of arguments to their most likely common type. This
// deviates from Excel, which doesn't auto-convert values, but is necessary to
// intuitively handle contact fields which are stored as text.
func ToSame(value1, value2 any, env *EvaluationContext) (any, any, error) {
	if sameType(value1, value2) {
		return value1, value2, nil
	}

	// try converting to two decimals
	if dec1, err := ToDecimal(value1, env); err == nil {
		if dec2, err := ToDecimal(value2, env); err == nil {
			return dec1, dec2, nil
		}
	}

	// try converting to two dates or datetimes
	if temp1, err := ToDateOrDateTime(value1, env); err == nil {
		if temp2, err := ToDateOrDateTime(value2, env); err == nil {
			return temp1, temp2, nil
		}
	}

	// try converting to two strings
	str1, err := ToString(value1, env)
	if err != nil {
		return nil, nil, err
	}
	str2, err := ToString(value2, env)
	if err != nil {
		return nil, nil, err
	}
	return str1, str2, nil
}

// ToRepr converts a value back to its representation form, e.g. x -> "x".
func ToRepr(value any, env *EvaluationContext) (string, error) {
	asString, err := ToString(value, env)
	if err != nil {
		return "", err
	}
	switch value.(type) {
	case string, dates.Date, dates.TimeOfDay, time.Time:
		return `"` + strings.ReplaceAll(asString, `"`, `""`) + `"`, nil
	}
	return asString, nil
}

// FormatDecimal formats a decimal number with the same precision rules as
// Excel: at most ten significant digits before rounding (half away from
// zero), trailing zeros stripped and no scientific notation.
func FormatDecimal(value decimal.Decimal) string {
	// re-parse the trimmed representation so trailing zeros don't count as
	// digits and positive exponents are expanded
	trimmed, _ := decimal.NewFromString(value.String())

	digits := len(strings.TrimLeft(trimmed.Coefficient().String(), "-"))
	exponent := int(trimmed.Exponent())

	intDigits := digits + exponent
	fractionalDigits := -exponent
	if fractionalDigits < 0 {
		fractionalDigits = 0
	}
	if maxFractional := max(10-intDigits, 0); fractionalDigits > maxFractional {
		fractionalDigits = maxFractional
	}

	return trimmed.Round(int32(fractionalDigits)).String()
}

func sameType(value1, value2 any) bool {
	switch value1.(type) {
	case bool:
		_, same := value2.(bool)
		return same
	case int:
		_, same := value2.(int)
		return same
	case decimal.Decimal:
		_, same := value2.(decimal.Decimal)
		return same
	case string:
		_, same := value2.(string)
		return same
	case dates.Date:
		_, same := value2.(dates.Date)
		return same
	case dates.TimeOfDay:
		_, same := value2.(dates.TimeOfDay)
		return same
	case time.Time:
		_, same := value2.(time.Time)
		return same
	}
	return false
}

// describe renders a value for an error message.
func describe(value any, env *EvaluationContext) string {
	switch typed := value.(type) {
	case bool:
		if typed {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(typed)
	case decimal.Decimal:
		return FormatDecimal(typed)
	case string:
		return typed
	case dates.Date:
		return typed.In(env.Timezone()).Format(env.DateFormat(false))
	case dates.TimeOfDay:
		return typed.On(dates.Date{Year: 2000, Month: 1, Day: 1}, time.UTC).Format("15:04")
	case time.Time:
		return typed.In(env.Timezone()).Format(env.DateFormat(true))
	}
	return fmt.Sprintf("%v", value)
}

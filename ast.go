package excellent

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/excellent-lang/excellent/pkg/dates"
)

// divisionPrecision is the number of fractional digits kept by division,
// e.g. 4 / 2 gives 2.0000000000.
const divisionPrecision = 10

// expression is a node in a parsed expression tree.
type expression interface {
	evaluate(env *EvaluationContext, functions *FunctionManager) (any, error)
}

type decimalLiteral struct {
	value decimal.Decimal
}

func (x *decimalLiteral) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	return x.value, nil
}

type stringLiteral struct {
	value string
}

func (x *stringLiteral) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	return x.value, nil
}

type boolLiteral struct {
	value bool
}

func (x *boolLiteral) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	return x.value, nil
}

// contextRef is a dotted reference to a variable in the evaluation context.
type contextRef struct {
	path string
}

func (x *contextRef) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	return env.Resolve(x.path)
}

type functionCall struct {
	name string
	args []expression
}

func (x *functionCall) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	args := make([]any, len(x.args))
	for i, arg := range x.args {
		value, err := arg.evaluate(env, functions)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return functions.Invoke(x.name, env, args)
}

type negation struct {
	operand expression
}

func (x *negation) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	value, err := x.operand.evaluate(env, functions)
	if err != nil {
		return nil, err
	}
	asDecimal, err := ToDecimal(value, env)
	if err != nil {
		return nil, err
	}
	return asDecimal.Neg(), nil
}

// additionOp is + or -, which do decimal arithmetic, or date arithmetic when
// the left side is a date or datetime and the right side is a time or a
// number of days.
type additionOp struct {
	left, right expression
	subtract    bool
}

func (x *additionOp) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	left, right, err := evaluatePair(x.left, x.right, env, functions)
	if err != nil {
		return nil, err
	}

	if dec1, err := ToDecimal(left, env); err == nil {
		if dec2, err := ToDecimal(right, env); err == nil {
			if x.subtract {
				return dec1.Sub(dec2), nil
			}
			return dec1.Add(dec2), nil
		}
	}

	temporal, err := ToDateOrDateTime(left, env)
	if err != nil {
		return nil, evalErrorf("Expression could not be evaluated as decimal or date arithmetic")
	}

	sign := 1
	if x.subtract {
		sign = -1
	}

	// right side may be a time to shift by...
	if asTime, err := ToTime(right, env); err == nil {
		offset := time.Duration(sign) * asTime.Duration()
		switch typed := temporal.(type) {
		case dates.Date:
			return typed.In(env.Timezone()).Add(offset), nil
		case time.Time:
			return typed.Add(offset), nil
		}
	}

	// ...or a number of days
	if days, err := ToInteger(right, env); err == nil {
		switch typed := temporal.(type) {
		case dates.Date:
			return typed.AddDays(sign * days), nil
		case time.Time:
			return typed.AddDate(0, 0, sign*days), nil
		}
	}

	return nil, evalErrorf("Expression could not be evaluated as decimal or date arithmetic")
}

type multiplicationOp struct {
	left, right expression
	divide      bool
}

func (x *multiplicationOp) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	left, right, err := evaluatePair(x.left, x.right, env, functions)
	if err != nil {
		return nil, err
	}
	dec1, err := ToDecimal(left, env)
	if err != nil {
		return nil, err
	}
	dec2, err := ToDecimal(right, env)
	if err != nil {
		return nil, err
	}
	if x.divide {
		if dec2.IsZero() {
			return nil, evalErrorf("Division by zero")
		}
		return dec1.DivRound(dec2, divisionPrecision), nil
	}
	return dec1.Mul(dec2), nil
}

type exponentOp struct {
	left, right expression
}

func (x *exponentOp) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	left, right, err := evaluatePair(x.left, x.right, env, functions)
	if err != nil {
		return nil, err
	}
	number, err := ToDecimal(left, env)
	if err != nil {
		return nil, err
	}
	power, err := ToDecimal(right, env)
	if err != nil {
		return nil, err
	}
	return decimalPow(number, power), nil
}

type concatenationOp struct {
	left, right expression
}

func (x *concatenationOp) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	left, right, err := evaluatePair(x.left, x.right, env, functions)
	if err != nil {
		return nil, err
	}
	str1, err := ToString(left, env)
	if err != nil {
		return nil, err
	}
	str2, err := ToString(right, env)
	if err != nil {
		return nil, err
	}
	return str1 + str2, nil
}

type equalityOp struct {
	left, right expression
	negated     bool
}

func (x *equalityOp) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	left, right, err := evaluatePair(x.left, x.right, env, functions)
	if err != nil {
		return nil, err
	}
	equal, err := valuesEqual(left, right, env)
	if err != nil {
		return nil, err
	}
	if x.negated {
		return !equal, nil
	}
	return equal, nil
}

type comparisonOp struct {
	left, right expression
	operator    tokenType
}

func (x *comparisonOp) evaluate(env *EvaluationContext, functions *FunctionManager) (any, error) {
	left, right, err := evaluatePair(x.left, x.right, env, functions)
	if err != nil {
		return nil, err
	}
	compared, err := compareValues(left, right, env)
	if err != nil {
		return nil, err
	}
	switch x.operator {
	case tokenLessThan:
		return compared < 0, nil
	case tokenLessThanOrEqual:
		return compared <= 0, nil
	case tokenGreaterThan:
		return compared > 0, nil
	default:
		return compared >= 0, nil
	}
}

func evaluatePair(left, right expression, env *EvaluationContext, functions *FunctionManager) (any, any, error) {
	leftVal, err := left.evaluate(env, functions)
	if err != nil {
		return nil, nil, err
	}
	rightVal, err := right.evaluate(env, functions)
	if err != nil {
		return nil, nil, err
	}
	return leftVal, rightVal, nil
}

// valuesEqual compares two values for equality after unifying their types.
// String comparisons are case-insensitive.
func valuesEqual(value1, value2 any, env *EvaluationContext) (bool, error) {
	value1, value2, err := ToSame(value1, value2, env)
	if err != nil {
		return false, err
	}

	switch typed1 := value1.(type) {
	case string:
		if typed2, ok := value2.(string); ok {
			return strings.EqualFold(typed1, typed2), nil
		}
	case bool:
		if typed2, ok := value2.(bool); ok {
			return typed1 == typed2, nil
		}
	case int:
		if typed2, ok := value2.(int); ok {
			return typed1 == typed2, nil
		}
	case decimal.Decimal:
		if typed2, ok := value2.(decimal.Decimal); ok {
			return typed1.Equal(typed2), nil
		}
	case dates.TimeOfDay:
		if typed2, ok := value2.(dates.TimeOfDay); ok {
			return typed1 == typed2, nil
		}
	}

	// remaining cases are dates and datetimes, possibly mixed
	compared, err := compareTemporal(value1, value2, env)
	if err != nil {
		return false, evalErrorf("Can't check equality of '%s' and '%s'", describe(value1, env), describe(value2, env))
	}
	return compared == 0, nil
}

// compareValues orders two values after unifying their types, returning a
// negative, zero or positive result. Booleans can't be ordered.
func compareValues(value1, value2 any, env *EvaluationContext) (int, error) {
	value1, value2, err := ToSame(value1, value2, env)
	if err != nil {
		return 0, err
	}

	switch typed1 := value1.(type) {
	case string:
		if typed2, ok := value2.(string); ok {
			return strings.Compare(strings.ToLower(typed1), strings.ToLower(typed2)), nil
		}
	case int:
		if typed2, ok := value2.(int); ok {
			switch {
			case typed1 < typed2:
				return -1, nil
			case typed1 > typed2:
				return 1, nil
			}
			return 0, nil
		}
	case decimal.Decimal:
		if typed2, ok := value2.(decimal.Decimal); ok {
			return typed1.Cmp(typed2), nil
		}
	case dates.TimeOfDay:
		if typed2, ok := value2.(dates.TimeOfDay); ok {
			switch {
			case typed1.Duration() < typed2.Duration():
				return -1, nil
			case typed1.Duration() > typed2.Duration():
				return 1, nil
			}
			return 0, nil
		}
	}

	if compared, err := compareTemporal(value1, value2, env); err == nil {
		return compared, nil
	}
	return 0, evalErrorf("Can't compare '%s' and '%s'", describe(value1, env), describe(value2, env))
}

// compareTemporal orders dates and datetimes, promoting a date to midnight
// when compared against a datetime.
func compareTemporal(value1, value2 any, env *EvaluationContext) (int, error) {
	date1, ok1 := value1.(dates.Date)
	date2, ok2 := value2.(dates.Date)
	if ok1 && ok2 {
		return date1.Compare(date2), nil
	}

	isTemporal := func(v any) bool {
		switch v.(type) {
		case dates.Date, time.Time:
			return true
		}
		return false
	}
	if !isTemporal(value1) || !isTemporal(value2) {
		return 0, evalErrorf("Can't compare '%s' and '%s'", describe(value1, env), describe(value2, env))
	}

	dt1, err := ToDateTime(value1, env)
	if err != nil {
		return 0, err
	}
	dt2, err := ToDateTime(value2, env)
	if err != nil {
		return 0, err
	}
	return dt1.Compare(dt2), nil
}

// decimalPow raises number to power via float math, as Excel does.
func decimalPow(number, power decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(number.InexactFloat64(), power.InexactFloat64()))
}

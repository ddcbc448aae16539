package excellent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/excellent-lang/excellent/pkg/dates"
)

// EvaluationContext is the environment an expression evaluates in: the
// variables accessible to it, and the timezone and date conventions used when
// date values are parsed and rendered. Variable values are strings, decimals,
// ints, bools, dates, times, datetimes or nested maps. A nested map may carry
// a "*" key whose value is used when the map itself is rendered.
type EvaluationContext struct {
	variables map[string]any
	timezone  *time.Location
	dateStyle dates.Style
	now       time.Time // zero means wall clock
}

// NewEvaluationContext creates a new evaluation context.
func NewEvaluationContext(variables map[string]any, timezone *time.Location, dateStyle dates.Style) *EvaluationContext {
	if variables == nil {
		variables = make(map[string]any)
	}
	if timezone == nil {
		timezone = time.UTC
	}
	return &EvaluationContext{variables: variables, timezone: timezone, dateStyle: dateStyle}
}

// Resolve returns the named variable, e.g. contact, contact.name. Paths are
// case-insensitive. Resolving a map which has a "*" key returns that default
// value, and resolving an explicit nil returns the empty string.
func (c *EvaluationContext) Resolve(path string) (any, error) {
	return resolveInContainer(c.variables, strings.ToLower(path), path)
}

// Put sets a top level variable in the context.
func (c *EvaluationContext) Put(key string, value any) {
	c.variables[strings.ToLower(key)] = value
}

// Timezone returns the timezone in which times are interpreted and rendered.
func (c *EvaluationContext) Timezone() *time.Location {
	return c.timezone
}

// DateStyle returns whether ambiguous dates are read day-first or month-first.
func (c *EvaluationContext) DateStyle() dates.Style {
	return c.dateStyle
}

// SetDateStyle changes how ambiguous dates are read.
func (c *EvaluationContext) SetDateStyle(style dates.Style) {
	c.dateStyle = style
}

// Now returns the current instant in the context timezone. Tests can pin it
// with SetNow.
func (c *EvaluationContext) Now() time.Time {
	if !c.now.IsZero() {
		return c.now.In(c.timezone)
	}
	return time.Now().In(c.timezone)
}

// SetNow pins the instant that relative date parsing and NOW() happen
// against.
func (c *EvaluationContext) SetNow(now time.Time) {
	c.now = now
}

// DateParser returns a date parser configured from this context.
func (c *EvaluationContext) DateParser() *dates.Parser {
	return dates.NewParser(c.Now(), c.timezone, c.dateStyle)
}

// DateFormat returns the time layout for rendering dates, optionally with a
// time component.
func (c *EvaluationContext) DateFormat(incTime bool) string {
	format := "02-01-2006"
	if c.dateStyle == dates.MonthFirst {
		format = "01-02-2006"
	}
	if incTime {
		format += " 15:04"
	}
	return format
}

func resolveInContainer(container map[string]any, path, originalPath string) (any, error) {
	item, remainingPath, hasMore := strings.Cut(path, ".")

	value, exists := container[item]
	if !exists {
		return nil, evalErrorf("No item called %s in context", originalPath)
	}

	if hasMore && value != nil {
		asMap, ok := value.(map[string]any)
		if !ok {
			return nil, evalErrorf("No item called %s in context", originalPath)
		}
		return resolveInContainer(asMap, remainingPath, originalPath)
	}

	if asMap, ok := value.(map[string]any); ok {
		def, ok := asMap["*"]
		if !ok {
			return nil, evalErrorf("No item called %s in context", originalPath)
		}
		return def, nil
	}
	if value == nil {
		return "", nil // empty string rather than nil
	}
	return value, nil
}

// ContextFromJSON reads an evaluation context from JSON of the form
// {"vars": {...}, "tz": "Africa/Kigali", "day_first": true}. Numbers become
// ints when integral and decimals otherwise.
func ContextFromJSON(data []byte) (*EvaluationContext, error) {
	envelope := struct {
		Vars     json.RawMessage `json:"vars"`
		Timezone string          `json:"tz"`
		DayFirst bool            `json:"day_first"`
	}{Timezone: "UTC", DayFirst: true}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}

	tz, err := time.LoadLocation(envelope.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}

	style := dates.DayFirst
	if !envelope.DayFirst {
		style = dates.MonthFirst
	}

	variables := make(map[string]any)
	if len(envelope.Vars) > 0 {
		raw, err := decodeJSONValue(envelope.Vars)
		if err != nil {
			return nil, fmt.Errorf("reading context: %w", err)
		}
		asMap, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("reading context: vars is not an object")
		}
		variables = asMap
	}

	return NewEvaluationContext(variables, tz, style), nil
}

// decodeJSONValue decodes arbitrary JSON into the value types expressions
// understand.
func decodeJSONValue(data json.RawMessage) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	return convertJSONValue(raw), nil
}

func convertJSONValue(raw any) any {
	switch typed := raw.(type) {
	case json.Number:
		if asInt, err := typed.Int64(); err == nil && !strings.ContainsAny(typed.String(), ".eE") {
			return int(asInt)
		}
		if asDecimal, err := decimal.NewFromString(typed.String()); err == nil {
			return asDecimal
		}
		return typed.String()
	case []any:
		converted := make([]any, len(typed))
		for i, item := range typed {
			converted[i] = convertJSONValue(item)
		}
		return converted
	case map[string]any:
		converted := make(map[string]any, len(typed))
		for key, item := range typed {
			converted[key] = convertJSONValue(item)
		}
		return converted
	default:
		return raw
	}
}

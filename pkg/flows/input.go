package flows

import (
	"time"

	excellent "github.com/excellent-lang/excellent"
)

// Input is a message or value received from the contact which can resume a
// waiting run. Values are anything expressions understand: strings, decimals,
// dates, datetimes.
type Input struct {
	value    any
	time     time.Time
	consumed bool
}

// NewInput creates an input received now.
func NewInput(value any) *Input {
	return NewInputAt(value, time.Now())
}

// NewInputAt creates an input received at the given time.
func NewInputAt(value any, at time.Time) *Input {
	return &Input{value: value, time: at}
}

// Value returns the raw input value.
func (i *Input) Value() any {
	if i == nil {
		return nil
	}
	return i.value
}

// Time returns when the input was received.
func (i *Input) Time() time.Time {
	if i == nil {
		return time.Time{}
	}
	return i.time
}

// Consume marks this input as having been matched against a rule set, so
// that it can't satisfy a second pause in the same resume.
func (i *Input) Consume() {
	if i != nil {
		i.consumed = true
	}
}

// Consumed returns whether the input has been matched against a rule set. A
// nil input counts as consumed since there's nothing left to match.
func (i *Input) Consumed() bool {
	return i == nil || i.consumed
}

// ValueAsText renders the input value as text which rules can match against.
func (i *Input) ValueAsText(env *excellent.EvaluationContext) string {
	if i == nil {
		return ""
	}
	asText, err := excellent.ToString(i.value, env)
	if err != nil {
		return ""
	}
	return asText
}

// BuildContext builds the expression context for this input, i.e. what
// @step.X references resolve against.
func (i *Input) BuildContext(env *excellent.EvaluationContext, contactContext map[string]any) map[string]any {
	asText := i.ValueAsText(env)
	asTime, _ := excellent.ToString(i.time.In(env.Timezone()), env)

	return map[string]any{
		"*":       asText,
		"value":   asText,
		"time":    asTime,
		"contact": contactContext,
	}
}

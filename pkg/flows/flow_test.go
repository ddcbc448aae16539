package flows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFlow(t *testing.T) {
	flow := readTestFlow(t, colorFlow)

	assert.Equal(t, FlowTypeFlow, flow.Type())
	assert.Equal(t, "eng", flow.BaseLanguage())
	assert.Equal(t, []string{"eng", "fra"}, flow.Languages())

	entry, ok := flow.Entry().(*ActionSet)
	require.True(t, ok)
	assert.Equal(t, "9a8870d7-f7a4-48d4-af2d-c7013f3e06bf", entry.UUID())
	require.Len(t, entry.Actions(), 1)

	reply, ok := entry.Actions()[0].(*ReplyAction)
	require.True(t, ok)
	assert.Equal(t, "What is your favorite color?", reply.Msg.Localized([]string{"eng"}, ""))

	ruleSet, ok := entry.Destination().(*RuleSet)
	require.True(t, ok)
	assert.Equal(t, "b7cfa0ac-4d50-4384-a1ab-9ec79bd45e42", ruleSet.UUID())
	assert.Equal(t, RuleSetTypeWaitMessage, ruleSet.Type())
	assert.True(t, ruleSet.IsPause())
	assert.Equal(t, "Color", ruleSet.Label())
	assert.Equal(t, "@step.value", ruleSet.Operand())
	require.Len(t, ruleSet.Rules(), 3)

	// rules are registered as elements too so steps can reference them
	rule, ok := flow.ElementByUUID("3cae4c42-3cbb-4b99-9f96-6bd78d25ffd5").(*Rule)
	require.True(t, ok)
	assert.Equal(t, "Red", rule.Category().Localized([]string{"eng"}, ""))
	assert.Equal(t, "c81af400-a744-499a-9ad5-c90e233e4b92", rule.Destination().UUID())

	// the catch-all rule loops back to the rule set
	other := ruleSet.Rules()[2]
	assert.IsType(t, &TrueTest{}, other.Test())
	assert.Equal(t, "4ef9c1f9-fa77-4bd2-b684-6c9b3a5499b9", other.Destination().UUID())

	assert.Equal(t, []byte(colorFlow), flow.Definition())
}

func TestReadFlowErrors(t *testing.T) {
	tests := []struct {
		definition string
		errMsg     string
	}{
		{`xyz`, "Flow definition is not valid JSON"},
		{`{"flow_type": "F"}`, "Missing flow spec version"},
		{`{"version": 9}`, "Unsupported flow spec version: 9"},
		{
			`{"version": 8, "rule_sets": [{"uuid": "e3c10e16", "ruleset_type": "airtime"}]}`,
			"Unknown ruleset type: airtime",
		},
		{
			`{"version": 8, "action_sets": [{"uuid": "e3c10e16", "actions": [{"type": "dance"}]}]}`,
			"Unknown action type: dance",
		},
		{
			`{"version": 8, "rule_sets": [{"uuid": "e3c10e16", "ruleset_type": "wait_message",
				"rules": [{"uuid": "37d12fe5", "test": {"type": "airtime_status"}, "category": "Success"}]}]}`,
			"Unknown test type: airtime_status",
		},
		{
			`{"version": 8, "action_sets": [{"uuid": "e3c10e16", "destination": "a0e8f50b", "actions": []}]}`,
			"Invalid destination: a0e8f50b",
		},
		{
			`{"version": 8, "entry": "a0e8f50b"}`,
			"Invalid entry point: a0e8f50b",
		},
	}

	for _, tc := range tests {
		_, err := ReadFlow([]byte(tc.definition))
		require.Error(t, err, "expected error reading %s", tc.definition)
		assert.IsType(t, &ParseError{}, err)
		assert.EqualError(t, err, tc.errMsg)
	}
}

func TestTranslatableText(t *testing.T) {
	text := NewText("Hello")
	assert.Equal(t, "Hello", text.Localized([]string{"eng", "fra"}, "default"))

	text = NewTranslations(map[string]string{"eng": "Hello", "fra": "Bonjour"})
	assert.Equal(t, "Bonjour", text.Localized([]string{"fra", "eng"}, "default"))
	assert.Equal(t, "Hello", text.Localized([]string{"kin", "eng"}, "default"))
	assert.Equal(t, "default", text.Localized([]string{"kin"}, "default"))
	assert.ElementsMatch(t, []string{"eng", "fra"}, text.Languages())

	// translation sets fall back to their base or def entries
	text = NewTranslations(map[string]string{"base": "Hello", "fra": "Bonjour"})
	assert.Equal(t, "Hello", text.Localized([]string{"kin"}, "default"))
	text = NewTranslations(map[string]string{"def": "Hello"})
	assert.Equal(t, "Hello", text.Localized([]string{"kin"}, "default"))

	// zero value has no text at all
	var empty TranslatableText
	assert.Equal(t, "default", empty.Localized([]string{"eng"}, "default"))
}

func TestTranslatableTextJSON(t *testing.T) {
	text := translatableFromJSON(parseJSON(t, `"Hello"`))
	assert.Equal(t, NewText("Hello"), text)

	text = translatableFromJSON(parseJSON(t, `{"eng": "Hello", "fra": "Bonjour"}`))
	assert.Equal(t, NewTranslations(map[string]string{"eng": "Hello", "fra": "Bonjour"}), text)

	// null translations are dropped
	text = translatableFromJSON(parseJSON(t, `{"eng": "Hello", "fra": null}`))
	assert.Equal(t, NewTranslations(map[string]string{"eng": "Hello"}), text)

	text = translatableFromJSON(parseJSON(t, `null`))
	assert.Equal(t, TranslatableText{}, text)
}

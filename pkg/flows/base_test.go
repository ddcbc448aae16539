package flows

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/excellent-lang/excellent/pkg/dates"
)

func parseJSON(t *testing.T, raw string) gjson.Result {
	t.Helper()
	return gjson.Parse(raw)
}

func newTestOrg(t *testing.T) *Org {
	t.Helper()
	tz, err := time.LoadLocation("Africa/Kigali")
	require.NoError(t, err)

	return &Org{
		Country:         "RW",
		PrimaryLanguage: "eng",
		Timezone:        tz,
		DateStyle:       dates.DayFirst,
	}
}

func newTestFields() []*Field {
	return []*Field{
		{Key: "gender", Label: "Gender", Type: ValueTypeText},
		{Key: "age", Label: "Age", Type: ValueTypeDecimal},
		{Key: "joined", Label: "Joined", Type: ValueTypeDatetime},
	}
}

func newTestContact() *Contact {
	return &Contact{
		UUID: "1234-1234",
		Name: "Joe Flow",
		URNs: []URN{
			{Scheme: SchemeTel, Path: "+260964153686"},
			{Scheme: SchemeTwitter, Path: "realJoeFlow"},
		},
		Groups: []string{"Testers", "Developers"},
		Fields: map[string]string{
			"gender": "M",
			"age":    "34",
			"joined": "2015-10-06T11:30:01.123Z",
		},
		Language: "eng",
	}
}

// testLocationResolver knows one state (Kigali), one district (Gasabo) and
// one ward (Jali).
type testLocationResolver struct{}

func (testLocationResolver) Resolve(input, country string, level LocationLevel, parent *Location) *Location {
	input = strings.TrimSpace(input)

	switch level {
	case LevelState:
		if strings.EqualFold(input, "kigali") {
			return &Location{Name: "Kigali"}
		}
	case LevelDistrict:
		if strings.EqualFold(input, "gasabo") && parent != nil && parent.Name == "Kigali" {
			return &Location{Name: "Gasabo"}
		}
	case LevelWard:
		if strings.EqualFold(input, "jali") && parent != nil && parent.Name == "Gasabo" {
			return &Location{Name: "Jali"}
		}
	}
	return nil
}

// newTestRunState creates a run state without going through a runner, for
// testing tests and actions in isolation.
func newTestRunState(t *testing.T, flow *Flow) *RunState {
	t.Helper()
	started := time.Date(2015, 10, 15, 7, 48, 30, 123457000, time.UTC)
	return NewRunState(newTestOrg(t), newTestFields(), newTestContact(), flow, started)
}

// colorFlow asks for a favorite color and loops back on answers it doesn't
// recognize.
const colorFlow = `{
	"version": 8,
	"flow_type": "F",
	"base_language": "eng",
	"entry": "9a8870d7-f7a4-48d4-af2d-c7013f3e06bf",
	"action_sets": [
		{
			"uuid": "9a8870d7-f7a4-48d4-af2d-c7013f3e06bf",
			"destination": "b7cfa0ac-4d50-4384-a1ab-9ec79bd45e42",
			"actions": [
				{"type": "reply", "msg": {"eng": "What is your favorite color?", "fra": "Quelle est ta couleur préférée?"}}
			]
		},
		{
			"uuid": "c81af400-a744-499a-9ad5-c90e233e4b92",
			"destination": null,
			"actions": [
				{"type": "reply", "msg": {"eng": "Red is hot"}},
				{"type": "add_group", "groups": [{"id": 123, "name": "Red Team"}]}
			]
		},
		{
			"uuid": "f9adf38f-f01b-41b8-9ff0-e02dbd0e7b47",
			"destination": null,
			"actions": [
				{"type": "reply", "msg": {"eng": "Blue is cool"}}
			]
		},
		{
			"uuid": "4ef9c1f9-fa77-4bd2-b684-6c9b3a5499b9",
			"destination": "b7cfa0ac-4d50-4384-a1ab-9ec79bd45e42",
			"actions": [
				{"type": "reply", "msg": {"eng": "I've never heard of @flow.color, try again"}}
			]
		}
	],
	"rule_sets": [
		{
			"uuid": "b7cfa0ac-4d50-4384-a1ab-9ec79bd45e42",
			"ruleset_type": "wait_message",
			"label": "Color",
			"operand": "@step.value",
			"rules": [
				{
					"uuid": "3cae4c42-3cbb-4b99-9f96-6bd78d25ffd5",
					"test": {"type": "contains", "test": {"eng": "red", "fra": "rouge"}},
					"category": {"eng": "Red", "fra": "Rouge"},
					"destination": "c81af400-a744-499a-9ad5-c90e233e4b92"
				},
				{
					"uuid": "935e9cdd-5b64-44ba-b63d-de7e35b30546",
					"test": {"type": "contains", "test": {"eng": "blue", "fra": "bleu"}},
					"category": {"eng": "Blue", "fra": "Bleu"},
					"destination": "f9adf38f-f01b-41b8-9ff0-e02dbd0e7b47"
				},
				{
					"uuid": "82f7b422-57cd-4b42-9c17-e2b3f37de968",
					"test": {"type": "true"},
					"category": {"eng": "Other", "fra": "Autre"},
					"destination": "4ef9c1f9-fa77-4bd2-b684-6c9b3a5499b9"
				}
			]
		}
	]
}`

func readTestFlow(t *testing.T, definition string) *Flow {
	t.Helper()
	flow, err := ReadFlow([]byte(definition))
	require.NoError(t, err)
	return flow
}

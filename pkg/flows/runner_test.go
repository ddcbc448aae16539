package flows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerStartAndResume(t *testing.T) {
	now := time.Date(2015, 10, 15, 7, 48, 30, 0, time.UTC)
	runner := NewRunner(WithNow(now))
	flow := readTestFlow(t, colorFlow)

	run, err := runner.Start(newTestOrg(t), newTestFields(), newTestContact(), flow)
	require.NoError(t, err)
	assert.Equal(t, StateWaitMessage, run.State())

	// first step performed the greeting, second is waiting at the rule set
	require.Len(t, run.Steps(), 2)
	greeting := run.Steps()[0]
	assert.Equal(t, "9a8870d7-f7a4-48d4-af2d-c7013f3e06bf", greeting.Node().UUID())
	assert.True(t, greeting.IsCompleted())
	require.Len(t, greeting.Actions(), 1)
	assert.Equal(t, NewText("What is your favorite color?"), greeting.Actions()[0].(*ReplyAction).Msg)

	waiting := run.Steps()[1]
	assert.Equal(t, "b7cfa0ac-4d50-4384-a1ab-9ec79bd45e42", waiting.Node().UUID())
	assert.False(t, waiting.IsCompleted())
	assert.Len(t, run.GetCompletedSteps(), 1)

	// an unrecognized answer loops back to the wait
	run, err = runner.Resume(run, NewInputAt("turquoise", now))
	require.NoError(t, err)
	assert.Equal(t, StateWaitMessage, run.State())
	require.Len(t, run.Steps(), 3)

	matched := run.Steps()[0]
	require.NotNil(t, matched.RuleResult())
	assert.Equal(t, "Other", matched.RuleResult().Category)
	assert.Equal(t, "turquoise", matched.RuleResult().Value)

	tryAgain := run.Steps()[1]
	assert.Equal(t, NewText("I've never heard of turquoise, try again"), tryAgain.Actions()[0].(*ReplyAction).Msg)

	// a recognized answer takes its branch and completes the run
	run, err = runner.Resume(run, NewInputAt("I like red and white", now))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, run.State())
	require.Len(t, run.Steps(), 2)

	matched = run.Steps()[0]
	require.NotNil(t, matched.RuleResult())
	assert.Equal(t, "3cae4c42-3cbb-4b99-9f96-6bd78d25ffd5", matched.RuleResult().Rule.UUID())
	assert.Equal(t, "red", matched.RuleResult().Value)
	assert.Equal(t, "Red", matched.RuleResult().Category)
	assert.Equal(t, "I like red and white", matched.RuleResult().Text)

	value := run.Values()["color"]
	require.NotNil(t, value)
	assert.Equal(t, "red", value.Value)
	assert.Equal(t, "Red", value.Category)

	final := run.Steps()[1]
	require.Len(t, final.Actions(), 2)
	assert.Equal(t, NewText("Red is hot"), final.Actions()[0].(*ReplyAction).Msg)
	assert.Equal(t, []GroupRef{{ID: 123, Name: "Red Team"}}, final.Actions()[1].(*AddToGroupsAction).Groups)
	assert.True(t, run.Contact().InGroup("Red Team"))
	assert.Len(t, run.GetCompletedSteps(), 2)

	// a completed run can't be resumed again
	_, err = runner.Resume(run, NewInputAt("pink", now))
	require.Error(t, err)
	assert.IsType(t, &RunError{}, err)
	assert.EqualError(t, err, "Cannot resume a completed run")
}

func TestRunnerTranslatedFlow(t *testing.T) {
	now := time.Date(2015, 10, 15, 7, 48, 30, 0, time.UTC)
	runner := NewRunner(WithNow(now))
	flow := readTestFlow(t, colorFlow)

	contact := newTestContact()
	contact.Language = "fra"

	run, err := runner.Start(newTestOrg(t), newTestFields(), contact, flow)
	require.NoError(t, err)

	greeting := run.Steps()[0]
	assert.Equal(t, NewText("Quelle est ta couleur préférée?"), greeting.Actions()[0].(*ReplyAction).Msg)

	// rules use the contact language translation of the test, but the saved
	// category is always in the flow base language
	run, err = runner.Resume(run, NewInputAt("rouge", now))
	require.NoError(t, err)
	assert.Equal(t, "Red", run.Steps()[0].RuleResult().Category)
}

const loopingFlow = `{
	"version": 8,
	"base_language": "eng",
	"entry": "9ecb8156-9746-4549-a186-d6279a7d0103",
	"action_sets": [
		{"uuid": "9ecb8156-9746-4549-a186-d6279a7d0103", "destination": "c43a7812-8050-4331-b171-bb316aebab0e", "actions": []}
	],
	"rule_sets": [
		{
			"uuid": "c43a7812-8050-4331-b171-bb316aebab0e",
			"ruleset_type": "expression",
			"label": "Split",
			"operand": "@(1 + 2)",
			"rules": [
				{"uuid": "f87d5e25-1a48-4d56-b4a6-0b8a320e91a5", "test": {"type": "eq", "test": "3"}, "category": "Three", "destination": "9ecb8156-9746-4549-a186-d6279a7d0103"}
			]
		}
	]
}`

func TestRunnerLoopDetection(t *testing.T) {
	runner := NewRunner(WithNow(time.Date(2015, 10, 15, 7, 48, 30, 0, time.UTC)))
	flow := readTestFlow(t, loopingFlow)

	_, err := runner.Start(newTestOrg(t), newTestFields(), newTestContact(), flow)
	require.Error(t, err)
	require.IsType(t, &LoopError{}, err)
	assert.Equal(t, []string{
		"9ecb8156-9746-4549-a186-d6279a7d0103",
		"c43a7812-8050-4331-b171-bb316aebab0e",
	}, err.(*LoopError).Path)
}

func TestRunnerFlowWithoutEntry(t *testing.T) {
	runner := NewRunner()
	flow := readTestFlow(t, `{"version": 8, "base_language": "eng"}`)

	_, err := runner.Start(newTestOrg(t), newTestFields(), newTestContact(), flow)
	require.Error(t, err)
	assert.EqualError(t, err, "Flow has no entry point")
}

func TestRunnerUpdateContactField(t *testing.T) {
	runner := NewRunner(WithLocationResolver(testLocationResolver{}))
	flow := readTestFlow(t, colorFlow)

	fields := append(newTestFields(),
		&Field{Key: "state", Label: "State", Type: ValueTypeState},
		&Field{Key: "district", Label: "District", Type: ValueTypeDistrict},
		&Field{Key: "ward", Label: "Ward", Type: ValueTypeWard},
	)
	run := NewRunState(newTestOrg(t), fields, newTestContact(), flow, time.Now())

	// text and decimal values are saved as-is
	_, err := runner.UpdateContactField(run, "age", "35", "")
	require.NoError(t, err)
	assert.Equal(t, "35", run.Contact().Fields["age"])

	// a district can't be resolved until the state field has a value
	_, err = runner.UpdateContactField(run, "district", "Gasabo", "")
	require.NoError(t, err)
	assert.Equal(t, "", run.Contact().Fields["district"])

	_, err = runner.UpdateContactField(run, "state", " kigali ", "")
	require.NoError(t, err)
	assert.Equal(t, "Kigali", run.Contact().Fields["state"])

	_, err = runner.UpdateContactField(run, "district", "gasabo", "")
	require.NoError(t, err)
	assert.Equal(t, "Gasabo", run.Contact().Fields["district"])

	_, err = runner.UpdateContactField(run, "ward", "JALI", "")
	require.NoError(t, err)
	assert.Equal(t, "Jali", run.Contact().Fields["ward"])

	// unresolvable locations leave the field empty
	_, err = runner.UpdateContactField(run, "state", "kampala", "")
	require.NoError(t, err)
	assert.Equal(t, "", run.Contact().Fields["state"])
}

type eventRecorder struct {
	events []string
}

func (r *eventRecorder) RunStarted(run *RunState)   { r.events = append(r.events, "started") }
func (r *eventRecorder) RunResumed(run *RunState)   { r.events = append(r.events, "resumed") }
func (r *eventRecorder) RunPaused(run *RunState)    { r.events = append(r.events, "paused") }
func (r *eventRecorder) RunCompleted(run *RunState) { r.events = append(r.events, "completed") }

func (r *eventRecorder) NodeVisited(run *RunState, step *Step) {
	r.events = append(r.events, "visited:"+step.Node().UUID())
}

func TestRunnerListener(t *testing.T) {
	now := time.Date(2015, 10, 15, 7, 48, 30, 0, time.UTC)
	recorder := &eventRecorder{}
	runner := NewRunner(WithNow(now), WithListener(recorder))
	flow := readTestFlow(t, colorFlow)

	run, err := runner.Start(newTestOrg(t), newTestFields(), newTestContact(), flow)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"started",
		"visited:9a8870d7-f7a4-48d4-af2d-c7013f3e06bf",
		"paused",
	}, recorder.events)

	recorder.events = nil
	_, err = runner.Resume(run, NewInputAt("blue", now))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"resumed",
		"visited:b7cfa0ac-4d50-4384-a1ab-9ec79bd45e42",
		"visited:f9adf38f-f01b-41b8-9ff0-e02dbd0e7b47",
		"completed",
	}, recorder.events)
}

package flows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAction(t *testing.T) {
	tests := []struct {
		definition string
		expected   Action
	}{
		{
			`{"type": "reply", "msg": {"eng": "Hello"}}`,
			&ReplyAction{Msg: NewTranslations(map[string]string{"eng": "Hello"})},
		},
		{
			`{"type": "send", "msg": "Hello", "contacts": [{"id": 123, "name": "Mr Test"}],
				"groups": [{"id": 234, "name": "Testers"}], "variables": [{"id": "@new_contact"}]}`,
			&SendAction{
				Msg:       NewText("Hello"),
				Contacts:  []ContactRef{{ID: 123, Name: "Mr Test"}},
				Groups:    []GroupRef{{ID: 234, Name: "Testers"}},
				Variables: []VariableRef{{Value: "@new_contact"}},
			},
		},
		{
			`{"type": "email", "emails": ["code@nyaruka.com"], "subject": "Hello", "msg": "Body"}`,
			&EmailAction{Addresses: []string{"code@nyaruka.com"}, Subject: "Hello", Msg: "Body"},
		},
		{
			`{"type": "save", "field": "age", "label": "Age", "value": "@flow.age"}`,
			&SaveToContactAction{Field: "age", Label: "Age", Value: "@flow.age"},
		},
		{
			`{"type": "lang", "lang": "fra", "name": "Français"}`,
			&SetLanguageAction{Lang: "fra", Name: "Français"},
		},
		{
			`{"type": "add_group", "groups": [{"id": 123, "name": "Testers"}, "Dynamic @contact.gender"]}`,
			&AddToGroupsAction{Groups: []GroupRef{{ID: 123, Name: "Testers"}, {Name: "Dynamic @contact.gender"}}},
		},
		{
			`{"type": "del_group", "groups": [{"id": 123, "name": "Testers"}]}`,
			&RemoveFromGroupsAction{Groups: []GroupRef{{ID: 123, Name: "Testers"}}},
		},
		{
			`{"type": "add_label", "labels": [{"id": 123, "name": "Spam"}, "My Label"]}`,
			&AddLabelsAction{Labels: []LabelRef{{ID: 123, Name: "Spam"}, {Name: "My Label"}}},
		},
	}

	for _, tc := range tests {
		action, err := readAction(parseJSON(t, tc.definition))
		require.NoError(t, err, "unexpected error reading %s", tc.definition)
		assert.Equal(t, tc.expected, action, "action mismatch for %s", tc.definition)

		// re-serializing and re-reading should give the same action back
		marshaled, err := actionToJSON(action)
		require.NoError(t, err)
		reread, err := readAction(parseJSON(t, string(marshaled)))
		require.NoError(t, err)
		assert.Equal(t, action, reread, "round trip mismatch for %s", tc.definition)
	}

	_, err := readAction(parseJSON(t, `{"type": "dance"}`))
	assert.EqualError(t, err, "Unknown action type: dance")
}

func TestReplyAction(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	action := &ReplyAction{Msg: NewTranslations(map[string]string{"eng": "Hello @contact.first_name", "fra": "Bonjour"})}
	result := action.Execute(runner, run, input)

	require.IsType(t, &ReplyAction{}, result.Performed)
	assert.Equal(t, NewText("Hello Joe"), result.Performed.(*ReplyAction).Msg)
	assert.Empty(t, result.Errors)

	// message which errors still gets sent with the expression as-is
	action = &ReplyAction{Msg: NewText("Hello @contact.xyz")}
	result = action.Execute(runner, run, input)
	assert.Equal(t, NewText("Hello @contact.xyz"), result.Performed.(*ReplyAction).Msg)
	assert.Len(t, result.Errors, 1)

	// empty message is a no-op
	result = (&ReplyAction{}).Execute(runner, run, input)
	assert.Nil(t, result.Performed)
	assert.Empty(t, result.Errors)
}

func TestSendAction(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	action := &SendAction{
		Msg:       NewText("Hi @contact.first_name, @contact.gender said @step.value"),
		Groups:    []GroupRef{{ID: 234, Name: "Testers"}},
		Variables: []VariableRef{{Value: "@new_contact"}, {Value: "@contact.gender"}},
	}
	result := action.Execute(runner, run, input)

	require.IsType(t, &SendAction{}, result.Performed)
	performed := result.Performed.(*SendAction)

	// @contact references stay in the message so it can be evaluated per
	// recipient, everything else is substituted now
	assert.Equal(t, NewText("Hi @contact.first_name, @contact.gender said red"), performed.Msg)
	assert.Equal(t, []GroupRef{{ID: 234, Name: "Testers"}}, performed.Groups)
	assert.Equal(t, []VariableRef{{Value: "@new_contact"}, {Value: "M"}}, performed.Variables)
	assert.Empty(t, result.Errors)
}

func TestEmailAction(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	action := &EmailAction{
		Addresses: []string{"code@nyaruka.com"},
		Subject:   "Update from @contact.first_name\non line two",
		Msg:       "@contact.name just answered @step.value",
	}
	result := action.Execute(runner, run, input)

	require.IsType(t, &EmailAction{}, result.Performed)
	performed := result.Performed.(*EmailAction)
	assert.Equal(t, []string{"code@nyaruka.com"}, performed.Addresses)
	assert.Equal(t, "Update from Joe on line two", performed.Subject)
	assert.Equal(t, "Joe Flow just answered red", performed.Msg)
	assert.Empty(t, result.Errors)
}

func TestSaveToContactAction(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	// saving to name
	action := &SaveToContactAction{Field: "name", Value: "  Jill Bravo  "}
	result := action.Execute(runner, run, input)
	performed := result.Performed.(*SaveToContactAction)
	assert.Equal(t, "Contact Name", performed.Label)
	assert.Equal(t, "Jill Bravo", performed.Value)
	assert.Equal(t, "Jill Bravo", run.Contact().Name)

	// saving to first name keeps the rest of the name
	action = &SaveToContactAction{Field: "first_name", Value: "Joan"}
	action.Execute(runner, run, input)
	assert.Equal(t, "Joan Bravo", run.Contact().Name)

	// saving a phone number adds a normalized URN
	action = &SaveToContactAction{Field: "tel_e164", Value: "0788 382 382"}
	result = action.Execute(runner, run, input)
	assert.Equal(t, "Phone Number", result.Performed.(*SaveToContactAction).Label)
	urns := run.Contact().URNs
	assert.Equal(t, URN{Scheme: SchemeTel, Path: "+250788382382"}, urns[len(urns)-1])

	// saving to an existing custom field
	action = &SaveToContactAction{Field: "gender", Label: "Gender", Value: "Female"}
	action.Execute(runner, run, input)
	assert.Equal(t, "Female", run.Contact().Fields["gender"])

	// saving to a field which doesn't exist yet creates it
	action = &SaveToContactAction{Field: "", Label: "Is Mother", Value: "yes"}
	result = action.Execute(runner, run, input)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "yes", run.Contact().Fields["is_mother"])

	created := run.GetCreatedFields()
	require.Len(t, created, 1)
	assert.Equal(t, "is_mother", created[0].Key)
	assert.Equal(t, "Is Mother", created[0].Label)

	// a value which fails to evaluate means nothing is saved
	action = &SaveToContactAction{Field: "name", Value: "@(doesnt.exist)"}
	result = action.Execute(runner, run, input)
	assert.Nil(t, result.Performed)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, "Joan Bravo", run.Contact().Name)

	action = &SaveToContactAction{Field: "gender", Label: "Gender", Value: "@contact.xyz"}
	result = action.Execute(runner, run, input)
	assert.Nil(t, result.Performed)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, "Female", run.Contact().Fields["gender"])
}

func TestSetLanguageAction(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	(&SetLanguageAction{Lang: "fra", Name: "Français"}).Execute(runner, run, input)
	assert.Equal(t, "fra", run.Contact().Language)

	// anything other than a 3-letter code clears the language
	(&SetLanguageAction{Lang: "base", Name: "Default"}).Execute(runner, run, input)
	assert.Equal(t, "", run.Contact().Language)
}

func TestGroupActions(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	add := &AddToGroupsAction{Groups: []GroupRef{{ID: 123, Name: "Subscribers"}, {Name: "@contact.gender Club"}}}
	result := add.Execute(runner, run, input)

	performed := result.Performed.(*AddToGroupsAction)
	assert.Equal(t, []GroupRef{{ID: 123, Name: "Subscribers"}, {Name: "M Club"}}, performed.Groups)
	assert.True(t, run.Contact().InGroup("Subscribers"))
	assert.True(t, run.Contact().InGroup("M Club"))

	remove := &RemoveFromGroupsAction{Groups: []GroupRef{{ID: 1, Name: "Testers"}}}
	remove.Execute(runner, run, input)
	assert.False(t, run.Contact().InGroup("Testers"))

	// a name template which fails to evaluate means nothing is performed
	add = &AddToGroupsAction{Groups: []GroupRef{{Name: "@contact.xyz Club"}}}
	result = add.Execute(runner, run, input)
	assert.Nil(t, result.Performed)
	assert.Len(t, result.Errors, 1)
}

func TestAddLabelsAction(t *testing.T) {
	runner, run, _ := newTestEvalSetup(t)
	input := NewInput("red")

	action := &AddLabelsAction{Labels: []LabelRef{{ID: 123, Name: "Spam"}, {Name: "@contact.gender"}}}
	result := action.Execute(runner, run, input)

	performed := result.Performed.(*AddLabelsAction)
	assert.Equal(t, []LabelRef{{ID: 123, Name: "Spam"}, {Name: "M"}}, performed.Labels)
	assert.Empty(t, result.Errors)
}

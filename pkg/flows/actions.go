package flows

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	excellent "github.com/excellent-lang/excellent"
	"github.com/excellent-lang/excellent/pkg/telephony"
)

// Action is something an action set does when visited: send a message,
// update the contact, etc.
type Action interface {
	// Execute performs the action for the given run, returning the action
	// actually performed (with templates substituted) and any errors
	// encountered along the way.
	Execute(runner *Runner, run *RunState, input *Input) *ActionResult
}

// ActionResult holds the action actually performed, which is nil for a
// no-op, plus any template errors.
type ActionResult struct {
	Performed Action
	Errors    []string
}

func actionPerformed(action Action, errors []string) *ActionResult {
	return &ActionResult{Performed: action, Errors: errors}
}

func actionErrors(errors []string) *ActionResult {
	return &ActionResult{Errors: errors}
}

func actionNoop() *ActionResult {
	return &ActionResult{}
}

// readAction reads an action from its JSON form, dispatching on the type
// tag.
func readAction(elem gjson.Result) (Action, error) {
	actionType := elem.Get("type").String()

	switch actionType {
	case "reply":
		return &ReplyAction{Msg: translatableFromJSON(elem.Get("msg"))}, nil
	case "send":
		return &SendAction{
			Msg:       translatableFromJSON(elem.Get("msg")),
			Contacts:  readContactRefs(elem.Get("contacts")),
			Groups:    readGroupRefs(elem.Get("groups")),
			Variables: readVariableRefs(elem.Get("variables")),
		}, nil
	case "email":
		var addresses []string
		for _, addr := range elem.Get("emails").Array() {
			addresses = append(addresses, addr.String())
		}
		return &EmailAction{
			Addresses: addresses,
			Subject:   elem.Get("subject").String(),
			Msg:       elem.Get("msg").String(),
		}, nil
	case "save":
		return &SaveToContactAction{
			Field: elem.Get("field").String(),
			Label: elem.Get("label").String(),
			Value: elem.Get("value").String(),
		}, nil
	case "lang":
		return &SetLanguageAction{
			Lang: elem.Get("lang").String(),
			Name: elem.Get("name").String(),
		}, nil
	case "add_group":
		return &AddToGroupsAction{Groups: readGroupRefs(elem.Get("groups"))}, nil
	case "del_group":
		return &RemoveFromGroupsAction{Groups: readGroupRefs(elem.Get("groups"))}, nil
	case "add_label":
		return &AddLabelsAction{Labels: readLabelRefs(elem.Get("labels"))}, nil
	}
	return nil, parseErrorf("Unknown action type: %s", actionType)
}

// ContactRef is a reference to a contact by id and name.
type ContactRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GroupRef is a reference to a contact group. References without an id are
// name templates which are substituted at execution time.
type GroupRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// LabelRef is a reference to a message label. References without an id are
// name templates which are substituted at execution time.
type LabelRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// VariableRef is a reference to an expression-addressed recipient in a send
// action, e.g. "@contact.chw".
type VariableRef struct {
	Value string `json:"id"`
}

// NewContactVariable is the value of a variable which means the message
// creates a new contact.
const NewContactVariable = "@new_contact"

// IsNewContact returns whether this variable means "create a new contact".
func (v VariableRef) IsNewContact() bool {
	return strings.EqualFold(v.Value, NewContactVariable)
}

func readContactRefs(elem gjson.Result) []ContactRef {
	var refs []ContactRef
	for _, item := range elem.Array() {
		refs = append(refs, ContactRef{ID: item.Get("id").Int(), Name: item.Get("name").String()})
	}
	return refs
}

func readGroupRefs(elem gjson.Result) []GroupRef {
	var refs []GroupRef
	for _, item := range elem.Array() {
		if item.IsObject() {
			refs = append(refs, GroupRef{ID: item.Get("id").Int(), Name: item.Get("name").String()})
		} else {
			refs = append(refs, GroupRef{Name: item.String()})
		}
	}
	return refs
}

func readVariableRefs(elem gjson.Result) []VariableRef {
	var refs []VariableRef
	for _, item := range elem.Array() {
		refs = append(refs, VariableRef{Value: item.Get("id").String()})
	}
	return refs
}

func readLabelRefs(elem gjson.Result) []LabelRef {
	var refs []LabelRef
	for _, item := range elem.Array() {
		if item.IsObject() {
			refs = append(refs, LabelRef{ID: item.Get("id").Int(), Name: item.Get("name").String()})
		} else {
			refs = append(refs, LabelRef{Name: item.String()})
		}
	}
	return refs
}

// actionToJSON serializes an action with its type tag, for actions recorded
// on steps.
func actionToJSON(action Action) (json.RawMessage, error) {
	tagged := func(actionType string, action Action) (json.RawMessage, error) {
		inner, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		typeTag := []byte(`{"type":"` + actionType + `",`)
		if len(inner) == 2 { // action has no fields of its own
			typeTag = typeTag[:len(typeTag)-1]
		}
		return append(typeTag, inner[1:]...), nil
	}

	switch action.(type) {
	case *ReplyAction:
		return tagged("reply", action)
	case *SendAction:
		return tagged("send", action)
	case *EmailAction:
		return tagged("email", action)
	case *SaveToContactAction:
		return tagged("save", action)
	case *SetLanguageAction:
		return tagged("lang", action)
	case *AddToGroupsAction:
		return tagged("add_group", action)
	case *RemoveFromGroupsAction:
		return tagged("del_group", action)
	case *AddLabelsAction:
		return tagged("add_label", action)
	}
	return nil, parseErrorf("Unknown action type: %T", action)
}

// ReplyAction sends a message back to the contact who is in the flow.
type ReplyAction struct {
	Msg TranslatableText `json:"msg"`
}

func (a *ReplyAction) message() TranslatableText { return a.Msg }

func (a *ReplyAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	msg := run.localize(a.Msg, "")
	if msg == "" {
		return actionNoop()
	}

	context := run.BuildContext(runner, input)
	template := runner.SubstituteVariables(msg, context)
	return actionPerformed(&ReplyAction{Msg: NewText(template.Output)}, template.Errors)
}

// SendAction sends a message to other contacts, groups or
// expression-addressed recipients.
type SendAction struct {
	Msg       TranslatableText `json:"msg"`
	Contacts  []ContactRef     `json:"contacts"`
	Groups    []GroupRef       `json:"groups"`
	Variables []VariableRef    `json:"variables"`
}

func (a *SendAction) message() TranslatableText { return a.Msg }

func (a *SendAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	msg := run.localize(a.Msg, "")
	if msg == "" {
		return actionNoop()
	}

	context := run.BuildContext(runner, input)

	variables := make([]VariableRef, 0, len(a.Variables))
	var errors []string
	for _, variable := range a.Variables {
		if variable.IsNewContact() {
			variables = append(variables, variable)
			continue
		}
		varTpl := runner.SubstituteVariables(variable.Value, context)
		if varTpl.HasErrors() {
			errors = append(errors, varTpl.Errors...)
		} else {
			variables = append(variables, VariableRef{Value: varTpl.Output})
		}
	}

	// the message will be evaluated against each recipient, so @contact
	// can't be substituted yet
	msgTpl := runner.SubstituteVariablesIfAvailable(msg, run.buildContext(runner, input, false))
	errors = append(errors, msgTpl.Errors...)

	performed := &SendAction{Msg: NewText(msgTpl.Output), Contacts: a.Contacts, Groups: a.Groups, Variables: variables}
	return actionPerformed(performed, errors)
}

// EmailAction sends an email. The subject, message and each address are all
// templates.
type EmailAction struct {
	Addresses []string `json:"emails"`
	Subject   string   `json:"subject"`
	Msg       string   `json:"msg"`
}

// subjects can't contain line breaks
var subjectNewlines = strings.NewReplacer("\n", " ", "\r", "")

func (a *EmailAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	context := run.BuildContext(runner, input)

	subjectTpl := runner.SubstituteVariables(a.Subject, context)
	msgTpl := runner.SubstituteVariables(a.Msg, context)

	errors := append([]string{}, subjectTpl.Errors...)
	errors = append(errors, msgTpl.Errors...)

	subject := subjectNewlines.Replace(subjectTpl.Output)

	addresses := make([]string, len(a.Addresses))
	for r, address := range a.Addresses {
		addrTpl := runner.SubstituteVariables(address, context)
		addresses[r] = addrTpl.Output
		errors = append(errors, addrTpl.Errors...)
	}

	performed := &EmailAction{Addresses: addresses, Subject: subject, Msg: msgTpl.Output}
	return actionPerformed(performed, errors)
}

// lengths that contact names and field values are truncated to
const (
	maxNameLength  = 128
	maxValueLength = 640
)

// SaveToContactAction saves an evaluated expression to the contact: their
// name, phone number or a custom field.
type SaveToContactAction struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

func (a *SaveToContactAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	context := run.BuildContext(runner, input)

	valueTpl := runner.SubstituteVariables(a.Value, context)
	if valueTpl.HasErrors() {
		return actionErrors(valueTpl.Errors)
	}

	value := strings.TrimSpace(valueTpl.Output)
	var errors []string
	label := a.Label

	switch a.Field {
	case "name":
		value = truncate(value, maxNameLength)
		label = "Contact Name"
		run.contact.Name = value
	case "first_name":
		value = truncate(value, maxNameLength)
		label = "First Name"
		run.contact.SetFirstName(value)
	case "tel_e164":
		value = truncate(value, maxNameLength)
		label = "Phone Number"
		normalized, _ := telephony.Normalize(value, run.org.Country)
		run.contact.URNs = append(run.contact.URNs, URN{Scheme: SchemeTel, Path: normalized})
	default:
		value = truncate(value, maxValueLength)
		if _, err := runner.UpdateContactField(run, a.Field, value, a.Label); err != nil {
			errors = append(errors, err.Error())
		}
	}

	return actionPerformed(&SaveToContactAction{Field: a.Field, Label: label, Value: value}, errors)
}

func truncate(value string, length int) string {
	if len(value) > length {
		return value[:length]
	}
	return value
}

// SetLanguageAction sets the contact's preferred language.
type SetLanguageAction struct {
	Lang string `json:"lang"`
	Name string `json:"name"`
}

func (a *SetLanguageAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	if len(a.Lang) == 3 {
		run.contact.Language = a.Lang
	} else {
		run.contact.Language = ""
	}
	return actionPerformed(a, nil)
}

// resolveGroupRefs substitutes the name templates of unnamed group
// references.
func resolveGroupRefs(runner *Runner, context *excellent.EvaluationContext, refs []GroupRef) ([]GroupRef, []string) {
	groups := make([]GroupRef, 0, len(refs))
	var errors []string
	for _, ref := range refs {
		if ref.ID == 0 {
			nameTpl := runner.SubstituteVariables(ref.Name, context)
			if nameTpl.HasErrors() {
				errors = append(errors, nameTpl.Errors...)
			} else {
				groups = append(groups, GroupRef{Name: nameTpl.Output})
			}
		} else {
			groups = append(groups, ref)
		}
	}
	return groups, errors
}

// AddToGroupsAction adds the contact to groups.
type AddToGroupsAction struct {
	Groups []GroupRef `json:"groups"`
}

func (a *AddToGroupsAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	context := run.BuildContext(runner, input)
	groups, errors := resolveGroupRefs(runner, context, a.Groups)

	if len(groups) > 0 {
		for _, group := range groups {
			run.contact.AddToGroup(group.Name)
		}
		return actionPerformed(&AddToGroupsAction{Groups: groups}, errors)
	}
	return actionErrors(errors)
}

// RemoveFromGroupsAction removes the contact from groups.
type RemoveFromGroupsAction struct {
	Groups []GroupRef `json:"groups"`
}

func (a *RemoveFromGroupsAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	context := run.BuildContext(runner, input)
	groups, errors := resolveGroupRefs(runner, context, a.Groups)

	if len(groups) > 0 {
		for _, group := range groups {
			run.contact.RemoveFromGroup(group.Name)
		}
		return actionPerformed(&RemoveFromGroupsAction{Groups: groups}, errors)
	}
	return actionErrors(errors)
}

// AddLabelsAction labels the incoming message.
type AddLabelsAction struct {
	Labels []LabelRef `json:"labels"`
}

func (a *AddLabelsAction) Execute(runner *Runner, run *RunState, input *Input) *ActionResult {
	context := run.BuildContext(runner, input)

	labels := make([]LabelRef, 0, len(a.Labels))
	var errors []string
	for _, ref := range a.Labels {
		if ref.ID == 0 {
			nameTpl := runner.SubstituteVariables(ref.Name, context)
			if nameTpl.HasErrors() {
				errors = append(errors, nameTpl.Errors...)
			} else {
				labels = append(labels, LabelRef{Name: nameTpl.Output})
			}
		} else {
			labels = append(labels, ref)
		}
	}

	if len(labels) > 0 {
		return actionPerformed(&AddLabelsAction{Labels: labels}, errors)
	}
	return actionErrors(errors)
}

package flows

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	excellent "github.com/excellent-lang/excellent"
	"github.com/excellent-lang/excellent/pkg/dates"
)

// State of a flow run.
type State string

const (
	StateInProgress  State = "in_progress"
	StateCompleted   State = "completed"
	StateWaitMessage State = "wait_message"
)

// jsonTimeLayout is how instants appear on the wire: UTC with millisecond
// precision.
const jsonTimeLayout = "2006-01-02T15:04:05.000Z"

func formatJSONTime(t time.Time) string {
	return t.UTC().Format(jsonTimeLayout)
}

func parseJSONTime(raw string) (time.Time, error) {
	return time.Parse(jsonTimeLayout, raw)
}

// Value is the result of a rule set evaluation, saved against the slug of
// the rule set label so that flows can refer back to it, e.g. @flow.color.
type Value struct {
	Value    string
	Category string
	Text     string
	Time     time.Time
}

type valueEnvelope struct {
	Value    string `json:"value"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Time     string `json:"time"`
}

func (v *Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(&valueEnvelope{v.Value, v.Category, v.Text, formatJSONTime(v.Time)})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	envelope := &valueEnvelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return err
	}
	t, err := parseJSONTime(envelope.Time)
	if err != nil {
		return err
	}
	*v = Value{Value: envelope.Value, Category: envelope.Category, Text: envelope.Text, Time: t}
	return nil
}

// BuildContext builds the expression context for this value, i.e. what
// @flow.X.Y references resolve against.
func (v *Value) BuildContext(env *excellent.EvaluationContext) map[string]any {
	asTime, _ := excellent.ToString(v.Time.In(env.Timezone()), env)
	return map[string]any{
		"*":        v.Value,
		"value":    v.Value,
		"category": v.Category,
		"text":     v.Text,
		"time":     asTime,
	}
}

// RuleResult records which rule matched at a rule set and the value and
// category it produced.
type RuleResult struct {
	Rule     *Rule
	Value    string
	Category string
	Text     string
}

// Step is a single visit to a node during a run.
type Step struct {
	node       Node
	arrivedOn  time.Time
	leftOn     time.Time // zero while the run is still at this node
	ruleResult *RuleResult
	actions    []Action
	errors     []string
}

// Node returns the node this step visited.
func (s *Step) Node() Node {
	return s.node
}

// ArrivedOn returns when the run arrived at this node.
func (s *Step) ArrivedOn() time.Time {
	return s.arrivedOn
}

// LeftOn returns when the run left this node, or the zero time if it hasn't.
func (s *Step) LeftOn() time.Time {
	return s.leftOn
}

// RuleResult returns the rule match made at this step, if the node was a
// rule set.
func (s *Step) RuleResult() *RuleResult {
	return s.ruleResult
}

// Actions returns the actions performed at this step.
func (s *Step) Actions() []Action {
	return s.actions
}

// Errors returns the template errors collected at this step.
func (s *Step) Errors() []string {
	return s.errors
}

// IsCompleted returns whether the run has left this node.
func (s *Step) IsCompleted() bool {
	return !s.leftOn.IsZero()
}

func (s *Step) addActionResult(result *ActionResult) {
	if result.Performed != nil {
		s.actions = append(s.actions, result.Performed)
	}
	s.errors = append(s.errors, result.Errors...)
}

type ruleResultEnvelope struct {
	UUID     string `json:"uuid"`
	Value    string `json:"value"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

type stepEnvelope struct {
	Node      string              `json:"node"`
	ArrivedOn string              `json:"arrived_on"`
	LeftOn    *string             `json:"left_on"`
	Rule      *ruleResultEnvelope `json:"rule"`
	Actions   []json.RawMessage   `json:"actions"`
	Errors    []string            `json:"errors"`
}

func (s *Step) MarshalJSON() ([]byte, error) {
	envelope := &stepEnvelope{
		Node:      s.node.UUID(),
		ArrivedOn: formatJSONTime(s.arrivedOn),
		Errors:    s.errors,
	}
	if !s.leftOn.IsZero() {
		leftOn := formatJSONTime(s.leftOn)
		envelope.LeftOn = &leftOn
	}
	if s.ruleResult != nil {
		envelope.Rule = &ruleResultEnvelope{
			UUID:     s.ruleResult.Rule.UUID(),
			Value:    s.ruleResult.Value,
			Category: s.ruleResult.Category,
			Text:     s.ruleResult.Text,
		}
	}
	for _, action := range s.actions {
		raw, err := actionToJSON(action)
		if err != nil {
			return nil, err
		}
		envelope.Actions = append(envelope.Actions, raw)
	}
	return json.Marshal(envelope)
}

func stepFromEnvelope(envelope *stepEnvelope, flow *Flow) (*Step, error) {
	node, ok := flow.ElementByUUID(envelope.Node).(Node)
	if !ok {
		return nil, parseErrorf("Invalid step node: %s", envelope.Node)
	}

	arrivedOn, err := parseJSONTime(envelope.ArrivedOn)
	if err != nil {
		return nil, err
	}

	step := &Step{node: node, arrivedOn: arrivedOn, errors: envelope.Errors}

	if envelope.LeftOn != nil {
		if step.leftOn, err = parseJSONTime(*envelope.LeftOn); err != nil {
			return nil, err
		}
	}
	if envelope.Rule != nil {
		rule, ok := flow.ElementByUUID(envelope.Rule.UUID).(*Rule)
		if !ok {
			return nil, parseErrorf("Invalid step rule: %s", envelope.Rule.UUID)
		}
		step.ruleResult = &RuleResult{
			Rule:     rule,
			Value:    envelope.Rule.Value,
			Category: envelope.Rule.Category,
			Text:     envelope.Rule.Text,
		}
	}
	for _, raw := range envelope.Actions {
		action, err := readAction(gjson.ParseBytes(raw))
		if err != nil {
			return nil, err
		}
		step.actions = append(step.actions, action)
	}
	return step, nil
}

// RunState is the state of a contact's run through a flow: the steps taken,
// the values saved by rule sets, and whether the run is in progress, waiting
// for input or completed.
type RunState struct {
	org     *Org
	fields  []*Field
	contact *Contact
	flow    *Flow
	started time.Time
	steps   []*Step
	values  map[string]*Value
	extra   map[string]string
	state   State
}

// NewRunState creates the state for a new run of the given flow.
func NewRunState(org *Org, fields []*Field, contact *Contact, flow *Flow, started time.Time) *RunState {
	return &RunState{
		org:     org,
		fields:  fields,
		contact: contact,
		flow:    flow,
		started: started,
		values:  map[string]*Value{},
		extra:   map[string]string{},
		state:   StateInProgress,
	}
}

// Org returns the org settings for this run.
func (r *RunState) Org() *Org {
	return r.org
}

// Fields returns the contact fields known to this run, including any created
// during it.
func (r *RunState) Fields() []*Field {
	return r.fields
}

// Contact returns the contact making this run.
func (r *RunState) Contact() *Contact {
	return r.contact
}

// Flow returns the flow being run.
func (r *RunState) Flow() *Flow {
	return r.flow
}

// Started returns when the run started.
func (r *RunState) Started() time.Time {
	return r.started
}

// Steps returns the steps taken since the last resume.
func (r *RunState) Steps() []*Step {
	return r.steps
}

// GetCompletedSteps returns the fully traversed steps, i.e. those the
// contact has left, plus the final step of a completed run.
func (r *RunState) GetCompletedSteps() []*Step {
	var completed []*Step
	for _, step := range r.steps {
		if step.IsCompleted() || r.state == StateCompleted {
			completed = append(completed, step)
		}
	}
	return completed
}

// Values returns the values saved by rule sets, keyed by label slug.
func (r *RunState) Values() map[string]*Value {
	return r.values
}

// Extra returns the free-form key value store, e.g. regex match groups.
func (r *RunState) Extra() map[string]string {
	return r.extra
}

// State returns whether the run is in progress, waiting or completed.
func (r *RunState) State() State {
	return r.state
}

var valueKeyRegex = regexp.MustCompile(`[^a-z0-9]+`)

// updateValue saves a rule match result against the slug of the rule set
// label.
func (r *RunState) updateValue(ruleSet *RuleSet, result *RuleResult, t time.Time) {
	key := valueKeyRegex.ReplaceAllString(strings.ToLower(ruleSet.label), "_")
	r.values[key] = &Value{Value: result.Value, Category: result.Category, Text: result.Text, Time: t}
}

// PreferredLanguages returns the languages to localize text in, in order of
// preference: the contact language, the org primary language, then the flow
// base language.
func (r *RunState) PreferredLanguages() []string {
	var languages []string
	if r.contact.Language != "" {
		languages = append(languages, r.contact.Language)
	}
	if r.org.PrimaryLanguage != "" {
		languages = append(languages, r.org.PrimaryLanguage)
	}
	if r.flow.baseLanguage != "" {
		languages = append(languages, r.flow.baseLanguage)
	}
	return languages
}

func (r *RunState) localize(text TranslatableText, defaultText string) string {
	return text.Localized(r.PreferredLanguages(), defaultText)
}

// BuildContext builds the top-level expression context for this run: @step,
// @date, @contact, @extra and @flow.
func (r *RunState) BuildContext(runner *Runner, input *Input) *excellent.EvaluationContext {
	return r.buildContext(runner, input, true)
}

func (r *RunState) buildContext(runner *Runner, input *Input, includeContact bool) *excellent.EvaluationContext {
	context := excellent.NewEvaluationContext(map[string]any{}, r.org.Timezone, r.org.DateStyle)
	context.SetNow(runner.clockNow())

	contactContext := r.contact.BuildContext(r.org)

	if input != nil {
		context.Put("step", input.BuildContext(context, contactContext))
	}
	context.Put("date", buildDateContext(context))
	if includeContact {
		context.Put("contact", contactContext)
	}

	extra := make(map[string]any, len(r.extra))
	for key, value := range r.extra {
		extra[key] = value
	}
	context.Put("extra", extra)
	context.Put("flow", r.buildFlowContext(context))

	return context
}

// buildFlowContext builds the @flow context from the saved values, with the
// default being one "key: value" line per value.
func (r *RunState) buildFlowContext(env *excellent.EvaluationContext) map[string]any {
	keys := make([]string, 0, len(r.values))
	for key := range r.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	flowContext := make(map[string]any, len(r.values)+1)
	lines := make([]string, 0, len(r.values))
	for _, key := range keys {
		value := r.values[key]
		flowContext[key] = value.BuildContext(env)
		lines = append(lines, key+": "+value.Value)
	}
	flowContext["*"] = strings.Join(lines, "\n")
	return flowContext
}

// buildDateContext builds the @date context, i.e. @date.now, @date.today.
func buildDateContext(env *excellent.EvaluationContext) map[string]any {
	now := env.Now()
	today := dates.DateFromTime(now)

	asDateTime, _ := excellent.ToString(now, env)
	asDate, _ := excellent.ToString(today, env)
	tomorrow, _ := excellent.ToString(today.AddDays(1), env)
	yesterday, _ := excellent.ToString(today.AddDays(-1), env)

	return map[string]any{
		"*":         asDateTime,
		"now":       asDateTime,
		"today":     asDate,
		"tomorrow":  tomorrow,
		"yesterday": yesterday,
	}
}

// getOrCreateField finds a contact field by key, creating it when the flow
// saves to a field which doesn't exist yet.
func (r *RunState) getOrCreateField(key, label string, valueType ValueType) (*Field, error) {
	if key == "" && label == "" {
		return nil, fmt.Errorf("must provide either key or label")
	}

	if key != "" {
		for _, field := range r.fields {
			if field.Key == key {
				return field, nil
			}
		}
	} else {
		key = MakeFieldKey(label)
	}

	if label == "" {
		label = titleCase(fieldLabelCleanRegex.ReplaceAllString(key, " "))
	}

	field, err := NewField(key, label, valueType)
	if err != nil {
		return nil, err
	}
	field.isNew = true
	r.fields = append(r.fields, field)
	return field, nil
}

// GetCreatedFields returns the fields created during this run.
func (r *RunState) GetCreatedFields() []*Field {
	var created []*Field
	for _, field := range r.fields {
		if field.isNew {
			created = append(created, field)
		}
	}
	return created
}

type runStateEnvelope struct {
	Org     *Org              `json:"org"`
	Fields  []*Field          `json:"fields"`
	Contact *Contact          `json:"contact"`
	Started string            `json:"started"`
	Steps   []json.RawMessage `json:"steps"`
	Values  map[string]*Value `json:"values"`
	Extra   map[string]string `json:"extra"`
	State   State             `json:"state"`
}

// MarshalJSON serializes this run state, referencing flow nodes by UUID. The
// flow definition itself is not included and must be provided again when the
// state is restored.
func (r *RunState) MarshalJSON() ([]byte, error) {
	envelope := &runStateEnvelope{
		Org:     r.org,
		Fields:  r.fields,
		Contact: r.contact,
		Started: formatJSONTime(r.started),
		Values:  r.values,
		Extra:   r.extra,
		State:   r.state,
	}
	for _, step := range r.steps {
		raw, err := json.Marshal(step)
		if err != nil {
			return nil, err
		}
		envelope.Steps = append(envelope.Steps, raw)
	}
	return json.Marshal(envelope)
}

// ReadRunState restores a run state from JSON, resolving node references
// against the given flow.
func ReadRunState(flow *Flow, data []byte) (*RunState, error) {
	envelope := &runStateEnvelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, fmt.Errorf("reading run state: %w", err)
	}

	started, err := parseJSONTime(envelope.Started)
	if err != nil {
		return nil, fmt.Errorf("reading run state: %w", err)
	}

	run := &RunState{
		org:     envelope.Org,
		fields:  envelope.Fields,
		contact: envelope.Contact,
		flow:    flow,
		started: started,
		values:  envelope.Values,
		extra:   envelope.Extra,
		state:   envelope.State,
	}
	if run.values == nil {
		run.values = map[string]*Value{}
	}
	if run.extra == nil {
		run.extra = map[string]string{}
	}

	for _, raw := range envelope.Steps {
		stepEnv := &stepEnvelope{}
		if err := json.Unmarshal(raw, stepEnv); err != nil {
			return nil, fmt.Errorf("reading run state: %w", err)
		}
		step, err := stepFromEnvelope(stepEnv, flow)
		if err != nil {
			return nil, err
		}
		run.steps = append(run.steps, step)
	}
	return run, nil
}

package flows

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"

	excellent "github.com/excellent-lang/excellent"
)

// SpecVersions are the flow definition versions the parser accepts.
var SpecVersions = map[int64]bool{7: true, 8: true}

// FlowType distinguishes the kinds of flow, serialized by single letter
// codes.
type FlowType string

const (
	FlowTypeFlow    FlowType = "F"
	FlowTypeMessage FlowType = "M"
	FlowTypeVoice   FlowType = "V"
	FlowTypeSurvey  FlowType = "S"
)

// Element is anything in a flow definition with a UUID.
type Element interface {
	UUID() string
}

// Node is an element which can be a destination in the flow graph, i.e. an
// action set or a rule set. Visiting a node returns the next node to move
// to, or nil if the flow ends there.
type Node interface {
	Element
	visit(runner *Runner, run *RunState, step *Step, input *Input) Node
}

// Flow is a flow definition: a directed graph of action sets and rule sets,
// parsed from JSON.
type Flow struct {
	flowType     FlowType
	baseLanguage string
	languages    []string
	entry        Node
	elements     map[string]Element
	definition   []byte
}

// destination records a node UUID to be wired up once every element of the
// definition has been registered.
type destination struct {
	uuid string
	set  func(Node)
}

// ReadFlow reads a flow from a JSON flow definition.
func ReadFlow(data []byte) (*Flow, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ParseError{Message: "Flow definition is not valid JSON"}
	}
	root := gjson.ParseBytes(data)

	version := root.Get("version")
	if !version.Exists() {
		return nil, &ParseError{Message: "Missing flow spec version"}
	}
	if !SpecVersions[version.Int()] {
		return nil, parseErrorf("Unsupported flow spec version: %s", version.String())
	}

	flow := &Flow{
		flowType:     FlowType(root.Get("flow_type").String()),
		baseLanguage: root.Get("base_language").String(),
		elements:     map[string]Element{},
		definition:   append([]byte(nil), data...),
	}

	// keep an exhaustive record of the languages used in the definition
	languages := map[string]bool{}
	var wiring []destination

	for _, elem := range root.Get("action_sets").Array() {
		actionSet, err := readActionSet(elem, &wiring)
		if err != nil {
			return nil, err
		}
		flow.elements[actionSet.uuid] = actionSet

		for _, action := range actionSet.actions {
			if withMsg, ok := action.(interface{ message() TranslatableText }); ok {
				for _, lang := range withMsg.message().Languages() {
					languages[lang] = true
				}
			}
		}
	}

	for _, elem := range root.Get("rule_sets").Array() {
		ruleSet, err := readRuleSet(elem, &wiring)
		if err != nil {
			return nil, err
		}
		flow.elements[ruleSet.uuid] = ruleSet

		for _, rule := range ruleSet.rules {
			flow.elements[rule.uuid] = rule
			for _, lang := range rule.category.Languages() {
				languages[lang] = true
			}
		}
	}

	// destinations are serialized as UUIDs so can only be wired up once all
	// nodes are registered
	for _, dest := range wiring {
		node, ok := flow.elements[dest.uuid].(Node)
		if !ok {
			return nil, parseErrorf("Invalid destination: %s", dest.uuid)
		}
		dest.set(node)
	}

	// only accept languages that are ISO 639-2 (alpha3)
	for lang := range languages {
		if len(lang) == 3 {
			flow.languages = append(flow.languages, lang)
		}
	}
	sort.Strings(flow.languages)

	if entryUUID := root.Get("entry").String(); entryUUID != "" {
		entry, ok := flow.elements[entryUUID].(Node)
		if !ok {
			return nil, parseErrorf("Invalid entry point: %s", entryUUID)
		}
		flow.entry = entry
	}

	return flow, nil
}

// Type returns the kind of flow this is.
func (f *Flow) Type() FlowType {
	return f.flowType
}

// BaseLanguage returns the language the flow was authored in.
func (f *Flow) BaseLanguage() string {
	return f.baseLanguage
}

// Languages returns all the 3-letter languages present in the definition.
func (f *Flow) Languages() []string {
	return f.languages
}

// Entry returns the node where runs of this flow begin.
func (f *Flow) Entry() Node {
	return f.entry
}

// ElementByUUID returns the action set, rule set or rule with the given
// UUID, or nil.
func (f *Flow) ElementByUUID(uuid string) Element {
	return f.elements[uuid]
}

// Definition returns the JSON definition this flow was read from.
func (f *Flow) Definition() []byte {
	return f.definition
}

// ActionSet is a flow node holding an ordered list of actions to perform,
// with a single exit.
type ActionSet struct {
	uuid        string
	actions     []Action
	destination Node
}

func readActionSet(elem gjson.Result, wiring *[]destination) (*ActionSet, error) {
	set := &ActionSet{uuid: elem.Get("uuid").String()}

	for _, actionElem := range elem.Get("actions").Array() {
		action, err := readAction(actionElem)
		if err != nil {
			return nil, err
		}
		set.actions = append(set.actions, action)
	}

	if destUUID := elem.Get("destination").String(); destUUID != "" {
		*wiring = append(*wiring, destination{destUUID, func(n Node) { set.destination = n }})
	}
	return set, nil
}

// UUID returns the UUID of this action set.
func (s *ActionSet) UUID() string {
	return s.uuid
}

// Actions returns the actions performed when this node is visited.
func (s *ActionSet) Actions() []Action {
	return s.actions
}

// Destination returns the node visited after this one, or nil.
func (s *ActionSet) Destination() Node {
	return s.destination
}

func (s *ActionSet) visit(runner *Runner, run *RunState, step *Step, input *Input) Node {
	runner.logger.Debug("visiting action set", "uuid", s.uuid, "contact", run.contact.UUID)

	for _, action := range s.actions {
		step.addActionResult(action.Execute(runner, run, input))
	}
	return s.destination
}

// RuleSetType is the kind of a rule set, which determines where its operand
// comes from and whether the run pauses for input when it reaches it.
type RuleSetType string

const (
	RuleSetTypeWaitMessage   RuleSetType = "wait_message"
	RuleSetTypeWaitRecording RuleSetType = "wait_recording"
	RuleSetTypeWaitDigit     RuleSetType = "wait_digit"
	RuleSetTypeWaitDigits    RuleSetType = "wait_digits"
	RuleSetTypeWebhook       RuleSetType = "webhook"
	RuleSetTypeFlowField     RuleSetType = "flow_field"
	RuleSetTypeFormField     RuleSetType = "form_field"
	RuleSetTypeContactField  RuleSetType = "contact_field"
	RuleSetTypeExpression    RuleSetType = "expression"
)

var ruleSetTypes = map[RuleSetType]bool{
	RuleSetTypeWaitMessage: true, RuleSetTypeWaitRecording: true,
	RuleSetTypeWaitDigit: true, RuleSetTypeWaitDigits: true,
	RuleSetTypeWebhook: true, RuleSetTypeFlowField: true,
	RuleSetTypeFormField: true, RuleSetTypeContactField: true,
	RuleSetTypeExpression: true,
}

// RuleSet is a flow node holding an ordered list of rules, each with its own
// destination.
type RuleSet struct {
	uuid        string
	rulesetType RuleSetType
	label       string
	operand     string
	config      map[string]any
	rules       []*Rule
}

func readRuleSet(elem gjson.Result, wiring *[]destination) (*RuleSet, error) {
	rulesetType := RuleSetType(elem.Get("ruleset_type").String())
	if !ruleSetTypes[rulesetType] {
		return nil, parseErrorf("Unknown ruleset type: %s", rulesetType)
	}

	set := &RuleSet{
		uuid:        elem.Get("uuid").String(),
		rulesetType: rulesetType,
		label:       elem.Get("label").String(),
		operand:     elem.Get("operand").String(),
	}
	if config, ok := elem.Get("config").Value().(map[string]any); ok {
		set.config = config
	}

	for _, ruleElem := range elem.Get("rules").Array() {
		rule, err := readRule(ruleElem, wiring)
		if err != nil {
			return nil, err
		}
		set.rules = append(set.rules, rule)
	}
	return set, nil
}

// UUID returns the UUID of this rule set.
func (s *RuleSet) UUID() string {
	return s.uuid
}

// Type returns the kind of rule set this is.
func (s *RuleSet) Type() RuleSetType {
	return s.rulesetType
}

// Label returns the label whose slug keys the value this rule set saves.
func (s *RuleSet) Label() string {
	return s.label
}

// Operand returns the template whose evaluation is matched against the
// rules, e.g. "@step.value".
func (s *RuleSet) Operand() string {
	return s.operand
}

// Rules returns the rules in the order they are tried.
func (s *RuleSet) Rules() []*Rule {
	return s.rules
}

// IsPause returns whether a run should wait for input when it reaches this
// rule set.
func (s *RuleSet) IsPause() bool {
	switch s.rulesetType {
	case RuleSetTypeWaitMessage, RuleSetTypeWaitRecording, RuleSetTypeWaitDigit, RuleSetTypeWaitDigits:
		return true
	}
	return false
}

func (s *RuleSet) visit(runner *Runner, run *RunState, step *Step, input *Input) Node {
	runner.logger.Debug("visiting rule set", "uuid", s.uuid, "contact", run.contact.UUID)

	input.Consume()

	context := run.BuildContext(runner, input)

	rule, testResult := s.findMatchingRule(runner, run, context)
	if rule == nil {
		return nil
	}

	// get the category in the flow base language
	category := rule.category.Localized([]string{run.flow.baseLanguage}, "")

	value, _ := excellent.ToString(testResult.Value, context)
	result := &RuleResult{Rule: rule, Value: value, Category: category, Text: input.ValueAsText(context)}
	step.ruleResult = result

	valueTime := input.Time()
	if valueTime.IsZero() {
		valueTime = context.Now()
	}
	run.updateValue(s, result, valueTime)

	return rule.destination
}

// findMatchingRule evaluates the operand and runs through the rules to find
// the first that matches.
func (s *RuleSet) findMatchingRule(runner *Runner, run *RunState, context *excellent.EvaluationContext) (*Rule, TestResult) {
	operand := s.operand

	// for form fields, construct the operand as a field expression
	if s.rulesetType == RuleSetTypeFormField {
		config := struct {
			FieldDelimiter string `mapstructure:"field_delimiter"`
			FieldIndex     int    `mapstructure:"field_index"`
		}{FieldDelimiter: " "}
		decoder, _ := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &config})
		if err := decoder.Decode(s.config); err == nil {
			operand = fmt.Sprintf("@(FIELD(%s, %d, \"%s\"))", strings.TrimPrefix(s.operand, "@"), config.FieldIndex+1, config.FieldDelimiter)
		}
	}

	operand = runner.SubstituteVariables(operand, context).Output

	for _, rule := range s.rules {
		if result := rule.Matches(runner, run, context, operand); result.Matched {
			return rule, result
		}
	}
	return nil, TestResult{}
}

// Rule is a matchable rule in a rule set.
type Rule struct {
	uuid        string
	test        Test
	category    TranslatableText
	destination Node
}

func readRule(elem gjson.Result, wiring *[]destination) (*Rule, error) {
	test, err := readTest(elem.Get("test"))
	if err != nil {
		return nil, err
	}

	rule := &Rule{
		uuid:     elem.Get("uuid").String(),
		test:     test,
		category: translatableFromJSON(elem.Get("category")),
	}

	if destUUID := elem.Get("destination").String(); destUUID != "" {
		*wiring = append(*wiring, destination{destUUID, func(n Node) { rule.destination = n }})
	}
	return rule, nil
}

// UUID returns the UUID of this rule.
func (r *Rule) UUID() string {
	return r.uuid
}

// Test returns the test which decides whether this rule matches.
func (r *Rule) Test() Test {
	return r.test
}

// Category returns the localized category saved when this rule matches.
func (r *Rule) Category() TranslatableText {
	return r.category
}

// Destination returns the node visited when this rule matches, or nil.
func (r *Rule) Destination() Node {
	return r.destination
}

// Matches evaluates this rule's test against the given input text.
func (r *Rule) Matches(runner *Runner, run *RunState, context *excellent.EvaluationContext, input string) TestResult {
	return r.test.Evaluate(runner, run, context, input)
}

package flows

import (
	"log/slog"
	"time"

	excellent "github.com/excellent-lang/excellent"
	"github.com/excellent-lang/excellent/internal/logging"
	"github.com/excellent-lang/excellent/pkg/telephony"
)

// PhoneResolver finds phone numbers in input text. The default resolver uses
// libphonenumber.
type PhoneResolver interface {
	// FindNumber returns the first valid number found in the text for the
	// given 2-letter country code, in E.164 format.
	FindNumber(text, country string) (string, bool)
}

type defaultPhoneResolver struct{}

func (defaultPhoneResolver) FindNumber(text, country string) (string, bool) {
	return telephony.Find(text, country)
}

// Listener is notified of runner events, e.g. for metrics collection.
type Listener interface {
	RunStarted(run *RunState)
	RunResumed(run *RunState)
	NodeVisited(run *RunState, step *Step)
	RunPaused(run *RunState)
	RunCompleted(run *RunState)
}

// Runner walks contacts through flows.
type Runner struct {
	evaluator *excellent.Evaluator
	locations LocationResolver
	phones    PhoneResolver
	now       time.Time // zero means wall clock
	logger    *slog.Logger
	listeners []Listener
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLocationResolver sets the resolver used by location rules and
// location-typed contact fields.
func WithLocationResolver(resolver LocationResolver) RunnerOption {
	return func(r *Runner) { r.locations = resolver }
}

// WithPhoneResolver replaces how phone rules find numbers in input.
func WithPhoneResolver(resolver PhoneResolver) RunnerOption {
	return func(r *Runner) { r.phones = resolver }
}

// WithNow pins the instant the runner evaluates expressions and records
// steps against.
func WithNow(now time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithListener registers a listener for runner events.
func WithListener(listener Listener) RunnerOption {
	return func(r *Runner) { r.listeners = append(r.listeners, listener) }
}

// NewRunner creates a new flow runner.
func NewRunner(options ...RunnerOption) *Runner {
	runner := &Runner{
		evaluator: excellent.NewEvaluator(
			excellent.WithAllowedTopLevels("step", "date", "contact", "extra", "flow"),
		),
		phones: defaultPhoneResolver{},
		logger: logging.NewNop(),
	}
	for _, option := range options {
		option(runner)
	}
	return runner
}

// Start starts a new run of the given flow by the given contact.
func (r *Runner) Start(org *Org, fields []*Field, contact *Contact, flow *Flow) (*RunState, error) {
	run := NewRunState(org, fields, contact, flow, r.clockNow())

	r.logger.Info("starting run", "contact", contact.UUID)
	for _, listener := range r.listeners {
		listener.RunStarted(run)
	}
	return r.resume(run, nil)
}

// Resume resumes a waiting run with new input from the contact.
func (r *Runner) Resume(run *RunState, input *Input) (*RunState, error) {
	r.logger.Info("resuming run", "contact", run.contact.UUID, "state", string(run.state))
	for _, listener := range r.listeners {
		listener.RunResumed(run)
	}
	return r.resume(run, input)
}

func (r *Runner) resume(run *RunState, input *Input) (*RunState, error) {
	if run.state == StateCompleted {
		return nil, &RunError{Message: "Cannot resume a completed run"}
	}

	var lastStep *Step
	if len(run.steps) > 0 {
		lastStep = run.steps[len(run.steps)-1]
	}

	// reset steps so the list doesn't grow forever in a long flow
	run.steps = nil

	var currentNode Node
	if lastStep != nil {
		currentNode = lastStep.node
	} else {
		currentNode = run.flow.entry
		if currentNode == nil {
			return nil, &RunError{Message: "Flow has no entry point"}
		}
	}

	// track nodes visited so we can detect loops
	var visited []string
	visitedSet := map[string]bool{}

	for currentNode != nil {
		// when resuming a previously paused step, keep its arrival time
		var arrivedOn time.Time
		if lastStep != nil && len(visited) == 0 {
			arrivedOn = lastStep.arrivedOn
		} else {
			arrivedOn = r.clockNow()
		}

		step := &Step{node: currentNode, arrivedOn: arrivedOn}
		run.steps = append(run.steps, step)

		// should we pause at this node?
		if ruleSet, ok := currentNode.(*RuleSet); ok {
			if ruleSet.IsPause() && input.Consumed() {
				run.state = StateWaitMessage

				r.logger.Debug("pausing run", "node", currentNode.UUID())
				for _, listener := range r.listeners {
					listener.RunPaused(run)
				}
				return run, nil
			}
		}

		if visitedSet[currentNode.UUID()] {
			return nil, &LoopError{Path: visited}
		}
		visited = append(visited, currentNode.UUID())
		visitedSet[currentNode.UUID()] = true

		nextNode := currentNode.visit(r, run, step, input)
		for _, listener := range r.listeners {
			listener.NodeVisited(run, step)
		}

		if nextNode != nil {
			step.leftOn = r.clockNow()
		} else {
			run.state = StateCompleted

			r.logger.Info("run completed", "contact", run.contact.UUID)
			for _, listener := range r.listeners {
				listener.RunCompleted(run)
			}
		}
		currentNode = nextNode
	}

	return run, nil
}

// SubstituteVariables performs template substitution on the given text.
func (r *Runner) SubstituteVariables(text string, context *excellent.EvaluationContext) *excellent.EvaluatedTemplate {
	return r.evaluator.EvaluateTemplate(text, context, false, excellent.ResolveComplete)
}

// SubstituteVariablesIfAvailable performs partial template substitution,
// keeping references which can't be resolved yet so the text can be
// evaluated again later.
func (r *Runner) SubstituteVariablesIfAvailable(text string, context *excellent.EvaluationContext) *excellent.EvaluatedTemplate {
	return r.evaluator.EvaluateTemplate(text, context, false, excellent.ResolveAvailable)
}

// ParseLocation parses a location of the given level from text, or nil if
// no resolver is configured or no such location exists.
func (r *Runner) ParseLocation(text, country string, level LocationLevel, parent *Location) *Location {
	if r.locations == nil {
		return nil
	}
	return r.locations.Resolve(text, country, level, parent)
}

// FindNumber finds a phone number in the given text.
func (r *Runner) FindNumber(text, country string) (string, bool) {
	return r.phones.FindNumber(text, country)
}

// UpdateContactField updates a field on the contact for the given run,
// creating the field if necessary. Values of location-typed fields are
// resolved through the location hierarchy, so a district value only sticks
// when the contact's state field already names its parent state.
func (r *Runner) UpdateContactField(run *RunState, key, value, label string) (*Field, error) {
	field, err := run.getOrCreateField(key, label, ValueTypeText)
	if err != nil {
		return nil, err
	}

	actualValue := ""
	country := run.org.Country

	switch field.Type {
	case ValueTypeText, ValueTypeDecimal, ValueTypeDatetime:
		actualValue = value

	case ValueTypeState:
		if state := r.ParseLocation(value, country, LevelState, nil); state != nil {
			actualValue = state.Name
		}

	case ValueTypeDistrict:
		if state := r.resolveFieldLocation(run, ValueTypeState); state != nil {
			if district := r.ParseLocation(value, country, LevelDistrict, state); district != nil {
				actualValue = district.Name
			}
		}

	case ValueTypeWard:
		if state := r.resolveFieldLocation(run, ValueTypeState); state != nil {
			if district := r.resolveFieldLocationIn(run, ValueTypeDistrict, LevelDistrict, state); district != nil {
				if ward := r.ParseLocation(value, country, LevelWard, district); ward != nil {
					actualValue = ward.Name
				}
			}
		}
	}

	run.contact.SetField(field.Key, actualValue)
	return field, nil
}

// resolveFieldLocation resolves the contact's current value of the first
// field of the given type as a state.
func (r *Runner) resolveFieldLocation(run *RunState, fieldType ValueType) *Location {
	return r.resolveFieldLocationIn(run, fieldType, LevelState, nil)
}

func (r *Runner) resolveFieldLocationIn(run *RunState, fieldType ValueType, level LocationLevel, parent *Location) *Location {
	for _, field := range run.fields {
		if field.Type == fieldType {
			if name := run.contact.Fields[field.Key]; name != "" {
				return r.ParseLocation(name, run.org.Country, level, parent)
			}
			return nil
		}
	}
	return nil
}

// UpdateExtra merges the given values into the run's extra key value store.
func (r *Runner) UpdateExtra(run *RunState, values map[string]string) {
	for key, value := range values {
		run.extra[key] = value
	}
}

func (r *Runner) clockNow() time.Time {
	if !r.now.IsZero() {
		return r.now
	}
	return time.Now()
}

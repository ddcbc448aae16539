/*
Package excellent implements an Excel-like expression language for message
templates, plus the value coercions and tolerant date handling that make it
usable against free-form contact data.

Templates are plain text in which expressions are marked by a prefix
character, e.g. "Hi @contact.name, you are @(YEAR(NOW()) - 1980) years old".
An expression is either a dotted context reference following the prefix, or
an arbitrary parenthesized expression.

# Usage

Evaluation happens against an EvaluationContext which provides the variables
visible to expressions along with the timezone and date conventions used when
values are parsed and rendered.

	package main

	import (
		"fmt"
		"time"

		"github.com/excellent-lang/excellent"
		"github.com/excellent-lang/excellent/pkg/dates"
	)

	func main() {
		context := excellent.NewEvaluationContext(map[string]any{
			"contact": map[string]any{"*": "Joe Blow", "name": "Joe Blow"},
		}, time.UTC, dates.DayFirst)

		evaluator := excellent.NewEvaluator(excellent.WithAllowedTopLevels("contact"))
		evaluated := evaluator.EvaluateTemplate("Hi @contact.name", context, false, excellent.ResolveComplete)

		fmt.Println(evaluated.Output)
	}

Expressions which can't be evaluated are left in place and their errors
collected on the returned EvaluatedTemplate, so a bad template degrades
rather than failing outright.

The flow graph runtime built on top of this language lives in pkg/flows.
*/
package excellent

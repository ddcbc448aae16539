package excellent

import (
	"fmt"
	"strings"
)

// functionImpl is the implementation of a single function. By the time it is
// called, args has one entry per declared parameter (defaults filled in)
// followed by any variadic arguments.
type functionImpl func(env *EvaluationContext, args []any) (any, error)

type parameter struct {
	name       string
	def        any
	hasDefault bool
}

func param(name string) parameter {
	return parameter{name: name}
}

func paramOpt(name string, def any) parameter {
	return parameter{name: name, def: def, hasDefault: true}
}

// functionDef describes a callable function: its parameters, whether it
// accepts extra variadic arguments, and its implementation.
type functionDef struct {
	name     string
	params   []parameter
	variadic bool
	impl     functionImpl
}

// FunctionManager holds the functions callable from expressions, keyed by
// case-insensitive name, and performs argument binding when one is invoked.
type FunctionManager struct {
	functions map[string]*functionDef
}

// NewFunctionManager creates an empty function manager.
func NewFunctionManager() *FunctionManager {
	return &FunctionManager{functions: make(map[string]*functionDef)}
}

// DefaultFunctions returns a manager loaded with the standard Excel-style
// library and the custom text-splitting helpers.
func DefaultFunctions() *FunctionManager {
	manager := NewFunctionManager()
	registerExcelFunctions(manager)
	registerCustomFunctions(manager)
	return manager
}

// Register adds a function, overwriting any existing function of the same
// name. A leading underscore is stripped so implementations can avoid
// colliding with keywords.
func (m *FunctionManager) Register(name string, params []parameter, variadic bool, impl functionImpl) {
	name = strings.ToLower(strings.TrimPrefix(name, "_"))
	m.functions[name] = &functionDef{name: name, params: params, variadic: variadic, impl: impl}
}

// Lookup returns whether a function of the given name exists.
func (m *FunctionManager) Lookup(name string) bool {
	_, exists := m.functions[strings.ToLower(name)]
	return exists
}

// Invoke calls the named function with the given arguments, binding them to
// the function's parameters and filling in declared defaults.
func (m *FunctionManager) Invoke(name string, env *EvaluationContext, args []any) (any, error) {
	function, exists := m.functions[strings.ToLower(name)]
	if !exists {
		return nil, evalErrorf("Undefined function: %s", name)
	}

	bound := make([]any, 0, len(args))
	remaining := args

	for _, p := range function.params {
		switch {
		case len(remaining) > 0:
			bound = append(bound, remaining[0])
			remaining = remaining[1:]
		case p.hasDefault:
			bound = append(bound, p.def)
		default:
			return nil, evalErrorf("Too few arguments provided for function %s", name)
		}
	}

	if function.variadic {
		bound = append(bound, remaining...)
	} else if len(remaining) > 0 {
		return nil, evalErrorf("Too many arguments provided for function %s", name)
	}

	value, err := function.impl(env, bound)
	if err != nil {
		return nil, evalErrorf("Error calling function %s with arguments %s", name, prettyArguments(args, env))
	}
	return value, nil
}

// prettyArguments renders a function's arguments for an error message, with
// string arguments quoted.
func prettyArguments(args []any, env *EvaluationContext) string {
	pretty := make([]string, len(args))
	for i, arg := range args {
		if asString, isString := arg.(string); isString {
			pretty[i] = fmt.Sprintf("\"%s\"", asString)
		} else if asString, err := ToString(arg, env); err == nil {
			pretty[i] = asString
		} else {
			pretty[i] = fmt.Sprintf("%v", arg)
		}
	}
	return strings.Join(pretty, ", ")
}

package blueprint

import (
	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/expression"
)

// PropertyProvider produces one activity input value at dispatch time.
// It closes over the declared expression, syntax and type; Provide evaluates
// the expression against the state of the running instance.
type PropertyProvider struct {
	// Name is the property name on the activity
	Name string

	// Expression is the raw expression text from the definition
	Expression string

	// Syntax selects literal or expr interpretation
	Syntax expression.Syntax

	// Type is the declared result type, advisory only
	Type string

	eval *expression.Evaluator
}

// newPropertyProvider builds a provider from a property definition.
func newPropertyProvider(name string, prop definition.PropertyDefinition, eval *expression.Evaluator) *PropertyProvider {
	syntax := expression.SyntaxLiteral
	if prop.Syntax == "expr" {
		syntax = expression.SyntaxExpr
	}
	return &PropertyProvider{
		Name:       name,
		Expression: prop.Expression,
		Syntax:     syntax,
		Type:       prop.Type,
		eval:       eval,
	}
}

// Provide evaluates the property against the given evaluation context.
func (p *PropertyProvider) Provide(evalCtx map[string]interface{}) (interface{}, error) {
	return p.eval.Evaluate(p.Expression, p.Syntax, evalCtx)
}

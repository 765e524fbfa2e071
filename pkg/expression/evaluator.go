package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/conduit/pkg/errors"
)

// Syntax identifies how a property expression should be interpreted.
type Syntax string

const (
	// SyntaxLiteral treats the expression text as a plain string value.
	SyntaxLiteral Syntax = "literal"
	// SyntaxExpr evaluates the expression with the expr-lang engine.
	SyntaxExpr Syntax = "expr"
)

// Evaluator evaluates expressions against a workflow evaluation context.
// It caches compiled programs for improved performance on repeated evaluations.
// Safe for concurrent use.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Evaluate evaluates an expression against the given context and returns
// whatever value it produces. Literal syntax returns the expression text
// unchanged (an empty literal yields the empty string); an empty expr-syntax
// expression evaluates to nil.
func (e *Evaluator) Evaluate(expression string, syntax Syntax, ctx map[string]interface{}) (interface{}, error) {
	if syntax == SyntaxLiteral {
		return expression, nil
	}
	if expression == "" {
		return nil, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax and ensure all referenced variables exist",
		}
	}

	result, err := expr.Run(program, e.runtimeEnv(ctx))
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("expression evaluation failed: %s", err.Error()),
			Suggestion: "verify that all referenced variables exist in the workflow context",
		}
	}

	return result, nil
}

// EvaluateBool evaluates an expression that must produce a boolean.
// An empty expression defaults to true so optional guard conditions can be omitted.
func (e *Evaluator) EvaluateBool(expression string, ctx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	result, err := e.Evaluate(expression, SyntaxExpr, ctx)
	if err != nil {
		return false, err
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}

	return boolResult, nil
}

// runtimeEnv merges the custom functions into the caller's context.
// Note: "contains" is reserved in expr for string operations.
func (e *Evaluator) runtimeEnv(ctx map[string]interface{}) map[string]interface{} {
	env := make(map[string]interface{}, len(ctx)+3)
	for k, v := range ctx {
		env[k] = v
	}
	env["has"] = containsFunc
	env["includes"] = containsFunc
	env["length"] = lenFunc
	return env
}

// compile compiles an expression and caches the result.
func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	// Check cache first (read lock)
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]interface{}{
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
	}

	prog, err := expr.Compile(expression,
		expr.Env(env),
		// Allow any environment (we pass the context at runtime)
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// ClearCache clears the expression cache.
// This is mainly useful for testing.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Package expression provides expression evaluation for workflow activity
// properties and guard conditions.
//
// It uses the expr-lang/expr library to evaluate expressions against the
// state of a running workflow instance. Expressions support:
//
//   - Variable access: variables.name, input, activities.id.output
//   - Comparisons: ==, !=, <, >, <=, >=
//   - Boolean logic: &&, ||, !
//   - Membership: "value" in array (built-in operator)
//   - Custom functions: has(array, element), includes(array, element), length(x)
//
// Example expressions:
//
//	variables.region == "eu-west-1"
//	has(variables.tags, "priority")
//	activities.fetch.output != nil && length(variables.items) > 0
//
// The evaluator caches compiled programs for performance.
//
// Note: The expr library uses "contains" as a string operator (for substring
// matching), so use "in" or "has()" for array membership checks.
package expression

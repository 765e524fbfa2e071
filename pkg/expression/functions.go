package expression

import (
	"fmt"
	"reflect"
	"strings"
)

// containsFunc checks if a collection contains an element.
// Usage: has(variables.tags, "priority")
//
// Supports slices of any type and performs deep equality comparison.
// For maps it checks key presence; for strings, substring match.
func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}

	collection := args[0]
	target := args[1]

	if collection == nil {
		return false, nil
	}

	v := reflect.ValueOf(collection)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if reflect.DeepEqual(v.Index(i).Interface(), target) {
				return true, nil
			}
		}
		return false, nil

	case reflect.Map:
		mapVal := v.MapIndex(reflect.ValueOf(target))
		return mapVal.IsValid(), nil

	case reflect.String:
		str, ok := collection.(string)
		if !ok {
			return false, nil
		}
		substr, ok := target.(string)
		if !ok {
			return false, nil
		}
		return substr != "" && strings.Contains(str, substr), nil

	default:
		return false, nil
	}
}

// lenFunc returns the length of a collection or string.
// Usage: length(variables.items) > 0
func lenFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}

	if args[0] == nil {
		return 0, nil
	}

	v := reflect.ValueOf(args[0])

	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", args[0])
	}
}

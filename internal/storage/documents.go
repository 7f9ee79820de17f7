package storage

import (
	"fmt"
	"strings"
)

// Lookup walks a dotted path through nested document maps.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, segment := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Matches evaluates the query conditions against a decoded document. Non
// string values compare by their default formatting.
func Matches(doc map[string]any, q Query) bool {
	for _, c := range q.Conditions {
		v, ok := Lookup(doc, c.Field)
		if !ok {
			return false
		}
		s, isString := v.(string)
		if !isString {
			s = fmt.Sprint(v)
		}
		if s != c.Value {
			return false
		}
	}
	return true
}

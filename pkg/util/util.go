// Package util contains small generic helpers.
package util

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map applies f to each element of s.
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// SortedKeys returns the keys of a map in increasing order.
func SortedKeys[V any](m map[string]V) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Stringify renders a value as JSON for error messages, falling back to Go syntax.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

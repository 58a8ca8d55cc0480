package apiclient

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
)

// Query holds request parameters. Nil values, nil pointers, empty strings and
// the literal "null" are never sent.
type Query map[string]any

// Encode returns the normalized parameters URL-encoded and sorted by key.
func (q Query) Encode() string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := url.Values{}
	for _, k := range keys {
		s, ok := queryValue(q[k])
		if !ok {
			continue
		}
		vals.Set(k, s)
	}
	return vals.Encode()
}

func queryValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		v = rv.Elem().Interface()
	}

	var s string
	switch x := v.(type) {
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || s == "null" {
		return "", false
	}
	return s, true
}

// Package plistutil provides shape-checked accessors over the dynamic
// map/array/scalar tree produced by decoding a property list into
// interface{}. Accessors distinguish "absent" from "present with the wrong
// type": the former is an ordinary condition for callers to handle, the
// latter yields a TypeError.
package plistutil

import (
	"fmt"
)

// TypeError reports a value whose runtime shape does not match the shape
// the caller requires.
type TypeError struct {
	Key  string
	Want string
	Got  interface{}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("value at %q is %T, want %s", e.Key, e.Got, e.Want)
}

// Root asserts that the decoded document root is a dictionary.
func Root(v interface{}) (map[string]interface{}, error) {
	d, ok := v.(map[string]interface{})
	if !ok {
		return nil, &TypeError{Key: "(root)", Want: "dict", Got: v}
	}
	return d, nil
}

// DictAt returns the dictionary stored under key. The second return is
// false when the key is absent.
func DictAt(d map[string]interface{}, key string) (map[string]interface{}, bool, error) {
	v, ok := d[key]
	if !ok {
		return nil, false, nil
	}
	child, ok := v.(map[string]interface{})
	if !ok {
		return nil, true, &TypeError{Key: key, Want: "dict", Got: v}
	}
	return child, true, nil
}

// ArrayAt returns the array stored under key. The second return is false
// when the key is absent.
func ArrayAt(d map[string]interface{}, key string) ([]interface{}, bool, error) {
	v, ok := d[key]
	if !ok {
		return nil, false, nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, true, &TypeError{Key: key, Want: "array", Got: v}
	}
	return arr, true, nil
}

// StringAt returns the string stored under key, or "" when absent.
func StringAt(d map[string]interface{}, key string) (string, error) {
	v, ok := d[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Key: key, Want: "string", Got: v}
	}
	return s, nil
}

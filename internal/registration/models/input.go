package models

import "strconv"

// Input is the immutable raw registration input: field name to raw value.
// Every key is optional; absence and empty string are distinct so the field
// mapper can honor its no-op contract for missing keys.
type Input struct {
	Fields       map[string]string
	CustomFields map[string]string
}

// NewInput builds an Input from scalar fields. The map is copied so callers
// cannot mutate the attempt's view of it.
func NewInput(fields map[string]string) Input {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Input{Fields: copied}
}

// Get returns the raw value for key and whether it was provided.
func (in Input) Get(key string) (string, bool) {
	v, ok := in.Fields[key]
	return v, ok
}

// Has reports whether the key was provided.
func (in Input) Has(key string) bool {
	_, ok := in.Fields[key]
	return ok
}

// Int returns the value for key parsed as an integer, or 0 when absent or
// malformed. Downstream validators own format checks.
func (in Input) Int(key string) int {
	v, ok := in.Fields[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Bool returns the value for key interpreted as a checkbox-style flag.
func (in Input) Bool(key string) bool {
	v, ok := in.Fields[key]
	if !ok {
		return false
	}
	return v == "1" || v == "true" || v == "on" || v == "yes"
}

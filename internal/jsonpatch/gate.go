package jsonpatch

import (
	"errors"
	"fmt"
)

// ErrPathNotAllowed marks a patch targeting a path outside the allow-list.
var ErrPathNotAllowed = errors.New("patch path not allowed")

// Rule permits operations on one top-level field. Nested additionally
// permits paths below the field (array elements and deeper).
type Rule struct {
	Field  string
	Nested bool
}

// AccountRules are the mutable paths of an account record.
var AccountRules = []Rule{
	{Field: "forwardTargets", Nested: true},
	{Field: "bounceSenders", Nested: true},
	{Field: "name"},
}

// EmailRules are the mutable paths of an email summary record. The bounced
// flag is deliberately absent: it changes only via the bounce transition.
var EmailRules = []Rule{
	{Field: "viewed"},
}

// permitted reports whether a parsed pointer falls inside the allow-list.
func permitted(pointer Pointer, rules []Rule) bool {
	if len(pointer) == 0 {
		return false
	}
	for _, rule := range rules {
		if pointer[0] != rule.Field {
			continue
		}
		if len(pointer) == 1 || rule.Nested {
			return true
		}
	}
	return false
}

// Check gates a decoded patch against the allow-list. Any operation outside
// it rejects the whole patch; move and copy sources are gated like targets.
// This runs before Apply, so a rejected patch mutates nothing.
func Check(operations []Operation, rules []Rule) error {
	for i := range operations {
		op := &operations[i]
		if !permitted(op.path, rules) {
			return fmt.Errorf("%w: %s", ErrPathNotAllowed, op.Path)
		}
		if op.from != nil && !permitted(op.from, rules) {
			return fmt.Errorf("%w: %s", ErrPathNotAllowed, op.From)
		}
	}
	return nil
}

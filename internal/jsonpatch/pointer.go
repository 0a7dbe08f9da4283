// Package jsonpatch implements a typed, closed JSON Patch operation set
// with an allow-list gate over parsed paths. Callers re-validate patched
// documents through the record formatter before persisting them.
package jsonpatch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors returned by pointer parsing and patch evaluation.
var (
	ErrInvalidPointer = errors.New("invalid JSON pointer")
	ErrPathNotFound   = errors.New("path not found")
	ErrTestFailed     = errors.New("test operation failed")
)

// Pointer is a parsed RFC 6901 JSON pointer.
type Pointer []string

// ParsePointer parses an RFC 6901 pointer string. The empty pointer (whole
// document) is rejected: patches here always target a field.
func ParsePointer(s string) (Pointer, error) {
	if s == "" || !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPointer, s)
	}
	tokens := strings.Split(s[1:], "/")
	pointer := make(Pointer, len(tokens))
	for i, token := range tokens {
		// Unescape ~1 before ~0 so "~01" decodes to "~1", not "/"
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		pointer[i] = token
	}
	return pointer, nil
}

func (p Pointer) String() string {
	var b strings.Builder
	for _, token := range p {
		token = strings.ReplaceAll(token, "~", "~0")
		token = strings.ReplaceAll(token, "/", "~1")
		b.WriteByte('/')
		b.WriteString(token)
	}
	return b.String()
}

// arrayIndex parses an array token. allowEnd permits index == length (the
// insertion point past the last element).
func arrayIndex(token string, length int, allowEnd bool) (int, error) {
	index, err := strconv.Atoi(token)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: array index %q", ErrInvalidPointer, token)
	}
	limit := length
	if allowEnd {
		limit = length + 1
	}
	if index >= limit {
		return 0, fmt.Errorf("%w: array index %d out of range", ErrPathNotFound, index)
	}
	return index, nil
}

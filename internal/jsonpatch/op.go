package jsonpatch

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Errors returned by patch decoding.
var (
	ErrInvalidPatch = errors.New("invalid patch document")
	ErrUnknownOp    = errors.New("unknown patch operation")
)

// Op is one of the six JSON Patch operations. The set is closed: anything
// else fails decoding.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// Operation is a single decoded patch operation with its paths parsed.
type Operation struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	path Pointer
	from Pointer
}

// Pointer returns the parsed target path.
func (o *Operation) Pointer() Pointer {
	return o.path
}

// FromPointer returns the parsed source path for move/copy, nil otherwise.
func (o *Operation) FromPointer() Pointer {
	return o.from
}

// Decode parses a JSON Patch request body into typed operations, validating
// the operation set and all paths up front.
func Decode(body []byte) ([]Operation, error) {
	var operations []Operation
	if err := json.Unmarshal(body, &operations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if len(operations) == 0 {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidPatch)
	}

	for i := range operations {
		op := &operations[i]
		switch op.Op {
		case OpAdd, OpReplace, OpTest:
			if len(op.Value) == 0 {
				return nil, fmt.Errorf("%w: %s requires a value", ErrInvalidPatch, op.Op)
			}
		case OpMove, OpCopy:
			from, err := ParsePointer(op.From)
			if err != nil {
				return nil, err
			}
			op.from = from
		case OpRemove:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
		}

		path, err := ParsePointer(op.Path)
		if err != nil {
			return nil, err
		}
		op.path = path
	}
	return operations, nil
}

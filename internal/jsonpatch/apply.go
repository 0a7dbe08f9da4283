package jsonpatch

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Apply evaluates a decoded patch against a JSON document and returns the
// patched document. The input document is never mutated; any failing
// operation fails the whole patch.
func Apply(document []byte, operations []Operation) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	for i := range operations {
		op := &operations[i]
		var err error
		doc, err = applyOne(doc, op)
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(doc)
}

func applyOne(doc any, op *Operation) (any, error) {
	switch op.Op {
	case OpAdd:
		value, err := decodeValue(op.Value)
		if err != nil {
			return nil, err
		}
		return addAt(doc, op.path, value)

	case OpReplace:
		value, err := decodeValue(op.Value)
		if err != nil {
			return nil, err
		}
		return replaceAt(doc, op.path, value)

	case OpRemove:
		doc, _, err := removeAt(doc, op.path)
		return doc, err

	case OpMove:
		doc, removed, err := removeAt(doc, op.from)
		if err != nil {
			return nil, err
		}
		return addAt(doc, op.path, removed)

	case OpCopy:
		value, err := getAt(doc, op.from)
		if err != nil {
			return nil, err
		}
		return addAt(doc, op.path, value)

	case OpTest:
		value, err := decodeValue(op.Value)
		if err != nil {
			return nil, err
		}
		current, err := getAt(doc, op.path)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(current, value) {
			return nil, fmt.Errorf("%w: %s", ErrTestFailed, op.Path)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
}

func decodeValue(raw json.RawMessage) (any, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return value, nil
}

func getAt(doc any, pointer Pointer) (any, error) {
	current := doc
	for _, token := range pointer {
		switch container := current.(type) {
		case map[string]any:
			child, ok := container[token]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
			}
			current = child
		case []any:
			index, err := arrayIndex(token, len(container), false)
			if err != nil {
				return nil, err
			}
			current = container[index]
		default:
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
		}
	}
	return current, nil
}

// addAt inserts value at pointer, appending or shifting array elements.
func addAt(doc any, pointer Pointer, value any) (any, error) {
	if len(pointer) == 0 {
		return value, nil
	}
	token := pointer[0]

	switch container := doc.(type) {
	case map[string]any:
		if len(pointer) == 1 {
			container[token] = value
			return container, nil
		}
		child, ok := container[token]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
		}
		updated, err := addAt(child, pointer[1:], value)
		if err != nil {
			return nil, err
		}
		container[token] = updated
		return container, nil

	case []any:
		if len(pointer) == 1 {
			if token == "-" {
				return append(container, value), nil
			}
			index, err := arrayIndex(token, len(container), true)
			if err != nil {
				return nil, err
			}
			container = append(container, nil)
			copy(container[index+1:], container[index:])
			container[index] = value
			return container, nil
		}
		index, err := arrayIndex(token, len(container), false)
		if err != nil {
			return nil, err
		}
		updated, err := addAt(container[index], pointer[1:], value)
		if err != nil {
			return nil, err
		}
		container[index] = updated
		return container, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
}

// replaceAt sets value at pointer; the target must already exist.
func replaceAt(doc any, pointer Pointer, value any) (any, error) {
	if len(pointer) == 0 {
		return value, nil
	}
	token := pointer[0]

	switch container := doc.(type) {
	case map[string]any:
		if _, ok := container[token]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
		}
		if len(pointer) == 1 {
			container[token] = value
			return container, nil
		}
		updated, err := replaceAt(container[token], pointer[1:], value)
		if err != nil {
			return nil, err
		}
		container[token] = updated
		return container, nil

	case []any:
		index, err := arrayIndex(token, len(container), false)
		if err != nil {
			return nil, err
		}
		if len(pointer) == 1 {
			container[index] = value
			return container, nil
		}
		updated, err := replaceAt(container[index], pointer[1:], value)
		if err != nil {
			return nil, err
		}
		container[index] = updated
		return container, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
}

// removeAt deletes the value at pointer and returns it.
func removeAt(doc any, pointer Pointer) (any, any, error) {
	if len(pointer) == 0 {
		return nil, nil, fmt.Errorf("%w: cannot remove whole document", ErrInvalidPointer)
	}
	token := pointer[0]

	switch container := doc.(type) {
	case map[string]any:
		child, ok := container[token]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
		}
		if len(pointer) == 1 {
			delete(container, token)
			return container, child, nil
		}
		updated, removed, err := removeAt(child, pointer[1:])
		if err != nil {
			return nil, nil, err
		}
		container[token] = updated
		return container, removed, nil

	case []any:
		index, err := arrayIndex(token, len(container), false)
		if err != nil {
			return nil, nil, err
		}
		if len(pointer) == 1 {
			removed := container[index]
			container = append(container[:index], container[index+1:]...)
			return container, removed, nil
		}
		updated, removed, err := removeAt(container[index], pointer[1:])
		if err != nil {
			return nil, nil, err
		}
		container[index] = updated
		return container, removed, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrPathNotFound, pointer)
}

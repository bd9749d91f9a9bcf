package ankaios

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ApplyMask copies, for each dotted path in fields, the value at that path
// in src onto dst. Paths are segments split on '.'. When reading a path
// (from src here, and in Get) a segment that parses as a non-negative
// integer indexes into a JSON array; writing and deleting on dst descend
// through JSON objects only and do not index arrays. Both src and dst are
// round-tripped through encoding/json so that ApplyMask works uniformly
// over any of the state types without reflection-based field access.
func ApplyMask(dst, src any, fields []string) error {
	srcTree, err := toTree(src)
	if err != nil {
		return fmt.Errorf("ankaios: encode mask source: %w", err)
	}
	dstTree, err := toTree(dst)
	if err != nil {
		return fmt.Errorf("ankaios: encode mask destination: %w", err)
	}
	for _, field := range fields {
		path := splitPath(field)
		val, ok := getPath(srcTree, path)
		if !ok {
			dstTree = deletePath(dstTree, path)
			continue
		}
		dstTree = setPath(dstTree, path, val)
	}
	return fromTree(dstTree, dst)
}

// Get returns the value at the dotted path within src, decoded into out.
// It reports false if the path does not exist.
func Get(src any, field string, out any) (bool, error) {
	tree, err := toTree(src)
	if err != nil {
		return false, fmt.Errorf("ankaios: encode mask source: %w", err)
	}
	val, ok := getPath(tree, splitPath(field))
	if !ok {
		return false, nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return false, fmt.Errorf("ankaios: re-encode masked value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("ankaios: decode masked value: %w", err)
	}
	return true, nil
}

// Delete removes the value at the dotted path within dst in place.
func Delete(dst any, field string) error {
	tree, err := toTree(dst)
	if err != nil {
		return fmt.Errorf("ankaios: encode mask destination: %w", err)
	}
	tree = deletePath(tree, splitPath(field))
	return fromTree(tree, dst)
}

func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree(tree any, out any) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("ankaios: re-encode mask tree: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ankaios: decode mask tree: %w", err)
	}
	return nil
}

func splitPath(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Split(field, ".")
}

func getPath(tree any, path []string) (any, bool) {
	cur := tree
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func setPath(tree any, path []string, value any) any {
	if len(path) == 0 {
		return value
	}
	root, ok := tree.(map[string]any)
	if !ok {
		root = map[string]any{}
	}
	setInMap(root, path, value)
	return root
}

func setInMap(node map[string]any, path []string, value any) {
	if len(path) == 1 {
		node[path[0]] = value
		return
	}
	next, ok := node[path[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		node[path[0]] = next
	}
	setInMap(next, path[1:], value)
}

func deletePath(tree any, path []string) any {
	if len(path) == 0 {
		return tree
	}
	root, ok := tree.(map[string]any)
	if !ok {
		return tree
	}
	deleteInMap(root, path)
	return root
}

func deleteInMap(node map[string]any, path []string) {
	if len(path) == 1 {
		delete(node, path[0])
		return
	}
	next, ok := node[path[0]].(map[string]any)
	if !ok {
		return
	}
	deleteInMap(next, path[1:])
}

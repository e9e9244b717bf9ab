// Package depsort orders items so that every item comes after the items it
// depends on, and reports dependency cycles instead of looping on them.
package depsort

import (
	"fmt"
	"strings"
)

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// CycleError reports a dependency cycle. Path starts and ends with the same key.
type CycleError[K comparable] struct {
	Path []K
}

// Error implements error
func (e CycleError[K]) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = fmt.Sprint(k)
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// Sort returns items in dependency order. key identifies an item and deps
// lists the keys it depends on; keys that do not belong to items are ignored.
// Items keep their input order wherever dependencies allow it. Duplicate keys
// keep the first item.
func Sort[K comparable, T any](items []T, key func(T) K, deps func(T) []K) ([]T, error) {
	index := make(map[K]int, len(items))
	for i, item := range items {
		k := key(item)
		if _, exists := index[k]; !exists {
			index[k] = i
		}
	}

	states := make(map[K]visitState, len(items))
	sorted := make([]T, 0, len(items))
	var stack []K

	var visit func(k K) error
	visit = func(k K) error {
		switch states[k] {
		case stateDone:
			return nil
		case stateVisiting:
			start := 0
			for i, s := range stack {
				if s == k {
					start = i
					break
				}
			}
			path := make([]K, 0, len(stack)-start+1)
			path = append(path, stack[start:]...)
			path = append(path, k)
			return CycleError[K]{Path: path}
		}

		states[k] = stateVisiting
		stack = append(stack, k)

		item := items[index[k]]
		for _, d := range deps(item) {
			if _, inBatch := index[d]; !inBatch {
				continue
			}
			if err := visit(d); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		states[k] = stateDone
		sorted = append(sorted, item)
		return nil
	}

	for _, item := range items {
		if err := visit(key(item)); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

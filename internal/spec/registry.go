package spec

import (
	"fmt"
	"strings"
)

// Registry holds named component schemas. Definitions reference each other by
// name through SchemaDefinition.Ref and are never copied.
type Registry map[string]*SchemaDefinition

// Lookup returns the named schema.
func (r Registry) Lookup(name string) (*SchemaDefinition, bool) {
	s, ok := r[name]
	return s, ok
}

// Resolve follows Ref names until a concrete definition is reached.
func (r Registry) Resolve(s *SchemaDefinition) (*SchemaDefinition, error) {
	if s == nil || s.Ref == "" {
		return s, nil
	}
	seen := make(map[string]struct{})
	chain := []string{}
	for s.Ref != "" {
		name := s.Ref
		if _, loop := seen[name]; loop {
			return nil, fmt.Errorf("%w: %s", ErrCircularReference, strings.Join(append(chain, name), " -> "))
		}
		seen[name] = struct{}{}
		chain = append(chain, name)
		next, ok := r[name]
		if !ok || next == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedReference, name)
		}
		s = next
	}
	return s, nil
}

// Cycles lists every reference cycle between named schemas, each as the
// chain of names starting and ending with the same schema.
func (r Registry) Cycles() [][]string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(r))
	var stack []string
	var cycles [][]string

	var visit func(name string)
	visit = func(name string) {
		color[name] = grey
		stack = append(stack, name)
		for _, dep := range referencedNames(r[name]) {
			if _, known := r[dep]; !known {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), stack[start:]...), dep)
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for _, name := range sortedKeys(r) {
		if color[name] == white {
			visit(name)
		}
	}
	return cycles
}

// referencedNames returns the component names referenced anywhere inside s,
// without crossing into the referenced schemas themselves.
func referencedNames(s *SchemaDefinition) []string {
	var out []string
	seen := make(map[string]struct{})
	var walk func(*SchemaDefinition)
	walk = func(node *SchemaDefinition) {
		if node == nil {
			return
		}
		if node.Ref != "" {
			if _, dup := seen[node.Ref]; !dup {
				seen[node.Ref] = struct{}{}
				out = append(out, node.Ref)
			}
			return
		}
		for _, name := range sortedKeys(node.Properties) {
			walk(node.Properties[name])
		}
		walk(node.Items)
	}
	walk(s)
	return out
}

package engine

import (
	"encoding/json"
	"strings"

	"github.com/soteldo/umbra/pkg/schema"
)

// VariableStore holds the variables of one run. A run is walked by a single
// goroutine, so no locking is needed; batch runs get one store each.
type VariableStore struct {
	vars map[string]any
}

// NewVariableStore creates a store seeded with the given initial variables.
func NewVariableStore(initial map[string]any) *VariableStore {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &VariableStore{vars: vars}
}

// Get returns a variable by name.
func (s *VariableStore) Get(name string) (any, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Set stores a variable.
func (s *VariableStore) Set(name string, value any) {
	s.vars[name] = value
}

// Delete removes a variable.
func (s *VariableStore) Delete(name string) {
	delete(s.vars, name)
}

// Snapshot returns a shallow copy of all variables, used as the expression
// environment and for persisting final run state.
func (s *VariableStore) Snapshot() map[string]any {
	cp := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		cp[k] = v
	}
	return cp
}

// Resolve looks up a dot-delimited reference like "user.email". The first
// segment names a variable; remaining segments traverse into nested objects.
// A missing variable or path segment fails with UNRESOLVED_VARIABLE; there
// is no fallback to treating the reference as a literal.
func (s *VariableStore) Resolve(ref string) (any, error) {
	if ref == "" {
		return nil, schema.NewError(schema.ErrCodeUnresolvedVariable, "empty variable reference")
	}

	segments := strings.Split(ref, ".")
	root, ok := s.vars[segments[0]]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnresolvedVariable,
			"variable %q is not defined", segments[0]).
			WithDetails(map[string]any{"reference": ref})
	}

	current := root
	for _, seg := range segments[1:] {
		obj, isMap := current.(map[string]any)
		if !isMap {
			return nil, schema.NewErrorf(schema.ErrCodeUnresolvedVariable,
				"cannot traverse into %q in reference %q (value is %T)", seg, ref, current).
				WithDetails(map[string]any{"reference": ref})
		}
		val, found := obj[seg]
		if !found {
			return nil, schema.NewErrorf(schema.ErrCodeUnresolvedVariable,
				"field %q not found in reference %q", seg, ref).
				WithDetails(map[string]any{"reference": ref})
		}
		current = val
	}
	return current, nil
}

// variableRefSuffix marks companion fields that name a variable whose value
// replaces the literal field. "urlVariableRef": "target" resolves the
// variable "target" into "url".
const variableRefSuffix = "VariableRef"

// ResolveParams applies uniform variable resolution to raw node params.
// Every "<field>VariableRef" companion holding a non-empty reference is
// resolved and written into "<field>", overriding any literal. Resolution
// recurses into nested objects and arrays. All node kinds go through this
// one path before their executor runs.
func ResolveParams(raw json.RawMessage, vars *VariableStore) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "node params are not valid JSON").WithCause(err)
	}

	resolved, err := resolveValue(doc, vars)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(resolved)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "failed to re-encode resolved params").WithCause(err)
	}
	return out, nil
}

func resolveValue(v any, vars *VariableStore) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return resolveObject(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveObject(m map[string]any, vars *VariableStore) (map[string]any, error) {
	out := make(map[string]any, len(m))

	for k, v := range m {
		if strings.HasSuffix(k, variableRefSuffix) && k != variableRefSuffix {
			ref, isStr := v.(string)
			if !isStr || ref == "" {
				continue
			}
			resolved, err := vars.Resolve(ref)
			if err != nil {
				return nil, err
			}
			out[strings.TrimSuffix(k, variableRefSuffix)] = resolved
			continue
		}

		resolved, err := resolveValue(v, vars)
		if err != nil {
			return nil, err
		}
		// A resolved companion already claimed this field.
		if _, claimed := out[k]; claimed {
			continue
		}
		out[k] = resolved
	}
	return out, nil
}

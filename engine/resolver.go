// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"axonflow/flowkernel/shared/ferrors"
)

// Reference is one ${scope.path...} span found in a string, with its
// byte offsets into the original string (end is exclusive).
type Reference struct {
	Raw   string // e.g. "workflow.inputs.x"
	Start int
	End   int
}

// FindReferences performs a balanced-brace scan for ${...} spans. This is
// deliberately not regexp-based so nested braces inside an expression
// (spec grammar forbids recursive resolution, but the scan itself must
// still find the correctly-matched outer span) are handled safely.
func FindReferences(s string) []Reference {
	var refs []Reference
	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			start := i
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			if depth == 0 {
				refs = append(refs, Reference{
					Raw:   s[start+2 : j-1],
					Start: start,
					End:   j,
				})
				i = j
				continue
			}
			// Unbalanced: stop scanning, caller may treat as a literal.
			break
		}
		i++
	}
	return refs
}

// ResolveResult carries a best-effort resolved value plus any errors
// encountered. Callers decide whether a non-empty Errors slice is fatal:
// resolver errors are values, not panics or immediate returns.
type ResolveResult struct {
	Value  interface{}
	Errors []error
}

// ResolveValue recursively substitutes ${...} references inside v.
// Strings that are exactly one reference preserve the referenced value's
// type; strings that interpolate additional text render every reference
// as a string.
func ResolveValue(v interface{}, ctx *ExecutionContext) ResolveResult {
	switch val := v.(type) {
	case string:
		return resolveString(val, ctx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		var errs []error
		for k, item := range val {
			r := ResolveValue(item, ctx)
			out[k] = r.Value
			errs = append(errs, r.Errors...)
		}
		return ResolveResult{Value: out, Errors: errs}
	case []interface{}:
		out := make([]interface{}, len(val))
		var errs []error
		for i, item := range val {
			r := ResolveValue(item, ctx)
			out[i] = r.Value
			errs = append(errs, r.Errors...)
		}
		return ResolveResult{Value: out, Errors: errs}
	default:
		return ResolveResult{Value: v}
	}
}

func resolveString(s string, ctx *ExecutionContext) ResolveResult {
	refs := FindReferences(s)
	if len(refs) == 0 {
		return ResolveResult{Value: s}
	}

	// Whole-string single reference: preserve the looked-up value's type.
	if len(refs) == 1 && refs[0].Start == 0 && refs[0].End == len(s) {
		val, err := lookupReference(refs[0].Raw, ctx)
		if err != nil {
			return ResolveResult{Value: s, Errors: []error{err}}
		}
		return ResolveResult{Value: val}
	}

	// Interpolated: stringify every reference and splice back in, right to left.
	var errs []error
	result := s
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		val, err := lookupReference(ref.Raw, ctx)
		var rendered string
		if err != nil {
			errs = append(errs, err)
			rendered = ""
		} else {
			rendered = stringify(val)
		}
		result = result[:ref.Start] + rendered + result[ref.End:]
	}
	return ResolveResult{Value: result, Errors: errs}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// lookupReference resolves one "scope.path..." reference against ctx.
func lookupReference(ref string, ctx *ExecutionContext) (interface{}, error) {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: malformed reference %q", ferrors.ErrVariableResolution, ref)
	}

	switch parts[0] {
	case "workflow":
		if len(parts) < 3 || parts[1] != "inputs" {
			return nil, fmt.Errorf("%w: malformed workflow reference %q", ferrors.ErrVariableResolution, ref)
		}
		name := strings.Join(parts[2:], ".")
		val, ok := ctx.WorkflowInputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: undefined workflow input %q", ferrors.ErrVariableResolution, name)
		}
		return val, nil

	case "steps":
		if len(parts) < 4 || parts[2] != "outputs" {
			return nil, fmt.Errorf("%w: malformed step reference %q", ferrors.ErrVariableResolution, ref)
		}
		stepID := parts[1]
		outputs, ok := ctx.StepOutputs[stepID]
		if !ok {
			return nil, fmt.Errorf("%w: undefined step %q", ferrors.ErrVariableResolution, stepID)
		}
		return lookupPath(outputs, parts[3:], ref)

	case "loop":
		if ctx.LoopContext == nil {
			return nil, fmt.Errorf("%w: loop.%s referenced outside a loop", ferrors.ErrVariableResolution, strings.Join(parts[1:], "."))
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: malformed loop reference %q", ferrors.ErrVariableResolution, ref)
		}
		switch parts[1] {
		case "item":
			return ctx.LoopContext.Item, nil
		case "index":
			return ctx.LoopContext.Index, nil
		case "key":
			if ctx.LoopContext.Key == nil {
				return nil, fmt.Errorf("%w: loop.key unavailable in this loop", ferrors.ErrVariableResolution)
			}
			return *ctx.LoopContext.Key, nil
		case "value":
			return ctx.LoopContext.Value, nil
		default:
			return nil, fmt.Errorf("%w: unknown loop field %q", ferrors.ErrVariableResolution, parts[1])
		}

	case "env":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: dotted env name %q not allowed", ferrors.ErrVariableResolution, ref)
		}
		val, ok := ctx.Env[parts[1]]
		if !ok {
			return nil, fmt.Errorf("%w: undefined environment variable %q", ferrors.ErrVariableResolution, parts[1])
		}
		return val, nil

	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ferrors.ErrVariableResolution, parts[0])
	}
}

// lookupPath walks nested maps by dotted path segments, the way
// steps.<id>.outputs.<name...> drills into a step's output map.
func lookupPath(root map[string]interface{}, segments []string, ref string) (interface{}, error) {
	var cur interface{} = root
	for i, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: cannot descend into %q at %q", ferrors.ErrVariableResolution, seg, ref)
		}
		val, exists := m[seg]
		if !exists {
			return nil, fmt.Errorf("%w: undefined output field in %q", ferrors.ErrVariableResolution, ref)
		}
		if i == len(segments)-1 {
			return val, nil
		}
		cur = val
	}
	return cur, nil
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity of a ValidationError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError is one finding from Validate. A Workflow is valid iff no
// entry has Severity == SeverityError.
type ValidationError struct {
	Severity string `json:"severity"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Field, e.Message)
}

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate runs the eight structural and referential checks, in order,
// against a parsed Workflow. It is a pure function: it never mutates wf.
func Validate(wf *Workflow) []ValidationError {
	var errs []ValidationError

	// 1. workflow block
	if strings.TrimSpace(wf.Workflow.Name) == "" {
		errs = append(errs, verr("workflow.name", "workflow name is required"))
	}
	if !semverRe.MatchString(wf.Workflow.Version) {
		errs = append(errs, verr("workflow.version", fmt.Sprintf("version %q must match major.minor.patch", wf.Workflow.Version)))
	}
	if strings.TrimSpace(wf.Workflow.Description) == "" {
		errs = append(errs, verr("workflow.description", "workflow description is required"))
	}

	// 2. inputs
	inputIDs := map[string]bool{}
	for i, in := range wf.Inputs {
		field := fmt.Sprintf("inputs[%d]", i)
		if strings.TrimSpace(in.ID) == "" {
			errs = append(errs, verr(field+".id", "input id is required"))
			continue
		}
		if inputIDs[in.ID] {
			errs = append(errs, verr(field+".id", fmt.Sprintf("duplicate input id %q", in.ID)))
		}
		inputIDs[in.ID] = true
		if in.Type == "select" && len(in.Options) == 0 {
			errs = append(errs, verr(field+".options", fmt.Sprintf("input %q of type select requires non-empty options", in.ID)))
		}
	}

	// 3. steps
	if len(wf.Steps) == 0 {
		errs = append(errs, verr("steps", "at least one step is required"))
		return errs // nothing further is meaningful without steps
	}
	stepIDs := map[string]bool{}
	stepByID := map[string]*Step{}
	for i := range wf.Steps {
		s := &wf.Steps[i]
		field := fmt.Sprintf("steps[%d]", i)
		if strings.TrimSpace(s.ID) == "" {
			errs = append(errs, verr(field+".id", "step id is required"))
			continue
		}
		if strings.TrimSpace(s.Type) == "" {
			errs = append(errs, verr(field+".type", fmt.Sprintf("step %q requires a type", s.ID)))
		}
		if stepIDs[s.ID] {
			errs = append(errs, verr(field+".id", fmt.Sprintf("duplicate step id %q", s.ID)))
		}
		stepIDs[s.ID] = true
		stepByID[s.ID] = s
	}

	// 4. per-step required fields
	for _, s := range wf.Steps {
		field := fmt.Sprintf("steps.%s", s.ID)
		switch s.Type {
		case StepScript:
			if strings.TrimSpace(s.Script) == "" {
				errs = append(errs, verr(field+".script", fmt.Sprintf("script step %q requires script", s.ID)))
			}
		case StepLLM:
			if strings.TrimSpace(s.Model) == "" {
				errs = append(errs, verr(field+".model", fmt.Sprintf("llm step %q requires model", s.ID)))
			}
			if strings.TrimSpace(s.PromptTemplate) == "" {
				errs = append(errs, verr(field+".prompt_template", fmt.Sprintf("llm step %q requires prompt_template", s.ID)))
			}
		case StepConditional:
			if strings.TrimSpace(s.Condition) == "" {
				errs = append(errs, verr(field+".condition", fmt.Sprintf("conditional step %q requires condition", s.ID)))
			}
			if len(s.ThenSteps) == 0 {
				errs = append(errs, verr(field+".then_steps", fmt.Sprintf("conditional step %q requires then_steps", s.ID)))
			}
		case StepLoop:
			if s.Items == nil {
				errs = append(errs, verr(field+".items", fmt.Sprintf("loop step %q requires items", s.ID)))
			}
			if len(s.LoopSteps) == 0 {
				errs = append(errs, verr(field+".loop_steps", fmt.Sprintf("loop step %q requires loop_steps", s.ID)))
			}
		case StepOutput:
			if strings.TrimSpace(s.Message) == "" {
				errs = append(errs, verr(field+".message", fmt.Sprintf("output step %q requires message", s.ID)))
			}
		case "":
			// already reported above
		default:
			errs = append(errs, verr(field+".type", fmt.Sprintf("unknown step type %q", s.Type)))
		}

		if s.ErrorPropagation == PropagationFallback && strings.TrimSpace(s.FallbackStep) == "" {
			errs = append(errs, verr(field+".fallback_step", fmt.Sprintf("step %q uses fallback propagation but has no fallback_step", s.ID)))
		}
	}

	// 5. depends_on references
	for _, s := range wf.Steps {
		field := fmt.Sprintf("steps.%s.depends_on", s.ID)
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				errs = append(errs, verr(field, fmt.Sprintf("step %q cannot depend on itself", s.ID)))
				continue
			}
			if !stepIDs[dep] {
				errs = append(errs, verr(field, fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep)))
			}
		}
	}

	// 6. cycle detection (white/gray/black DFS)
	if cyclePath := detectCycle(wf.Steps); cyclePath != "" {
		errs = append(errs, verr("steps", fmt.Sprintf("Circular dependency: %s", cyclePath)))
	}

	// 7. variable reference validation
	errs = append(errs, validateReferences(wf, stepIDs, inputIDs)...)

	// 8. UI metadata
	if wf.UIMetadata != nil {
		for _, node := range wf.UIMetadata.Nodes {
			if !stepIDs[node.ID] {
				errs = append(errs, verr("ui_metadata.nodes", fmt.Sprintf("node references unknown step %q", node.ID)))
			}
		}
		if wf.UIMetadata.Viewport.Zoom <= 0 {
			errs = append(errs, verr("ui_metadata.viewport.zoom", "viewport zoom must be positive"))
		}
	}

	return errs
}

func verr(field, msg string) ValidationError {
	return ValidationError{Severity: SeverityError, Field: field, Message: msg}
}

func vwarn(field, msg string) ValidationError {
	return ValidationError{Severity: SeverityWarning, Field: field, Message: msg}
}

// HasErrors reports whether any entry is an error (not merely a warning).
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

const (
	white = 0
	gray  = 1
	black = 2
)

// detectCycle runs a three-color DFS over the depends_on graph and returns
// a human-readable cycle description, or "" if the graph is acyclic.
func detectCycle(steps []Step) string {
	byID := map[string]Step{}
	for _, s := range steps {
		byID[s.ID] = s
	}
	color := map[string]int{}
	var path []string
	var cycle string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // unknown dep reported separately
			}
			switch color[dep] {
			case gray:
				cycle = strings.Join(append(append([]string{}, path...), dep), " -> ")
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if visit(s.ID) {
				return cycle
			}
		}
	}
	return ""
}

// validateReferences extracts every ${...} span from each step's
// prompt_template, message and condition, from each string value directly
// under inputs, and from items when items is a string, and checks scope
// rules. Strings nested deeper inside inputs, and strings inside a literal
// items array or object, are not checked.
func validateReferences(wf *Workflow, stepIDs map[string]bool, inputIDs map[string]bool) []ValidationError {
	var errs []ValidationError
	predecessors := dependencyClosures(wf.Steps)
	loopStepSet := map[string]bool{}
	for _, s := range wf.Steps {
		if s.Type == StepLoop {
			for _, id := range s.LoopSteps {
				loopStepSet[id] = true
			}
		}
	}

	check := func(owner string, text string) {
		for _, ref := range FindReferences(text) {
			errs = append(errs, checkReference(owner, ref.Raw, wf, stepIDs, inputIDs, predecessors, loopStepSet)...)
		}
	}

	for _, s := range wf.Steps {
		field := fmt.Sprintf("steps.%s", s.ID)
		for _, v := range s.Inputs {
			if str, ok := v.(string); ok {
				check(field+".inputs", str)
			}
		}
		if s.PromptTemplate != "" {
			check(field+".prompt_template", s.PromptTemplate)
		}
		if s.Message != "" {
			check(field+".message", s.Message)
		}
		if s.Condition != "" {
			check(field+".condition", s.Condition)
		}
		if str, ok := s.Items.(string); ok {
			check(field+".items", str)
		}
	}
	return errs
}

func checkReference(owner, ref string, wf *Workflow, stepIDs, inputIDs map[string]bool, predecessors map[string]map[string]bool, loopSteps map[string]bool) []ValidationError {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 {
		return []ValidationError{verr(owner, fmt.Sprintf("malformed reference ${%s}", ref))}
	}
	switch parts[0] {
	case "workflow":
		if len(parts) < 3 || parts[1] != "inputs" || !inputIDs[strings.Join(parts[2:], ".")] {
			return []ValidationError{verr(owner, fmt.Sprintf("reference ${%s} does not name a declared input", ref))}
		}
	case "steps":
		if len(parts) < 4 || parts[2] != "outputs" {
			return []ValidationError{verr(owner, fmt.Sprintf("malformed step reference ${%s}", ref))}
		}
		stepID := parts[1]
		if !stepIDs[stepID] {
			return []ValidationError{verr(owner, fmt.Sprintf("reference ${%s} names unknown step %q", ref, stepID))}
		}
		ownerStep := strings.TrimPrefix(owner, "steps.")
		if idx := strings.Index(ownerStep, "."); idx >= 0 {
			ownerStep = ownerStep[:idx]
		}
		if preds, ok := predecessors[ownerStep]; !ok || !preds[stepID] {
			return []ValidationError{verr(owner, fmt.Sprintf("reference ${%s} is not a reachable predecessor of %q", ref, ownerStep))}
		}
	case "env":
		if len(parts) != 2 {
			return []ValidationError{verr(owner, fmt.Sprintf("dotted env reference ${%s} is not allowed", ref))}
		}
		// missing env at validation time is a warning, not an error: env vars
		// are supplied at run time, outside the document.
		return []ValidationError{vwarn(owner, fmt.Sprintf("environment variable %q referenced by ${%s} is not verified at validation time", parts[1], ref))}
	case "loop":
		ownerStep := strings.TrimPrefix(owner, "steps.")
		if idx := strings.Index(ownerStep, "."); idx >= 0 {
			ownerStep = ownerStep[:idx]
		}
		if !loopSteps[ownerStep] {
			return []ValidationError{verr(owner, fmt.Sprintf("reference ${%s} used outside a loop's loop_steps", ref))}
		}
	default:
		return []ValidationError{verr(owner, fmt.Sprintf("reference ${%s} uses unknown scope %q", ref, parts[0]))}
	}
	return nil
}

// dependencyClosures returns, for each step, the set of step IDs reachable
// by following depends_on transitively (its valid predecessors for
// variable resolution purposes).
func dependencyClosures(steps []Step) map[string]map[string]bool {
	byID := map[string]Step{}
	for _, s := range steps {
		byID[s.ID] = s
	}
	closures := map[string]map[string]bool{}

	var closureOf func(id string, seen map[string]bool) map[string]bool
	closureOf = func(id string, seen map[string]bool) map[string]bool {
		if c, ok := closures[id]; ok {
			return c
		}
		result := map[string]bool{}
		if seen[id] {
			return result // guard against cycles; cycle check reports separately
		}
		seen[id] = true
		for _, dep := range byID[id].DependsOn {
			result[dep] = true
			for anc := range closureOf(dep, seen) {
				result[anc] = true
			}
		}
		closures[id] = result
		return result
	}

	for _, s := range steps {
		closureOf(s.ID, map[string]bool{})
	}
	return closures
}

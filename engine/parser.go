// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"axonflow/flowkernel/shared/ferrors"
)

// allowedTags are the only YAML type tags a workflow document may use.
// Anything of the form "!!<lang>/<construct>" outside this set is rejected
// before struct decoding ever runs.
var allowedTags = map[string]bool{
	"!!map":   true,
	"!!seq":   true,
	"!!str":   true,
	"!!int":   true,
	"!!float": true,
	"!!bool":  true,
	"!!null":  true,
	"!!timestamp": true,
	"":        true, // untagged scalar/collection
}

// ParseError is a structured parse failure with a line/column locator.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error { return ferrors.ErrParse }

// Parse decodes a YAML workflow document into a Workflow, refusing
// documents above maxBytes and any node carrying a disallowed type tag.
func Parse(r io.Reader, maxBytes int64) (*Workflow, error) {
	limited := io.LimitReader(r, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("failed to read document: %v", err)}
	}
	if int64(len(raw)) > maxBytes {
		return nil, &ParseError{Message: fmt.Sprintf("document exceeds maximum size of %d bytes", maxBytes)}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, wrapYAMLError(err)
	}
	if len(root.Content) == 0 {
		return nil, &ParseError{Message: "empty document"}
	}

	if err := checkTags(root.Content[0]); err != nil {
		return nil, err
	}

	var wf Workflow
	if err := root.Content[0].Decode(&wf); err != nil {
		return nil, wrapYAMLError(err)
	}
	return &wf, nil
}

// ParseString is a convenience wrapper around Parse for in-memory documents.
func ParseString(doc string, maxBytes int64) (*Workflow, error) {
	return Parse(strings.NewReader(doc), maxBytes)
}

// checkTags walks the raw node tree and rejects any tag not on the
// allowlist, defeating constructors that would deserialize into
// language-native callables or objects.
func checkTags(n *yaml.Node) error {
	if n == nil {
		return nil
	}
	tag := n.Tag
	if strings.HasPrefix(tag, "!!") {
		if !allowedTags[tag] {
			return &ParseError{
				Message: fmt.Sprintf("disallowed type tag %q", tag),
				Line:    n.Line,
				Column:  n.Column,
			}
		}
	} else if strings.HasPrefix(tag, "!") && tag != "!" {
		// Any custom "!foo" / "!!lang/construct" tag not on the allowlist.
		return &ParseError{
			Message: fmt.Sprintf("disallowed type tag %q", tag),
			Line:    n.Line,
			Column:  n.Column,
		}
	}
	for _, c := range n.Content {
		if err := checkTags(c); err != nil {
			return err
		}
	}
	return nil
}

func wrapYAMLError(err error) *ParseError {
	// yaml.v3 TypeError carries multiple sub-messages; flatten to one line.
	return &ParseError{Message: strings.ReplaceAll(err.Error(), "\n  ", " ")}
}

// Serialize renders a Workflow back to YAML. Round-tripping
// parse(serialize(parse(y))) must be deep-equal to parse(y).
func Serialize(wf *Workflow) ([]byte, error) {
	return yaml.Marshal(wf)
}

// Package tplengine implements the engine's template resolver (nika spec
// §4.2, component C3): it scans a string for `{{use.<path>}}` occurrences
// and substitutes values supplied by a resolver callback. Non-string values
// are stringified with Masterminds/sprig's toJson helper so a task can
// interpolate, say, a list or object output into a shell command string.
package tplengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

// usePattern matches `{{use.<path>}}` with no surrounding whitespace, the
// literal form defined by the spec. Paths may contain dots, word characters,
// and bracket indices (e.g. "items[0].id").
var usePattern = regexp.MustCompile(`\{\{use\.([A-Za-z0-9_.\[\]-]+)\}\}`)

// Resolution records one successful substitution, reported by the caller as
// a TemplateResolved event.
type Resolution struct {
	Alias string
	Value any
}

// Resolver looks up the value bound to a `use.<path>` alias. ok is false
// when the alias does not resolve, which Resolve turns into a BindingError.
type Resolver func(path string) (value any, ok bool)

// HasTemplate reports whether s contains any `{{...}}` sequence at all; a
// string without one is guaranteed to resolve to itself unchanged.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// BindingError is returned by Resolve when a `{{use.<path>}}` reference does
// not resolve against the supplied Resolver.
type BindingError struct {
	Alias string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("unresolved binding reference: use.%s", e.Alias)
}

var toJSON = sprig.GenericFuncMap()["toJson"].(func(v any) string)

// Stringify renders a resolved value for substitution into a template
// string: strings pass through unchanged, everything else is JSON-encoded.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return toJSON(v)
}

// Resolve substitutes every `{{use.<path>}}` occurrence in s, returning the
// rewritten string and the list of resolutions made (in occurrence order,
// duplicates included) for the caller to emit as TemplateResolved events.
// A string with no templates is returned unchanged with a nil resolution
// list — the identity case required by spec §8 property 7.
func Resolve(s string, resolve Resolver) (string, []Resolution, error) {
	if !HasTemplate(s) {
		return s, nil, nil
	}
	var resolutions []Resolution
	var firstErr error
	out := usePattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		path := usePattern.FindStringSubmatch(match)[1]
		value, ok := resolve(path)
		if !ok {
			firstErr = &BindingError{Alias: path}
			return match
		}
		resolutions = append(resolutions, Resolution{Alias: path, Value: value})
		return Stringify(value)
	})
	if firstErr != nil {
		return "", nil, firstErr
	}
	return out, resolutions, nil
}

// References returns every `use.<path>` alias referenced in s, without
// resolving them. Used by the binding wiring validator (C10) to check
// dangling references before dispatch.
func References(s string) []string {
	matches := usePattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1])
	}
	return refs
}

// Package attrs implements the function-attribute collector (spec.md
// §4.3): for a callable's source, require a single module-level
// function, extract its required and optional parameters, and capture
// its declared output schema from an explicit override. hostlang.Parse
// extracts no return annotation from JS source, so without an override
// the schema is empty.
package attrs

import (
	"strings"

	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
	"github.com/r3e-network/sfnc/hostlang"
)

// Attrs is the collected attribute set for one callable.
type Attrs struct {
	Name         string
	Required     []hostlang.Param
	Optional     []hostlang.OptParam
	ReturnFields []string
}

// RequiredNames returns the required parameter names, in declaration
// order.
func (a Attrs) RequiredNames() []string {
	out := make([]string, len(a.Required))
	for i, p := range a.Required {
		out[i] = p.Name
	}
	return out
}

// OptionalNames returns the optional parameter names, in declaration
// order.
func (a Attrs) OptionalNames() []string {
	out := make([]string, len(a.Optional))
	for i, p := range a.Optional {
		out[i] = p.Name
	}
	return out
}

// Collect parses source (a single file's worth of the host language)
// and collects the attributes of its one module-level function.
//
// optional is the decorator-supplied name→default map (spec.md §4.3
// "optional parameters (name → default value)"): the host language's
// parameter list carries plain names only, so which of them are
// optional — and what their literal defaults are — is information the
// decorator must supply, not something re-derived from JS default
// syntax (goja's AST does not expose it uniformly). Every name in
// optional is removed from the required set.
//
// schemaOverride, if non-empty, becomes ReturnFields (spec.md §4.3 "(a)
// an explicit declaration supplied to the decorator"); otherwise
// ReturnFields is the parsed function's own, which hostlang.Parse
// leaves empty.
func Collect(filename, source string, optional []hostlang.OptParam, schemaOverride []string) (Attrs, error) {
	prog, err := hostlang.Parse(filename, normalizeIndent(source))
	if err != nil {
		return Attrs{}, cerr.ParseFailure(filename, err)
	}
	if prog.Func == nil {
		return Attrs{}, cerr.NotSingleFunction(filename)
	}
	if err := validateDefaults(optional); err != nil {
		return Attrs{}, err
	}

	fn := prog.Func
	isOptional := make(map[string]bool, len(optional))
	for _, o := range optional {
		isOptional[o.Name] = true
	}

	var required []hostlang.Param
	for _, p := range fn.Params {
		if !isOptional[p.Name] {
			required = append(required, p)
		}
	}

	out := Attrs{
		Name:     fn.Name,
		Required: required,
		Optional: optional,
	}

	if len(schemaOverride) > 0 {
		out.ReturnFields = schemaOverride
	} else {
		out.ReturnFields = fn.ReturnFields
	}

	return out, nil
}

// normalizeIndent strips a common leading-whitespace prefix the way an
// inline arrow/function literal lifted out of a larger enclosing
// context typically carries (spec.md §4.3 "with leading indentation
// normalized").
func normalizeIndent(source string) string {
	lines := strings.Split(source, "\n")
	minIndent := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return source
	}
	for i, line := range lines {
		if len(line) >= minIndent {
			lines[i] = line[minIndent:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

// validateDefaults rejects optional parameters whose default value is
// not a literal constant (spec.md §6 "default values must be literal
// constants").
func validateDefaults(optional []hostlang.OptParam) error {
	for _, p := range optional {
		if p.Default == nil {
			return cerr.BadDefault(p.Name)
		}
	}
	return nil
}

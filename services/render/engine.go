// Package render is a deliberately narrow template evaluator for
// tenant-authored email templates. It supports variable interpolation,
// truthiness conditionals, list iteration and a fixed two-decimal number
// helper, and nothing else: no expressions, no function calls beyond the
// whitelisted helper, no access outside the supplied bindings. Rendering is
// a pure function of (template, bindings).
//
// Syntax:
//
//	{{ name }}            escaped interpolation ($ prefix optional)
//	{!! name !!}          raw interpolation
//	{{ number_format(x) }} fixed two-decimal formatting
//	{{ item.field }}      field access on loop elements / map bindings
//	@if(name) ... @else ... @endif
//	@foreach(items as item) ... @endforeach
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
)

// Bindings are the variable values available to a template.
type Bindings map[string]interface{}

// RenderError reports a template the evaluator cannot parse or a reference
// to an undefined control construct.
type RenderError struct {
	Detail string
}

func (e *RenderError) Error() string {
	return "template rendering failed: " + e.Detail
}

func renderErrf(format string, args ...interface{}) error {
	return &RenderError{Detail: fmt.Sprintf(format, args...)}
}

type Option func(*renderer)

// WithoutEscaping disables HTML escaping of {{ }} interpolations. Used for
// subject lines, which are not HTML.
func WithoutEscaping() Option {
	return func(r *renderer) {
		r.escape = false
	}
}

// Render evaluates templateString against bindings. Body rendering escapes
// interpolated values by default; pass WithoutEscaping for plain-text
// contexts. Identical inputs always produce identical output.
func Render(templateString string, bindings Bindings, opts ...Option) (string, error) {
	r := &renderer{escape: true}
	for _, opt := range opts {
		opt(r)
	}

	nodes, err := parse(templateString)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := r.renderNodes(&sb, nodes, scope{bindings: bindings}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type renderer struct {
	escape bool
}

type scope struct {
	bindings Bindings
	locals   map[string]interface{}
}

func (s scope) lookup(name string) (interface{}, bool) {
	if s.locals != nil {
		if v, ok := s.locals[name]; ok {
			return v, true
		}
	}
	v, ok := s.bindings[name]
	return v, ok
}

func (s scope) withLocal(name string, value interface{}) scope {
	locals := make(map[string]interface{}, len(s.locals)+1)
	for k, v := range s.locals {
		locals[k] = v
	}
	locals[name] = value
	return scope{bindings: s.bindings, locals: locals}
}

func (r *renderer) renderNodes(sb *strings.Builder, nodes []node, sc scope) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *textNode:
			sb.WriteString(n.text)

		case *interpolationNode:
			value, err := evalExpression(n.expr, sc)
			if err != nil {
				return err
			}
			rendered := stringify(value)
			if r.escape && !n.raw {
				rendered = html.EscapeString(rendered)
			}
			sb.WriteString(rendered)

		case *ifNode:
			value, err := resolveReference(n.reference, sc)
			if err != nil {
				return err
			}
			if isTruthy(value) {
				if err := r.renderNodes(sb, n.then, sc); err != nil {
					return err
				}
			} else if err := r.renderNodes(sb, n.otherwise, sc); err != nil {
				return err
			}

		case *foreachNode:
			items, err := toList(n.listVariable, sc)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := r.renderNodes(sb, n.body, sc.withLocal(n.itemName, item)); err != nil {
					return err
				}
			}

		default:
			return renderErrf("unknown node type %T", n)
		}
	}
	return nil
}

// evalExpression handles the interpolation subset: a variable reference with
// optional dotted field access, or number_format(ref).
func evalExpression(expr string, sc scope) (interface{}, error) {
	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "number_format(") {
		if !strings.HasSuffix(expr, ")") {
			return nil, renderErrf("unterminated number_format in %q", expr)
		}
		inner := strings.TrimSpace(expr[len("number_format(") : len(expr)-1])
		value, err := resolveReference(inner, sc)
		if err != nil {
			return nil, err
		}
		f, ok := toFloat(value)
		if !ok {
			return nil, renderErrf("number_format argument %q is not numeric", inner)
		}
		return strconv.FormatFloat(f, 'f', 2, 64), nil
	}

	if strings.ContainsAny(expr, "()") {
		return nil, renderErrf("unsupported expression %q", expr)
	}

	return resolveReference(expr, sc)
}

func resolveReference(ref string, sc scope) (interface{}, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "$")
	if ref == "" {
		return nil, renderErrf("empty variable reference")
	}

	parts := strings.Split(ref, ".")
	if !isIdentifier(parts[0]) {
		return nil, renderErrf("invalid variable reference %q", ref)
	}

	value, ok := sc.lookup(parts[0])
	if !ok {
		// Missing bindings render as empty rather than failing: subject and
		// body share one binding set and optional variables are common.
		return nil, nil
	}

	for _, field := range parts[1:] {
		if !isIdentifier(field) {
			return nil, renderErrf("invalid field reference %q", ref)
		}
		value = fieldOf(value, field)
	}
	return value, nil
}

func fieldOf(value interface{}, field string) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return v[field]
	case Bindings:
		return v[field]
	default:
		return nil
	}
}

func toList(ref string, sc scope) ([]interface{}, error) {
	value, err := resolveReference(ref, sc)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	case []string:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, renderErrf("@foreach variable %q is not a list", ref)
	}
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		if f, ok := toFloat(value); ok {
			return f != 0
		}
		return true
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isReference accepts a variable name with optional dotted field access,
// as in "row.visible".
func isReference(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if !isIdentifier(part) {
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

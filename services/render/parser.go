package render

import (
	"strings"
)

type node interface{}

type textNode struct {
	text string
}

type interpolationNode struct {
	expr string
	raw  bool
}

type ifNode struct {
	reference string
	then      []node
	otherwise []node
}

type foreachNode struct {
	listVariable string
	itemName     string
	body         []node
}

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenInterpolation
	tokenRawInterpolation
	tokenIf
	tokenElse
	tokenEndif
	tokenForeach
	tokenEndforeach
)

type token struct {
	kind tokenKind
	// text for tokenText, expression for interpolations and directives
	value string
}

// parse tokenizes and builds the node tree. Any construct outside the
// documented subset is a RenderError.
func parse(input string) ([]node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	nodes, rest, err := parseNodes(tokens, "")
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		switch rest[0].kind {
		case tokenElse:
			return nil, renderErrf("@else outside of @if block")
		case tokenEndif:
			return nil, renderErrf("@endif without matching @if")
		case tokenEndforeach:
			return nil, renderErrf("@endforeach without matching @foreach")
		}
		return nil, renderErrf("unexpected trailing construct")
	}
	return nodes, nil
}

// parseNodes consumes tokens until a block terminator owned by the caller.
// terminator is "" at top level, "if" or "foreach" inside blocks.
func parseNodes(tokens []token, terminator string) ([]node, []token, error) {
	var nodes []node

	for len(tokens) > 0 {
		t := tokens[0]

		switch t.kind {
		case tokenText:
			nodes = append(nodes, &textNode{text: t.value})
			tokens = tokens[1:]

		case tokenInterpolation:
			nodes = append(nodes, &interpolationNode{expr: t.value})
			tokens = tokens[1:]

		case tokenRawInterpolation:
			nodes = append(nodes, &interpolationNode{expr: t.value, raw: true})
			tokens = tokens[1:]

		case tokenIf:
			reference := strings.TrimPrefix(strings.TrimSpace(t.value), "$")
			if !isReference(reference) {
				return nil, nil, renderErrf("@if condition %q must be a variable", t.value)
			}

			then, rest, err := parseNodes(tokens[1:], "if")
			if err != nil {
				return nil, nil, err
			}

			var otherwise []node
			if len(rest) > 0 && rest[0].kind == tokenElse {
				otherwise, rest, err = parseNodes(rest[1:], "if")
				if err != nil {
					return nil, nil, err
				}
			}
			if len(rest) == 0 || rest[0].kind != tokenEndif {
				return nil, nil, renderErrf("@if(%s) is missing @endif", reference)
			}

			nodes = append(nodes, &ifNode{reference: reference, then: then, otherwise: otherwise})
			tokens = rest[1:]

		case tokenForeach:
			listVariable, itemName, err := parseForeachHeader(t.value)
			if err != nil {
				return nil, nil, err
			}

			body, rest, err := parseNodes(tokens[1:], "foreach")
			if err != nil {
				return nil, nil, err
			}
			if len(rest) == 0 || rest[0].kind != tokenEndforeach {
				return nil, nil, renderErrf("@foreach(%s as %s) is missing @endforeach", listVariable, itemName)
			}

			nodes = append(nodes, &foreachNode{listVariable: listVariable, itemName: itemName, body: body})
			tokens = rest[1:]

		case tokenElse, tokenEndif:
			if terminator == "if" {
				return nodes, tokens, nil
			}
			return nodes, tokens, nil

		case tokenEndforeach:
			if terminator == "foreach" {
				return nodes, tokens, nil
			}
			return nodes, tokens, nil
		}
	}

	if terminator != "" {
		return nil, nil, renderErrf("unterminated @%s block", terminator)
	}
	return nodes, nil, nil
}

// parseForeachHeader splits "items as item".
func parseForeachHeader(header string) (string, string, error) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 3 || parts[1] != "as" {
		return "", "", renderErrf("@foreach expects 'list as item', got %q", header)
	}
	listVariable := strings.TrimPrefix(parts[0], "$")
	itemName := strings.TrimPrefix(parts[2], "$")
	if !isIdentifier(listVariable) || !isIdentifier(itemName) {
		return "", "", renderErrf("invalid @foreach header %q", header)
	}
	return listVariable, itemName, nil
}

var knownDirectives = map[string]bool{
	"if":         true,
	"else":       true,
	"endif":      true,
	"foreach":    true,
	"endforeach": true,
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			tokens = append(tokens, token{kind: tokenText, value: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(input) {
		// Raw interpolation first: {!! ... !!}
		if strings.HasPrefix(input[i:], "{!!") {
			end := strings.Index(input[i+3:], "!!}")
			if end < 0 {
				return nil, renderErrf("unterminated {!! ... !!} interpolation")
			}
			flushText()
			tokens = append(tokens, token{kind: tokenRawInterpolation, value: strings.TrimSpace(input[i+3 : i+3+end])})
			i += 3 + end + 3
			continue
		}

		if strings.HasPrefix(input[i:], "{{") {
			end := strings.Index(input[i+2:], "}}")
			if end < 0 {
				return nil, renderErrf("unterminated {{ ... }} interpolation")
			}
			flushText()
			tokens = append(tokens, token{kind: tokenInterpolation, value: strings.TrimSpace(input[i+2 : i+2+end])})
			i += 2 + end + 2
			continue
		}

		if input[i] == '@' {
			name := directiveName(input[i+1:])
			switch {
			case name == "else" && !directiveHasArgs(input[i+1+len(name):]):
				flushText()
				tokens = append(tokens, token{kind: tokenElse})
				i += 1 + len(name)
				continue
			case name == "endif":
				flushText()
				tokens = append(tokens, token{kind: tokenEndif})
				i += 1 + len(name)
				continue
			case name == "endforeach":
				flushText()
				tokens = append(tokens, token{kind: tokenEndforeach})
				i += 1 + len(name)
				continue
			case name != "" && directiveHasArgs(input[i+1+len(name):]):
				args, consumed, err := readDirectiveArgs(input[i+1+len(name):])
				if err != nil {
					return nil, err
				}
				if !knownDirectives[name] {
					return nil, renderErrf("unknown directive @%s", name)
				}
				flushText()
				switch name {
				case "if":
					tokens = append(tokens, token{kind: tokenIf, value: args})
				case "foreach":
					tokens = append(tokens, token{kind: tokenForeach, value: args})
				default:
					return nil, renderErrf("directive @%s does not take arguments", name)
				}
				i += 1 + len(name) + consumed
				continue
			}
			// A bare @ that is not a directive (an email address, say) is
			// plain text.
		}

		text.WriteByte(input[i])
		i++
	}

	flushText()
	return tokens, nil
}

func directiveName(s string) string {
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return s[:end]
}

func directiveHasArgs(s string) bool {
	return strings.HasPrefix(s, "(")
}

// readDirectiveArgs reads "(...)" and returns the inner expression plus the
// number of bytes consumed including the parentheses.
func readDirectiveArgs(s string) (string, int, error) {
	if !strings.HasPrefix(s, "(") {
		return "", 0, renderErrf("directive is missing arguments")
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[1:i]), i + 1, nil
			}
		}
	}
	return "", 0, renderErrf("unterminated directive arguments")
}

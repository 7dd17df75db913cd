package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	fencedJSON    = regexp.MustCompile("(?i)```(?:json)?\\s*(\\[[\\s\\S]*?\\]|\\{[\\s\\S]*?\\})\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([\]}])`)

	errNoJSON = errors.New("no json found in model response")
)

// ExtractFirstJSON locates the first JSON array or object in free-form model
// output: a fenced block, then the whole text, then the first position from
// which a complete value decodes.
func ExtractFirstJSON(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	s := strings.TrimLeft(strings.TrimSpace(text), "\ufeff")
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		return s, true
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			continue
		}
		return text[i : i+int(dec.InputOffset())], true
	}
	return "", false
}

// SafeJSONLoads decodes the first JSON value of text. Trailing commas are
// tolerated, and values written with single quotes or bare True/False/None
// literals fall back to a permissive flow-style decode. Backslash escapes
// inside single-quoted strings (\') are not understood by that fallback and
// fail the parse.
func SafeJSONLoads(text string) (any, error) {
	raw, ok := ExtractFirstJSON(text)
	if !ok || raw == "" {
		return nil, &ParseError{Raw: text, Err: errNoJSON}
	}
	raw = trailingComma.ReplaceAllString(raw, "$1")
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("invalid json: %w", err)}
	}
	loose, err := fromLiteral(&doc)
	if err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}
	switch loose.(type) {
	case map[string]any, []any:
		return loose, nil
	}
	return nil, &ParseError{Raw: text, Err: fmt.Errorf("unexpected value %T", loose)}
}

// fromLiteral turns a flow-style yaml node into what encoding/json would
// have produced. Only unquoted scalars are read as literals, so 'None' and
// "true" stay strings.
func fromLiteral(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromLiteral(n.Content[0])
	case yaml.AliasNode:
		return fromLiteral(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromLiteral(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromLiteral(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return scalarLiteral(n)
	}
	return nil, fmt.Errorf("unsupported yaml node kind %d", n.Kind)
}

func scalarLiteral(n *yaml.Node) (any, error) {
	if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0 {
		return n.Value, nil
	}
	switch n.Value {
	case "None", "null", "":
		return nil, nil
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	}
	switch n.ShortTag() {
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode number %q: %w", n.Value, err)
		}
		return f, nil
	}
	return n.Value, nil
}

// ItemList returns data itself when it is a list, or the first non-empty
// list found under keys when it is an object.
func ItemList(data any, keys ...string) ([]any, error) {
	if m, ok := data.(map[string]any); ok {
		data = nil
		for _, k := range keys {
			if l, ok := m[k].([]any); ok && len(l) > 0 {
				data = l
				break
			}
		}
	}
	if l, ok := data.([]any); ok {
		return l, nil
	}
	return nil, fmt.Errorf("unexpected json type %T", data)
}

// pkg/actions/selector.go
package actions

import (
	"fmt"
	"strings"

	"github.com/antchfx/xpath"
	json "github.com/json-iterator/go"
)

// SelectorType discriminates the selector union.
type SelectorType string

const (
	SelectorAttributeValue SelectorType = "attributeValueSelector"
	SelectorTagContains    SelectorType = "tagContainsSelector"
	SelectorXPath          SelectorType = "xpathSelector"
)

// Selector locates a page element. Exactly one of the three variants applies,
// chosen by Type.
type Selector struct {
	Type          SelectorType `json:"type"`
	Attribute     string       `json:"attribute,omitempty"`
	Value         string       `json:"value"`
	CaseSensitive bool         `json:"case_sensitive,omitempty"`
}

// NewAttributeValueSelector matches elements carrying attribute=value.
func NewAttributeValueSelector(attribute, value string) Selector {
	return Selector{Type: SelectorAttributeValue, Attribute: attribute, Value: value}
}

// NewTagContainsSelector matches elements whose text contains value.
func NewTagContainsSelector(value string, caseSensitive bool) Selector {
	return Selector{Type: SelectorTagContains, Value: value, CaseSensitive: caseSensitive}
}

// NewXPathSelector builds an XPath selector. The expression must be
// syntactically valid at construction time.
func NewXPathSelector(expr string) (Selector, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return Selector{}, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return Selector{Type: SelectorXPath, Value: expr}, nil
}

// Query resolves the selector to the concrete query string handed to the
// browser session: a CSS selector for attribute matches, an XPath expression
// otherwise.
func (s Selector) Query() (string, error) {
	switch s.Type {
	case SelectorAttributeValue:
		if s.Attribute == "" {
			return "", fmt.Errorf("attributeValueSelector requires an attribute")
		}
		return fmt.Sprintf(`[%s=%q]`, s.Attribute, s.Value), nil
	case SelectorTagContains:
		if s.CaseSensitive {
			return fmt.Sprintf(`//*[contains(text(), %s)]`, xpathLiteral(s.Value)), nil
		}
		lowered := strings.ToLower(s.Value)
		return fmt.Sprintf(
			`//*[contains(translate(text(), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), %s)]`,
			xpathLiteral(lowered)), nil
	case SelectorXPath:
		if _, err := xpath.Compile(s.Value); err != nil {
			return "", fmt.Errorf("invalid xpath %q: %w", s.Value, err)
		}
		return s.Value, nil
	case "":
		// A bare string selector is treated as CSS.
		return s.Value, nil
	}
	return "", fmt.Errorf("unknown selector type %q", s.Type)
}

// UnmarshalJSON accepts either a selector object or a plain CSS string.
func (s *Selector) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var css string
		if err := json.Unmarshal(data, &css); err != nil {
			return err
		}
		*s = Selector{Value: css}
		return nil
	}

	type alias Selector
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Type == SelectorXPath {
		if _, err := xpath.Compile(a.Value); err != nil {
			return fmt.Errorf("invalid xpath %q: %w", a.Value, err)
		}
	}
	*s = Selector(a)
	return nil
}

// xpathLiteral quotes a string for embedding in an XPath expression. XPath 1.0
// has no escape syntax, so values containing both quote kinds fall back to
// concat().
func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

package core

import "strings"

// Element is a tolerant XML scan result: a tag head (which may carry a
// pseudo-attribute after '=', as Qwen3-Coder's `<function=NAME>` and
// `<parameter=KEY>` do), any direct text content, and nested children.
//
// This is a hand-rolled scanner, not encoding/xml: encoding/xml hard-fails
// on unescaped '&'/'<' in text nodes and on duplicate sibling elements,
// exactly the imperfections model output exhibits. A malformed suffix
// yields a partial result rather than a parse failure whenever the prefix
// is well-formed, matching §4.3's tolerance requirement.
type Element struct {
	Tag         string
	Text        string
	Children    []*Element
	SelfClosing bool
}

// TagName returns the part of the tag head before '=' or whitespace, i.e.
// the name used for matching the corresponding close tag.
func (e *Element) TagName() string {
	return baseName(e.Tag)
}

// TagValue returns the part of the tag head after '=', for `<function=NAME>`
// / `<parameter=KEY>` style pseudo-attributes, and whether one was present.
func (e *Element) TagValue() (string, bool) {
	return tagValue(e.Tag)
}

// Child returns the first child whose TagName matches name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.TagName() == name {
			return c
		}
	}
	return nil
}

// ParseXMLElement parses a single root element starting at the first '<' in
// s, ignoring leading/trailing whitespace and any trailing junk after the
// element closes. Returns ok=false only if no element could be started at
// all (no opening tag found).
func ParseXMLElement(s string) (*Element, bool) {
	el, _, ok := parseElement(s, 0)
	return el, ok
}

func parseElement(s string, pos int) (*Element, int, bool) {
	pos = skipWhitespace(s, pos)
	if pos >= len(s) || s[pos] != '<' {
		return nil, pos, false
	}
	gt := strings.IndexByte(s[pos:], '>')
	if gt == -1 {
		return nil, pos, false
	}
	head := s[pos+1 : pos+gt]
	nextPos := pos + gt + 1

	selfClosing := strings.HasSuffix(head, "/")
	if selfClosing {
		head = strings.TrimSuffix(head, "/")
	}
	head = strings.TrimSpace(head)
	if head == "" || strings.HasPrefix(head, "/") {
		return nil, pos, false
	}

	el := &Element{Tag: head, SelfClosing: selfClosing}
	if selfClosing {
		return el, nextPos, true
	}

	closeTag := "</" + el.TagName() + ">"
	var textBuilder strings.Builder
	seenChildren := map[string]bool{}
	p := nextPos

	for {
		idx := strings.IndexByte(s[p:], '<')
		if idx == -1 {
			textBuilder.WriteString(s[p:])
			el.Text = textBuilder.String()
			return el, len(s), true
		}
		textBuilder.WriteString(s[p : p+idx])
		absIdx := p + idx

		if strings.HasPrefix(s[absIdx:], closeTag) {
			el.Text = textBuilder.String()
			return el, absIdx + len(closeTag), true
		}
		if strings.HasPrefix(s[absIdx:], "</") {
			// Mismatched close tag: tolerate by treating this as the end of
			// the element rather than failing the whole parse.
			gtIdx := strings.IndexByte(s[absIdx:], '>')
			if gtIdx == -1 {
				el.Text = textBuilder.String()
				return el, len(s), true
			}
			el.Text = textBuilder.String()
			return el, absIdx + gtIdx + 1, true
		}

		child, newPos, ok := parseElement(s, absIdx)
		if !ok {
			textBuilder.WriteByte('<')
			p = absIdx + 1
			continue
		}
		if !seenChildren[child.Tag] {
			el.Children = append(el.Children, child)
			seenChildren[child.Tag] = true
		}
		p = newPos
	}
}

func baseName(tag string) string {
	if idx := strings.IndexByte(tag, '='); idx != -1 {
		return strings.TrimSpace(tag[:idx])
	}
	if idx := strings.IndexAny(tag, " \t\n\r"); idx != -1 {
		return strings.TrimSpace(tag[:idx])
	}
	return tag
}

func tagValue(tag string) (string, bool) {
	idx := strings.IndexByte(tag, '=')
	if idx == -1 {
		return "", false
	}
	return strings.TrimSpace(tag[idx+1:]), true
}

func skipWhitespace(s string, pos int) int {
	for pos < len(s) {
		switch s[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// ElementToValue converts a leaf-or-nested Element into a generic
// interface{} tree suitable for schema coercion: a leaf (no children)
// becomes its trimmed text; an element with children becomes a
// map[string]interface{} keyed by each child's TagName.
func ElementToValue(e *Element) interface{} {
	if e.SelfClosing || len(e.Children) == 0 {
		return strings.TrimSpace(e.Text)
	}
	out := make(map[string]interface{}, len(e.Children))
	for _, c := range e.Children {
		out[c.TagName()] = ElementToValue(c)
	}
	return out
}

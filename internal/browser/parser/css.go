// Package parser implements the subset of CSS needed to resolve element
// visibility and to evaluate scope-relative selectors: selector groups with
// descendant/child/sibling combinators, attribute selectors, the
// :nth-of-type pseudo-class, and flat declaration blocks. At-rules and
// nested blocks are skipped, not parsed.
package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Property is a normalized (lowercased) CSS property name.
type Property string

const (
	PropDisplay    Property = "display"
	PropVisibility Property = "visibility"
	PropOpacity    Property = "opacity"
	PropCursor     Property = "cursor"
)

// Declaration is one property:value pair inside a rule block.
type Declaration struct {
	Property  Property
	Value     string
	Important bool
}

// Rule pairs a selector group with its declarations. Position records the
// rule's ordinal within its sheet so that later rules win ties.
type Rule struct {
	Selectors    SelectorGroup
	Declarations []Declaration
	Position     int
}

// StyleSheet is one parsed <style> block or external sheet.
type StyleSheet struct {
	Rules []Rule
}

// Combinator relates a simple selector to the one on its left.
type Combinator int

const (
	CombinatorNone Combinator = iota
	CombinatorDescendant
	CombinatorChild
	CombinatorAdjacent
	CombinatorSibling
)

// AttributeSelector is an [attr], [attr=v], [attr^=v] etc. component.
type AttributeSelector struct {
	Name     string
	Operator string // "", "=", "^=", "$=", "*=", "~="
	Value    string
}

// SimpleSelector is one compound selector: tag, id, classes, attributes and
// an optional :nth-of-type argument (0 means absent).
type SimpleSelector struct {
	Tag        string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
	NthOfType  int
	Combinator Combinator
}

// ComplexSelector is a left-to-right chain of compound selectors.
type ComplexSelector struct {
	Parts []SimpleSelector
}

// SelectorGroup is a comma-separated selector list.
type SelectorGroup []ComplexSelector

// Specificity returns the (id, class+attr+pseudo, type) weight of the chain
// packed into a single comparable integer.
func (c ComplexSelector) Specificity() int {
	var ids, classes, types int
	for _, p := range c.Parts {
		if p.ID != "" {
			ids++
		}
		classes += len(p.Classes) + len(p.Attributes)
		if p.NthOfType > 0 {
			classes++
		}
		if p.Tag != "" && p.Tag != "*" {
			types++
		}
	}
	return ids*1_000_000 + classes*1_000 + types
}

// String reassembles the chain into selector text. Synthesized selectors are
// round-tripped through this, so the output is canonical: single spaces
// around child combinators, lowercase tags.
func (c ComplexSelector) String() string {
	var b strings.Builder
	for i, p := range c.Parts {
		if i > 0 {
			switch p.Combinator {
			case CombinatorChild:
				b.WriteString(" > ")
			case CombinatorAdjacent:
				b.WriteString(" + ")
			case CombinatorSibling:
				b.WriteString(" ~ ")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString(p.compoundString())
	}
	return b.String()
}

func (s SimpleSelector) compoundString() string {
	var b strings.Builder
	if s.Tag != "" {
		b.WriteString(s.Tag)
	}
	if s.ID != "" {
		b.WriteString("#" + s.ID)
	}
	for _, c := range s.Classes {
		b.WriteString("." + c)
	}
	for _, a := range s.Attributes {
		if a.Operator == "" {
			fmt.Fprintf(&b, "[%s]", a.Name)
		} else {
			fmt.Fprintf(&b, "[%s%s%q]", a.Name, a.Operator, a.Value)
		}
	}
	if s.NthOfType > 0 {
		fmt.Fprintf(&b, ":nth-of-type(%d)", s.NthOfType)
	}
	return b.String()
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) eof() bool     { return l.pos >= len(l.input) }
func (l *lexer) peek() byte    { return l.input[l.pos] }
func (l *lexer) advance() byte { b := l.input[l.pos]; l.pos++; return b }

func (l *lexer) accept(b byte) bool {
	if !l.eof() && l.peek() == b {
		l.pos++
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for !l.eof() {
		switch {
		case isSpace(l.peek()):
			l.pos++
		case l.peek() == '/' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '*':
			l.pos += 2
			for !l.eof() {
				if l.peek() == '*' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/' {
					l.pos += 2
					break
				}
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) ident() string {
	start := l.pos
	for !l.eof() && isIdentChar(l.peek()) {
		l.pos++
	}
	return l.input[start:l.pos]
}

// until consumes up to (not including) any byte in stops, honoring quoted
// strings and nested parens so values like url("a}b") do not end the block
// early.
func (l *lexer) until(stops string) string {
	start := l.pos
	depth := 0
	for !l.eof() {
		b := l.peek()
		if depth == 0 && strings.IndexByte(stops, b) >= 0 {
			break
		}
		switch b {
		case '"', '\'':
			l.quoted(b)
			continue
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		l.pos++
	}
	return l.input[start:l.pos]
}

func (l *lexer) quoted(quote byte) {
	l.pos++ // opening quote
	for !l.eof() {
		b := l.advance()
		if b == '\\' && !l.eof() {
			l.pos++
			continue
		}
		if b == quote {
			return
		}
	}
}

// skipBlock consumes a balanced {...} block, the opening brace already seen.
func (l *lexer) skipBlock() {
	depth := 1
	for !l.eof() && depth > 0 {
		switch l.advance() {
		case '{':
			depth++
		case '}':
			depth--
		case '"':
			l.pos--
			l.quoted('"')
		case '\'':
			l.pos--
			l.quoted('\'')
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

func isIdentChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' ||
		b == '-' || b == '_' || b >= 0x80 || b == '\\'
}

// ParseSheet parses stylesheet text. Unparseable rules are dropped rather
// than failing the whole sheet, matching browser error recovery.
func ParseSheet(css string) StyleSheet {
	l := &lexer{input: css}
	var sheet StyleSheet
	pos := 0
	for {
		l.skipSpace()
		if l.eof() {
			return sheet
		}
		if l.peek() == '@' {
			// At-rules (media, keyframes, import) are out of scope.
			l.until("{;")
			if !l.eof() && l.advance() == '{' {
				l.skipBlock()
			}
			continue
		}
		selText := l.until("{")
		if l.eof() {
			return sheet
		}
		l.advance() // '{'
		body := l.until("}")
		l.accept('}')

		group, err := ParseSelectorList(selText)
		if err != nil {
			continue
		}
		decls := parseDeclarations(body)
		if len(decls) == 0 {
			continue
		}
		sheet.Rules = append(sheet.Rules, Rule{Selectors: group, Declarations: decls, Position: pos})
		pos++
	}
}

func parseDeclarations(body string) []Declaration {
	var decls []Declaration
	l := &lexer{input: body}
	for {
		l.skipSpace()
		if l.eof() {
			return decls
		}
		name := strings.ToLower(strings.TrimSpace(l.until(":;")))
		if l.eof() || l.advance() != ':' {
			continue
		}
		raw := strings.TrimSpace(l.until(";"))
		l.accept(';')
		if name == "" || raw == "" {
			continue
		}
		d := Declaration{Property: Property(name)}
		if v, ok := strings.CutSuffix(raw, "!important"); ok {
			d.Important = true
			raw = strings.TrimSpace(v)
		}
		d.Value = strings.ToLower(raw)
		decls = append(decls, d)
	}
}

// ParseSelectorList parses a comma-separated selector list. Unlike sheet
// parsing this is strict: action selectors must fail loudly, not silently
// match nothing.
func ParseSelectorList(s string) (SelectorGroup, error) {
	var group SelectorGroup
	for _, part := range splitTopLevel(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty selector in list %q", s)
		}
		cs, err := parseComplex(part)
		if err != nil {
			return nil, err
		}
		group = append(group, cs)
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("empty selector list")
	}
	return group, nil
}

func splitTopLevel(s string, sep byte) []string {
	var out []string
	l := &lexer{input: s}
	start := 0
	for !l.eof() {
		b := l.peek()
		switch b {
		case '"', '\'':
			l.quoted(b)
		case '[':
			l.until("]")
			l.accept(']')
		case sep:
			out = append(out, s[start:l.pos])
			l.pos++
			start = l.pos
		default:
			l.pos++
		}
	}
	return append(out, s[start:])
}

func parseComplex(s string) (ComplexSelector, error) {
	l := &lexer{input: s}
	var cs ComplexSelector
	comb := CombinatorNone
	for {
		l.skipSpace()
		if l.eof() {
			break
		}
		switch l.peek() {
		case '>':
			l.advance()
			comb = CombinatorChild
			continue
		case '+':
			l.advance()
			comb = CombinatorAdjacent
			continue
		case '~':
			l.advance()
			comb = CombinatorSibling
			continue
		}
		simple, err := parseCompound(l)
		if err != nil {
			return ComplexSelector{}, fmt.Errorf("selector %q: %w", s, err)
		}
		if len(cs.Parts) > 0 && comb == CombinatorNone {
			comb = CombinatorDescendant
		}
		simple.Combinator = comb
		cs.Parts = append(cs.Parts, simple)
		comb = CombinatorNone
	}
	if len(cs.Parts) == 0 {
		return ComplexSelector{}, fmt.Errorf("selector %q has no compound parts", s)
	}
	return cs, nil
}

func parseCompound(l *lexer) (SimpleSelector, error) {
	var s SimpleSelector
	matched := false
	for !l.eof() {
		switch b := l.peek(); {
		case b == '*':
			l.advance()
			s.Tag = "*"
			matched = true
		case isIdentChar(b):
			s.Tag = strings.ToLower(l.ident())
			matched = true
		case b == '#':
			l.advance()
			id := l.ident()
			if id == "" {
				return s, fmt.Errorf("empty id selector")
			}
			s.ID = id
			matched = true
		case b == '.':
			l.advance()
			cls := l.ident()
			if cls == "" {
				return s, fmt.Errorf("empty class selector")
			}
			s.Classes = append(s.Classes, cls)
			matched = true
		case b == '[':
			attr, err := parseAttribute(l)
			if err != nil {
				return s, err
			}
			s.Attributes = append(s.Attributes, attr)
			matched = true
		case b == ':':
			if err := parsePseudo(l, &s); err != nil {
				return s, err
			}
			matched = true
		default:
			if !matched {
				return s, fmt.Errorf("unexpected %q", string(b))
			}
			return s, nil
		}
	}
	if !matched {
		return s, fmt.Errorf("empty compound selector")
	}
	return s, nil
}

func parseAttribute(l *lexer) (AttributeSelector, error) {
	l.advance() // '['
	var a AttributeSelector
	l.skipSpace()
	a.Name = strings.ToLower(l.ident())
	if a.Name == "" {
		return a, fmt.Errorf("attribute selector missing name")
	}
	l.skipSpace()
	if l.accept(']') {
		return a, nil
	}
	for _, op := range []string{"^=", "$=", "*=", "~=", "="} {
		if strings.HasPrefix(l.input[l.pos:], op) {
			a.Operator = op
			l.pos += len(op)
			break
		}
	}
	if a.Operator == "" {
		return a, fmt.Errorf("attribute selector [%s: bad operator", a.Name)
	}
	l.skipSpace()
	if !l.eof() && (l.peek() == '"' || l.peek() == '\'') {
		quote := l.peek()
		start := l.pos + 1
		l.quoted(quote)
		a.Value = l.input[start : l.pos-1]
	} else {
		start := l.pos
		for !l.eof() && l.peek() != ']' && !isSpace(l.peek()) {
			l.pos++
		}
		a.Value = l.input[start:l.pos]
	}
	l.skipSpace()
	if !l.accept(']') {
		return a, fmt.Errorf("attribute selector [%s not closed", a.Name)
	}
	return a, nil
}

func parsePseudo(l *lexer, s *SimpleSelector) error {
	l.advance() // ':'
	l.accept(':')
	name := strings.ToLower(l.ident())
	switch name {
	case "nth-of-type":
		if !l.accept('(') {
			return fmt.Errorf(":nth-of-type missing argument")
		}
		arg := strings.TrimSpace(l.until(")"))
		if !l.accept(')') {
			return fmt.Errorf(":nth-of-type argument not closed")
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return fmt.Errorf(":nth-of-type(%s): index must be a positive integer", arg)
		}
		s.NthOfType = n
	default:
		// Other pseudo-classes (:hover, :focus, ::before) can never match a
		// static tree; swallow the argument and treat the compound as inert.
		if l.accept('(') {
			l.until(")")
			l.accept(')')
		}
		s.Attributes = append(s.Attributes, AttributeSelector{Name: "data-pseudo-" + name, Operator: "=", Value: "\x00"})
	}
	return nil
}

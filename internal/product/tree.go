package product

import "strings"

// Part is one piece of a text or attribute value: a literal or a field reference.
type Part struct {
	Lit   string
	Field Field
	isRef bool
}

// Value is a sequence of parts concatenated at render time.
type Value []Part

// V builds a Value from strings (literals) and Fields.
func V(parts ...any) Value {
	out := make(Value, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case string:
			out = append(out, Part{Lit: p})
		case Field:
			out = append(out, Part{Field: p, isRef: true})
		default:
			panic("product: value part must be string or Field")
		}
	}
	return out
}

// Fields returns the field references in v.
func (v Value) Fields() []Field {
	var out []Field
	for _, p := range v {
		if p.isRef {
			out = append(out, p.Field)
		}
	}
	return out
}

// Attr is a named attribute value.
type Attr struct {
	Name  string
	Value Value
}

// Node is a template element. Elements that reference a field the event
// does not carry are pruned together with their subtree, unless Required,
// in which case rendering fails.
type Node struct {
	Name         string
	Attrs        []Attr
	Text         Value
	Children     []*Node
	Required     bool
	PerMagnitude bool
}

// E creates an element with children.
func E(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// WithAttr adds an attribute.
func (n *Node) WithAttr(name string, parts ...any) *Node {
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: V(parts...)})
	return n
}

// WithText sets the element text.
func (n *Node) WithText(parts ...any) *Node {
	n.Text = V(parts...)
	return n
}

// Require marks the element as mandatory.
func (n *Node) Require() *Node {
	n.Required = true
	return n
}

// EachMagnitude repeats the element once per event magnitude.
func (n *Node) EachMagnitude() *Node {
	n.PerMagnitude = true
	return n
}

// Walk visits n and its descendants depth-first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// path joins element names for error messages.
func path(names []string) string {
	return strings.Join(names, "/")
}

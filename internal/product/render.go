// Package product assembles QuakeML documents from normalized events and
// writes them to the run's output folder.
package product

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

var (
	// ErrRequiredFieldMissing is returned when a mandatory element references a field the event lacks.
	ErrRequiredFieldMissing = errors.New("required field missing")

	// ErrNoPreferredMagnitude is returned when no magnitude matches the preferred method.
	ErrNoPreferredMagnitude = errors.New("no magnitude matches preferred method")

	// ErrAmbiguousPreferredMagnitude is returned when several magnitudes match the preferred method.
	ErrAmbiguousPreferredMagnitude = errors.New("several magnitudes match preferred method")
)

// Document is a rendered product.
type Document struct {
	ID          string
	ProductType domain.ProductType
	Version     string
	Created     time.Time
	XML         []byte
}

// Assembler renders events of one product type.
type Assembler struct {
	productType domain.ProductType
	template    *Node
}

// NewAssembler creates an assembler for pt.
func NewAssembler(pt domain.ProductType) *Assembler {
	return &Assembler{productType: pt, template: Template(pt)}
}

// ProductType returns the product type this assembler renders.
func (a *Assembler) ProductType() domain.ProductType { return a.productType }

// Render produces the document for ev. The creation time and version are
// taken from the domain clock; everything else depends only on ev.
func (a *Assembler) Render(ev domain.Event) (Document, error) {
	now := domain.Now()
	r := &renderer{}
	s := &scope{ev: &ev, now: now}

	roots, err := r.expand(a.template, s, nil)
	if err != nil {
		return Document{}, fmt.Errorf("render %s: %w", ev.ID, err)
	}
	if len(roots) != 1 {
		return Document{}, fmt.Errorf("render %s: %w: document root", ev.ID, ErrRequiredFieldMissing)
	}
	if err := r.resolvePreferred(ev); err != nil {
		return Document{}, fmt.Errorf("render %s: %w", ev.ID, err)
	}

	root := roots[0]
	declareNamespaces(root)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	writeElem(&buf, root, 0)
	return Document{
		ID:          ev.ID,
		ProductType: a.productType,
		Version:     strconv.FormatInt(now.Unix(), 10),
		Created:     now,
		XML:         buf.Bytes(),
	}, nil
}

type xmlAttr struct {
	name, value string
}

type elem struct {
	name      string
	attrs     []xmlAttr
	text      string
	hasText   bool
	children  []*elem
	magnitude bool
	magIndex  int
}

func (e *elem) attr(name string) string {
	for _, a := range e.attrs {
		if a.name == name {
			return a.value
		}
	}
	return ""
}

// slot is a value waiting on the preferred magnitude reference.
type slot struct {
	target *string
	value  Value
	scope  *scope
}

type renderer struct {
	slots []slot
	mags  []*elem
}

// expand substitutes fields into n and its subtree. An element whose own
// text or attributes cannot be resolved is dropped with its subtree, or
// fails the render when required. Containers left with no children are
// dropped too.
func (r *renderer) expand(n *Node, s *scope, parents []string) ([]*elem, error) {
	if n.PerMagnitude && s.mag == nil {
		var out []*elem
		for i := range s.ev.Magnitudes {
			ms := *s
			ms.mag = &s.ev.Magnitudes[i]
			es, err := r.expand(n, &ms, parents)
			if err != nil {
				return nil, err
			}
			for _, e := range es {
				e.magnitude = true
				e.magIndex = i
				r.mags = append(r.mags, e)
			}
			out = append(out, es...)
		}
		return out, nil
	}

	here := append(parents[:len(parents):len(parents)], n.Name)
	e := &elem{name: n.Name, attrs: make([]xmlAttr, len(n.Attrs))}
	var (
		missing []string
		waiting []slot
	)

	for i, a := range n.Attrs {
		e.attrs[i].name = a.Name
		missing, waiting = fill(&e.attrs[i].value, a.Value, s, missing, waiting)
	}
	if n.Text != nil {
		e.hasText = true
		missing, waiting = fill(&e.text, n.Text, s, missing, waiting)
	}
	if len(missing) > 0 {
		if n.Required {
			return nil, fmt.Errorf("%w: %s needs %s", ErrRequiredFieldMissing, path(here), strings.Join(missing, ", "))
		}
		return nil, nil
	}
	r.slots = append(r.slots, waiting...)

	for _, c := range n.Children {
		es, err := r.expand(c, s, here)
		if err != nil {
			return nil, err
		}
		e.children = append(e.children, es...)
	}
	if len(n.Children) > 0 && len(e.children) == 0 && !e.hasText && !n.Required {
		return nil, nil
	}
	return []*elem{e}, nil
}

// fill resolves v into target. A value that references the preferred
// magnitude is appended to waiting instead, once its other fields are known
// to resolve. Unresolved names are appended to missing.
func fill(target *string, v Value, s *scope, missing []string, waiting []slot) ([]string, []slot) {
	var (
		b        strings.Builder
		deferred bool
		unknown  int
	)
	for _, p := range v {
		if !p.isRef {
			b.WriteString(p.Lit)
			continue
		}
		if p.Field == FieldPreferredMagnitude {
			deferred = true
			continue
		}
		val, ok := p.Field.resolve(s)
		if !ok {
			missing = append(missing, p.Field.String())
			unknown++
			continue
		}
		b.WriteString(val)
	}
	switch {
	case unknown > 0:
	case deferred:
		waiting = append(waiting, slot{target: target, value: v, scope: s})
	default:
		*target = b.String()
	}
	return missing, waiting
}

// resolvePreferred writes the publicID of the event's preferred magnitude
// into every waiting slot. Exactly one rendered magnitude must qualify.
func (r *renderer) resolvePreferred(ev domain.Event) error {
	if len(r.slots) == 0 {
		return nil
	}

	want := make(map[int]bool)
	for _, i := range ev.PreferredMagnitudeIndexes() {
		want[i] = true
	}
	var matches []string
	for _, m := range r.mags {
		if want[m.magIndex] {
			matches = append(matches, m.attr("publicID"))
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("%w %q", ErrNoPreferredMagnitude, ev.Method)
	case 1:
	default:
		return fmt.Errorf("%w %q: %s", ErrAmbiguousPreferredMagnitude, ev.Method, strings.Join(matches, ", "))
	}

	for _, sl := range r.slots {
		var b strings.Builder
		for _, p := range sl.value {
			switch {
			case !p.isRef:
				b.WriteString(p.Lit)
			case p.Field == FieldPreferredMagnitude:
				b.WriteString(matches[0])
			default:
				val, ok := p.Field.resolve(sl.scope)
				if !ok {
					return fmt.Errorf("%w: %s", ErrRequiredFieldMissing, p.Field)
				}
				b.WriteString(val)
			}
		}
		*sl.target = b.String()
	}
	return nil
}

// declareNamespaces puts the fixed prefix table on the root element.
func declareNamespaces(root *elem) {
	decls := make([]xmlAttr, 0, len(namespaces)+len(root.attrs))
	for _, ns := range namespaces {
		name := "xmlns"
		if ns.prefix != "" {
			name += ":" + ns.prefix
		}
		decls = append(decls, xmlAttr{name: name, value: ns.uri})
	}
	root.attrs = append(decls, root.attrs...)
}

func writeElem(buf *bytes.Buffer, e *elem, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(e.name)
	for _, a := range e.attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.name)
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(a.value))
		buf.WriteByte('"')
	}

	switch {
	case len(e.children) > 0:
		buf.WriteString(">\n")
		for _, c := range e.children {
			writeElem(buf, c, depth+1)
		}
		buf.WriteString(indent)
	case e.hasText:
		buf.WriteByte('>')
		_ = xml.EscapeText(buf, []byte(e.text))
	default:
		buf.WriteString("/>\n")
		return
	}
	buf.WriteString("</")
	buf.WriteString(e.name)
	buf.WriteString(">\n")
}

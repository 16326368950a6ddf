package message

import (
	"strings"
	"unicode/utf8"
)

// Chain is an immutable ordered sequence of elements.
// The zero value is an empty chain.
type Chain struct {
	elements []Element
}

// NewChain creates a chain holding a copy of elements. Nil elements are
// skipped.
func NewChain(elements ...Element) Chain {
	cp := make([]Element, 0, len(elements))
	for _, e := range elements {
		if e != nil {
			cp = append(cp, e)
		}
	}
	return Chain{elements: cp}
}

// Text creates a chain with a single PlainText element.
func Text(content string) Chain {
	return NewChain(PlainText{Content: content})
}

// Len returns the number of elements.
func (c Chain) Len() int {
	return len(c.elements)
}

// At returns the element at index i.
func (c Chain) At(i int) Element {
	return c.elements[i]
}

// Elements returns a copy of the elements.
func (c Chain) Elements() []Element {
	cp := make([]Element, len(c.elements))
	copy(cp, c.elements)
	return cp
}

// Plus returns a new chain with elements appended.
func (c Chain) Plus(elements ...Element) Chain {
	all := make([]Element, 0, len(c.elements)+len(elements))
	all = append(all, c.elements...)
	all = append(all, elements...)
	return NewChain(all...)
}

// IsEmpty reports whether the chain has no elements.
func (c Chain) IsEmpty() bool {
	return len(c.elements) == 0
}

// IsContentEmpty reports whether no element carries content. Text made only
// of whitespace counts as empty.
func (c Chain) IsContentEmpty() bool {
	for _, e := range c.elements {
		switch v := e.(type) {
		case PlainText:
			if strings.TrimSpace(v.Content) != "" {
				return false
			}
		case QuoteReply:
			// a quote alone is not content
		case *ForwardMessage:
			if v != nil && len(v.Nodes) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Count returns the number of elements matching pred.
func (c Chain) Count(pred func(Element) bool) int {
	n := 0
	for _, e := range c.elements {
		if pred(e) {
			n++
		}
	}
	return n
}

// CountKind returns the number of elements of kind k.
func (c Chain) CountKind(k Kind) int {
	return c.Count(func(e Element) bool { return e.Kind() == k })
}

// CountImages returns the number of Image elements.
func (c Chain) CountImages() int {
	return c.CountKind(KindImage)
}

// Forward returns the first forward bundle in the chain.
func (c Chain) Forward() (*ForwardMessage, bool) {
	for _, e := range c.elements {
		if f, ok := e.(*ForwardMessage); ok && f != nil {
			return f, true
		}
	}
	return nil, false
}

// Quote returns the first quote in the chain.
func (c Chain) Quote() (QuoteReply, bool) {
	for _, e := range c.elements {
		if q, ok := e.(QuoteReply); ok {
			return q, true
		}
	}
	return QuoteReply{}, false
}

// ContentString concatenates the content of every element.
func (c Chain) ContentString() string {
	var sb strings.Builder
	for _, e := range c.elements {
		sb.WriteString(e.ContentString())
	}
	return sb.String()
}

// Preview returns at most n runes of the content, for logging.
func (c Chain) Preview(n int) string {
	s := c.ContentString()
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// String implements fmt.Stringer.
func (c Chain) String() string {
	return c.ContentString()
}

// EstimateLength estimates the encoded size of the chain using w. Summation
// stops once the total exceeds upTo; the returned value is then greater than
// upTo but not necessarily the full size.
func (c Chain) EstimateLength(w Weights, upTo int) int {
	total := 0
	for _, e := range c.elements {
		total += w.element(e, upTo-total)
		if total > upTo {
			return total
		}
	}
	return total
}

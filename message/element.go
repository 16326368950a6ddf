package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/groupchat/limits"
)

// Kind identifies the type of a message element.
type Kind uint8

const (
	// KindText is a PlainText element.
	KindText Kind = iota
	// KindImage is an uploaded Image reference.
	KindImage
	// KindAt is a member mention.
	KindAt
	// KindFace is a built-in emoticon.
	KindFace
	// KindQuote is a reply quoting an earlier message.
	KindQuote
	// KindForward is a forward bundle.
	KindForward
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindAt:
		return "at"
	case KindFace:
		return "face"
	case KindQuote:
		return "quote"
	case KindForward:
		return "forward"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Element is a single component of a Chain.
type Element interface {
	// Kind returns the element type.
	Kind() Kind
	// ContentString returns the human-readable content of the element.
	ContentString() string
}

// PlainText is literal text.
type PlainText struct {
	Content string
}

// Kind implements Element.
func (PlainText) Kind() Kind { return KindText }

// ContentString implements Element.
func (t PlainText) ContentString() string { return t.Content }

// Image references an image already stored server-side.
type Image struct {
	ID string
}

// Kind implements Element.
func (Image) Kind() Kind { return KindImage }

// ContentString implements Element.
func (Image) ContentString() string { return "[image]" }

// At mentions a group member.
type At struct {
	Target  int64
	Display string
}

// Kind implements Element.
func (At) Kind() Kind { return KindAt }

// ContentString implements Element.
func (a At) ContentString() string {
	if a.Display != "" {
		return a.Display
	}
	return fmt.Sprintf("@%d", a.Target)
}

// Face is a built-in emoticon.
type Face struct {
	ID int
}

// Kind implements Element.
func (Face) Kind() Kind { return KindFace }

// ContentString implements Element.
func (f Face) ContentString() string { return fmt.Sprintf("[face:%d]", f.ID) }

// QuoteReply quotes an earlier message. Sending a quote requires the quoted
// source's sequence id.
type QuoteReply struct {
	Source *Source
}

// Kind implements Element.
func (QuoteReply) Kind() Kind { return KindQuote }

// ContentString implements Element. Quotes carry no visible content.
func (QuoteReply) ContentString() string { return "" }

// ForwardNode is one logical message inside a forward bundle.
type ForwardNode struct {
	SenderID   int64
	SenderName string
	Time       time.Time
	Message    Chain
}

// ForwardMessage is a bundle of nodes sent as one transport unit.
type ForwardMessage struct {
	Nodes []ForwardNode
}

// NewForwardMessage creates a bundle holding a copy of nodes. More than
// limits.MaxForwardNodes nodes fail with limits.ErrTooManyNodes.
func NewForwardMessage(nodes ...ForwardNode) (*ForwardMessage, error) {
	if len(nodes) > limits.MaxForwardNodes {
		return nil, fmt.Errorf("%w: %d nodes exceeds limit %d", limits.ErrTooManyNodes, len(nodes), limits.MaxForwardNodes)
	}
	cp := make([]ForwardNode, len(nodes))
	copy(cp, nodes)
	return &ForwardMessage{Nodes: cp}, nil
}

// Kind implements Element.
func (*ForwardMessage) Kind() Kind { return KindForward }

// ContentString implements Element.
func (f *ForwardMessage) ContentString() string {
	var sb strings.Builder
	sb.WriteString("[forward]")
	for _, node := range f.Nodes {
		sb.WriteString(node.Message.ContentString())
	}
	return sb.String()
}

package message

import "unicode/utf8"

// Weights is the per-element weight table used by Chain.EstimateLength.
// Text is always weighted by encoded byte length.
type Weights struct {
	Image int
	At    int
	Face  int
	// Quote is added on top of the quoted message's own weight.
	Quote int
	// ForwardNode is added per node on top of the node chain's weight.
	ForwardNode int
}

// DefaultWeights approximates the server-side encoding of each element.
var DefaultWeights = Weights{
	Image:       260,
	At:          60,
	Face:        20,
	Quote:       444,
	ForwardNode: 60,
}

func (w Weights) element(e Element, upTo int) int {
	switch v := e.(type) {
	case PlainText:
		return textLength(v.Content, upTo)
	case Image:
		return w.Image
	case At:
		return w.At
	case Face:
		return w.Face
	case QuoteReply:
		if v.Source == nil {
			return w.Quote
		}
		return w.Quote + v.Source.Chain.EstimateLength(w, upTo-w.Quote)
	case *ForwardMessage:
		total := 0
		for _, node := range v.Nodes {
			total += w.ForwardNode + node.Message.EstimateLength(w, upTo-total)
			if total > upTo {
				return total
			}
		}
		return total
	default:
		return textLength(e.ContentString(), upTo)
	}
}

// textLength sums the UTF-8 width of each rune, stopping once upTo is exceeded.
func textLength(s string, upTo int) int {
	total := 0
	for _, r := range s {
		total += utf8.RuneLen(r)
		if total > upTo {
			return total
		}
	}
	return total
}

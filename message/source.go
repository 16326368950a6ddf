package message

import (
	"time"

	"github.com/opd-ai/groupchat/sequence"
)

// Source identifies a message that was sent to a group. Receipts and quotes
// refer to messages through their source.
type Source struct {
	GroupID  int64
	SenderID int64
	// Random is the client-generated value used to correlate the server receipt.
	Random uint32
	Time   time.Time
	Chain  Chain
	// Sequence resolves to the server-assigned sequence id.
	Sequence *sequence.Handle
}

// SequenceID returns the server-assigned sequence id if it is known.
func (s *Source) SequenceID() (int32, bool) {
	if s == nil || s.Sequence == nil {
		return 0, false
	}
	v, state := s.Sequence.Value()
	return v, state == sequence.StateResolved
}

// Quote returns a reply element quoting this source.
func (s *Source) Quote() QuoteReply {
	return QuoteReply{Source: s}
}

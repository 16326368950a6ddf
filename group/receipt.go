package group

import (
	"fmt"

	"github.com/opd-ai/groupchat/message"
)

// Receipt is the result of a successful send.
type Receipt struct {
	Source *message.Source
	Group  *Group
	Sender *Member
	// Forward is set when the message went out as a forward bundle.
	Forward bool
}

// SequenceID returns the server sequence id if it has been resolved.
func (r *Receipt) SequenceID() (int32, bool) {
	if r == nil {
		return 0, false
	}
	return r.Source.SequenceID()
}

// Quote returns a reply element quoting the sent message.
func (r *Receipt) Quote() message.QuoteReply {
	return r.Source.Quote()
}

// String implements fmt.Stringer.
func (r *Receipt) String() string {
	return fmt.Sprintf("Receipt(group=%d, random=%d, forward=%t)", r.Group.ID(), r.Source.Random, r.Forward)
}

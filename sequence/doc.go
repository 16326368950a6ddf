// Package sequence correlates outbound group messages with the ordering
// token ("sequence id") the server assigns to them.
//
// A literal send registers a Handle under the client-generated random value
// carried by the request. When the server pushes the receipt for that random,
// the transport calls Resolver.Resolve and the handle moves from Pending to
// Resolved. The sender waits with Resolver.Await, bounded by a timeout; a
// timeout moves the handle to TimedOut and is reported as ErrTimedOut, which
// callers treat as degraded functionality rather than a failed send.
//
// Handles are one-shot: each transitions at most once and never regresses.
// A resolution that arrives after the handle timed out is dropped.
//
//	h := resolver.Register(random)
//	// ... send the request carrying random ...
//	seq, err := resolver.Await(ctx, h, 3*time.Second)
//	if errors.Is(err, sequence.ErrTimedOut) {
//	    // quoting this message may not work
//	}
package sequence

// Package limits provides the centralized size thresholds that decide how an
// outbound group message is transmitted.
//
// # Threshold Bands
//
// Literal group-message requests have a hard transport ceiling, so every
// message is classified into one of three bands before it is sent:
//
//   - Literal: estimated weight <= MaxLiteralWeight (702) and at most
//     MaxLiteralImages (2) images. The chain is sent as-is.
//
//   - Promote: weight up to MaxMessageWeight (5000) and at most
//     MaxMessageImages (50) images. The chain is folded into a single-node
//     forward bundle and sent through the long-message path.
//
//   - Reject: anything larger is refused outright.
//
// Forward bundles hold at most MaxForwardNodes (200) nodes; this is checked
// when a bundle is submitted, before any network call.
//
// # Usage
//
//	switch limits.Classify(weight, images) {
//	case limits.StrategyReject:
//	    // fail with a too-large error
//	case limits.StrategyPromote:
//	    // send as a bundle
//	default:
//	    // send literally
//	}
//
// # Error Types
//
//   - ErrMessageEmpty: an empty chain was submitted
//   - ErrMessageTooLarge: the message exceeds the reject band
//   - ErrTooManyNodes: a forward bundle holds more than MaxForwardNodes nodes
package limits

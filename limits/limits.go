// Package limits provides centralized group message thresholds.
// This ensures the send pipeline and its callers agree on the same bands.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxLiteralWeight is the largest estimated weight sent as a literal
	// group message. The transport ceiling is around 700 units; the value is
	// kept a multiple of three so multi-byte text rounds cleanly.
	MaxLiteralWeight = 702

	// MaxMessageWeight is the largest estimated weight accepted at all.
	MaxMessageWeight = 5000

	// MaxLiteralImages is the largest image count sent literally.
	MaxLiteralImages = 2

	// MaxMessageImages is the largest image count accepted at all.
	MaxMessageImages = 50

	// MaxForwardNodes is the node capacity of one forward bundle.
	MaxForwardNodes = 200

	// EstimateCap is the upTo value passed to size estimation. Summation can
	// stop once it is exceeded because every decision above is already made.
	EstimateCap = MaxMessageWeight + 1
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrTooManyNodes indicates a forward bundle exceeds MaxForwardNodes
	ErrTooManyNodes = errors.New("too many forward nodes")
)

// Strategy is the transmission strategy chosen for a message.
type Strategy uint8

const (
	// StrategyLiteral sends the chain as a direct group message.
	StrategyLiteral Strategy = iota
	// StrategyPromote folds the chain into a forward bundle.
	StrategyPromote
	// StrategyReject refuses the message.
	StrategyReject
)

// String returns a short label, used for logging and metric labels.
func (s Strategy) String() string {
	switch s {
	case StrategyLiteral:
		return "literal"
	case StrategyPromote:
		return "promoted"
	case StrategyReject:
		return "rejected"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// Classify maps an estimated weight and image count to a strategy.
func Classify(weight, images int) Strategy {
	if weight > MaxMessageWeight || images > MaxMessageImages {
		return StrategyReject
	}
	if weight > MaxLiteralWeight || images > MaxLiteralImages {
		return StrategyPromote
	}
	return StrategyLiteral
}

// ValidateMessage returns ErrMessageTooLarge with context when the weight or
// image count falls in the reject band.
func ValidateMessage(weight, images int) error {
	if Classify(weight, images) != StrategyReject {
		return nil
	}
	return fmt.Errorf("%w: weight %d (limit %d), images %d (limit %d)",
		ErrMessageTooLarge, weight, MaxMessageWeight, images, MaxMessageImages)
}

// ValidateForwardNodes validates the node count of a forward bundle.
// Returns ErrMessageEmpty for an empty bundle and ErrTooManyNodes with
// context when the count exceeds MaxForwardNodes.
func ValidateForwardNodes(count int) error {
	if count == 0 {
		return ErrMessageEmpty
	}
	if count > MaxForwardNodes {
		return fmt.Errorf("%w: %d nodes exceeds limit %d", ErrTooManyNodes, count, MaxForwardNodes)
	}
	return nil
}

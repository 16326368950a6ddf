package group

import (
	"errors"
	"fmt"

	"github.com/opd-ai/groupchat/limits"
	"github.com/opd-ai/groupchat/message"
)

var (
	// ErrEmptyMessage indicates a chain without content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSenderMuted indicates the sending member is muted in the group.
	ErrSenderMuted = errors.New("sender is muted in the group")
	// ErrForwardNotStandalone indicates a forward bundle mixed with other elements.
	ErrForwardNotStandalone = errors.New("forward message must be standalone")
	// ErrBundleTooLarge indicates a forward bundle with too many nodes.
	ErrBundleTooLarge = errors.New("forward bundle too large")
	// ErrMessageTooLarge indicates a message above the upper size or image bound.
	ErrMessageTooLarge = limits.ErrMessageTooLarge
	// ErrSendCancelled indicates a listener cancelled the MessageSendEvent.
	ErrSendCancelled = errors.New("send cancelled by MessageSendEvent")
	// ErrSendRejected is matched by every SendRejectedError.
	ErrSendRejected = errors.New("send rejected by server")
	// ErrInternalSend is matched by every InternalSendError.
	ErrInternalSend = errors.New("internal send error")

	// ErrUploadCancelled indicates a listener cancelled the BeforeImageUploadEvent.
	ErrUploadCancelled = errors.New("upload cancelled by BeforeImageUploadEvent")
	// ErrImageTooLarge indicates the server refused the image for its size.
	ErrImageTooLarge = errors.New("image exceeds server file size limit")
	// ErrUploadRejected is matched by every UploadRejectedError.
	ErrUploadRejected = errors.New("image upload rejected by server")

	// ErrSessionClosed indicates the session scope of the group has ended.
	ErrSessionClosed = errors.New("group session closed")
)

// MessageTooLargeError reports a chain above the upper bound. Original is
// the chain passed by the caller; Final is the chain after MessageSendEvent
// listeners ran.
type MessageTooLargeError struct {
	Original message.Chain
	Final    message.Chain
	Weight   int
	Images   int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("message (%s) is too large: weight %d, %d images; allowed up to %d images or %d units",
		e.Final.Preview(10), e.Weight, e.Images, limits.MaxMessageImages, limits.MaxMessageWeight)
}

// Is matches ErrMessageTooLarge.
func (e *MessageTooLargeError) Is(target error) bool {
	return target == ErrMessageTooLarge
}

// SendRejectedError reports a non-success result code from a literal send.
type SendRejectedError struct {
	Code    int32
	Message string
}

func (e *SendRejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("send message failed with code %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("send message failed with code %d", e.Code)
}

// Is matches ErrSendRejected.
func (e *SendRejectedError) Is(target error) bool {
	return target == ErrSendRejected
}

// InternalSendError reports a failed retry after the server refused the
// literal form of a message.
type InternalSendError struct {
	Code int32
	Err  error
}

func (e *InternalSendError) Error() string {
	return fmt.Sprintf("internal error: send message failed(%d): %v", e.Code, e.Err)
}

// Unwrap returns the retry failure.
func (e *InternalSendError) Unwrap() error {
	return e.Err
}

// Is matches ErrInternalSend.
func (e *InternalSendError) Is(target error) bool {
	return target == ErrInternalSend
}

// UploadRejectedError reports an image refused during negotiation.
type UploadRejectedError struct {
	Code   int32
	Reason string
}

func (e *UploadRejectedError) Error() string {
	return fmt.Sprintf("upload group image failed with code %d: %s", e.Code, e.Reason)
}

// Is matches ErrUploadRejected.
func (e *UploadRejectedError) Is(target error) bool {
	return target == ErrUploadRejected
}

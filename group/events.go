package group

import (
	"github.com/opd-ai/groupchat/event"
	"github.com/opd-ai/groupchat/message"
)

// Event is implemented by every group event. Subscribing with Event
// observes the whole family.
type Event interface {
	event.BotEvent
	Group() *Group
}

// ImageUploadEvent is implemented by the upload outcome events.
type ImageUploadEvent interface {
	Event
	UploadedImage() *message.ExternalImage
}

type groupEvent struct {
	group *Group
}

// Group returns the group the event belongs to.
func (e groupEvent) Group() *Group { return e.group }

// BotID returns the account the group belongs to.
func (e groupEvent) BotID() int64 { return e.group.BotID() }

// MessageSendEvent is broadcast before a chain is sent. Listeners may replace
// Message or cancel the send.
type MessageSendEvent struct {
	event.CancellableEvent
	groupEvent
	Message message.Chain
}

// MessagePostSendEvent is broadcast after every send attempt that reached
// the transmission stage. Exactly one of Receipt and Err is set.
type MessagePostSendEvent struct {
	groupEvent
	Message message.Chain
	Receipt *Receipt
	Err     error
}

// BeforeImageUploadEvent is broadcast before image negotiation. Listeners may
// cancel the upload.
type BeforeImageUploadEvent struct {
	event.CancellableEvent
	groupEvent
	Image *message.ExternalImage
}

// ImageUploadSucceedEvent is broadcast when an image is available on the server.
type ImageUploadSucceedEvent struct {
	groupEvent
	Image    *message.ExternalImage
	Resource message.Image
}

// UploadedImage returns the uploaded image.
func (e *ImageUploadSucceedEvent) UploadedImage() *message.ExternalImage { return e.Image }

// ImageUploadFailedEvent is broadcast when an upload is rejected or fails.
type ImageUploadFailedEvent struct {
	groupEvent
	Image  *message.ExternalImage
	Code   int32
	Reason string
	Err    error
}

// UploadedImage returns the image that failed to upload.
func (e *ImageUploadFailedEvent) UploadedImage() *message.ExternalImage { return e.Image }

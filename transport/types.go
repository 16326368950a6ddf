package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
)

// Server result codes for group message sends.
const (
	ResultOK        int32 = 0
	ResultOversized int32 = 34
	ResultMuted     int32 = 120
)

// ReasonOverFileSizeMax is the rejection reason for images above the server limit.
const ReasonOverFileSizeMax = "over file size max"

// Transport performs the network operations of the group pipeline.
type Transport interface {
	// SendGroupMessage transmits a literal group message.
	SendGroupMessage(ctx context.Context, env *Envelope) (*SendResponse, error)

	// SendGroupBundle uploads a forward bundle and posts it to the group.
	SendGroupBundle(ctx context.Context, req *BundleRequest) (*message.Source, error)

	// NegotiateGroupImage asks the server whether image data must be uploaded.
	NegotiateGroupImage(ctx context.Context, req *ImageNegotiation) (NegotiationResult, error)

	// UploadChunks streams image data to one of the offered endpoints.
	UploadChunks(ctx context.Context, req *ChunkUpload) error
}

// Envelope is an outbound literal group message.
type Envelope struct {
	GroupID  int64
	SenderID int64
	Chain    message.Chain
	// Forward marks a message that carries a bundle reference.
	Forward bool
	// Random correlates the server receipt with Sequence.
	Random   uint32
	Sequence *sequence.Handle
}

// SendResponse is the server answer to SendGroupMessage.
type SendResponse struct {
	Code    int32
	Message string
	Time    time.Time
}

// OK reports whether the server accepted the message.
func (r *SendResponse) OK() bool {
	return r != nil && r.Code == ResultOK
}

// BundleRequest is an outbound forward bundle.
type BundleRequest struct {
	GroupID    int64
	SenderID   int64
	SenderName string
	Forward    *message.ForwardMessage
	Random     uint32
	Sequence   *sequence.Handle
}

// ImageNegotiation asks whether the server already holds an image.
type ImageNegotiation struct {
	GroupID    int64
	SenderID   int64
	MD5        [16]byte
	Size       int64
	Format     string
	ResourceID string
}

// NegotiationResult is one of AlreadyPresent, MustUpload or Rejected.
type NegotiationResult interface {
	negotiationResult()
}

// AlreadyPresent means the server holds the image and no transfer is needed.
type AlreadyPresent struct {
	ResourceID string
}

// MustUpload means the image data must be sent to one of Endpoints.
type MustUpload struct {
	Endpoints  []Endpoint
	UploadKey  []byte
	ResourceID string
}

// Rejected means the server refused the image.
type Rejected struct {
	Code   int32
	Reason string
}

func (AlreadyPresent) negotiationResult() {}
func (MustUpload) negotiationResult()     {}
func (Rejected) negotiationResult()       {}

// Endpoint is an upload server address.
type Endpoint struct {
	Host string
	Port int
}

// String returns the host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses a host:port string.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: invalid port", s)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ChunkUpload is image data bound for the upload endpoints.
type ChunkUpload struct {
	GroupID    int64
	SenderID   int64
	Endpoints  []Endpoint
	UploadKey  []byte
	ResourceID string
	MD5        [16]byte
	Size       int64
	Data       io.Reader
}

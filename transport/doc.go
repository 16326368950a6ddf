// Package transport defines the contract between the group pipeline and the
// network. The pipeline builds requests and interprets responses; a
// Transport implementation owns encoding, round trips and chunked data
// upload.
//
// # Transport
//
//	type Transport interface {
//	    SendGroupMessage(ctx context.Context, env *Envelope) (*SendResponse, error)
//	    SendGroupBundle(ctx context.Context, req *BundleRequest) (*message.Source, error)
//	    NegotiateGroupImage(ctx context.Context, req *ImageNegotiation) (NegotiationResult, error)
//	    UploadChunks(ctx context.Context, req *ChunkUpload) error
//	}
//
// A SendResponse carries the server result code. ResultOK means the message
// was accepted, ResultMuted means the sender is muted in the group and
// ResultOversized means the server refused the literal form and the message
// should be retried as a bundle.
//
// Sequence ids are assigned asynchronously. Implementations deliver server
// receipts to a sequence.Resolver keyed by the Envelope's Random value.
//
// # Image negotiation
//
// NegotiateGroupImage returns one of AlreadyPresent, MustUpload or Rejected.
// MustUpload carries every upload endpoint offered by the server; UploadChunks
// tries them in order.
package transport

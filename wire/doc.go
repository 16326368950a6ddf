// Package wire implements transport.Transport over a WebSocket connection
// carrying JSON frames.
//
// Requests name an action and carry an echo id; the server answers with a
// frame holding the same echo:
//
//	{"action": "send_group_msg", "params": {...}, "echo": "<uuid>"}
//	{"status": "ok", "retcode": 0, "data": {...}, "echo": "<uuid>"}
//
// Frames without an echo are server pushes. A push with post_type
// "message_receipt" carries the random and sequence id of a sent message
// and is delivered to the sequence.Resolver.
//
// Image data is not sent over the WebSocket. UploadChunks hands it to a
// ChunkUploader, normally a highway.Uploader.
package wire

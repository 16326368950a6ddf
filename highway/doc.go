// Package highway uploads image data to the endpoints returned by image
// negotiation.
//
// Data is sent over TCP as a sequence of frames, one per chunk:
//
//	0x28 | uint32 header length | uint32 body length | header | body | 0x29
//
// The header is JSON and identifies the command, the upload key and the
// chunk position. The server answers every chunk with a frame whose header
// carries an error code. Endpoints are tried in order until one accepts the
// whole upload.
package highway

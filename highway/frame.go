package highway

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	frameStart = 0x28
	frameEnd   = 0x29
)

// MaxHeaderSize and MaxBodySize bound incoming frames.
const (
	MaxHeaderSize = 64 * 1024
	MaxBodySize   = 1 << 20
)

// ErrMalformedFrame indicates bytes that do not form a valid frame.
var ErrMalformedFrame = errors.New("malformed highway frame")

// Header describes one chunk, or the answer to one.
type Header struct {
	Command    int    `json:"command"`
	Sequence   uint32 `json:"seq"`
	UploadKey  []byte `json:"ukey,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	Offset     int64  `json:"offset,omitempty"`
	ChunkMD5   []byte `json:"chunk_md5,omitempty"`
	FileMD5    []byte `json:"file_md5,omitempty"`
	ErrorCode  int32  `json:"error_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// WriteFrame writes header and body as one frame.
func WriteFrame(w io.Writer, h *Header, body []byte) error {
	head, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode frame header: %w", err)
	}
	if len(head) > MaxHeaderSize || len(body) > MaxBodySize {
		return fmt.Errorf("%w: header %d bytes, body %d bytes", ErrMalformedFrame, len(head), len(body))
	}

	buf := make([]byte, 0, 1+8+len(head)+len(body)+1)
	buf = append(buf, frameStart)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(head)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, head...)
	buf = append(buf, body...)
	buf = append(buf, frameEnd)

	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame.
func ReadFrame(r *bufio.Reader) (*Header, []byte, error) {
	start, err := r.ReadByte()
	if err != nil {
		return nil, nil, err
	}
	if start != frameStart {
		return nil, nil, fmt.Errorf("%w: start byte 0x%02x", ErrMalformedFrame, start)
	}

	var lengths [8]byte
	if _, err := io.ReadFull(r, lengths[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to read frame lengths: %w", err)
	}
	headLen := binary.BigEndian.Uint32(lengths[:4])
	bodyLen := binary.BigEndian.Uint32(lengths[4:])
	if headLen > MaxHeaderSize || bodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("%w: header %d bytes, body %d bytes", ErrMalformedFrame, headLen, bodyLen)
	}

	payload := make([]byte, int(headLen)+int(bodyLen)+1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	if payload[len(payload)-1] != frameEnd {
		return nil, nil, fmt.Errorf("%w: missing end byte", ErrMalformedFrame)
	}

	var h Header
	if err := json.Unmarshal(payload[:headLen], &h); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &h, payload[headLen : headLen+bodyLen], nil
}

package highway

import (
	"bufio"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/transport"
)

// CommandGroupImage identifies group image uploads.
const CommandGroupImage = 2

// DefaultChunkSize is the default chunk body size in bytes.
const DefaultChunkSize = 8192

// MaxChunkSize bounds the configurable chunk size.
const MaxChunkSize = MaxBodySize

// DefaultDialTimeout bounds the TCP connect per endpoint.
const DefaultDialTimeout = 5 * time.Second

var (
	// ErrNoEndpoints indicates an upload without endpoints.
	ErrNoEndpoints = errors.New("no upload endpoints")
	// ErrSizeMismatch indicates the data length differs from the declared size.
	ErrSizeMismatch = errors.New("image data size mismatch")
	// ErrChunkRejected indicates a non-zero error code in a chunk answer.
	ErrChunkRejected = errors.New("chunk rejected by upload server")
	// ErrAllEndpointsFailed indicates every endpoint failed.
	ErrAllEndpointsFailed = errors.New("upload failed on every endpoint")
)

// Uploader sends image data to highway endpoints.
type Uploader struct {
	chunkSize   int
	dialTimeout time.Duration
	command     int
	logger      *logrus.Logger
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithChunkSize sets the chunk body size. Values outside (0, MaxChunkSize]
// are ignored.
func WithChunkSize(n int) Option {
	return func(u *Uploader) {
		if n > 0 && n <= MaxChunkSize {
			u.chunkSize = n
		}
	}
}

// WithDialTimeout sets the connect timeout per endpoint.
func WithDialTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.dialTimeout = d
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *logrus.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewUploader creates an uploader for group images.
func NewUploader(opts ...Option) *Uploader {
	u := &Uploader{
		chunkSize:   DefaultChunkSize,
		dialTimeout: DefaultDialTimeout,
		command:     CommandGroupImage,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.dial == nil {
		d := &net.Dialer{Timeout: u.dialTimeout}
		u.dial = d.DialContext
	}
	return u
}

// ChunkSize returns the configured chunk size.
func (u *Uploader) ChunkSize() int {
	return u.chunkSize
}

// Upload reads req.Data once and sends it to the first endpoint that
// accepts every chunk.
func (u *Uploader) Upload(ctx context.Context, req *transport.ChunkUpload) error {
	if len(req.Endpoints) == 0 {
		return ErrNoEndpoints
	}

	data, err := io.ReadAll(io.LimitReader(req.Data, req.Size+1))
	if err != nil {
		return fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) != req.Size {
		return fmt.Errorf("%w: declared %d, read %d", ErrSizeMismatch, req.Size, len(data))
	}

	var errs []error
	for _, ep := range req.Endpoints {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := u.uploadTo(ctx, ep, req, data)
		if err == nil {
			u.logger.WithFields(logrus.Fields{
				"function":    "Upload",
				"endpoint":    ep.String(),
				"resource_id": req.ResourceID,
				"size":        req.Size,
				"elapsed":     time.Since(start).String(),
			}).Debug("Image uploaded")
			return nil
		}

		u.logger.WithFields(logrus.Fields{
			"function": "Upload",
			"endpoint": ep.String(),
			"error":    err.Error(),
		}).Warn("Upload endpoint failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", ep, err))
	}
	return fmt.Errorf("%w: %w", ErrAllEndpointsFailed, errors.Join(errs...))
}

func (u *Uploader) uploadTo(ctx context.Context, ep transport.Endpoint, req *transport.ChunkUpload, data []byte) error {
	conn, err := u.dial(ctx, "tcp", ep.String())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	reader := bufio.NewReader(conn)
	var seq uint32
	for offset := 0; offset < len(data) || (len(data) == 0 && seq == 0); offset += u.chunkSize {
		end := offset + u.chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		chunkSum := md5.Sum(chunk)
		seq++

		h := &Header{
			Command:    u.command,
			Sequence:   seq,
			UploadKey:  req.UploadKey,
			ResourceID: req.ResourceID,
			FileSize:   req.Size,
			Offset:     int64(offset),
			ChunkMD5:   chunkSum[:],
			FileMD5:    req.MD5[:],
		}
		if err := WriteFrame(conn, h, chunk); err != nil {
			return u.connErr(ctx, "write chunk", err)
		}

		resp, _, err := ReadFrame(reader)
		if err != nil {
			return u.connErr(ctx, "read answer", err)
		}
		if resp.Sequence != seq {
			return fmt.Errorf("%w: answer for chunk %d, expected %d", ErrMalformedFrame, resp.Sequence, seq)
		}
		if resp.ErrorCode != 0 {
			return fmt.Errorf("%w: chunk %d code %d %s", ErrChunkRejected, seq, resp.ErrorCode, resp.Message)
		}
	}
	return nil
}

// connErr prefers the context error when a deadline was forced by cancellation.
func (u *Uploader) connErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%s: %w", op, err)
}

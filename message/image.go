package message

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrImageClosed indicates the image data source was already released.
var ErrImageClosed = errors.New("image data source closed")

// DefaultImageFormat is used when the format cannot be detected.
const DefaultImageFormat = "jpg"

// ExternalImage is image data that has not been uploaded yet.
type ExternalImage struct {
	MD5    [16]byte
	Size   int64
	Format string

	mu     sync.Mutex
	input  io.ReadCloser
	closed bool
}

// NewExternalImage wraps in-memory image data. An empty format is detected
// from the content.
func NewExternalImage(data []byte, format string) *ExternalImage {
	if format == "" {
		format = detectFormat(data)
	}
	return &ExternalImage{
		MD5:    md5.Sum(data),
		Size:   int64(len(data)),
		Format: format,
		input:  io.NopCloser(bytes.NewReader(data)),
	}
}

// WrapExternalImage wraps a data source whose digest and size are already
// known. The image owns rc and closes it on Close.
func WrapExternalImage(rc io.ReadCloser, sum [16]byte, size int64, format string) *ExternalImage {
	if format == "" {
		format = DefaultImageFormat
	}
	return &ExternalImage{
		MD5:    sum,
		Size:   size,
		Format: format,
		input:  rc,
	}
}

// OpenExternalImage opens the file at path, hashes it and rewinds it. The
// file stays open until the image is closed.
func OpenExternalImage(path string) (*ExternalImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	h := md5.New()
	h.Write(head[:n])
	rest, err := io.Copy(h, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to hash image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}

	img := &ExternalImage{
		Size:   int64(n) + rest,
		Format: detectFormat(head[:n]),
		input:  f,
	}
	copy(img.MD5[:], h.Sum(nil))
	return img, nil
}

// Reader returns the data source. Reading after Close fails with ErrImageClosed.
func (i *ExternalImage) Reader() io.Reader {
	return imageReader{img: i}
}

// Close releases the data source. It is safe to call more than once.
func (i *ExternalImage) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	if i.input == nil {
		return nil
	}
	return i.input.Close()
}

// Closed reports whether Close was called.
func (i *ExternalImage) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// ResourceID derives the content-addressed resource id from the MD5 digest.
// Two images with the same content share an id.
func (i *ExternalImage) ResourceID() string {
	return ResourceID(i.MD5, i.Format)
}

// ResourceID formats a content-addressed image id: {UUID}.format.
func ResourceID(sum [16]byte, format string) string {
	if format == "" {
		format = DefaultImageFormat
	}
	return "{" + strings.ToUpper(uuid.UUID(sum).String()) + "}." + format
}

type imageReader struct {
	img *ExternalImage
}

func (r imageReader) Read(p []byte) (int, error) {
	r.img.mu.Lock()
	defer r.img.mu.Unlock()

	if r.img.closed {
		return 0, ErrImageClosed
	}
	return r.img.input.Read(p)
}

func detectFormat(head []byte) string {
	switch http.DetectContentType(head) {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/webp":
		return "webp"
	default:
		return DefaultImageFormat
	}
}

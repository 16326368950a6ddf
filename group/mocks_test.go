package group

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
	"github.com/opd-ai/groupchat/transport"
)

// mockTransport records calls and answers with configurable results. When
// resolveReceipts is set, successful sends resolve their random on the
// resolver as a server receipt would.
type mockTransport struct {
	mu sync.Mutex

	resolver        *sequence.Resolver
	resolveReceipts bool
	withheld        int
	nextSeq         int32

	// blockLiteral makes SendGroupMessage wait for its ctx.
	blockLiteral bool

	literalCodes []int32
	literalErr   error
	bundleErrs   []error

	negotiate func(req *transport.ImageNegotiation) (transport.NegotiationResult, error)
	uploadErr error

	literalCalls []*transport.Envelope
	bundleCalls  []*transport.BundleRequest
	negotiations []*transport.ImageNegotiation
	uploads      []*transport.ChunkUpload
	uploadedData [][]byte
}

func newMockTransport(resolver *sequence.Resolver) *mockTransport {
	return &mockTransport{
		resolver:        resolver,
		resolveReceipts: true,
		nextSeq:         testSequenceBase,
	}
}

func (m *mockTransport) SendGroupMessage(ctx context.Context, env *transport.Envelope) (*transport.SendResponse, error) {
	m.mu.Lock()
	m.literalCalls = append(m.literalCalls, env)
	if m.blockLiteral {
		m.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.literalErr != nil {
		m.mu.Unlock()
		return nil, m.literalErr
	}
	code := transport.ResultOK
	if len(m.literalCodes) > 0 {
		code = m.literalCodes[0]
		m.literalCodes = m.literalCodes[1:]
	}
	m.mu.Unlock()

	if code == transport.ResultOK {
		m.receipt(env.Random)
	}
	return &transport.SendResponse{Code: code, Time: time.Unix(1700000000, 0)}, nil
}

func (m *mockTransport) SendGroupBundle(ctx context.Context, req *transport.BundleRequest) (*message.Source, error) {
	m.mu.Lock()
	m.bundleCalls = append(m.bundleCalls, req)
	var err error
	if len(m.bundleErrs) > 0 {
		err = m.bundleErrs[0]
		m.bundleErrs = m.bundleErrs[1:]
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	m.receipt(req.Random)
	return &message.Source{GroupID: req.GroupID, SenderID: req.SenderID, Random: req.Random}, nil
}

func (m *mockTransport) NegotiateGroupImage(ctx context.Context, req *transport.ImageNegotiation) (transport.NegotiationResult, error) {
	m.mu.Lock()
	m.negotiations = append(m.negotiations, req)
	negotiate := m.negotiate
	m.mu.Unlock()

	if negotiate == nil {
		return transport.MustUpload{Endpoints: []transport.Endpoint{{Host: "127.0.0.1", Port: 8080}}, UploadKey: []byte("key")}, nil
	}
	return negotiate(req)
}

func (m *mockTransport) UploadChunks(ctx context.Context, req *transport.ChunkUpload) error {
	data, readErr := io.ReadAll(req.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, req)
	m.uploadedData = append(m.uploadedData, data)
	if m.uploadErr != nil {
		return m.uploadErr
	}
	return readErr
}

func (m *mockTransport) receipt(random uint32) {
	if !m.resolveReceipts {
		return
	}
	m.mu.Lock()
	if m.withheld > 0 {
		m.withheld--
		m.mu.Unlock()
		return
	}
	m.nextSeq++
	seq := m.nextSeq
	m.mu.Unlock()
	m.resolver.Resolve(random, seq)
}

func (m *mockTransport) counts() (literal, bundle, negotiations, uploads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.literalCalls), len(m.bundleCalls), len(m.negotiations), len(m.uploads)
}

func (m *mockTransport) firstLiteral() *transport.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.literalCalls) == 0 {
		return nil
	}
	return m.literalCalls[0]
}

func (m *mockTransport) lastBundle() *transport.BundleRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bundleCalls) == 0 {
		return nil
	}
	return m.bundleCalls[len(m.bundleCalls)-1]
}

// mockTimeProvider returns a fixed, adjustable time.
type mockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// closeTracker records Close calls on an image source.
type closeTracker struct {
	io.Reader
	mu     sync.Mutex
	closed int
}

func (c *closeTracker) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *closeTracker) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var errMockTransport = errors.New("mock transport error")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

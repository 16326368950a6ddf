package groupchat

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

// mockTransport accepts every send and resolves its random on the resolver
// as a server receipt would.
type mockTransport struct {
	mu       sync.Mutex
	resolver *sequence.Resolver
	nextSeq  int32
	sendErr  error
	closed   int
	closeErr error
	sends    []*transport.Envelope
}

func newMockTransport(resolver *sequence.Resolver) *mockTransport {
	return &mockTransport{resolver: resolver, nextSeq: testSequenceBase}
}

func (m *mockTransport) SendGroupMessage(ctx context.Context, env *transport.Envelope) (*transport.SendResponse, error) {
	m.mu.Lock()
	m.sends = append(m.sends, env)
	if m.sendErr != nil {
		m.mu.Unlock()
		return nil, m.sendErr
	}
	m.nextSeq++
	seq := m.nextSeq
	m.mu.Unlock()

	m.resolver.Resolve(env.Random, seq)
	return &transport.SendResponse{Code: transport.ResultOK, Time: time.Unix(1700000000, 0)}, nil
}

func (m *mockTransport) SendGroupBundle(ctx context.Context, req *transport.BundleRequest) (*message.Source, error) {
	m.mu.Lock()
	m.nextSeq++
	seq := m.nextSeq
	m.mu.Unlock()

	m.resolver.Resolve(req.Random, seq)
	return &message.Source{GroupID: req.GroupID, SenderID: req.SenderID, Random: req.Random}, nil
}

func (m *mockTransport) NegotiateGroupImage(ctx context.Context, req *transport.ImageNegotiation) (transport.NegotiationResult, error) {
	return transport.AlreadyPresent{ResourceID: req.ResourceID}, nil
}

func (m *mockTransport) UploadChunks(ctx context.Context, req *transport.ChunkUpload) error {
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

func (m *mockTransport) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var errMockTransport = errors.New("mock transport error")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// blockingTransport holds every send until its ctx ends. It has no Close
// method, so only the session scope can release it.
type blockingTransport struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{started: make(chan struct{})}
}

func (b *blockingTransport) SendGroupMessage(ctx context.Context, env *transport.Envelope) (*transport.SendResponse, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingTransport) SendGroupBundle(ctx context.Context, req *transport.BundleRequest) (*message.Source, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingTransport) NegotiateGroupImage(ctx context.Context, req *transport.ImageNegotiation) (transport.NegotiationResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingTransport) UploadChunks(ctx context.Context, req *transport.ChunkUpload) error {
	<-ctx.Done()
	return ctx.Err()
}

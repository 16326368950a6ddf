package highway

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/transport"
)

// testServer is a loopback highway endpoint that stores received chunks.
type testServer struct {
	t        *testing.T
	listener net.Listener

	mu       sync.Mutex
	received bytes.Buffer
	headers  []*Header
	// rejectAt answers the chunk with this sequence with an error code.
	rejectAt uint32
	wg       sync.WaitGroup
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testServer{t: t, listener: l}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		l.Close()
		s.wg.Wait()
	})
	return s
}

func (s *testServer) endpoint() transport.Endpoint {
	addr := s.listener.Addr().(*net.TCPAddr)
	return transport.Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *testServer) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		h, body, err := ReadFrame(r)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.headers = append(s.headers, h)
		reject := s.rejectAt != 0 && h.Sequence == s.rejectAt
		if !reject {
			s.received.Write(body)
		}
		s.mu.Unlock()

		answer := &Header{Command: h.Command, Sequence: h.Sequence}
		if reject {
			answer.ErrorCode = 500
			answer.Message = "server busy"
		}
		if err := WriteFrame(conn, answer, nil); err != nil {
			return
		}
	}
}

func (s *testServer) data() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.received.Bytes()...)
}

func (s *testServer) chunkHeaders() []*Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Header(nil), s.headers...)
}

// closedEndpoint returns an address nothing listens on.
func closedEndpoint(t *testing.T) transport.Endpoint {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	l.Close()
	port, _ := strconv.Atoi(portStr)
	return transport.Endpoint{Host: "127.0.0.1", Port: port}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

package wire

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
	"github.com/opd-ai/groupchat/transport"
)

// Defaults for Config.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultRequestTimeout = 8 * time.Second
)

var (
	// ErrClosed indicates the connection is closed.
	ErrClosed = errors.New("wire connection closed")
	// ErrRequestTimeout indicates no response arrived within the request timeout.
	ErrRequestTimeout = errors.New("wire request timeout")
	// ErrNoUploader indicates UploadChunks without a ChunkUploader.
	ErrNoUploader = errors.New("no chunk uploader configured")
)

// APIError is a failed action.
type APIError struct {
	Action  string
	RetCode int32
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: retcode %d %s", e.Action, e.RetCode, e.Message)
}

// ChunkUploader transfers image data to upload endpoints.
type ChunkUploader interface {
	Upload(ctx context.Context, req *transport.ChunkUpload) error
}

// Config holds connection settings.
type Config struct {
	URL            string
	AccessToken    string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithUploader sets the uploader used by UploadChunks.
func WithUploader(u ChunkUploader) Option {
	return func(c *Client) {
		c.uploader = u
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a WebSocket connection implementing transport.Transport.
type Client struct {
	cfg      Config
	resolver *sequence.Resolver
	uploader ChunkUploader
	logger   *logrus.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[string]chan *Response

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	readDone  chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// Dial connects to cfg.URL. Receipts pushed by the server resolve handles
// registered on resolver.
func Dial(ctx context.Context, cfg Config, resolver *sequence.Resolver, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("wire: empty server url")
	}
	if resolver == nil {
		return nil, errors.New("wire: nil resolver")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	c := &Client{
		cfg:      cfg,
		resolver: resolver,
		logger:   logrus.StandardLogger(),
		waiters:  make(map[string]chan *Response),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	header := http.Header{}
	if cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AccessToken)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", cfg.URL, err)
	}
	c.conn = conn

	c.logger.WithFields(logrus.Fields{
		"function": "Dial",
		"url":      cfg.URL,
	}).Info("WebSocket connected")

	go c.readLoop()
	return c, nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and fails pending requests.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.shutdown(ErrClosed)
	<-c.readDone
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.WithFields(logrus.Fields{
					"function": "readLoop",
					"error":    err.Error(),
				}).Warn("WebSocket read error, closing connection")
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		c.handleFrame(payload)
	}
}

func (c *Client) handleFrame(payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": "handleFrame",
			"error":    err.Error(),
		}).Warn("Failed to decode frame")
		return
	}

	switch {
	case f.Echo != "":
		c.dispatchResponse(f.Echo, payload)
	case f.PostType == PostTypeMessageReceipt:
		var r Receipt
		if err := json.Unmarshal(payload, &r); err != nil {
			c.logger.WithFields(logrus.Fields{
				"function": "handleFrame",
				"error":    err.Error(),
			}).Warn("Failed to decode message receipt")
			return
		}
		c.resolver.Resolve(r.Random, r.Sequence)
	default:
		c.logger.WithFields(logrus.Fields{
			"function":  "handleFrame",
			"post_type": f.PostType,
		}).Debug("Ignoring push")
	}
}

func (c *Client) dispatchResponse(echo string, payload []byte) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": "dispatchResponse",
			"echo":     echo,
			"error":    err.Error(),
		}).Warn("Failed to decode response")
		return
	}

	c.waitMu.Lock()
	waiter := c.waiters[echo]
	c.waitMu.Unlock()
	if waiter == nil {
		c.logger.WithFields(logrus.Fields{
			"function": "dispatchResponse",
			"echo":     echo,
		}).Debug("Response without waiter, dropping")
		return
	}

	select {
	case waiter <- &resp:
	default:
	}
}

// call sends action and waits for its response.
func (c *Client) call(ctx context.Context, action string, params any) (*Response, error) {
	select {
	case <-c.done:
		return nil, c.closeErr
	default:
	}

	echo := uuid.NewString()
	waiter := make(chan *Response, 1)

	c.waitMu.Lock()
	c.waiters[echo] = waiter
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.waiters, echo)
		c.waitMu.Unlock()
	}()

	payload, err := json.Marshal(Request{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to write %s request: %w", action, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: action=%s", ErrRequestTimeout, action)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeErr
	}
}

// SendGroupMessage implements transport.Transport.
func (c *Client) SendGroupMessage(ctx context.Context, env *transport.Envelope) (*transport.SendResponse, error) {
	segments, err := EncodeChain(env.Chain)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, ActionSendGroupMsg, SendGroupMsgParams{
		GroupID: env.GroupID,
		Message: segments,
		Random:  env.Random,
		Forward: env.Forward,
	})
	if err != nil {
		return nil, err
	}

	out := &transport.SendResponse{Code: resp.RetCode, Message: resp.Message}
	if resp.RetCode == transport.ResultOK && len(resp.Data) > 0 {
		var result SendResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, fmt.Errorf("failed to decode %s result: %w", ActionSendGroupMsg, err)
		}
		out.Time = unixTime(result.Time)
	}
	return out, nil
}

// SendGroupBundle implements transport.Transport.
func (c *Client) SendGroupBundle(ctx context.Context, req *transport.BundleRequest) (*message.Source, error) {
	nodes, err := EncodeForward(req.Forward)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, ActionSendGroupForwardMsg, SendGroupForwardMsgParams{
		GroupID:  req.GroupID,
		Messages: nodes,
		Random:   req.Random,
	})
	if err != nil {
		return nil, err
	}
	if resp.RetCode != transport.ResultOK {
		return nil, &APIError{Action: ActionSendGroupForwardMsg, RetCode: resp.RetCode, Message: resp.Message}
	}

	var result SendResult
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, fmt.Errorf("failed to decode %s result: %w", ActionSendGroupForwardMsg, err)
		}
	}
	return &message.Source{
		GroupID:  req.GroupID,
		SenderID: req.SenderID,
		Random:   req.Random,
		Time:     unixTime(result.Time),
		Chain:    message.NewChain(req.Forward),
		Sequence: req.Sequence,
	}, nil
}

// NegotiateGroupImage implements transport.Transport.
func (c *Client) NegotiateGroupImage(ctx context.Context, req *transport.ImageNegotiation) (transport.NegotiationResult, error) {
	resp, err := c.call(ctx, ActionGroupPicUp, GroupPicUpParams{
		GroupID:    req.GroupID,
		MD5:        hex.EncodeToString(req.MD5[:]),
		Size:       req.Size,
		Format:     req.Format,
		ResourceID: req.ResourceID,
	})
	if err != nil {
		return nil, err
	}
	if resp.RetCode != transport.ResultOK {
		return nil, &APIError{Action: ActionGroupPicUp, RetCode: resp.RetCode, Message: resp.Message}
	}

	var result GroupPicUpResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", ActionGroupPicUp, err)
	}

	switch result.Result {
	case PicUpExists:
		return transport.AlreadyPresent{ResourceID: result.ResourceID}, nil
	case PicUpUpload:
		endpoints := make([]transport.Endpoint, 0, len(result.Endpoints))
		for _, s := range result.Endpoints {
			ep, err := transport.ParseEndpoint(s)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, ep)
		}
		return transport.MustUpload{
			Endpoints:  endpoints,
			UploadKey:  result.UploadKey,
			ResourceID: result.ResourceID,
		}, nil
	case PicUpRejected:
		return transport.Rejected{Code: result.Code, Reason: result.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown %s result %q", ActionGroupPicUp, result.Result)
	}
}

// UploadChunks implements transport.Transport.
func (c *Client) UploadChunks(ctx context.Context, req *transport.ChunkUpload) error {
	if c.uploader == nil {
		return ErrNoUploader
	}
	return c.uploader.Upload(ctx, req)
}

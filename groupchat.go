package groupchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/event"
	"github.com/opd-ai/groupchat/group"
	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
	"github.com/opd-ai/groupchat/transport"
)

var (
	// ErrGroupNotFound indicates an unknown group id.
	ErrGroupNotFound = errors.New("group not found")
	// ErrClientClosed indicates use of a closed client.
	ErrClientClosed = errors.New("client closed")
)

// Options configures a Client.
type Options struct {
	// SelfID is the id of the sending account.
	SelfID int64
	// Nick is the account nickname used as sender name in bundles.
	Nick string
	// Transport performs network operations. Required.
	Transport transport.Transport
	// Resolver correlates server receipts. A new one is created when nil;
	// it must be the resolver the transport delivers receipts to.
	Resolver *sequence.Resolver
	// SequenceTimeout bounds the wait for a sent message's sequence id.
	SequenceTimeout time.Duration
	// QuoteTimeout bounds the wait for a quoted message's sequence id.
	QuoteTimeout time.Duration
	// TimeProvider drives mute checks and timestamps.
	TimeProvider group.TimeProvider
	// Logger receives client logs. Defaults to the logrus standard logger.
	Logger *logrus.Logger
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		SequenceTimeout: sequence.DefaultTimeout,
		QuoteTimeout:    sequence.DefaultTimeout,
		TimeProvider:    group.DefaultTimeProvider{},
		Logger:          logrus.StandardLogger(),
	}
}

// Client is the session scope of one account.
type Client struct {
	options *Options
	ctx     context.Context
	cancel  context.CancelFunc

	bus       *event.Bus
	resolver  *sequence.Resolver
	transport transport.Transport
	logger    *logrus.Logger

	groupsMu sync.RWMutex
	groups   map[int64]*group.Group

	closeOnce sync.Once
	closeErr  error
}

// New creates a client whose scope ends with ctx.
func New(ctx context.Context, options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.Transport == nil {
		return nil, errors.New("groupchat: options.Transport is required")
	}
	if options.SelfID <= 0 {
		return nil, errors.New("groupchat: options.SelfID must be positive")
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.Resolver == nil {
		options.Resolver = sequence.NewResolver()
		options.Resolver.SetLogger(options.Logger)
	}

	scope, cancel := context.WithCancel(ctx)
	c := &Client{
		options:   options,
		ctx:       scope,
		cancel:    cancel,
		bus:       event.NewBus(scope, event.WithLogger(options.Logger)),
		resolver:  options.Resolver,
		transport: options.Transport,
		logger:    options.Logger,
		groups:    make(map[int64]*group.Group),
	}

	event.SubscribeBotAlways(c.bus, options.SelfID, c.logSendOutcome,
		event.WithPriority(event.PriorityMonitor))

	c.logger.WithFields(logrus.Fields{
		"function": "New",
		"self_id":  options.SelfID,
	}).Info("Group chat client created")
	return c, nil
}

// logSendOutcome records failed sends for operators.
func (c *Client) logSendOutcome(_ context.Context, ev *group.MessagePostSendEvent) error {
	if ev.Err == nil {
		return nil
	}
	c.logger.WithFields(logrus.Fields{
		"function": "logSendOutcome",
		"group_id": ev.Group().ID(),
		"content":  ev.Message.Preview(10),
		"error":    ev.Err.Error(),
	}).Warn("Group message failed")
	return nil
}

// SelfID returns the account id.
func (c *Client) SelfID() int64 { return c.options.SelfID }

// Bus returns the event bus of the session.
func (c *Client) Bus() *event.Bus { return c.bus }

// Resolver returns the sequence-id resolver of the session.
func (c *Client) Resolver() *sequence.Resolver { return c.resolver }

// Context returns the session scope. It is done after Close.
func (c *Client) Context() context.Context { return c.ctx }

// AddGroup registers a group and returns it. Adding a known id returns the
// existing group.
func (c *Client) AddGroup(id int64, name string) (*group.Group, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClientClosed
	}

	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()

	if g, ok := c.groups[id]; ok {
		return g, nil
	}

	opts := group.NewOptions()
	if c.options.SequenceTimeout > 0 {
		opts.SequenceTimeout = c.options.SequenceTimeout
	}
	if c.options.QuoteTimeout > 0 {
		opts.QuoteTimeout = c.options.QuoteTimeout
	}
	if c.options.TimeProvider != nil {
		opts.TimeProvider = c.options.TimeProvider
	}
	opts.Logger = c.logger

	g, err := group.New(id, name,
		group.MemberInfo{ID: c.options.SelfID, Nick: c.options.Nick},
		group.Session{Bus: c.bus, Resolver: c.resolver, Transport: c.transport, Scope: c.ctx},
		opts)
	if err != nil {
		return nil, err
	}
	c.groups[id] = g
	return g, nil
}

// Group returns a registered group.
func (c *Client) Group(id int64) (*group.Group, bool) {
	c.groupsMu.RLock()
	defer c.groupsMu.RUnlock()
	g, ok := c.groups[id]
	return g, ok
}

// Groups returns the registered groups ordered by id.
func (c *Client) Groups() []*group.Group {
	c.groupsMu.RLock()
	out := make([]*group.Group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	c.groupsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// RemoveGroup forgets a group. It reports whether the group was known.
func (c *Client) RemoveGroup(id int64) bool {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if _, ok := c.groups[id]; !ok {
		return false
	}
	delete(c.groups, id)
	return true
}

// SendGroupMessage sends chain to a registered group.
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, chain message.Chain) (*group.Receipt, error) {
	g, err := c.lookup(groupID)
	if err != nil {
		return nil, err
	}
	return g.SendMessage(ctx, chain)
}

// UploadGroupImage uploads img to a registered group. img is closed on return.
func (c *Client) UploadGroupImage(ctx context.Context, groupID int64, img *message.ExternalImage) (message.Image, error) {
	g, err := c.lookup(groupID)
	if err != nil {
		if img != nil {
			img.Close()
		}
		return message.Image{}, err
	}
	return g.UploadImage(ctx, img)
}

func (c *Client) lookup(groupID int64) (*group.Group, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClientClosed
	}
	g, ok := c.Group(groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	return g, nil
}

// Close ends the session scope, closes the bus and closes the transport if
// it implements io.Closer.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.bus.Close()
		if closer, ok := c.transport.(io.Closer); ok {
			c.closeErr = closer.Close()
		}
		c.logger.WithFields(logrus.Fields{
			"function": "Close",
			"self_id":  c.options.SelfID,
		}).Info("Group chat client closed")
	})
	return c.closeErr
}

package group

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/event"
	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
	"github.com/opd-ai/groupchat/transport"
)

// Permission is a member's role in the group.
type Permission uint8

const (
	// PermissionMember is a regular group member.
	PermissionMember Permission = iota
	// PermissionAdministrator can mute and remove members.
	PermissionAdministrator
	// PermissionOwner created the group.
	PermissionOwner
)

// String returns the permission name.
func (p Permission) String() string {
	switch p {
	case PermissionMember:
		return "member"
	case PermissionAdministrator:
		return "administrator"
	case PermissionOwner:
		return "owner"
	default:
		return fmt.Sprintf("permission(%d)", uint8(p))
	}
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// Options configures a Group.
type Options struct {
	// SequenceTimeout bounds the wait for a sent message's sequence id.
	SequenceTimeout time.Duration
	// QuoteTimeout bounds the wait for a quoted message's sequence id.
	QuoteTimeout time.Duration
	// Weights is the size estimation model.
	Weights message.Weights
	// TimeProvider drives mute checks and message timestamps.
	TimeProvider TimeProvider
	// Logger receives pipeline logs. Defaults to the logrus standard logger.
	Logger *logrus.Logger
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{
		SequenceTimeout: sequence.DefaultTimeout,
		QuoteTimeout:    sequence.DefaultTimeout,
		Weights:         message.DefaultWeights,
		TimeProvider:    DefaultTimeProvider{},
		Logger:          logrus.StandardLogger(),
	}
}

func (o *Options) normalize() *Options {
	out := NewOptions()
	if o == nil {
		return out
	}
	if o.SequenceTimeout > 0 {
		out.SequenceTimeout = o.SequenceTimeout
	}
	if o.QuoteTimeout > 0 {
		out.QuoteTimeout = o.QuoteTimeout
	}
	if o.Weights != (message.Weights{}) {
		out.Weights = o.Weights
	}
	if o.TimeProvider != nil {
		out.TimeProvider = o.TimeProvider
	}
	if o.Logger != nil {
		out.Logger = o.Logger
	}
	return out
}

// Session holds the collaborators shared by every group of one account.
type Session struct {
	Bus       *event.Bus
	Resolver  *sequence.Resolver
	Transport transport.Transport
	// Scope ends the session. In-flight sends and uploads are aborted when
	// it is done. Optional.
	Scope context.Context
}

func (s Session) validate() error {
	switch {
	case s.Bus == nil:
		return errors.New("session has no event bus")
	case s.Resolver == nil:
		return errors.New("session has no sequence resolver")
	case s.Transport == nil:
		return errors.New("session has no transport")
	}
	return nil
}

// MemberInfo describes a member.
type MemberInfo struct {
	ID         int64
	Nick       string
	NameCard   string
	Permission Permission
}

// Member is a member of a group.
type Member struct {
	MemberInfo

	group     *Group
	mu        sync.RWMutex
	muteUntil time.Time
}

// DisplayName returns the name card, or the nick if no card is set.
func (m *Member) DisplayName() string {
	if m.NameCard != "" {
		return m.NameCard
	}
	return m.Nick
}

// Group returns the group the member belongs to.
func (m *Member) Group() *Group {
	return m.group
}

// MuteFor mutes the member for d from now. A non-positive d unmutes.
func (m *Member) MuteFor(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		m.muteUntil = time.Time{}
		return
	}
	m.muteUntil = m.group.now().Add(d)
}

// Unmute clears any mute.
func (m *Member) Unmute() {
	m.MuteFor(0)
}

// MuteRemaining returns how long the member stays muted.
func (m *Member) MuteRemaining() time.Duration {
	m.mu.RLock()
	until := m.muteUntil
	m.mu.RUnlock()

	if until.IsZero() {
		return 0
	}
	if remaining := until.Sub(m.group.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// IsMuted reports whether the member is currently muted.
func (m *Member) IsMuted() bool {
	return m.MuteRemaining() > 0
}

// String implements fmt.Stringer.
func (m *Member) String() string {
	return fmt.Sprintf("Member(%d)", m.ID)
}

// Group is a group chat as seen by one account. Sends to different groups
// share no locks.
type Group struct {
	id   int64
	opts *Options

	bus       *event.Bus
	resolver  *sequence.Resolver
	transport transport.Transport
	scope     context.Context
	logger    *logrus.Logger

	mu      sync.RWMutex
	name    string
	self    *Member
	members map[int64]*Member
}

// New creates a group whose own member is self.
func New(id int64, name string, self MemberInfo, session Session, opts *Options) (*Group, error) {
	if err := session.validate(); err != nil {
		return nil, fmt.Errorf("create group %d: %w", id, err)
	}
	if self.ID == 0 {
		return nil, fmt.Errorf("create group %d: self member has no id", id)
	}

	opts = opts.normalize()
	g := &Group{
		id:        id,
		opts:      opts,
		bus:       session.Bus,
		resolver:  session.Resolver,
		transport: session.Transport,
		scope:     session.Scope,
		logger:    opts.Logger,
		name:      name,
		members:   make(map[int64]*Member),
	}
	g.self = g.newMember(self)

	g.logger.WithFields(logrus.Fields{
		"function": "New",
		"group_id": id,
		"self_id":  self.ID,
	}).Debug("Group created")
	return g, nil
}

// bind derives the context of one operation. It is cancelled when either
// ctx or the session scope is done.
func (g *Group) bind(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if g.scope != nil && g.scope.Err() != nil {
		return nil, nil, ErrSessionClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	if g.scope == nil {
		return ctx, cancel, nil
	}
	stop := context.AfterFunc(g.scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (g *Group) newMember(info MemberInfo) *Member {
	return &Member{MemberInfo: info, group: g}
}

func (g *Group) now() time.Time {
	return g.opts.TimeProvider.Now()
}

// ID returns the group id.
func (g *Group) ID() int64 { return g.id }

// Name returns the group name.
func (g *Group) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// SetName updates the locally known group name.
func (g *Group) SetName(name string) {
	g.mu.Lock()
	g.name = name
	g.mu.Unlock()
}

// Self returns the member representing the sending account.
func (g *Group) Self() *Member {
	return g.self
}

// BotID returns the id of the account the group belongs to.
func (g *Group) BotID() int64 {
	return g.self.ID
}

// AddMember adds or replaces a member and returns the stored value.
func (g *Group) AddMember(info MemberInfo) *Member {
	if info.ID == g.self.ID {
		return g.self
	}
	member := g.newMember(info)

	g.mu.Lock()
	g.members[info.ID] = member
	g.mu.Unlock()
	return member
}

// RemoveMember removes a member. It reports whether the member existed.
func (g *Group) RemoveMember(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[id]; !ok {
		return false
	}
	delete(g.members, id)
	return true
}

// Member returns the member with id. The own member is included.
func (g *Group) Member(id int64) (*Member, bool) {
	if id == g.self.ID {
		return g.self, true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.members[id]
	return m, ok
}

// Members returns the other members ordered by id.
func (g *Group) Members() []*Member {
	g.mu.RLock()
	out := make([]*Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// String implements fmt.Stringer.
func (g *Group) String() string {
	return fmt.Sprintf("Group(%d)", g.id)
}

package group

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/groupchat/event"
	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/sequence"
)

// testEnv bundles a group with its collaborators.
type testEnv struct {
	group     *Group
	bus       *event.Bus
	resolver  *sequence.Resolver
	transport *mockTransport
	clock     *mockTimeProvider
}

func newTestEnv(t *testing.T, configure ...func(*Options)) *testEnv {
	t.Helper()

	logger := quietLogger()
	bus := event.NewBus(context.Background(), event.WithLogger(logger))
	t.Cleanup(bus.Close)

	resolver := sequence.NewResolver()
	resolver.SetLogger(logger)
	tr := newMockTransport(resolver)
	clock := newMockTimeProvider()

	opts := NewOptions()
	opts.SequenceTimeout = testSequenceTimeout
	opts.QuoteTimeout = testSequenceTimeout
	opts.TimeProvider = clock
	opts.Logger = logger
	for _, fn := range configure {
		fn(opts)
	}

	g, err := New(testGroupID, "test group",
		MemberInfo{ID: testSelfID, Nick: testSelfNick, Permission: PermissionMember},
		Session{Bus: bus, Resolver: resolver, Transport: tr}, opts)
	require.NoError(t, err)

	return &testEnv{group: g, bus: bus, resolver: resolver, transport: tr, clock: clock}
}

func TestNewValidatesSession(t *testing.T) {
	bus := event.NewBus(context.Background())
	defer bus.Close()
	resolver := sequence.NewResolver()
	tr := newMockTransport(resolver)
	self := MemberInfo{ID: testSelfID}

	tests := []struct {
		name    string
		session Session
		self    MemberInfo
	}{
		{"no bus", Session{Resolver: resolver, Transport: tr}, self},
		{"no resolver", Session{Bus: bus, Transport: tr}, self},
		{"no transport", Session{Bus: bus, Resolver: resolver}, self},
		{"no self id", Session{Bus: bus, Resolver: resolver, Transport: tr}, MemberInfo{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(testGroupID, "g", tc.self, tc.session, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	assert.Equal(t, sequence.DefaultTimeout, opts.SequenceTimeout)
	assert.Equal(t, message.DefaultWeights, opts.Weights)
	assert.NotNil(t, opts.Logger)

	partial := (&Options{SequenceTimeout: time.Second}).normalize()
	assert.Equal(t, time.Second, partial.SequenceTimeout)
	assert.Equal(t, sequence.DefaultTimeout, partial.QuoteTimeout)
	assert.NotNil(t, partial.TimeProvider)
}

func TestMembers(t *testing.T) {
	env := newTestEnv(t)
	g := env.group

	assert.Equal(t, testGroupID, g.ID())
	assert.Equal(t, testSelfID, g.BotID())
	assert.Equal(t, "test group", g.Name())
	g.SetName("renamed")
	assert.Equal(t, "renamed", g.Name())

	other := g.AddMember(MemberInfo{ID: testOtherID, Nick: "other", NameCard: "card", Permission: PermissionAdministrator})
	assert.Equal(t, "card", other.DisplayName())
	assert.Same(t, g, other.Group())
	assert.Same(t, g.Self(), g.AddMember(MemberInfo{ID: testSelfID}))

	got, ok := g.Member(testOtherID)
	require.True(t, ok)
	assert.Same(t, other, got)

	self, ok := g.Member(testSelfID)
	require.True(t, ok)
	assert.Equal(t, testSelfNick, self.DisplayName())

	assert.Len(t, g.Members(), 1)
	assert.True(t, g.RemoveMember(testOtherID))
	assert.False(t, g.RemoveMember(testOtherID))
	_, ok = g.Member(testOtherID)
	assert.False(t, ok)
}

func TestMemberMute(t *testing.T) {
	env := newTestEnv(t)
	self := env.group.Self()

	assert.False(t, self.IsMuted())

	self.MuteFor(time.Minute)
	assert.True(t, self.IsMuted())
	assert.Equal(t, time.Minute, self.MuteRemaining())

	env.clock.Advance(40 * time.Second)
	assert.Equal(t, 20*time.Second, self.MuteRemaining())

	env.clock.Advance(20 * time.Second)
	assert.False(t, self.IsMuted())

	self.MuteFor(time.Hour)
	self.Unmute()
	assert.False(t, self.IsMuted())
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "member", PermissionMember.String())
	assert.Equal(t, "administrator", PermissionAdministrator.String())
	assert.Equal(t, "owner", PermissionOwner.String())
	assert.Equal(t, "permission(7)", Permission(7).String())
}

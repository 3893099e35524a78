package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain"
)

type hubEnv struct {
	auth     *fakeAuth
	users    *memUserRepo
	messages *memMessageRepo
	presence *Presence
	broker   *Broker
	hub      *Hub
	alice    *domain.User
	bob      *domain.User
}

func newHubEnv(t *testing.T) *hubEnv {
	users := newMemUserRepo()
	env := &hubEnv{
		users: users,
		alice: users.mustAdd(t, "Alice", "alice@example.com"),
		bob:   users.mustAdd(t, "Bob", "bob@example.com"),
	}
	env.messages = newMemMessageRepo(users)
	env.auth = newFakeAuth(users)
	env.presence = NewPresence()
	env.broker = NewBroker(testLogger())
	router := NewRouter(env.messages, users, env.broker, testLogger(), 50)
	env.hub = NewHub(env.auth, env.presence, env.broker, router, testLogger(), 256)
	return env
}

func (e *hubEnv) mustConnect(t *testing.T, user *domain.User, handleID string) (*Session, *fakeHandle) {
	t.Helper()
	h := &fakeHandle{id: handleID}
	sess, err := e.hub.OnConnect(context.Background(), h, e.auth.grant(user.ID))
	require.NoError(t, err)
	return sess, h
}

func TestOnConnectAuthenticatesAndAnnounces(t *testing.T) {
	req := require.New(t)
	env := newHubEnv(t)

	_, aliceHandle := env.mustConnect(t, env.alice, "a1")

	acks := aliceHandle.named(EventIdentityAck)
	req.Len(acks, 1)
	ack := decodePayload[Identity](t, acks[0])
	req.Equal(env.alice.ID, ack.ID)
	req.Equal("Alice", ack.Name)

	// alone online: snapshot minus self is empty
	lists := aliceHandle.named(EventOnlineUsers)
	req.Len(lists, 1)
	req.Empty(decodePayload[[]Identity](t, lists[0]))

	_, bobHandle := env.mustConnect(t, env.bob, "b1")

	// both sides got a fresh snapshot excluding themselves
	aliceLists := aliceHandle.named(EventOnlineUsers)
	req.Len(aliceLists, 2)
	visible := decodePayload[[]Identity](t, aliceLists[1])
	req.Len(visible, 1)
	req.Equal(env.bob.ID, visible[0].ID)

	bobLists := bobHandle.named(EventOnlineUsers)
	req.Len(bobLists, 1)
	visible = decodePayload[[]Identity](t, bobLists[0])
	req.Len(visible, 1)
	req.Equal(env.alice.ID, visible[0].ID)

	req.True(env.presence.Online(env.alice.ID))
	req.True(env.presence.Online(env.bob.ID))
}

func TestOnConnectInvalidTokenLeavesNoState(t *testing.T) {
	req := require.New(t)
	env := newHubEnv(t)

	h := &fakeHandle{id: "x1"}
	_, err := env.hub.OnConnect(context.Background(), h, "garbage")
	req.ErrorIs(err, ErrAuthFailed)
	req.True(h.isClosed())
	req.Empty(h.events)
	req.Empty(env.presence.Sessions())
}

func TestOnConnectUnknownUserLeavesNoState(t *testing.T) {
	req := require.New(t)
	env := newHubEnv(t)

	env.auth.tokens["orphan"] = 404
	h := &fakeHandle{id: "x1"}
	_, err := env.hub.OnConnect(context.Background(), h, "orphan")
	req.ErrorIs(err, ErrAuthFailed)
	req.True(h.isClosed())
	req.Empty(env.presence.Sessions())
}

func TestOnDisconnectMultiDevice(t *testing.T) {
	req := require.New(t)
	env := newHubEnv(t)

	phoneSess, _ := env.mustConnect(t, env.alice, "phone")
	laptopSess, _ := env.mustConnect(t, env.alice, "laptop")
	_, bobHandle := env.mustConnect(t, env.bob, "b1")

	before := len(bobHandle.named(EventOnlineUsers))

	// first device leaving keeps alice online and triggers no snapshot
	env.hub.OnDisconnect(phoneSess)
	req.True(env.presence.Online(env.alice.ID))
	req.Len(bobHandle.named(EventOnlineUsers), before)

	// last device leaving takes her offline and rebroadcasts
	env.hub.OnDisconnect(laptopSess)
	req.False(env.presence.Online(env.alice.ID))
	lists := bobHandle.named(EventOnlineUsers)
	req.Len(lists, before+1)
	req.Empty(decodePayload[[]Identity](t, lists[len(lists)-1]))
}

func TestDisconnectedHandleGetsNoFurtherEvents(t *testing.T) {
	req := require.New(t)
	env := newHubEnv(t)
	ctx := context.Background()

	aliceSess, _ := env.mustConnect(t, env.alice, "a1")
	bobSess, bobHandle := env.mustConnect(t, env.bob, "b1")

	env.hub.OnDisconnect(bobSess)

	payload := SendPrivatePayload{TargetUserID: env.bob.ID, Message: "too late"}
	ev, err := NewEvent(EventSendPrivate, payload)
	req.NoError(err)
	env.hub.Route(ctx, aliceSess, ev)

	// message is persisted for later replay, but the gone handle gets nothing
	req.Len(env.messages.stored(), 1)
	req.Empty(bobHandle.named(EventPrivateMessage))
}

// End-to-end shape of a directed send across two connected users.
func TestPrivateMessageRoundTrip(t *testing.T) {
	req := require.New(t)
	env := newHubEnv(t)
	ctx := context.Background()

	aliceSess, aliceHandle := env.mustConnect(t, env.alice, "a1")
	_, bobHandle := env.mustConnect(t, env.bob, "b1")

	ev, err := NewEvent(EventSendPrivate, SendPrivatePayload{TargetUserID: env.bob.ID, Message: "hi"})
	req.NoError(err)
	env.hub.Route(ctx, aliceSess, ev)

	got := bobHandle.named(EventPrivateMessage)
	req.Len(got, 1)
	msg := decodePayload[MessagePayload](t, got[0])
	req.Equal(env.alice.ID, msg.SenderID)
	req.Equal("hi", msg.Message)

	req.Len(aliceHandle.named(EventPrivateMessage), 1)
	req.Len(aliceHandle.named(EventMessageDelivered), 1)
}
